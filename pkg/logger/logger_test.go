package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestInit_WritesJSONToFile(t *testing.T) {
	prev := Log
	t.Cleanup(func() { Log = prev })

	path := filepath.Join(t.TempDir(), "app.log")
	require.NoError(t, Init("info", "json", path))

	Info("batch processed", zap.String("profile_id", "abc"))
	Debug("hidden below level")
	Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"batch processed"`)
	assert.Contains(t, string(data), `"profile_id":"abc"`)
	assert.Contains(t, string(data), `"service":"family-profiler"`)
	assert.NotContains(t, string(data), "hidden below level")
}

func TestInit_InvalidLevel(t *testing.T) {
	err := Init("loud", "json", "stdout")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}

func TestInit_BadPath(t *testing.T) {
	err := Init("info", "console", filepath.Join(t.TempDir(), "missing", "app.log"))
	require.Error(t, err)
}
