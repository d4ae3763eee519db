package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 5, cfg.Extraction.SkipRows)
	assert.Equal(t, 7, cfg.Extraction.Columns.Premium)
	assert.Equal(t, -1, cfg.Extraction.Columns.Value)
	assert.Equal(t, "general", cfg.Extraction.DefaultLabel)
	assert.Contains(t, cfg.Extraction.LabelAliases["life"], "חיים")
	assert.Equal(t, 0.02, cfg.Scoring.PremiumRate)
	assert.Equal(t, "Family", cfg.Family.FallbackName)
	assert.Equal(t, "family member", cfg.Family.MemberPlaceholder)
	assert.Contains(t, cfg.Family.KnownNames, "כהן")
	assert.Equal(t, 10, cfg.LLM.TimeoutSec)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("FAMILY_PROFILER_SERVER_PORT", "9100")
	t.Setenv("FAMILY_PROFILER_EXTRACTION_SKIPROWS", "3")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, 3, cfg.Extraction.SkipRows)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"negative skip rows", func(c *Config) { c.Extraction.SkipRows = -1 }, "skipRows"},
		{"negative premium column", func(c *Config) { c.Extraction.Columns.Premium = -2 }, "columns.premium"},
		{"zero premium rate", func(c *Config) { c.Scoring.PremiumRate = 0 }, "premiumRate"},
		{"missing fallback name", func(c *Config) { c.Family.FallbackName = "" }, "fallbackName"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	assert.NoError(t, Default().Validate())
}
