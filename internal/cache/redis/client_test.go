package redis

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetNarrative(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := NewWithClient(db, time.Hour)

	n := Narrative{
		Text:        "The family is covered.",
		Tags:        []string{"review"},
		GeneratedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	data, err := json.Marshal(n)
	require.NoError(t, err)

	mock.ExpectSet("narrative:p-1", data, time.Hour).SetVal("OK")

	require.NoError(t, c.SetNarrative(context.Background(), "p-1", n))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetNarrative_Error(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := NewWithClient(db, time.Minute)

	n := Narrative{Text: "x", GeneratedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	data, err := json.Marshal(n)
	require.NoError(t, err)

	mock.ExpectSet("narrative:p-1", data, time.Minute).SetErr(errors.New("connection refused"))

	err = c.SetNarrative(context.Background(), "p-1", n)
	assert.ErrorContains(t, err, "failed to set narrative cache")
}

func TestGetNarrative_Hit(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := NewWithClient(db, time.Hour)

	mock.ExpectGet("narrative:p-1").SetVal(`{"text":"hello","tags":["life"],"generated_at":"2026-01-02T03:04:05Z"}`)

	n, ok, err := c.GetNarrative(context.Background(), "p-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "hello", n.Text)
	assert.Equal(t, []string{"life"}, n.Tags)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetNarrative_Miss(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := NewWithClient(db, time.Hour)

	mock.ExpectGet("narrative:p-2").RedisNil()

	_, ok, err := c.GetNarrative(context.Background(), "p-2")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGetNarrative_Errors(t *testing.T) {
	db, mock := redismock.NewClientMock()
	c := NewWithClient(db, time.Hour)

	mock.ExpectGet("narrative:p-3").SetErr(errors.New("timeout"))
	_, ok, err := c.GetNarrative(context.Background(), "p-3")
	assert.False(t, ok)
	assert.ErrorContains(t, err, "failed to get narrative cache")

	mock.ExpectGet("narrative:p-4").SetVal("not json")
	_, ok, err = c.GetNarrative(context.Background(), "p-4")
	assert.False(t, ok)
	assert.ErrorContains(t, err, "failed to unmarshal narrative")
}
