package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/family-profiler/backend/internal/domain"
	"github.com/family-profiler/backend/pkg/config"
)

func completionBody(content string) map[string]any {
	return map[string]any{
		"id":      "chatcmpl-test",
		"object":  "chat.completion",
		"created": 1,
		"model":   "gpt-4o",
		"choices": []map[string]any{{
			"index":         0,
			"message":       map[string]any{"role": "assistant", "content": content},
			"finish_reason": "stop",
		}},
		"usage": map[string]any{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
	}
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewClient(config.LLMConfig{
		Model:      "gpt-4o",
		APIKey:     "test-key",
		BaseURL:    srv.URL + "/v1",
		MaxTokens:  200,
		TimeoutSec: 5,
	})
	c.retryConfig.InitialDelay = time.Millisecond
	c.retryConfig.MaxDelay = 2 * time.Millisecond
	return c
}

func testProfile() *domain.FamilyProfile {
	return &domain.FamilyProfile{
		ID:         "p-1",
		FamilyName: "Levi family",
		Members: []domain.MemberRecord{{
			Name:         "Avi",
			Age:          45,
			Relationship: domain.RelationshipFather,
			Coverage:     domain.NewCoverageSet("health"),
			TotalValue:   decimal.NewFromInt(500_000),
			TotalPremium: decimal.NewFromInt(120),
		}},
		MembersAnalysis:     []domain.MemberAnalysis{{Name: "Avi", RiskScore: 35}},
		TotalMonthlyPremium: decimal.NewFromInt(120),
		CoverageGaps:        []string{"life"},
	}
}

func TestNarrate_Success(t *testing.T) {
	var got openai.ChatCompletionRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(completionBody("The Levi family is well placed."))
	})

	text, err := c.Narrate(context.Background(), testProfile())
	require.NoError(t, err)
	assert.Equal(t, "The Levi family is well placed.", text)

	require.Len(t, got.Messages, 2)
	assert.Equal(t, "gpt-4o", got.Model)
	assert.Equal(t, 200, got.MaxTokens)
	assert.Contains(t, got.Messages[1].Content, `"family_name": "Levi family"`)
	assert.Contains(t, got.Messages[1].Content, `"risk_score": 35`)
}

func TestComplete_RetriesServerErrors(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(completionBody("ok"))
	})

	resp, err := c.Complete(context.Background(), CompletionRequest{UserPrompt: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, 15, resp.Usage.TotalTokens)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestComplete_DoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"bad prompt","type":"invalid_request_error"}}`))
	})

	_, err := c.Complete(context.Background(), CompletionRequest{UserPrompt: "hi"})
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestComplete_Timeout(t *testing.T) {
	release := make(chan struct{})
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)
	c.timeout = 50 * time.Millisecond

	start := time.Now()
	_, err := c.Narrate(context.Background(), testProfile())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestComplete_EmptyChoices(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		body := completionBody("")
		body["choices"] = []any{}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	})

	_, err := c.Complete(context.Background(), CompletionRequest{UserPrompt: "hi"})
	assert.ErrorIs(t, err, ErrEmptyCompletion)
}

func TestIsTransient(t *testing.T) {
	assert.True(t, isTransient(&openai.APIError{HTTPStatusCode: 429}))
	assert.True(t, isTransient(&openai.APIError{HTTPStatusCode: 503}))
	assert.False(t, isTransient(&openai.APIError{HTTPStatusCode: 401}))
	assert.False(t, isTransient(context.DeadlineExceeded))
}
