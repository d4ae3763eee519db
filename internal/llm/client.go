package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/family-profiler/backend/internal/domain"
	"github.com/family-profiler/backend/internal/metrics"
	"github.com/family-profiler/backend/pkg/circuitbreaker"
	"github.com/family-profiler/backend/pkg/config"
	"github.com/family-profiler/backend/pkg/logger"
	"github.com/family-profiler/backend/pkg/retry"
)

// FallbackNarrative replaces the narrative whenever generation fails or
// times out.
const FallbackNarrative = "An automated narrative is not available for this profile. " +
	"The scores, coverage gaps and recommendations above are complete and were computed without it."

var ErrEmptyCompletion = errors.New("completion returned no choices")

type Client struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	timeout     time.Duration
	cb          *circuitbreaker.CircuitBreaker
	retryConfig retry.Config
}

type CompletionRequest struct {
	SystemPrompt string
	UserPrompt   string
	Temperature  float32
	MaxTokens    int
}

type CompletionResponse struct {
	Content string
	Usage   Usage
}

type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

func NewClient(cfg config.LLMConfig) *Client {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	cb := circuitbreaker.NewCircuitBreaker("llm", circuitbreaker.Config{
		MaxRequests:      5,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		OnStateChange:    metrics.TrackCircuit,
		Logger:           logger.GetLogger(),
	})

	retryConfig := retry.Config{
		MaxAttempts:    3,
		InitialDelay:   500 * time.Millisecond,
		MaxDelay:       5 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		RetryIf:        isTransient,
		Logger:         logger.GetLogger(),
	}

	logger.Info("LLM client initialized",
		zap.String("model", cfg.Model),
		zap.Duration("timeout", timeout),
	)

	return &Client{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		timeout:     timeout,
		cb:          cb,
		retryConfig: retryConfig,
	}
}

// isTransient keeps client errors other than rate limiting from being
// retried.
func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.HTTPStatusCode
		return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		code := reqErr.HTTPStatusCode
		return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
	}
	return true
}

// Complete runs one chat completion bounded by the configured timeout.
func (c *Client) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	temperature := req.Temperature
	if temperature == 0 {
		temperature = c.temperature
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = c.maxTokens
	}

	messages := []openai.ChatCompletionMessage{
		{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		},
		{
			Role:    openai.ChatMessageRoleUser,
			Content: req.UserPrompt,
		},
	}

	var result *CompletionResponse

	err := c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func(ctx context.Context) error {
			resp, err := c.client.CreateChatCompletion(
				ctx,
				openai.ChatCompletionRequest{
					Model:       c.model,
					Messages:    messages,
					Temperature: temperature,
					MaxTokens:   maxTokens,
				},
			)
			if err != nil {
				return fmt.Errorf("failed to create completion: %w", err)
			}
			if len(resp.Choices) == 0 {
				return retry.Permanent(ErrEmptyCompletion)
			}

			metrics.LLMTokensUsed.WithLabelValues(c.model, "prompt").Add(float64(resp.Usage.PromptTokens))
			metrics.LLMTokensUsed.WithLabelValues(c.model, "completion").Add(float64(resp.Usage.CompletionTokens))

			logger.Debug("LLM completion generated",
				zap.Int("prompt_tokens", resp.Usage.PromptTokens),
				zap.Int("completion_tokens", resp.Usage.CompletionTokens),
			)

			result = &CompletionResponse{
				Content: resp.Choices[0].Message.Content,
				Usage: Usage{
					PromptTokens:     resp.Usage.PromptTokens,
					CompletionTokens: resp.Usage.CompletionTokens,
					TotalTokens:      resp.Usage.TotalTokens,
				},
			}

			return nil
		})
	})

	if err != nil {
		return nil, err
	}

	return result, nil
}

const narrativeSystemPrompt = `You are a senior household insurance advisor. You receive a structured family
insurance profile that has already been scored. Write a short narrative for the family:

1. Summarize the household and its current coverage
2. Explain the main risks and coverage gaps in plain language
3. Suggest concrete next steps, most urgent first
4. Mention available family discounts when relevant

Do not invent numbers. Use only the figures in the profile. Keep it under 300 words.`

// narrativeInput is the slice of a profile the model gets to see.
type narrativeInput struct {
	FamilyName      string                  `json:"family_name"`
	Composition     domain.Composition      `json:"family_composition"`
	TotalValue      string                  `json:"total_value"`
	MonthlyPremium  string                  `json:"total_monthly_premium"`
	TotalPolicies   int                     `json:"total_policies"`
	Risk            domain.RiskAnalysis     `json:"risk_analysis"`
	CoverageGaps    []string                `json:"coverage_gaps"`
	Opportunities   []domain.Opportunity    `json:"optimization_opportunities"`
	Recommendations []domain.Recommendation `json:"recommendations"`
	Discounts       []domain.Discount       `json:"family_discounts"`
	Members         []narrativeMember       `json:"members"`
}

type narrativeMember struct {
	Name         string              `json:"name"`
	Age          int                 `json:"age"`
	Relationship domain.Relationship `json:"relationship"`
	Coverage     []string            `json:"coverage_types"`
	RiskScore    int                 `json:"risk_score"`
	Adequacy     domain.Adequacy     `json:"coverage_adequacy"`
}

func buildNarrativePrompt(p *domain.FamilyProfile) (string, error) {
	in := narrativeInput{
		FamilyName:      p.FamilyName,
		Composition:     p.Composition,
		TotalValue:      p.Portfolio.TotalValue.String(),
		MonthlyPremium:  p.TotalMonthlyPremium.String(),
		TotalPolicies:   p.TotalPolicies,
		Risk:            p.Risk,
		CoverageGaps:    p.CoverageGaps,
		Opportunities:   p.OptimizationOpportunities,
		Recommendations: p.Recommendations,
		Discounts:       p.Financial.Discounts,
	}
	for i, m := range p.Members {
		nm := narrativeMember{
			Name:         m.Name,
			Age:          m.Age,
			Relationship: m.Relationship,
			Coverage:     m.Coverage.Labels(),
		}
		if i < len(p.MembersAnalysis) {
			nm.RiskScore = p.MembersAnalysis[i].RiskScore
			nm.Adequacy = p.MembersAnalysis[i].CoverageAdequacy
		}
		in.Members = append(in.Members, nm)
	}

	data, err := json.MarshalIndent(in, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode profile: %w", err)
	}
	return fmt.Sprintf("Family insurance profile:\n\n%s\n\nWrite the narrative.", data), nil
}

// Narrate returns free text about the profile. Callers treat the result as
// opaque and fall back to FallbackNarrative on error.
func (c *Client) Narrate(ctx context.Context, p *domain.FamilyProfile) (string, error) {
	prompt, err := buildNarrativePrompt(p)
	if err != nil {
		return "", err
	}

	resp, err := c.Complete(ctx, CompletionRequest{
		SystemPrompt: narrativeSystemPrompt,
		UserPrompt:   prompt,
	})
	if err != nil {
		return "", fmt.Errorf("failed to generate narrative: %w", err)
	}

	logger.Info("Narrative generated",
		zap.String("profile_id", p.ID),
		zap.Int("narrative_length", len(resp.Content)),
	)

	return resp.Content, nil
}
