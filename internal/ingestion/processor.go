package ingestion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	rediscache "github.com/family-profiler/backend/internal/cache/redis"
	"github.com/family-profiler/backend/internal/domain"
	"github.com/family-profiler/backend/internal/llm"
	"github.com/family-profiler/backend/internal/metrics"
	"github.com/family-profiler/backend/internal/pipeline"
	"github.com/family-profiler/backend/pkg/logger"
)

// Narrator produces free text about a finished profile.
type Narrator interface {
	Narrate(ctx context.Context, p *domain.FamilyProfile) (string, error)
}

// TagExtractor derives coarse tags from narrative text.
type TagExtractor interface {
	Extract(text string) []string
}

// ProfileStore is the append-only sink for finished profiles.
type ProfileStore interface {
	AppendProfile(ctx context.Context, p *domain.FamilyProfile) error
}

type GraphSink interface {
	SyncProfile(ctx context.Context, p *domain.FamilyProfile) error
}

type NarrativeCache interface {
	GetNarrative(ctx context.Context, profileID string) (rediscache.Narrative, bool, error)
	SetNarrative(ctx context.Context, profileID string, n rediscache.Narrative) error
}

// Batch outcomes reported on BatchesTotal.
const (
	StatusOK      = "ok"
	StatusInvalid = "invalid"
	StatusError   = "error"
)

type Option func(*Processor)

func WithNarrator(n Narrator) Option {
	return func(p *Processor) { p.narrator = n }
}

func WithTagExtractor(t TagExtractor) Option {
	return func(p *Processor) { p.tags = t }
}

func WithNarrativeCache(c NarrativeCache) Option {
	return func(p *Processor) { p.cache = c }
}

func WithGraphSink(g GraphSink) Option {
	return func(p *Processor) { p.graph = g }
}

func WithNarrativeTimeout(d time.Duration) Option {
	return func(p *Processor) { p.narrativeTimeout = d }
}

func WithClock(now func() time.Time) Option {
	return func(p *Processor) { p.now = now }
}

// Processor runs one upload batch end to end: pipeline, narrative,
// persistence and the optional graph mirror.
type Processor struct {
	orchestrator     *pipeline.Orchestrator
	store            ProfileStore
	narrator         Narrator
	tags             TagExtractor
	cache            NarrativeCache
	graph            GraphSink
	narrativeTimeout time.Duration
	now              func() time.Time
}

func NewProcessor(orchestrator *pipeline.Orchestrator, store ProfileStore, opts ...Option) *Processor {
	p := &Processor{
		orchestrator:     orchestrator,
		store:            store,
		narrativeTimeout: 10 * time.Second,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ProcessBatch returns the stored profile. Only a validation failure, a
// cancellation before validation or a store failure produce an error; the
// narrative never does.
func (p *Processor) ProcessBatch(ctx context.Context, items []pipeline.Item) (*domain.FamilyProfile, error) {
	start := p.now()
	logger.Info("Processing batch", zap.Int("sources", len(items)))

	profile, err := p.orchestrator.Run(ctx, items)
	if err != nil {
		status := StatusError
		if pipeline.IsValidationError(err) {
			status = StatusInvalid
		}
		metrics.BatchesTotal.WithLabelValues(status).Inc()
		logger.Warn("Batch rejected", zap.String("status", status), zap.Error(err))
		return nil, err
	}

	text, tags := p.narrative(ctx, profile)
	profile = profile.WithNarrative(text, tags)

	if p.store != nil {
		if err := p.store.AppendProfile(ctx, profile); err != nil {
			metrics.BatchesTotal.WithLabelValues(StatusError).Inc()
			return nil, fmt.Errorf("failed to store profile: %w", err)
		}
	}

	if p.graph != nil {
		if err := p.graph.SyncProfile(ctx, profile); err != nil {
			logger.Warn("Failed to sync household graph", zap.String("profile_id", profile.ID), zap.Error(err))
		}
	}

	elapsed := p.now().Sub(start)
	metrics.BatchesTotal.WithLabelValues(StatusOK).Inc()
	metrics.BatchDuration.Observe(elapsed.Seconds())

	logger.Info("Batch processed",
		zap.String("profile_id", profile.ID),
		zap.String("family_name", profile.FamilyName),
		zap.Int("members", len(profile.Members)),
		zap.Int("files_not_processed", len(profile.FilesNotProcessed)),
		zap.Duration("elapsed", elapsed),
	)

	return profile, nil
}

// narrative never fails: any problem yields the fallback text and no tags.
func (p *Processor) narrative(ctx context.Context, profile *domain.FamilyProfile) (string, []string) {
	if p.narrator == nil {
		metrics.NarrativeFallbacks.WithLabelValues("disabled").Inc()
		return llm.FallbackNarrative, nil
	}

	if p.cache != nil {
		cached, ok, err := p.cache.GetNarrative(ctx, profile.ID)
		if err != nil {
			logger.Warn("Narrative cache lookup failed", zap.Error(err))
		} else if ok {
			return cached.Text, cached.Tags
		}
	}

	nctx, cancel := context.WithTimeout(ctx, p.narrativeTimeout)
	defer cancel()

	text, err := p.narrator.Narrate(nctx, profile)
	if err == nil && text == "" {
		err = llm.ErrEmptyCompletion
	}
	if err != nil {
		reason := "error"
		if errors.Is(err, context.DeadlineExceeded) {
			reason = "timeout"
		}
		metrics.NarrativeFallbacks.WithLabelValues(reason).Inc()
		logger.Warn("Narrative unavailable, using fallback",
			zap.String("profile_id", profile.ID),
			zap.String("reason", reason),
			zap.Error(err),
		)
		return llm.FallbackNarrative, nil
	}

	var tags []string
	if p.tags != nil {
		tags = p.tags.Extract(text)
	}

	if p.cache != nil {
		n := rediscache.Narrative{Text: text, Tags: tags, GeneratedAt: p.now().UTC()}
		if err := p.cache.SetNarrative(ctx, profile.ID, n); err != nil {
			logger.Warn("Failed to cache narrative", zap.Error(err))
		}
	}

	return text, tags
}
