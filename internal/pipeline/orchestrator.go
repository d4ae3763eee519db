// Package pipeline runs a batch of member sources through the four profiling
// stages (Breakdown, Method, Agile, Development) and produces one
// FamilyProfile.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/family-profiler/backend/internal/aggregate"
	"github.com/family-profiler/backend/internal/domain"
	"github.com/family-profiler/backend/internal/extraction"
	"github.com/family-profiler/backend/internal/normalize"
	"github.com/family-profiler/backend/pkg/config"
	"github.com/family-profiler/backend/pkg/logger"
	"github.com/family-profiler/backend/pkg/utils"
)

type Stage string

const (
	StageBreakdown   Stage = "breakdown"
	StageMethod      Stage = "method"
	StageAgile       Stage = "agile"
	StageDevelopment Stage = "development"
)

// profileNamespace scopes profile ids derived from batch fingerprints.
var profileNamespace = uuid.MustParse("6f1c9e52-3b7a-4d0e-9a5f-2c8e1b4d7a90")

// Item is one source in a batch plus what the caller knows about its member.
type Item struct {
	Source extraction.Source
	Hints  domain.MemberHints
}

// ValidationError rejects a batch that has nothing to aggregate. It is the
// only error Run returns for bad input.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "no usable data in this submission: " + e.Reason
}

func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Observer receives pipeline events. metrics.PipelineObserver implements it.
type Observer interface {
	StageCompleted(stage Stage, d time.Duration)
	SourceSkipped(reference string)
	CellErrors(reference string, n int)
}

type nopObserver struct{}

func (nopObserver) StageCompleted(Stage, time.Duration) {}
func (nopObserver) SourceSkipped(string) {}
func (nopObserver) CellErrors(string, int) {}

type Option func(*Orchestrator)

// WithClock replaces time.Now for the profile timestamp.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) {
		if obs != nil {
			o.observer = obs
		}
	}
}

type Orchestrator struct {
	extractor  *extraction.Extractor
	normalizer *normalize.Normalizer
	aggregator *aggregate.Aggregator
	family     config.FamilyConfig
	now        func() time.Time
	observer   Observer
}

func NewOrchestrator(cfg *config.Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		extractor:  extraction.NewExtractor(cfg.Extraction),
		normalizer: normalize.NewNormalizer(cfg.Family),
		aggregator: aggregate.NewAggregator(cfg.Scoring),
		family:     cfg.Family,
		now:        time.Now,
		observer:   nopObserver{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// breakdown is the full output of stage 1.
type breakdown struct {
	members       []domain.MemberRecord
	totalPolicies int
	totalPremium  decimal.Decimal
	familyHints   []string
	processed     []string
	failed        []domain.SourceFailure
}

// Run processes items in order. Cancellation is honoured until validation
// starts; from then on the batch runs to completion.
func (o *Orchestrator) Run(ctx context.Context, items []Item) (*domain.FamilyProfile, error) {
	start := time.Now()
	bd, err := o.breakdown(ctx, items)
	if err != nil {
		return nil, err
	}
	o.observer.StageCompleted(StageBreakdown, time.Since(start))

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("batch cancelled after breakdown: %w", err)
	}

	start = time.Now()
	familyName := o.method(bd.familyHints)
	o.observer.StageCompleted(StageMethod, time.Since(start))

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("batch cancelled after method: %w", err)
	}

	start = time.Now()
	warnings, err := o.agile(bd)
	if err != nil {
		logger.Warn("Batch rejected",
			zap.Int("sources", len(items)),
			zap.Int("skipped", len(bd.failed)),
			zap.Error(err),
		)
		return nil, err
	}
	o.observer.StageCompleted(StageAgile, time.Since(start))

	start = time.Now()
	profile := o.development(familyName, bd, warnings)
	o.observer.StageCompleted(StageDevelopment, time.Since(start))

	logger.Info("Family profile built",
		zap.String("profile_id", profile.ID),
		zap.String("family_name", profile.FamilyName),
		zap.Int("members", len(profile.Members)),
		zap.Int("policies", profile.TotalPolicies),
		zap.Int("skipped", len(profile.FilesNotProcessed)),
	)

	return profile, nil
}

func (o *Orchestrator) breakdown(ctx context.Context, items []Item) (*breakdown, error) {
	bd := &breakdown{
		totalPremium: decimal.Zero,
		processed:    []string{},
		failed:       []domain.SourceFailure{},
	}

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("batch cancelled during breakdown: %w", err)
		}
		if item.Source == nil {
			continue
		}

		ext, err := o.extractor.Extract(item.Source)
		if err != nil {
			logger.Warn("Skipping unreadable source",
				zap.String("source", item.Source.Reference()),
				zap.Error(err),
			)
			bd.failed = append(bd.failed, domain.SourceFailure{
				Reference: item.Source.Reference(),
				Reason:    err.Error(),
			})
			o.observer.SourceSkipped(item.Source.Reference())
			continue
		}
		if len(ext.CellErrors) > 0 {
			o.observer.CellErrors(ext.Reference, len(ext.CellErrors))
		}

		member, hint := o.memberFrom(ext, item.Hints)
		bd.members = append(bd.members, member)
		bd.totalPolicies += ext.PolicyCount
		bd.totalPremium = bd.totalPremium.Add(ext.TotalPremium)
		bd.processed = append(bd.processed, ext.Reference)
		if hint != "" {
			bd.familyHints = append(bd.familyHints, hint)
		}
	}

	logger.Debug("Breakdown complete",
		zap.Int("members", len(bd.members)),
		zap.Int("policies", bd.totalPolicies),
		zap.Int("failed", len(bd.failed)),
	)

	return bd, nil
}

// memberFrom combines an extraction with the caller's hints. Hints win over
// anything guessed from the reference.
func (o *Orchestrator) memberFrom(ext *extraction.Extraction, hints domain.MemberHints) (domain.MemberRecord, string) {
	id := o.normalizer.Resolve(ext.Reference)

	name := id.Name
	if n := strings.TrimSpace(hints.Name); n != "" {
		name = n
		if id.FamilyHint == "" {
			id.FamilyHint = o.normalizer.Resolve(n).FamilyHint
		}
	}

	age := hints.Age
	if age < 0 {
		age = 0
	}

	value := ext.TotalValue
	if hints.TotalValue != nil && !hints.TotalValue.IsNegative() {
		value = *hints.TotalValue
	}

	return domain.MemberRecord{
		Name:            name,
		Age:             age,
		Relationship:    normalize.ParseRelationship(hints.Relationship),
		Coverage:        ext.Coverage,
		PolicyCount:     ext.PolicyCount,
		TotalPremium:    ext.TotalPremium,
		TotalValue:      value,
		RiskLevel:       domain.ParseRiskLevel(hints.RiskLevel),
		SourceReference: ext.Reference,
		PolicyIDs:       ext.PolicyIDs,
	}, id.FamilyHint
}

func (o *Orchestrator) method(hints []string) string {
	name, ok := normalize.MajorityName(hints)
	if !ok {
		return o.family.FallbackName
	}
	if strings.Contains(o.family.NameFormat, "%s") {
		return fmt.Sprintf(o.family.NameFormat, name)
	}
	return name
}

// agile validates the batch and cross-checks the stage 1 totals.
func (o *Orchestrator) agile(bd *breakdown) ([]string, error) {
	if len(bd.members) == 0 {
		return nil, &ValidationError{Reason: "no readable sources"}
	}
	if bd.totalPolicies == 0 {
		return nil, &ValidationError{Reason: "no policy rows in any source"}
	}

	warnings := []string{}
	recomputed := decimal.Zero
	for _, m := range bd.members {
		recomputed = recomputed.Add(m.TotalPremium)
	}
	if !recomputed.Equal(bd.totalPremium) {
		logger.Warn("Premium cross-check mismatch",
			zap.String("breakdown_total", bd.totalPremium.String()),
			zap.String("recomputed_total", recomputed.String()),
		)
		warnings = append(warnings, fmt.Sprintf(
			"premium total mismatch: breakdown %s, recomputed %s", bd.totalPremium, recomputed))
		bd.totalPremium = recomputed
	}
	return warnings, nil
}

func (o *Orchestrator) development(familyName string, bd *breakdown, warnings []string) *domain.FamilyProfile {
	profile := o.aggregator.Aggregate(familyName, bd.members)
	profile.TotalMonthlyPremium = bd.totalPremium
	profile.FilesProcessed = bd.processed
	profile.FilesNotProcessed = bd.failed
	profile.Warnings = warnings
	profile.ID = profileID(profile)
	profile.CreatedAt = o.now().UTC()
	return profile
}

// profileID derives a stable id from everything the batch contributed, so a
// re-run on the same input yields the same id.
func profileID(p *domain.FamilyProfile) string {
	parts := []string{p.FamilyName}
	for _, m := range p.Members {
		parts = append(parts,
			m.SourceReference,
			m.Name,
			strconv.Itoa(m.Age),
			string(m.Relationship),
			strings.Join(m.Coverage, "|"),
			strconv.Itoa(m.PolicyCount),
			m.TotalPremium.String(),
			m.TotalValue.String(),
			string(m.RiskLevel),
			strings.Join(m.PolicyIDs, "|"),
		)
	}
	for _, f := range p.FilesNotProcessed {
		parts = append(parts, "skipped", f.Reference)
	}
	return uuid.NewSHA1(profileNamespace, []byte(utils.Fingerprint(parts...))).String()
}
