package metrics

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/family-profiler/backend/internal/pipeline"
	"github.com/family-profiler/backend/pkg/circuitbreaker"
)

var (
	BatchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "family_profiler_batch_duration_seconds",
			Help:    "End to end batch processing duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
	)

	BatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "family_profiler_batches_total",
			Help: "Total batches processed",
		},
		[]string{"status"},
	)

	StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "family_profiler_stage_duration_seconds",
			Help:    "Pipeline stage duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"stage"},
	)

	SourcesSkipped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "family_profiler_sources_skipped_total",
			Help: "Sources that could not be read and were left out of a batch",
		},
	)

	CellErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "family_profiler_cell_errors_total",
			Help: "Cells replaced with a default value during extraction",
		},
	)

	NarrativeFallbacks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "family_profiler_narrative_fallbacks_total",
			Help: "Narratives replaced with the fixed fallback text",
		},
		[]string{"reason"},
	)

	LLMTokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "family_profiler_llm_tokens_used",
			Help: "Total LLM tokens used",
		},
		[]string{"model", "type"},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "family_profiler_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "family_profiler_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)

	ProfilesStored = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "family_profiler_profiles_stored_total",
			Help: "Profiles appended to the store",
		},
	)

	GraphSyncs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "family_profiler_graph_syncs_total",
			Help: "Household graph sync attempts",
		},
		[]string{"status"},
	)

	UploadsRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "family_profiler_uploads_rejected_total",
			Help: "Upload requests rejected before processing",
		},
		[]string{"reason"},
	)

	CircuitState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "family_profiler_circuit_state",
			Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
		[]string{"name"},
	)
)

var registerOnce sync.Once

// Init registers every collector with the default registry. Safe to call
// more than once.
func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			BatchDuration,
			BatchesTotal,
			StageDuration,
			SourcesSkipped,
			CellErrors,
			NarrativeFallbacks,
			LLMTokensUsed,
			CacheHits,
			CacheMisses,
			ProfilesStored,
			GraphSyncs,
			UploadsRejected,
			CircuitState,
		)
	})
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}

// PipelineObserver forwards orchestrator events to the collectors above.
type PipelineObserver struct{}

var _ pipeline.Observer = PipelineObserver{}

func (PipelineObserver) StageCompleted(stage pipeline.Stage, d time.Duration) {
	StageDuration.WithLabelValues(string(stage)).Observe(d.Seconds())
}

func (PipelineObserver) SourceSkipped(string) {
	SourcesSkipped.Inc()
}

func (PipelineObserver) CellErrors(_ string, n int) {
	CellErrors.Add(float64(n))
}

// TrackCircuit is an OnStateChange hook for circuit breakers.
func TrackCircuit(name string, _ circuitbreaker.State, to circuitbreaker.State) {
	CircuitState.WithLabelValues(name).Set(float64(to))
}
