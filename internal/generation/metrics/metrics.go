package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// UnitsProcessed tracks finished units per stage and result
	UnitsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coursegen_units_processed_total",
			Help: "Total number of generation units processed",
		},
		[]string{"stage", "result"},
	)

	// UnitAttempts tracks how many model calls one unit needed
	UnitAttempts = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "coursegen_unit_attempts",
			Help:    "Model call attempts per processed unit",
			Buckets: prometheus.LinearBuckets(1, 1, 8),
		},
		[]string{"stage"},
	)

	// UnitDuration tracks wall time per unit
	UnitDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "coursegen_unit_duration_seconds",
			Help:    "Unit processing duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	// ProviderCalls tracks completion calls per provider and status
	ProviderCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coursegen_provider_calls_total",
			Help: "Total number of completion calls",
		},
		[]string{"provider", "status"},
	)

	// ProviderErrors tracks completion errors per provider
	ProviderErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coursegen_provider_errors_total",
			Help: "Total number of completion errors",
		},
		[]string{"provider", "error_type"},
	)

	// ProviderLatency tracks completion call latency
	ProviderLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "coursegen_provider_latency_seconds",
			Help:    "Completion call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	// TokensConsumed tracks token usage per provider and direction
	TokensConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coursegen_tokens_consumed_total",
			Help: "Total number of tokens consumed",
		},
		[]string{"provider", "direction"},
	)

	// GroupDecisions tracks resume classification per dataset
	GroupDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coursegen_group_decisions_total",
			Help: "Checkpoint classification decisions per group",
		},
		[]string{"dataset", "decision"},
	)

	// CheckpointSaves tracks document rewrites per dataset
	CheckpointSaves = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "coursegen_checkpoint_saves_total",
			Help: "Total number of checkpoint document rewrites",
		},
		[]string{"dataset"},
	)

	// BudgetUsage tracks the daily completion budget consumption
	BudgetUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "coursegen_budget_usage_percent",
			Help: "Daily completion budget consumption in percent",
		},
	)

	// DBConnectionPoolUsage tracks database pool saturation
	DBConnectionPoolUsage = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "coursegen_db_pool_usage_percent",
			Help: "Database connection pool usage in percent",
		},
	)

	// DBBatchSize tracks batch sizes of database writes
	DBBatchSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "coursegen_db_batch_size",
			Help:    "Number of rows written per batch",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
		[]string{"operation"},
	)

	// TracesPurged tracks retention deletions
	TracesPurged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "coursegen_traces_purged_total",
			Help: "Total number of traces removed by retention",
		},
	)
)
