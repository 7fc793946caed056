package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//nolint:gochecknoglobals // Prometheus metrics must be global for registration
var (
	// QueriesTotal tracks feature reads by tier and outcome
	QueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "featurehub_queries_total",
			Help: "Total number of feature queries",
		},
		[]string{"tier", "status"}, // status: found, not_found, error
	)

	// QueryDuration measures read latency in seconds
	QueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "featurehub_query_duration_seconds",
			Help:    "Feature query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"tier"},
	)

	// WritesTotal tracks feature writes by tier and outcome
	WritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "featurehub_writes_total",
			Help: "Total number of feature writes",
		},
		[]string{"tier", "status"},
	)

	// MetadataCacheTotal tracks metadata cache lookups
	MetadataCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "featurehub_metadata_cache_total",
			Help: "Metadata cache lookups by result",
		},
		[]string{"result"}, // result: hit, miss, error
	)

	// StatUpdatesDropped counts access-stat updates dropped by the bounded queue
	StatUpdatesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "featurehub_stat_updates_dropped_total",
			Help: "Access-stat updates dropped because the queue was full",
		},
	)

	// StatQueueDepth tracks the pending access-stat updates
	StatQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "featurehub_stat_queue_depth",
			Help: "Pending access-stat updates",
		},
	)

	// MigrationsTotal tracks per-key migration outcomes
	MigrationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "featurehub_migrations_total",
			Help: "Per-key migration outcomes",
		},
		[]string{"type", "status"}, // status: success, failed, conflict
	)

	// MigrationSweepDuration measures one sweep's duration in seconds
	MigrationSweepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "featurehub_migration_sweep_duration_seconds",
			Help:    "Migration sweep duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
		[]string{"type"},
	)

	// CleanupKeysTotal tracks keys removed by cleanup sweeps
	CleanupKeysTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "featurehub_cleanup_keys_total",
			Help: "Keys processed by cleanup sweeps",
		},
		[]string{"type", "status"}, // status: cleaned, failed, skipped
	)

	// EventsPublished tracks telemetry bus publishes
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "featurehub_events_published_total",
			Help: "Events published to the bus by topic and result",
		},
		[]string{"topic", "result"},
	)

	// KeysByTier tracks the metadata key count per tier
	KeysByTier = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "featurehub_keys_by_tier",
			Help: "Metadata key count per storage tier",
		},
		[]string{"tier"},
	)
)

// RecordQuery records one read outcome
func RecordQuery(tier, status string, seconds float64) {
	QueriesTotal.WithLabelValues(tier, status).Inc()
	QueryDuration.WithLabelValues(tier).Observe(seconds)
}

// RecordWrite records one write outcome
func RecordWrite(tier, status string) {
	WritesTotal.WithLabelValues(tier, status).Inc()
}

// RecordCacheLookup records one metadata cache lookup
func RecordCacheLookup(result string) {
	MetadataCacheTotal.WithLabelValues(result).Inc()
}

// RecordMigration records one per-key migration outcome
func RecordMigration(migrationType, status string) {
	MigrationsTotal.WithLabelValues(migrationType, status).Inc()
}

// RecordCleanup records one cleanup key outcome
func RecordCleanup(cleanupType, status string) {
	CleanupKeysTotal.WithLabelValues(cleanupType, status).Inc()
}

// RecordEventPublish records one bus publish attempt
func RecordEventPublish(topic, result string) {
	EventsPublished.WithLabelValues(topic, result).Inc()
}
