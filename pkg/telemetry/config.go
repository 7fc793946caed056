// Package telemetry publishes FeatureHub events (query logs, migration and
// cleanup results) onto a durable bus backed by Redis streams. Each topic is
// split into a fixed number of partition streams; events are routed by a hash
// of their key (the feature key for reads and per-key migration outcomes, the
// task ID for sweep records) so per-key order is preserved even with many
// producers.
package telemetry

import "errors"

// Topic names
const (
	// TopicQueryLogs carries one record per read
	TopicQueryLogs = "feature-query-logs"
	// TopicMigrationEvents carries per-key migration outcomes and sweep completions
	TopicMigrationEvents = "migration-events"
	// TopicCleanupEvents carries cleanup sweep results
	TopicCleanupEvents = "cleanup-events"
)

// Define static errors
var (
	ErrURLRequired         = errors.New("telemetry redis URL is required")
	ErrInvalidPartitions   = errors.New("partitions must be positive")
	ErrInvalidStreamMaxLen = errors.New("streamMaxLen must not be negative")
)

// Config holds the event bus settings
type Config struct {
	// URL is the redis:// connection URL of the bus
	URL string `yaml:"url"`
	// Partitions is the number of streams per topic
	Partitions int `yaml:"partitions" default:"16"`
	// StreamMaxLen caps each partition stream (approximate trim); 0 disables trimming
	StreamMaxLen int64 `yaml:"streamMaxLen" default:"1000000"`
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.URL == "" {
		return ErrURLRequired
	}

	if c.Partitions <= 0 {
		return ErrInvalidPartitions
	}

	if c.StreamMaxLen < 0 {
		return ErrInvalidStreamMaxLen
	}

	return nil
}
