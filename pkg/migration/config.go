// Package migration moves feature keys between the HOT and COLD tiers. A
// per-key state machine on the metadata row (STABLE -> MIGRATING -> STABLE,
// with FAILED as the retry lane) keeps moves safe under concurrent reader
// traffic; periodic sweeps select candidates from access statistics.
package migration

import (
	"errors"
	"time"
)

// Define static errors
var (
	ErrRedisURLRequired     = errors.New("migration redis URL is required")
	ErrInvalidBatchSize     = errors.New("batchSize must be positive")
	ErrInvalidSweepInterval = errors.New("sweep intervals must be positive")
	ErrInvalidConcurrency   = errors.New("concurrency must be positive")
)

// Config represents the migration engine configuration
type Config struct {
	// RedisURL backs leader election and the async trigger queue
	RedisURL string `yaml:"redisURL"`

	// HotToColdIdle is how long a HOT key must sit unread before demotion
	HotToColdIdle time.Duration `yaml:"hotToColdIdle" default:"168h"`
	// ColdToHotAccessThreshold is the access count that qualifies a COLD key for recall
	ColdToHotAccessThreshold int64 `yaml:"coldToHotAccessThreshold" default:"10"`
	// ColdToHotRecent is how recently a COLD key must have been read to be recalled
	ColdToHotRecent time.Duration `yaml:"coldToHotRecent" default:"24h"`

	// BatchSize is the keys processed per batch within a sweep
	BatchSize int `yaml:"batchSize" default:"1000"`
	// BatchInterval is the pause between batches
	BatchInterval time.Duration `yaml:"batchInterval" default:"1s"`
	// MaxMigrationSize caps the candidates selected per HOT->COLD sweep
	MaxMigrationSize int `yaml:"maxMigrationSize" default:"10000"`
	// MaxRecallSize caps the candidates selected per COLD->HOT sweep
	MaxRecallSize int `yaml:"maxRecallSize" default:"1000"`

	// HotSweepInterval is the HOT->COLD sweep period
	HotSweepInterval time.Duration `yaml:"hotSweepInterval" default:"5m"`
	// ColdSweepInterval is the COLD->HOT sweep period
	ColdSweepInterval time.Duration `yaml:"coldSweepInterval" default:"10m"`

	// AutoMigrationEnabled turns the periodic sweeps on
	AutoMigrationEnabled bool `yaml:"autoMigrationEnabled" default:"true"`
	// Concurrency is the async trigger worker count
	Concurrency int `yaml:"concurrency" default:"4"`
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.RedisURL == "" {
		return ErrRedisURLRequired
	}

	if c.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}

	if c.HotSweepInterval <= 0 || c.ColdSweepInterval <= 0 {
		return ErrInvalidSweepInterval
	}

	if c.Concurrency <= 0 {
		return ErrInvalidConcurrency
	}

	return nil
}
