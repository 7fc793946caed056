// Package cleanup reconciles the three storage surfaces: it removes expired
// keys (store copy first, then the metadata row) and store keys that have no
// metadata at all. Sweeps run on cron schedules and can be triggered manually.
package cleanup

import (
	"errors"
	"time"
)

// Define static errors
var (
	ErrInvalidBatchSize     = errors.New("batchSize must be positive")
	ErrInvalidMaxSweepSize  = errors.New("maxSweepSize must be positive")
	ErrCronExpressionNeeded = errors.New("cron expressions are required")
)

// Config represents the cleanup engine configuration
type Config struct {
	// BatchSize is the keys processed per batch within a sweep
	BatchSize int `yaml:"batchSize" default:"1000"`
	// BatchInterval is the pause between batches
	BatchInterval time.Duration `yaml:"batchInterval" default:"1s"`
	// MaxSweepSize caps the keys one sweep will process
	MaxSweepSize int `yaml:"maxSweepSize" default:"100000"`
	// ScanPageSize is the per-iteration store scan bound for orphan sweeps
	ScanPageSize int64 `yaml:"scanPageSize" default:"1000"`

	// ExpiredCron schedules the expiry sweep (default daily 02:00)
	ExpiredCron string `yaml:"expiredCron" default:"0 2 * * *"`
	// OrphanCron schedules the orphan sweep (default Sunday 03:00)
	OrphanCron string `yaml:"orphanCron" default:"0 3 * * 0"`

	// ExpiredRetentionDays is advertised alongside the sweep settings; expired
	// keys are reclaimable the moment their expire_time passes
	ExpiredRetentionDays int `yaml:"expiredRetentionDays" default:"30"`
	// OrphanCleanupEnabled turns the orphan sweep on
	OrphanCleanupEnabled bool `yaml:"orphanCleanupEnabled" default:"true"`
	// DryRun suppresses deletes and only reports what would be removed
	DryRun bool `yaml:"dryRun" default:"false"`
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}

	if c.MaxSweepSize <= 0 {
		return ErrInvalidMaxSweepSize
	}

	if c.ExpiredCron == "" || c.OrphanCron == "" {
		return ErrCronExpressionNeeded
	}

	return nil
}
