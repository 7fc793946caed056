// Package router translates feature keys to the right backend, fans batch
// requests out across tiers, and records access telemetry.
package router

import (
	"errors"
	"time"
)

// Define static errors
var (
	ErrInvalidMaxBatchSize = errors.New("maxBatchSize must be positive")
	ErrInvalidStatWorkers  = errors.New("statWorkers must be positive")
	ErrInvalidStatQueue    = errors.New("statQueueSize must be positive")
)

// Config represents the router configuration
type Config struct {
	// MaxBatchSize caps the keys accepted by one batch request
	MaxBatchSize int `yaml:"maxBatchSize" default:"1000"`
	// RequestTimeout is the per-request deadline propagated to every backend call
	RequestTimeout time.Duration `yaml:"requestTimeout" default:"5s"`
	// StatQueueSize bounds the pending async access-stat updates
	StatQueueSize int `yaml:"statQueueSize" default:"4096"`
	// StatWorkers is the number of goroutines draining the stat queue
	StatWorkers int `yaml:"statWorkers" default:"4"`
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.MaxBatchSize <= 0 {
		return ErrInvalidMaxBatchSize
	}

	if c.StatWorkers <= 0 {
		return ErrInvalidStatWorkers
	}

	if c.StatQueueSize <= 0 {
		return ErrInvalidStatQueue
	}

	return nil
}
