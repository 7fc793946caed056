// Package kv provides the string key-value backend shared by the HOT and COLD
// tiers. Both tiers speak the Redis protocol; a client is selected by tier
// tag, not by subtype.
package kv

import (
	"errors"

	"github.com/redis/go-redis/v9"
)

// Define static errors
var (
	ErrURLRequired = errors.New("kv store URL is required")
)

// Config holds the connection settings for one tier's store
type Config struct {
	// URL is a redis:// connection URL
	URL string `yaml:"url"`
	// PoolSize bounds the shared connection pool; 0 uses the client default
	PoolSize int `yaml:"poolSize" default:"0"`
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.URL == "" {
		return ErrURLRequired
	}

	if _, err := redis.ParseURL(c.URL); err != nil {
		return err
	}

	return nil
}

// Options converts the config into go-redis client options
func (c *Config) Options() (*redis.Options, error) {
	opt, err := redis.ParseURL(c.URL)
	if err != nil {
		return nil, err
	}

	if c.PoolSize > 0 {
		opt.PoolSize = c.PoolSize
	}

	return opt, nil
}
