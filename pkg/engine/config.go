// Package engine assembles the FeatureHub components into one runnable
// service. Any subset of the four components can be enabled, so the same
// binary serves single-process and per-component deployments.
package engine

import (
	"fmt"

	"github.com/lunamage/featurehub/pkg/api"
	"github.com/lunamage/featurehub/pkg/cleanup"
	"github.com/lunamage/featurehub/pkg/kv"
	"github.com/lunamage/featurehub/pkg/metadata"
	"github.com/lunamage/featurehub/pkg/migration"
	"github.com/lunamage/featurehub/pkg/router"
	"github.com/lunamage/featurehub/pkg/telemetry"
)

// Config represents the complete FeatureHub configuration
type Config struct {
	// Core settings
	Logging     string `yaml:"logging" default:"info" validate:"oneof=panic fatal warn info debug trace"`
	MetricsAddr string `yaml:"metricsAddr" default:":9090"`

	// Storage tiers
	Hot  kv.Config `yaml:"hot"`
	Cold kv.Config `yaml:"cold"`

	// Metadata backends
	Postgres metadata.PostgresConfig `yaml:"postgres"`
	Cache    metadata.CacheConfig    `yaml:"cache"`

	// Event bus
	Telemetry telemetry.Config `yaml:"telemetry"`

	// Components
	Router    router.Config    `yaml:"router"`
	Migration migration.Config `yaml:"migration"`
	Cleanup   cleanup.Config   `yaml:"cleanup"`

	// HTTP surfaces
	API api.Config `yaml:"api"`
}

// Options selects which components this process runs
type Options struct {
	Router    bool
	Metadata  bool
	Migration bool
	Cleaner   bool
}

// All enables every component
func All() Options {
	return Options{Router: true, Metadata: true, Migration: true, Cleaner: true}
}

// Validate validates the configuration for the selected components
func (c *Config) Validate(opts Options) error {
	if err := c.Hot.Validate(); err != nil {
		return fmt.Errorf("hot store: %w", err)
	}

	if err := c.Cold.Validate(); err != nil {
		return fmt.Errorf("cold store: %w", err)
	}

	if err := c.Postgres.Validate(); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}

	if err := c.Cache.Validate(); err != nil {
		return fmt.Errorf("cache: %w", err)
	}

	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}

	if err := c.API.Validate(); err != nil {
		return fmt.Errorf("api: %w", err)
	}

	if opts.Router {
		if err := c.Router.Validate(); err != nil {
			return fmt.Errorf("router: %w", err)
		}
	}

	if opts.Migration {
		if err := c.Migration.Validate(); err != nil {
			return fmt.Errorf("migration: %w", err)
		}
	}

	if opts.Cleaner {
		if err := c.Cleanup.Validate(); err != nil {
			return fmt.Errorf("cleanup: %w", err)
		}
	}

	return nil
}
