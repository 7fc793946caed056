package engine

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/lunamage/featurehub/pkg/api"
	"github.com/lunamage/featurehub/pkg/cleanup"
	"github.com/lunamage/featurehub/pkg/kv"
	"github.com/lunamage/featurehub/pkg/metadata"
	"github.com/lunamage/featurehub/pkg/migration"
	"github.com/lunamage/featurehub/pkg/observability"
	"github.com/lunamage/featurehub/pkg/router"
	"github.com/lunamage/featurehub/pkg/telemetry"
)

// Service wires the enabled components to their backends and runs them
type Service struct {
	config *Config
	opts   Options
	log    *logrus.Logger

	stores *kv.Tiered
	store  metadata.Store
	cache  *metadata.Cache
	meta   metadata.Service
	bus    telemetry.Publisher

	routerService    router.Service
	migrationService migration.Service
	cleanupService   cleanup.Service

	apiServers []api.Service
}

// NewService creates a FeatureHub engine for the selected components
func NewService(log *logrus.Logger, cfg *Config, opts Options) (*Service, error) {
	if err := cfg.Validate(opts); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &Service{
		config: cfg,
		opts:   opts,
		log:    log,
	}, nil
}

// Start initializes backends, builds the enabled components, and serves them
func (s *Service) Start(ctx context.Context) error {
	observability.StartMetricsServer(s.config.MetricsAddr)

	if err := s.connectBackends(ctx); err != nil {
		return err
	}

	s.meta = metadata.NewService(s.log, s.store, s.cache)

	if s.opts.Metadata {
		s.apiServers = append(s.apiServers,
			api.NewMetadataAPI(s.log, s.config.API.MetadataAddr, s.meta))
	}

	if s.opts.Router {
		routerService, err := router.NewService(s.log, &s.config.Router, s.stores, s.meta, s.bus)
		if err != nil {
			return fmt.Errorf("failed to create router: %w", err)
		}

		if err := routerService.Start(ctx); err != nil {
			return fmt.Errorf("failed to start router: %w", err)
		}

		s.routerService = routerService
		s.apiServers = append(s.apiServers,
			api.NewRouterAPI(s.log, s.config.API.RouterAddr, routerService, s.config.Router.RequestTimeout))
	}

	if s.opts.Migration {
		migrationService, err := migration.NewService(s.log, &s.config.Migration, s.stores, s.meta, s.bus)
		if err != nil {
			return fmt.Errorf("failed to create migration engine: %w", err)
		}

		if err := migrationService.Start(ctx); err != nil {
			return fmt.Errorf("failed to start migration engine: %w", err)
		}

		s.migrationService = migrationService
		s.apiServers = append(s.apiServers,
			api.NewMigrationAPI(s.log, s.config.API.MigrationAddr, migrationService))
	}

	if s.opts.Cleaner {
		cleanupService, err := cleanup.NewService(s.log, &s.config.Cleanup, s.stores, s.meta, s.bus)
		if err != nil {
			return fmt.Errorf("failed to create cleanup engine: %w", err)
		}

		if err := cleanupService.Start(ctx); err != nil {
			return fmt.Errorf("failed to start cleanup engine: %w", err)
		}

		s.cleanupService = cleanupService
		s.apiServers = append(s.apiServers,
			api.NewCleanupAPI(s.log, s.config.API.CleanerAddr, cleanupService))
	}

	for _, server := range s.apiServers {
		if err := server.Start(ctx); err != nil {
			return fmt.Errorf("failed to start API server: %w", err)
		}
	}

	s.log.Info("FeatureHub engine started")

	return nil
}

func (s *Service) connectBackends(ctx context.Context) error {
	hot, err := kv.New(&s.config.Hot)
	if err != nil {
		return fmt.Errorf("failed to create hot store client: %w", err)
	}

	cold, err := kv.New(&s.config.Cold)
	if err != nil {
		return fmt.Errorf("failed to create cold store client: %w", err)
	}

	s.stores = kv.NewTiered(hot, cold)

	store, err := metadata.NewPostgresStore(ctx, s.log, &s.config.Postgres)
	if err != nil {
		return fmt.Errorf("failed to connect metadata store: %w", err)
	}

	s.store = store

	cache, err := metadata.NewCache(&s.config.Cache)
	if err != nil {
		return fmt.Errorf("failed to create metadata cache: %w", err)
	}

	s.cache = cache

	bus, err := telemetry.NewPublisher(s.log, &s.config.Telemetry)
	if err != nil {
		return fmt.Errorf("failed to create telemetry publisher: %w", err)
	}

	s.bus = bus

	return nil
}

// Stop gracefully shuts everything down in reverse dependency order
func (s *Service) Stop() error {
	var errs []error

	for _, server := range s.apiServers {
		if err := server.Stop(); err != nil {
			errs = append(errs, err)
		}
	}

	if s.cleanupService != nil {
		if err := s.cleanupService.Stop(); err != nil {
			errs = append(errs, err)
		}
	}

	if s.migrationService != nil {
		if err := s.migrationService.Stop(); err != nil {
			errs = append(errs, err)
		}
	}

	if s.routerService != nil {
		if err := s.routerService.Stop(); err != nil {
			errs = append(errs, err)
		}
	}

	if s.bus != nil {
		if err := s.bus.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if s.store != nil {
		s.store.Close()
	}

	if s.stores != nil {
		if err := s.stores.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}

	s.log.Info("FeatureHub engine stopped")

	return nil
}
