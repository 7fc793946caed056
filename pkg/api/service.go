// Package api serves the FeatureHub HTTP surfaces: one Fiber app per
// component, sharing middleware and error handling.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/sirupsen/logrus"

	"github.com/lunamage/featurehub/pkg/api/handlers"
	"github.com/lunamage/featurehub/pkg/cleanup"
	"github.com/lunamage/featurehub/pkg/metadata"
	"github.com/lunamage/featurehub/pkg/migration"
	"github.com/lunamage/featurehub/pkg/router"
)

// Service defines the lifecycle of one component API server
type Service interface {
	Start(ctx context.Context) error
	Stop() error
}

type service struct {
	name   string
	addr   string
	app    *fiber.App
	server *http.Server
	log    logrus.FieldLogger
}

// NewRouterAPI builds the query/write API server
func NewRouterAPI(log logrus.FieldLogger, addr string, svc router.Service, defaultTimeout time.Duration) Service {
	return newService(log, "router-api", addr, func(app *fiber.App) {
		h := handlers.NewRouter(svc, defaultTimeout, log)
		h.RegisterRoutes(app.Group("/api/v1"))
	})
}

// NewMetadataAPI builds the metadata API server
func NewMetadataAPI(log logrus.FieldLogger, addr string, svc metadata.Service) Service {
	return newService(log, "metadata-api", addr, func(app *fiber.App) {
		h := handlers.NewMetadata(svc, log)
		h.RegisterRoutes(app.Group("/api/v1/metadata"))
	})
}

// NewMigrationAPI builds the migration engine API server
func NewMigrationAPI(log logrus.FieldLogger, addr string, svc migration.Service) Service {
	return newService(log, "migration-api", addr, func(app *fiber.App) {
		h := handlers.NewMigration(svc, log)
		h.RegisterRoutes(app.Group("/api/migration"))
	})
}

// NewCleanupAPI builds the data-cleaner API server
func NewCleanupAPI(log logrus.FieldLogger, addr string, svc cleanup.Service) Service {
	return newService(log, "cleaner-api", addr, func(app *fiber.App) {
		h := handlers.NewCleanup(svc, log)
		h.RegisterRoutes(app.Group("/data-cleaner"))
	})
}

func newService(log logrus.FieldLogger, name, addr string, register func(app *fiber.App)) Service {
	app := fiber.New(fiber.Config{
		ErrorHandler: errorHandler,
		AppName:      "FeatureHub " + name,
	})

	setupMiddleware(app)
	register(app)

	return &service{
		name: name,
		addr: addr,
		app:  app,
		log:  log.WithField("service", name),
	}
}

// Start initializes and starts the API server
func (s *service) Start(_ context.Context) error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           adaptor.FiberApp(s.app),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		s.log.WithField("addr", s.addr).Info("Starting API server")

		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.WithError(err).Error("API server failed")
		}
	}()

	return nil
}

// Stop gracefully shuts down the API server
func (s *service) Stop() error {
	if s.server == nil {
		return nil
	}

	s.log.Info("Stopping API server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown %s: %w", s.name, err)
	}

	return nil
}
