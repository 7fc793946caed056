package handlers

import (
	"context"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/lunamage/featurehub/pkg/featurestore"
	"github.com/lunamage/featurehub/pkg/migration"
)

// Migration serves the migration engine API
type Migration struct {
	svc migration.Service
	log logrus.FieldLogger
}

// NewMigration creates the migration handler set
func NewMigration(svc migration.Service, log logrus.FieldLogger) *Migration {
	return &Migration{
		svc: svc,
		log: log.WithField("component", "api.migration"),
	}
}

// RegisterRoutes mounts the migration endpoints on an /api/migration group
func (h *Migration) RegisterRoutes(api fiber.Router) {
	api.Post("/trigger", h.Trigger)
	api.Get("/records", h.Records)
	api.Get("/statistics", h.Statistics)
	api.Get("/config", h.Config)
	api.Post("/pause", h.Pause)
	api.Post("/resume", h.Resume)
	api.Post("/estimate", h.Estimate)
	api.Get("/health", h.Health)
}

// Trigger handles POST /api/migration/trigger. Async triggers are enqueued
// and acknowledged with the queue task ID; sync triggers block and return the
// completed record.
func (h *Migration) Trigger(c fiber.Ctx) error {
	var req MigrationTriggerRequest
	if err := c.Bind().Body(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	trigger := migration.TriggerRequest{
		Type:        featurestore.MigrationType(req.TaskType),
		Keys:        req.Keys,
		BusinessTag: req.BusinessTag,
	}

	if req.Async {
		taskID, err := h.svc.EnqueueTrigger(trigger)
		if err != nil {
			return err
		}

		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
			"task_id": taskID,
			"status":  "queued",
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	record, err := h.svc.Trigger(ctx, trigger)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusOK).JSON(record)
}

// Records handles GET /api/migration/records
func (h *Migration) Records(c fiber.Ctx) error {
	limit := 20
	if parsed, err := strconv.Atoi(c.Query("limit")); err == nil && parsed > 0 {
		limit = parsed
	}

	status := featurestore.TaskStatus(c.Query("status"))

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"records": h.svc.Records(limit, status),
	})
}

// Statistics handles GET /api/migration/statistics
func (h *Migration) Statistics(c fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(h.svc.Statistics())
}

// Config handles GET /api/migration/config
func (h *Migration) Config(c fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(h.svc.ConfigView())
}

// Pause handles POST /api/migration/pause
func (h *Migration) Pause(c fiber.Ctx) error {
	h.svc.Pause()

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"paused": true})
}

// Resume handles POST /api/migration/resume
func (h *Migration) Resume(c fiber.Ctx) error {
	h.svc.Resume()

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"paused": false})
}

// Estimate handles POST /api/migration/estimate
func (h *Migration) Estimate(c fiber.Ctx) error {
	var req MigrationTriggerRequest
	if err := c.Bind().Body(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	estimate, err := h.svc.Estimate(ctx, migration.TriggerRequest{
		Type:        featurestore.MigrationType(req.TaskType),
		Keys:        req.Keys,
		BusinessTag: req.BusinessTag,
	})
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusOK).JSON(estimate)
}

// Health handles GET /api/migration/health
func (h *Migration) Health(c fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status":    "UP",
		"paused":    h.svc.IsPaused(),
		"timestamp": time.Now().UnixMilli(),
	})
}
