package handlers

import (
	"context"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/lunamage/featurehub/pkg/cleanup"
	"github.com/lunamage/featurehub/pkg/featurestore"
)

// Cleanup serves the data-cleaner API
type Cleanup struct {
	svc cleanup.Service
	log logrus.FieldLogger
}

// NewCleanup creates the cleanup handler set
func NewCleanup(svc cleanup.Service, log logrus.FieldLogger) *Cleanup {
	return &Cleanup{
		svc: svc,
		log: log.WithField("component", "api.cleanup"),
	}
}

// RegisterRoutes mounts the cleanup endpoints on a /data-cleaner group
func (h *Cleanup) RegisterRoutes(api fiber.Router) {
	api.Post("/trigger", h.Trigger)
	api.Get("/statistics", h.Statistics)
	api.Get("/records", h.Records)
	api.Get("/health", h.Health)
}

// Trigger handles POST /data-cleaner/trigger
func (h *Cleanup) Trigger(c fiber.Ctx) error {
	var req CleanupTriggerRequest
	if err := c.Bind().Body(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	record, err := h.svc.Trigger(ctx, featurestore.CleanupType(req.CleanupType), req.Keys)
	if err != nil {
		return err
	}

	if record == nil {
		// A sweep of the same type is already running
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"status": "already_running",
		})
	}

	return c.Status(fiber.StatusOK).JSON(record)
}

// Statistics handles GET /data-cleaner/statistics
func (h *Cleanup) Statistics(c fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(h.svc.Statistics())
}

// Records handles GET /data-cleaner/records
func (h *Cleanup) Records(c fiber.Ctx) error {
	limit := 20
	if parsed, err := strconv.Atoi(c.Query("limit")); err == nil && parsed > 0 {
		limit = parsed
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"records": h.svc.Records(limit),
	})
}

// Health handles GET /data-cleaner/health
func (h *Cleanup) Health(c fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status":    "UP",
		"timestamp": time.Now().UnixMilli(),
	})
}
