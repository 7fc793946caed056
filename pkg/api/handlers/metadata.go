package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/lunamage/featurehub/pkg/featurestore"
	"github.com/lunamage/featurehub/pkg/metadata"
)

const metadataRequestTimeout = 5 * time.Second

// Metadata serves the metadata component API
type Metadata struct {
	svc metadata.Service
	log logrus.FieldLogger
}

// NewMetadata creates the metadata handler set
func NewMetadata(svc metadata.Service, log logrus.FieldLogger) *Metadata {
	return &Metadata{
		svc: svc,
		log: log.WithField("component", "api.metadata"),
	}
}

// RegisterRoutes mounts the metadata endpoints on an /api/v1/metadata group
func (h *Metadata) RegisterRoutes(api fiber.Router) {
	api.Get("/stats", h.Stats)
	api.Get("/health", h.Health)
	api.Post("/batch", h.BatchGet)
	api.Put("/batch", h.BatchUpdate)
	api.Post("/cleanup", h.CleanupExpired)
	api.Post("/reset-access-counts", h.ResetAccessCounts)
	api.Post("/", h.Upsert)
	api.Get("/:key", h.Get)
	api.Put("/:key", h.Update)
	api.Delete("/:key", h.Delete)
}

// Get handles GET /api/v1/metadata/{key}
func (h *Metadata) Get(c fiber.Ctx) error {
	ctx, cancel := h.requestContext()
	defer cancel()

	m, err := h.svc.Get(ctx, c.Params("key"))
	if err != nil {
		return err
	}

	if m == nil {
		return fiber.NewError(fiber.StatusNotFound, "metadata not found")
	}

	return c.Status(fiber.StatusOK).JSON(m)
}

// BatchGet handles POST /api/v1/metadata/batch
func (h *Metadata) BatchGet(c fiber.Ctx) error {
	var req BatchMetadataRequest
	if err := c.Bind().Body(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	ctx, cancel := h.requestContext()
	defer cancel()

	records, err := h.svc.BatchGet(ctx, req.Keys)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"metadata": records,
		"total":    len(records),
	})
}

// Upsert handles POST /api/v1/metadata
func (h *Metadata) Upsert(c fiber.Ctx) error {
	var m featurestore.FeatureMetadata
	if err := c.Bind().Body(&m); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	ctx, cancel := h.requestContext()
	defer cancel()

	result, err := h.svc.Upsert(ctx, &m)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"created": result.Created})
}

// Update handles PUT /api/v1/metadata/{key}
func (h *Metadata) Update(c fiber.Ctx) error {
	var m featurestore.FeatureMetadata
	if err := c.Bind().Body(&m); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	m.KeyName = c.Params("key")

	ctx, cancel := h.requestContext()
	defer cancel()

	updated, err := h.svc.Update(ctx, &m)
	if err != nil {
		return err
	}

	if !updated {
		return fiber.NewError(fiber.StatusNotFound, "metadata not found")
	}

	return c.SendStatus(fiber.StatusOK)
}

// BatchUpdate handles PUT /api/v1/metadata/batch
func (h *Metadata) BatchUpdate(c fiber.Ctx) error {
	var req BatchMetadataUpdateRequest
	if err := c.Bind().Body(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	ctx, cancel := h.requestContext()
	defer cancel()

	results := h.svc.BatchUpdate(ctx, req.Updates)

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"results": results})
}

// Delete handles DELETE /api/v1/metadata/{key}
func (h *Metadata) Delete(c fiber.Ctx) error {
	ctx, cancel := h.requestContext()
	defer cancel()

	deleted, err := h.svc.Delete(ctx, c.Params("key"))
	if err != nil {
		return err
	}

	if !deleted {
		return fiber.NewError(fiber.StatusNotFound, "metadata not found")
	}

	return c.SendStatus(fiber.StatusOK)
}

// Stats handles GET /api/v1/metadata/stats
func (h *Metadata) Stats(c fiber.Ctx) error {
	ctx, cancel := h.requestContext()
	defer cancel()

	var tier *featurestore.StorageTier

	if tierParam := c.Query("storage_type"); tierParam != "" {
		parsed, err := featurestore.ParseTier(tierParam)
		if err != nil {
			return err
		}

		tier = &parsed
	}

	stats, err := h.svc.Stats(ctx, tier, c.Query("business_tag"))
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusOK).JSON(stats)
}

// CleanupExpired handles POST /api/v1/metadata/cleanup
func (h *Metadata) CleanupExpired(c fiber.Ctx) error {
	ctx, cancel := h.requestContext()
	defer cancel()

	deleted, err := h.svc.DeleteAllExpired(ctx, time.Now().UnixMilli())
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"cleaned_count": deleted})
}

// ResetAccessCounts handles POST /api/v1/metadata/reset-access-counts
func (h *Metadata) ResetAccessCounts(c fiber.Ctx) error {
	ctx, cancel := h.requestContext()
	defer cancel()

	reset, err := h.svc.ResetAccessCounts(ctx, time.Now().UnixMilli())
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"reset_count": reset})
}

// Health handles GET /api/v1/metadata/health
func (h *Metadata) Health(c fiber.Ctx) error {
	ctx, cancel := h.requestContext()
	defer cancel()

	status := "healthy"
	code := fiber.StatusOK

	if err := h.svc.Ping(ctx); err != nil {
		h.log.WithError(err).Warn("Health check failed")

		status = "unhealthy"
		code = fiber.StatusServiceUnavailable
	}

	return c.Status(code).JSON(fiber.Map{
		"status":    status,
		"timestamp": time.Now().UnixMilli(),
	})
}

func (h *Metadata) requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), metadataRequestTimeout)
}
