package handlers

import (
	"context"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/lunamage/featurehub/pkg/router"
)

const (
	minRequestTimeout = time.Millisecond
	maxRequestTimeout = time.Minute
)

// Router serves the query/write API
type Router struct {
	svc            router.Service
	defaultTimeout time.Duration
	log            logrus.FieldLogger
}

// NewRouter creates the router handler set
func NewRouter(svc router.Service, defaultTimeout time.Duration, log logrus.FieldLogger) *Router {
	return &Router{
		svc:            svc,
		defaultTimeout: defaultTimeout,
		log:            log.WithField("component", "api.router"),
	}
}

// RegisterRoutes mounts the router endpoints on an /api/v1 group
func (h *Router) RegisterRoutes(api fiber.Router) {
	api.Get("/feature/:key", h.GetFeature)
	api.Put("/feature/:key", h.PutFeature)
	api.Post("/features/batch", h.BatchGetFeatures)
	api.Get("/health", h.Health)
	api.Get("/metrics", h.Metrics)
}

// GetFeature handles GET /api/v1/feature/{key}
func (h *Router) GetFeature(c fiber.Ctx) error {
	key := c.Params("key")

	ctx, cancel := h.requestContext(c.Query("timeout_ms"))
	defer cancel()

	opts := router.QueryOptions{
		ClientIP:        c.IP(),
		UserID:          c.Query("user_id"),
		IncludeMetadata: c.Query("include_metadata") == "true",
	}

	result, err := h.svc.Get(ctx, key, opts)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusOK).JSON(result)
}

// BatchGetFeatures handles POST /api/v1/features/batch
func (h *Router) BatchGetFeatures(c fiber.Ctx) error {
	var req BatchQueryRequest
	if err := c.Bind().Body(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	if len(req.Keys) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "keys must not be empty")
	}

	timeoutParam := ""
	if req.Options.TimeoutMs > 0 {
		timeoutParam = strconv.FormatInt(req.Options.TimeoutMs, 10)
	}

	ctx, cancel := h.requestContext(timeoutParam)
	defer cancel()

	opts := router.QueryOptions{
		ClientIP:        c.IP(),
		UserID:          req.Options.UserID,
		IncludeMetadata: req.Options.IncludeMetadata,
	}

	results, summary, err := h.svc.BatchGet(ctx, req.Keys, opts)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusOK).JSON(BatchQueryResponse{Results: results, Summary: summary})
}

// PutFeature handles PUT /api/v1/feature/{key}
func (h *Router) PutFeature(c fiber.Ctx) error {
	key := c.Params("key")

	var req PutFeatureRequest
	if err := c.Bind().Body(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	ctx, cancel := h.requestContext("")
	defer cancel()

	result, err := h.svc.Put(ctx, key, req.Value, req.TTL, req.StorageHint)
	if err != nil {
		return err
	}

	return c.Status(fiber.StatusOK).JSON(result)
}

// Health handles GET /api/v1/health
func (h *Router) Health(c fiber.Ctx) error {
	ctx, cancel := h.requestContext("")
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

// Metrics handles GET /api/v1/metrics with the in-process counters
func (h *Router) Metrics(c fiber.Ctx) error {
	counters := h.svc.Counters()

	successRate := 0.0
	if counters.TotalRequests > 0 {
		successRate = float64(counters.SuccessfulRequests) / float64(counters.TotalRequests) * 100
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"total_requests":       counters.TotalRequests,
		"hot_requests":         counters.HotRequests,
		"cold_requests":        counters.ColdRequests,
		"successful_requests":  counters.SuccessfulRequests,
		"failed_requests":      counters.FailedRequests,
		"success_rate_percent": successRate,
	})
}

// requestContext builds the per-request deadline context; the timeout_ms
// parameter overrides the default within [1ms, 60s].
func (h *Router) requestContext(timeoutParam string) (context.Context, context.CancelFunc) {
	timeout := h.defaultTimeout

	if timeoutParam != "" {
		if ms, err := strconv.ParseInt(timeoutParam, 10, 64); err == nil {
			requested := time.Duration(ms) * time.Millisecond
			if requested >= minRequestTimeout && requested <= maxRequestTimeout {
				timeout = requested
			}
		}
	}

	return context.WithTimeout(context.Background(), timeout)
}
