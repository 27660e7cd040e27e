package api

import (
	"context"
	"time"

	"github.com/sentra-ai/diagnosis-proxy/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const healthCheckTimeout = 2 * time.Second

// Pinger is satisfied by the database wrapper.
type Pinger interface {
	Ping() error
}

// HealthHandler handles health check requests
type HealthHandler struct {
	redisClient *redis.Client
	db          Pinger
	breakers    Breakers
	chain       []string
}

// NewHealthHandler creates a new health check handler. redisClient and db are
// optional and reported as "disabled" when nil.
func NewHealthHandler(redisClient *redis.Client, db Pinger, breakers Breakers, chain []string) *HealthHandler {
	return &HealthHandler{
		redisClient: redisClient,
		db:          db,
		breakers:    breakers,
		chain:       chain,
	}
}

// HealthCheck returns the health status of the service and its dependencies
func (h *HealthHandler) HealthCheck(c *fiber.Ctx) error {
	redisStatus := h.checkRedis(c.UserContext())
	dbStatus := h.checkDatabase()
	modelStatus := h.checkModels(c.UserContext())

	overallStatus := "healthy"
	statusCode := fiber.StatusOK

	if redisStatus == "unhealthy" || dbStatus == "unhealthy" || modelStatus == "unhealthy" {
		overallStatus = "degraded"
		statusCode = fiber.StatusServiceUnavailable
	}

	response := fiber.Map{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"checks": fiber.Map{
			"redis":    redisStatus,
			"database": dbStatus,
			"models":   modelStatus,
		},
	}

	return c.Status(statusCode).JSON(response)
}

// checkRedis verifies Redis connectivity
func (h *HealthHandler) checkRedis(ctx context.Context) string {
	if h.redisClient == nil {
		return "disabled"
	}

	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	if err := h.redisClient.Ping(ctx).Err(); err != nil {
		return "unhealthy"
	}

	return "healthy"
}

func (h *HealthHandler) checkDatabase() string {
	if h.db == nil {
		return "disabled"
	}
	if err := h.db.Ping(); err != nil {
		return "unhealthy"
	}
	return "healthy"
}

// checkModels is unhealthy only when every chain model's circuit is open.
func (h *HealthHandler) checkModels(ctx context.Context) string {
	statuses := h.breakers.GetAllStatuses(ctx)
	for _, key := range h.chain {
		st, ok := statuses[key]
		if !ok || st.State != models.CircuitOpen {
			return "healthy"
		}
	}
	if len(h.chain) == 0 {
		return "unknown"
	}
	return "unhealthy"
}
