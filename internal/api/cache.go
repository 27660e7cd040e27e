package api

import (
	"context"
	"time"

	"github.com/sentra-ai/diagnosis-proxy/internal/config"
	"github.com/sentra-ai/diagnosis-proxy/internal/models"
	"github.com/sentra-ai/diagnosis-proxy/internal/services/metrics"
	"github.com/sentra-ai/diagnosis-proxy/internal/services/request"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
)

// ExactAdmin is the exact cache surface used by the admin endpoints.
type ExactAdmin interface {
	Stats(ctx context.Context) models.ExactCacheStats
	Invalidate(ctx context.Context, query string)
	InvalidateByModel(ctx context.Context, model string)
}

// SemanticAdmin is the semantic cache surface used by the admin endpoints.
type SemanticAdmin interface {
	Stats(ctx context.Context) models.SemanticCacheStats
	Invalidate(ctx context.Context, query string)
	Clear(ctx context.Context)
}

// SemanticHealth describes what the semantic tier was configured with.
type SemanticHealth struct {
	Enabled    bool
	Embeddings bool
	Provider   string
	Backend    string
}

// CacheHandler serves cache statistics, invalidation and semantic health.
type CacheHandler struct {
	exact    ExactAdmin
	semantic SemanticAdmin
	tracker  *metrics.CacheTracker
	health   SemanticHealth
}

// NewCacheHandler creates the handler. semantic may be nil.
func NewCacheHandler(exact ExactAdmin, semantic SemanticAdmin, tracker *metrics.CacheTracker, health SemanticHealth) *CacheHandler {
	return &CacheHandler{exact: exact, semantic: semantic, tracker: tracker, health: health}
}

// Stats handles GET /api/cache/stats.
func (h *CacheHandler) Stats(c *fiber.Ctx) error {
	ctx := c.UserContext()

	semanticStats := models.SemanticCacheStats{}
	if h.semantic != nil {
		semanticStats = h.semantic.Stats(ctx)
	}

	return c.JSON(fiber.Map{
		"exact":       h.exact.Stats(ctx),
		"semantic":    semanticStats,
		"metrics":     h.tracker.Snapshot(),
		"periodStart": h.tracker.Since().UTC().Format(time.RFC3339),
	})
}

// Clear handles DELETE /api/cache. ?query= removes one query from both tiers,
// ?model= removes every exact entry produced by that model, and no parameter
// clears everything.
func (h *CacheHandler) Clear(c *fiber.Ctx) error {
	reqID := request.ID(c)
	ctx := c.UserContext()
	query := c.Query("query")
	model := c.Query("model")

	switch {
	case query != "":
		h.exact.Invalidate(ctx, query)
		if h.semantic != nil {
			h.semantic.Invalidate(ctx, query)
		}
		fiberlog.Infof("[%s] Invalidated cached query", reqID)
		return c.JSON(fiber.Map{"success": true, "scope": "query"})

	case model != "":
		key := config.NormalizeModelKey(model)
		h.exact.InvalidateByModel(ctx, key)
		fiberlog.Infof("[%s] Invalidated cache entries for model %s", reqID, key)
		return c.JSON(fiber.Map{"success": true, "scope": "model", "model": key})

	default:
		h.exact.Invalidate(ctx, "")
		if h.semantic != nil {
			h.semantic.Clear(ctx)
		}
		h.tracker.Reset()
		fiberlog.Infof("[%s] Cleared all cache tiers", reqID)
		return c.JSON(fiber.Map{"success": true, "scope": "all"})
	}
}

// SemanticHealth handles GET /api/health/semantic-cache.
func (h *CacheHandler) SemanticHealth(c *fiber.Ctx) error {
	vectorStore := h.semantic != nil
	available := h.health.Enabled && h.health.Embeddings && vectorStore

	body := fiber.Map{
		"status":    "degraded",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"semanticCache": fiber.Map{
			"available":   available,
			"embeddings":  h.health.Embeddings,
			"vectorStore": vectorStore,
			"details": fiber.Map{
				"enabled":  h.health.Enabled,
				"provider": h.health.Provider,
				"backend":  h.health.Backend,
			},
		},
	}

	if !available {
		return c.Status(fiber.StatusServiceUnavailable).JSON(body)
	}
	body["status"] = "healthy"
	return c.JSON(body)
}
