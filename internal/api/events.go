package api

import (
	"context"

	"github.com/sentra-ai/diagnosis-proxy/internal/models"
	"github.com/sentra-ai/diagnosis-proxy/internal/services/response"

	"github.com/gofiber/fiber/v2"
)

const defaultEventsLimit = 50

// EventReader lists recorded diagnosis events.
type EventReader interface {
	Recent(ctx context.Context, limit int) ([]models.DiagnosisEvent, error)
}

// EventsHandler exposes recent telemetry.
type EventsHandler struct {
	events EventReader
}

func NewEventsHandler(events EventReader) *EventsHandler {
	return &EventsHandler{events: events}
}

// Recent handles GET /api/diagnosis/events?limit=N.
func (h *EventsHandler) Recent(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", defaultEventsLimit)
	events, err := h.events.Recent(c.UserContext(), limit)
	if err != nil {
		return response.Error(c, fiber.StatusInternalServerError, "failed to read diagnosis events", string(models.ErrorTypeInternal), "")
	}
	return c.JSON(fiber.Map{"events": events, "count": len(events)})
}
