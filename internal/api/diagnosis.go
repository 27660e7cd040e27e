package api

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sentra-ai/diagnosis-proxy/internal/config"
	"github.com/sentra-ai/diagnosis-proxy/internal/models"
	"github.com/sentra-ai/diagnosis-proxy/internal/services/request"
	"github.com/sentra-ai/diagnosis-proxy/internal/services/response"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
)

const (
	minQueryLength = 3
	maxQueryLength = 500
)

// Diagnoser produces a diagnosis outcome for one query.
type Diagnoser interface {
	Diagnose(ctx context.Context, query string, opts models.DiagnoseOptions) models.DiagnosisOutcome
}

// Breakers is the circuit breaker surface the admin endpoints need.
type Breakers interface {
	GetAllStatuses(ctx context.Context) map[string]models.CircuitStatus
	Reset(ctx context.Context, key string)
	ResetAll(ctx context.Context)
}

// DiagnosisHandler serves the diagnosis and circuit endpoints.
type DiagnosisHandler struct {
	diagnoser Diagnoser
	breakers  Breakers
	modelKeys []string
	now       func() time.Time
}

// NewDiagnosisHandler creates the handler. modelKeys are the keys a caller
// may pin, in display order.
func NewDiagnosisHandler(diagnoser Diagnoser, breakers Breakers, modelKeys []string) *DiagnosisHandler {
	return &DiagnosisHandler{
		diagnoser: diagnoser,
		breakers:  breakers,
		modelKeys: modelKeys,
		now:       time.Now,
	}
}

// Generate handles POST /api/diagnosis/generate.
func (h *DiagnosisHandler) Generate(c *fiber.Ctx) error {
	reqID := request.ID(c)

	var body models.DiagnosisRequest
	if err := c.BodyParser(&body); err != nil {
		fiberlog.Warnf("[%s] Invalid diagnosis body: %v", reqID, err)
		return response.BadRequest(c, "Invalid JSON body", reqID)
	}

	opts, err := h.validate(&body)
	if err != nil {
		return response.BadRequest(c, err.Error(), reqID)
	}
	opts.RequestID = reqID

	outcome := h.diagnoser.Diagnose(c.UserContext(), strings.TrimSpace(body.Query), opts)
	return response.Outcome(c, outcome)
}

func (h *DiagnosisHandler) validate(body *models.DiagnosisRequest) (models.DiagnoseOptions, error) {
	query := strings.TrimSpace(body.Query)
	n := utf8.RuneCountInString(query)
	if n < minQueryLength {
		return models.DiagnoseOptions{}, fmt.Errorf("query must be at least %d characters", minQueryLength)
	}
	if n > maxQueryLength {
		return models.DiagnoseOptions{}, fmt.Errorf("query must be at most %d characters", maxQueryLength)
	}

	var opts models.DiagnoseOptions
	if body.Options != nil {
		opts = *body.Options
	}

	if opts.Model != "" {
		key := config.NormalizeModelKey(opts.Model)
		if !slices.Contains(h.modelKeys, key) {
			return models.DiagnoseOptions{}, fmt.Errorf("unknown model %q; expected one of %s", opts.Model, strings.Join(h.modelKeys, ", "))
		}
		opts.Model = key
	}

	if t := opts.Temperature; t != nil && (*t < 0 || *t > 1) {
		return models.DiagnoseOptions{}, fmt.Errorf("temperature must be between 0 and 1")
	}
	return opts, nil
}

// CircuitStatus handles GET /api/diagnosis/circuit-status. Configured models
// without recorded traffic are reported as CLOSED.
func (h *DiagnosisHandler) CircuitStatus(c *fiber.Ctx) error {
	statuses := h.breakers.GetAllStatuses(c.UserContext())
	now := h.now()

	keys := slices.Clone(h.modelKeys)
	for key := range statuses {
		if !slices.Contains(keys, key) {
			keys = append(keys, key)
		}
	}

	reports := make([]models.ModelCircuitReport, 0, len(keys))
	healthy := 0
	for _, key := range keys {
		report := describeCircuit(key, statuses[key], now)
		if report.Healthy {
			healthy++
		}
		reports = append(reports, report)
	}

	overview := models.CircuitOverview{Healthy: healthy, Total: len(reports), Status: "operational"}
	if healthy == 0 {
		overview.Status = "degraded"
	}

	return c.JSON(fiber.Map{
		"timestamp": now.UTC().Format(time.RFC3339),
		"overall":   overview,
		"models":    reports,
	})
}

func describeCircuit(key string, st models.CircuitStatus, now time.Time) models.ModelCircuitReport {
	stats := models.CircuitStatsBlock{
		TotalRequests: st.TotalRequests,
		TotalFailures: st.TotalFailures,
		FailureRate:   "0%",
	}
	if st.TotalRequests > 0 {
		stats.FailureRate = fmt.Sprintf("%.2f%%", float64(st.TotalFailures)/float64(st.TotalRequests)*100)
	}
	if st.LastFailureTime != nil {
		stats.LastFailure = st.LastFailureTime.UTC().Format(time.RFC3339)
		stats.TimeSinceLastFailure = fmt.Sprintf("%ds ago", int64(now.Sub(*st.LastFailureTime)/time.Second))
	}
	if st.LastSuccessTime != nil {
		stats.LastSuccess = st.LastSuccessTime.UTC().Format(time.RFC3339)
	}

	return models.ModelCircuitReport{
		Model:   key,
		State:   st.State.String(),
		Healthy: st.Healthy(),
		Stats:   stats,
	}
}

type resetRequest struct {
	Model string `json:"model"`
}

// CircuitReset handles POST /api/diagnosis/circuit-reset. An empty body or
// model resets every breaker.
func (h *DiagnosisHandler) CircuitReset(c *fiber.Ctx) error {
	reqID := request.ID(c)

	var body resetRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&body); err != nil {
			return response.Error(c, fiber.StatusBadRequest, "Invalid JSON body", string(models.ErrorTypeValidation), "")
		}
	}

	if body.Model == "" {
		h.breakers.ResetAll(c.UserContext())
		fiberlog.Infof("[%s] Reset all circuit breakers", reqID)
		return c.JSON(fiber.Map{"success": true, "reset": "all"})
	}

	key := config.NormalizeModelKey(body.Model)
	if !slices.Contains(h.modelKeys, key) {
		return response.Error(c, fiber.StatusBadRequest, fmt.Sprintf("unknown model %q", body.Model), string(models.ErrorTypeValidation), "")
	}
	h.breakers.Reset(c.UserContext(), key)
	fiberlog.Infof("[%s] Reset circuit breaker for %s", reqID, key)
	return c.JSON(fiber.Map{"success": true, "reset": key})
}
