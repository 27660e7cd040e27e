package response

import (
	"time"

	"github.com/sentra-ai/diagnosis-proxy/internal/models"

	"github.com/gofiber/fiber/v2"
)

// ErrorResponse is the body of every non-diagnosis API error.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error information
type ErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
}

// Error sends an error response with specified status, type, and code
func Error(c *fiber.Ctx, status int, message, errorType, code string) error {
	return c.Status(status).JSON(ErrorResponse{
		Error: ErrorDetail{
			Message: message,
			Type:    errorType,
			Code:    code,
		},
	})
}

// BadRequest rejects a request before it reaches the orchestrator, in the
// same envelope as a diagnosis outcome.
func BadRequest(c *fiber.Ctx, message, requestID string) error {
	return c.Status(fiber.StatusBadRequest).JSON(models.DiagnosisOutcome{
		Success: false,
		Error:   message,
		Metadata: models.OutcomeMetadata{
			Timestamp: time.Now().UnixMilli(),
			RequestID: requestID,
		},
	})
}

// Outcome writes a diagnosis outcome: 200 on success, 500 otherwise.
func Outcome(c *fiber.Ctx, outcome models.DiagnosisOutcome) error {
	status := fiber.StatusOK
	if !outcome.Success {
		status = fiber.StatusInternalServerError
	}
	return c.Status(status).JSON(outcome)
}
