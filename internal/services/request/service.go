package request

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

const (
	// requestIDLocalKey is the shared key for storing request ID in fiber locals
	requestIDLocalKey = "request_id"
	// maxRequestIDLength is the maximum allowed length for request IDs
	maxRequestIDLength = 128
	headerRequestID    = "X-Request-ID"
)

// NewID creates a random request ID.
func NewID() string {
	return "req_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}

func sanitize(reqID string) string {
	sanitized := strings.TrimSpace(reqID)
	if len(sanitized) > maxRequestIDLength {
		sanitized = sanitized[:maxRequestIDLength]
	}
	return sanitized
}

// ID returns the request ID for c, taken from X-Request-ID when present and
// generated otherwise. The result is cached in locals.
func ID(c *fiber.Ctx) string {
	if cached, ok := c.Locals(requestIDLocalKey).(string); ok && cached != "" {
		return cached
	}

	requestID := sanitize(c.Get(headerRequestID))
	if requestID == "" {
		requestID = NewID()
	}

	c.Locals(requestIDLocalKey, requestID)
	return requestID
}

// Middleware assigns a request ID to every request and echoes it back.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Set(headerRequestID, ID(c))
		return c.Next()
	}
}
