package invoker

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/sentra-ai/diagnosis-proxy/internal/models"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go/v2"
	"google.golang.org/genai"
)

// Classify wraps err from a call to model key in an AppError with its
// FailureKind. Errors that already carry a kind pass through unchanged.
func Classify(key string, err error) *models.AppError {
	var appErr *models.AppError
	if errors.As(err, &appErr) && appErr.Kind != "" {
		return appErr
	}

	kind := classifyKind(err)
	if kind == models.FailureTimeout {
		return models.NewTimeoutError(key, err)
	}
	return models.NewProviderError(key, kind, string(kind), err)
}

func classifyKind(err error) models.FailureKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return models.FailureTimeout
	}

	if status := statusCode(err); status > 0 {
		return kindForStatus(status)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return models.FailureTimeout
		}
		return models.FailureConnection
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return models.FailureConnection
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "connection refused"), strings.Contains(msg, "no such host"),
		strings.Contains(msg, "connection reset"), strings.Contains(msg, "unexpected eof"):
		return models.FailureConnection
	case strings.Contains(msg, "timeout"):
		return models.FailureTimeout
	}
	return models.FailureUnknown
}

func statusCode(err error) int {
	var oaErr *openai.Error
	if errors.As(err, &oaErr) {
		return oaErr.StatusCode
	}
	var antErr *anthropic.Error
	if errors.As(err, &antErr) {
		return antErr.StatusCode
	}
	var gemErr genai.APIError
	if errors.As(err, &gemErr) {
		return gemErr.Code
	}
	var gemErrPtr *genai.APIError
	if errors.As(err, &gemErrPtr) {
		return gemErrPtr.Code
	}
	return 0
}

func kindForStatus(status int) models.FailureKind {
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return models.FailureProviderAuth
	case status == http.StatusTooManyRequests:
		return models.FailureRateLimited
	case status == http.StatusRequestTimeout, status == http.StatusGatewayTimeout:
		return models.FailureTimeout
	case status >= 500:
		return models.FailureServiceUnavailable
	default:
		return models.FailureUnknown
	}
}
