package models

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorType represents the category of error
type ErrorType string

const (
	// ErrorTypeValidation represents validation errors (4xx)
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeRateLimit represents rate limiting errors (429)
	ErrorTypeRateLimit ErrorType = "rate_limit"
	// ErrorTypeProvider represents provider-specific errors (502/503)
	ErrorTypeProvider ErrorType = "provider"
	// ErrorTypeTimeout represents timeout errors (504)
	ErrorTypeTimeout ErrorType = "timeout"
	// ErrorTypeInternal represents internal server errors (500)
	ErrorTypeInternal ErrorType = "internal"
	// ErrorTypeCircuitBreaker represents circuit breaker errors (503)
	ErrorTypeCircuitBreaker ErrorType = "circuit_breaker"
)

// FailureKind classifies why a model attempt, or a whole diagnosis, failed.
type FailureKind string

const (
	FailureProviderAuth         FailureKind = "provider_auth"
	FailureRateLimited          FailureKind = "rate_limited"
	FailureServiceUnavailable   FailureKind = "service_unavailable"
	FailureConnection           FailureKind = "connection"
	FailureTimeout              FailureKind = "timeout"
	FailureMalformedResponse    FailureKind = "malformed_response"
	FailureAllModelsUnavailable FailureKind = "all_models_unavailable"
	FailureUnknown              FailureKind = "unknown"
)

// AppError represents a structured application error
type AppError struct {
	Type       ErrorType   `json:"type"`
	Kind       FailureKind `json:"kind,omitzero"`
	Message    string      `json:"message"`
	Code       string      `json:"code,omitzero"`
	StatusCode int         `json:"-"`
	Retryable  bool        `json:"retryable"`
	Cause      error       `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap allows error unwrapping
func (e *AppError) Unwrap() error {
	return e.Cause
}

// GetStatusCode returns the HTTP status code for the error
func (e *AppError) GetStatusCode() int {
	if e.StatusCode > 0 {
		return e.StatusCode
	}

	switch e.Type {
	case ErrorTypeValidation:
		return http.StatusBadRequest
	case ErrorTypeRateLimit:
		return http.StatusTooManyRequests
	case ErrorTypeProvider, ErrorTypeCircuitBreaker:
		return http.StatusBadGateway
	case ErrorTypeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// KindOf extracts the failure kind from err, or FailureUnknown.
func KindOf(err error) FailureKind {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Kind != "" {
		return appErr.Kind
	}
	return FailureUnknown
}

// NewProviderError creates a provider error of the given kind for one model attempt.
func NewProviderError(model string, kind FailureKind, message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeProvider,
		Kind:       kind,
		Message:    fmt.Sprintf("model %s error: %s", model, message),
		Code:       providerCode(kind),
		StatusCode: http.StatusBadGateway,
		Retryable:  kind != FailureProviderAuth,
		Cause:      cause,
	}
}

// NewTimeoutError creates a timeout error
func NewTimeoutError(operation string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeTimeout,
		Kind:       FailureTimeout,
		Message:    fmt.Sprintf("operation %s timed out", operation),
		Code:       "TIMEOUT",
		StatusCode: http.StatusGatewayTimeout,
		Retryable:  true,
		Cause:      cause,
	}
}

// NewMalformedResponseError marks a model reply that could not be used as a diagnosis.
func NewMalformedResponseError(model, message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeProvider,
		Kind:       FailureMalformedResponse,
		Message:    fmt.Sprintf("model %s returned malformed response: %s", model, message),
		Code:       "JSON_PARSE_ERROR",
		StatusCode: http.StatusBadGateway,
		Retryable:  true,
		Cause:      cause,
	}
}

// NewAllModelsUnavailableError reports that every model's circuit is open.
func NewAllModelsUnavailableError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeCircuitBreaker,
		Kind:       FailureAllModelsUnavailable,
		Message:    message,
		Code:       "ALL_MODELS_UNAVAILABLE",
		StatusCode: http.StatusServiceUnavailable,
		Retryable:  true,
	}
}

// NewInternalError creates an internal server error
func NewInternalError(message string, cause error) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Retryable:  false,
		Cause:      cause,
	}
}

func providerCode(kind FailureKind) string {
	switch kind {
	case FailureProviderAuth:
		return "AUTHENTICATION_FAILED"
	case FailureRateLimited:
		return "RATE_LIMIT_EXCEEDED"
	case FailureServiceUnavailable:
		return "SERVICE_UNAVAILABLE"
	case FailureConnection:
		return "CONNECTION_ERROR"
	case FailureTimeout:
		return "TIMEOUT"
	case FailureMalformedResponse:
		return "JSON_PARSE_ERROR"
	default:
		return "UNKNOWN_ERROR"
	}
}

// SanitizeError sanitizes an error for external consumption
func SanitizeError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		// credential failures never expose provider detail
		if appErr.Kind == FailureProviderAuth {
			return &AppError{
				Type:       ErrorTypeInternal,
				Kind:       appErr.Kind,
				Message:    "internal error",
				StatusCode: http.StatusInternalServerError,
			}
		}
		return &AppError{
			Type:       appErr.Type,
			Kind:       appErr.Kind,
			Message:    appErr.Message,
			Code:       appErr.Code,
			StatusCode: appErr.GetStatusCode(),
			Retryable:  appErr.Retryable,
		}
	}

	return NewInternalError("an unexpected error occurred", err)
}
