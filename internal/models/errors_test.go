package models

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOfUnwrapsWrappedAppError(t *testing.T) {
	err := fmt.Errorf("attempt: %w", NewProviderError("GLM_CODING", FailureRateLimited, "429", nil))

	assert.Equal(t, FailureRateLimited, KindOf(err))
	assert.Equal(t, FailureUnknown, KindOf(errors.New("plain")))
	assert.Equal(t, FailureUnknown, KindOf(nil))
}

func TestProviderErrorCodes(t *testing.T) {
	tests := []struct {
		kind FailureKind
		code string
	}{
		{FailureProviderAuth, "AUTHENTICATION_FAILED"},
		{FailureRateLimited, "RATE_LIMIT_EXCEEDED"},
		{FailureServiceUnavailable, "SERVICE_UNAVAILABLE"},
		{FailureConnection, "CONNECTION_ERROR"},
		{FailureTimeout, "TIMEOUT"},
		{FailureMalformedResponse, "JSON_PARSE_ERROR"},
		{FailureUnknown, "UNKNOWN_ERROR"},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.code, NewProviderError("M", tt.kind, "x", nil).Code)
		})
	}
}

func TestSanitizeErrorHidesCredentialFailures(t *testing.T) {
	cause := errors.New("invalid api key sk-or-v1-abc")
	safe := SanitizeError(NewProviderError("DEEPSEEK_V3", FailureProviderAuth, "401", cause))

	assert.Equal(t, "internal error", safe.Message)
	assert.Equal(t, FailureProviderAuth, safe.Kind)
	assert.Empty(t, safe.Code)
	assert.NotContains(t, safe.Error(), "sk-or")
	assert.Equal(t, http.StatusInternalServerError, safe.GetStatusCode())
}

func TestSanitizeErrorDropsCause(t *testing.T) {
	safe := SanitizeError(NewTimeoutError("diagnosis", errors.New("context deadline exceeded")))

	assert.Equal(t, "TIMEOUT", safe.Code)
	assert.Nil(t, safe.Cause)
	assert.Equal(t, http.StatusGatewayTimeout, safe.GetStatusCode())

	unknown := SanitizeError(errors.New("boom"))
	assert.Equal(t, ErrorTypeInternal, unknown.Type)
}
