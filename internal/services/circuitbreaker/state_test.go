package circuitbreaker

import (
	"testing"
	"time"

	"github.com/sentra-ai/diagnosis-proxy/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)

func TestTransitionClosedOpensAtThreshold(t *testing.T) {
	cfg := DefaultSettings()
	var s models.CircuitStatus

	opens := 0
	for i := 0; i < cfg.FailureThreshold; i++ {
		prev := s.State
		s, _ = Transition(s, EventFailure, cfg, t0)
		if prev != models.CircuitOpen && s.State == models.CircuitOpen {
			opens++
		}
	}

	assert.Equal(t, 1, opens)
	assert.Equal(t, models.CircuitOpen, s.State)
	assert.Equal(t, 0, s.SuccessCount)

	_, allowed := Transition(s, EventCheck, cfg, t0)
	assert.False(t, allowed)
}

func TestTransitionBelowThresholdStaysClosed(t *testing.T) {
	cfg := DefaultSettings()
	var s models.CircuitStatus
	for i := 0; i < cfg.FailureThreshold-1; i++ {
		s, _ = Transition(s, EventFailure, cfg, t0)
	}
	assert.Equal(t, models.CircuitClosed, s.State)

	s, _ = Transition(s, EventSuccess, cfg, t0)
	assert.Equal(t, 0, s.FailureCount, "success resets failure count")

	s, _ = Transition(s, EventFailure, cfg, t0)
	assert.Equal(t, models.CircuitClosed, s.State)
	assert.Equal(t, 1, s.FailureCount)
}

func TestTransitionOpenToHalfOpenAfterTimeout(t *testing.T) {
	cfg := DefaultSettings()
	last := t0
	s := models.CircuitStatus{State: models.CircuitOpen, FailureCount: 5, LastFailureTime: &last}

	s2, allowed := Transition(s, EventCheck, cfg, t0.Add(cfg.Timeout-time.Millisecond))
	assert.False(t, allowed)
	assert.Equal(t, models.CircuitOpen, s2.State)

	s3, allowed := Transition(s, EventCheck, cfg, t0.Add(cfg.Timeout))
	assert.True(t, allowed)
	assert.Equal(t, models.CircuitHalfOpen, s3.State)
	assert.Zero(t, s3.FailureCount)
	assert.Zero(t, s3.SuccessCount)
}

func TestTransitionHalfOpenPromotion(t *testing.T) {
	cfg := DefaultSettings()
	s := models.CircuitStatus{State: models.CircuitHalfOpen}

	for i := 0; i < cfg.SuccessThreshold; i++ {
		var allowed bool
		_, allowed = Transition(s, EventCheck, cfg, t0)
		require.True(t, allowed)
		s, _ = Transition(s, EventSuccess, cfg, t0)
	}

	assert.Equal(t, models.CircuitClosed, s.State)
	assert.Zero(t, s.FailureCount)
	assert.Zero(t, s.SuccessCount)
}

func TestTransitionHalfOpenRegression(t *testing.T) {
	cfg := DefaultSettings()
	s := models.CircuitStatus{State: models.CircuitHalfOpen, SuccessCount: 1}

	s, _ = Transition(s, EventFailure, cfg, t0)
	assert.Equal(t, models.CircuitOpen, s.State)
	assert.Zero(t, s.SuccessCount)
	assert.Equal(t, 1, s.FailureCount)
	require.NotNil(t, s.LastFailureTime)
	assert.Equal(t, t0, *s.LastFailureTime)
}

func TestTransitionHalfOpenLimitsTrialRequests(t *testing.T) {
	cfg := DefaultSettings()
	s := models.CircuitStatus{State: models.CircuitHalfOpen, SuccessCount: cfg.SuccessThreshold}

	_, allowed := Transition(s, EventCheck, cfg, t0)
	assert.False(t, allowed)
}

func TestTransitionTotalsAreMonotonic(t *testing.T) {
	cfg := DefaultSettings()
	var s models.CircuitStatus
	events := []Event{EventFailure, EventSuccess, EventFailure, EventFailure, EventSuccess}
	for _, ev := range events {
		s, _ = Transition(s, ev, cfg, t0)
	}
	assert.EqualValues(t, 5, s.TotalRequests)
	assert.EqualValues(t, 3, s.TotalFailures)
	require.NotNil(t, s.LastSuccessTime)
}
