package fallback

import (
	"context"
	"fmt"
	"time"

	"github.com/sentra-ai/diagnosis-proxy/internal/models"
	"github.com/sentra-ai/diagnosis-proxy/internal/services/metrics"

	fiberlog "github.com/gofiber/fiber/v2/log"
)

// Gate is the part of the circuit breaker the executor needs.
type Gate interface {
	CanExecute(ctx context.Context, key string) bool
	RecordSuccess(ctx context.Context, key string)
	RecordFailure(ctx context.Context, key string, cause error)
}

// AttemptFunc performs one call against model key. A nil error means the
// attempt produced a usable result.
type AttemptFunc func(ctx context.Context, key string) error

// Result describes one Execute call.
type Result struct {
	// Model is the key that succeeded, empty when none did.
	Model    string
	Attempts int
	// Blocked lists keys skipped because their breaker was open.
	Blocked []string
	// Err is the last attempt error, or an all_models_unavailable error when
	// no key could be attempted.
	Err error
}

// Succeeded reports whether some model answered.
func (r Result) Succeeded() bool { return r.Model != "" }

// Service tries models strictly one after another, in the given order,
// skipping those whose breaker is open. Each attempt records exactly one
// breaker outcome.
type Service struct {
	gate       Gate
	retryAfter time.Duration
}

// NewFallbackService creates an executor over gate. retryAfter is the
// breaker timeout, quoted to callers when every model is unavailable.
func NewFallbackService(gate Gate, retryAfter time.Duration) *Service {
	return &Service{gate: gate, retryAfter: retryAfter}
}

// UnavailableMessage is the caller-facing text for an empty healthy set.
func (s *Service) UnavailableMessage() string {
	return fmt.Sprintf("All AI models temporarily unavailable. Please try again in %d seconds.", int(s.retryAfter.Round(time.Second)/time.Second))
}

// Healthy filters keys by breaker state, preserving order.
func (s *Service) Healthy(ctx context.Context, keys []string) (healthy, blocked []string) {
	for _, key := range keys {
		if s.gate.CanExecute(ctx, key) {
			healthy = append(healthy, key)
		} else {
			blocked = append(blocked, key)
		}
	}
	return healthy, blocked
}

// Execute runs attempt against each healthy key until one succeeds.
func (s *Service) Execute(ctx context.Context, requestID string, keys []string, attempt AttemptFunc) Result {
	healthy, blocked := s.Healthy(ctx, keys)
	result := Result{Blocked: blocked}

	if len(blocked) > 0 {
		fiberlog.Warnf("[%s] Skipping models with open circuits: %v", requestID, blocked)
	}
	if len(healthy) == 0 {
		fiberlog.Errorf("[%s] No healthy models among %v", requestID, keys)
		result.Err = models.NewAllModelsUnavailableError(s.UnavailableMessage())
		return result
	}

	fiberlog.Infof("[%s] Sequential fallback over %d model(s): %v", requestID, len(healthy), healthy)

	// Every attempt is bounded by its model's own timeout. A request deadline
	// that expires mid-chain must not stop the remaining models from running.
	ctx = context.WithoutCancel(ctx)

	for i, key := range healthy {
		result.Attempts++
		fiberlog.Infof("[%s] Trying %s [%d/%d]", requestID, key, i+1, len(healthy))

		start := time.Now()
		err := attempt(ctx, key)
		metrics.ModelLatency.WithLabelValues(key).Observe(time.Since(start).Seconds())

		if err == nil {
			s.gate.RecordSuccess(ctx, key)
			metrics.ModelAttempts.WithLabelValues(key, "success").Inc()
			fiberlog.Infof("[%s] %s succeeded in %v", requestID, key, time.Since(start))
			result.Model = key
			result.Err = nil
			return result
		}

		s.gate.RecordFailure(ctx, key, err)
		metrics.ModelAttempts.WithLabelValues(key, string(models.KindOf(err))).Inc()
		fiberlog.Warnf("[%s] %s failed in %v: %v", requestID, key, time.Since(start), err)
		result.Err = err
	}

	fiberlog.Errorf("[%s] All %d attempted model(s) failed", requestID, result.Attempts)
	return result
}
