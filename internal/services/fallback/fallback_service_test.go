package fallback

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sentra-ai/diagnosis-proxy/internal/models"
	"github.com/sentra-ai/diagnosis-proxy/internal/services/circuitbreaker"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBreaker() *circuitbreaker.CircuitBreaker {
	return circuitbreaker.New(circuitbreaker.NewMemoryStore(), circuitbreaker.DefaultSettings())
}

func trip(ctx context.Context, cb *circuitbreaker.CircuitBreaker, key string) {
	for range cb.Settings().FailureThreshold {
		cb.RecordFailure(ctx, key, errors.New("down"))
	}
}

func TestExecuteFirstSuccessWins(t *testing.T) {
	ctx := context.Background()
	cb := newBreaker()
	svc := NewFallbackService(cb, 30*time.Second)

	var called []string
	res := svc.Execute(ctx, "req", []string{"A", "B", "C"}, func(_ context.Context, key string) error {
		called = append(called, key)
		if key == "A" {
			return models.NewProviderError(key, models.FailureRateLimited, "429", nil)
		}
		return nil
	})

	require.True(t, res.Succeeded())
	assert.Equal(t, "B", res.Model)
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, []string{"A", "B"}, called)
	assert.NoError(t, res.Err)

	statuses := cb.GetAllStatuses(ctx)
	assert.EqualValues(t, 1, statuses["A"].TotalFailures)
	assert.EqualValues(t, 1, statuses["B"].TotalRequests)
	assert.Equal(t, models.CircuitClosed, statuses["C"].State)
	assert.Zero(t, statuses["C"].TotalRequests)
}

func TestExecuteSkipsOpenCircuits(t *testing.T) {
	ctx := context.Background()
	cb := newBreaker()
	trip(ctx, cb, "A")
	trip(ctx, cb, "B")
	svc := NewFallbackService(cb, 30*time.Second)

	var called []string
	res := svc.Execute(ctx, "req", []string{"A", "B", "C"}, func(_ context.Context, key string) error {
		called = append(called, key)
		return nil
	})

	assert.Equal(t, []string{"C"}, called)
	assert.Equal(t, "C", res.Model)
	assert.Equal(t, []string{"A", "B"}, res.Blocked)
	assert.Equal(t, 1, res.Attempts)
}

func TestExecuteNoHealthyModels(t *testing.T) {
	ctx := context.Background()
	cb := newBreaker()
	for _, key := range []string{"A", "B"} {
		trip(ctx, cb, key)
	}
	svc := NewFallbackService(cb, 30*time.Second)

	res := svc.Execute(ctx, "req", []string{"A", "B"}, func(context.Context, string) error {
		t.Fatal("attempt must not run")
		return nil
	})

	assert.False(t, res.Succeeded())
	assert.Zero(t, res.Attempts)
	assert.Equal(t, models.FailureAllModelsUnavailable, models.KindOf(res.Err))
	assert.EqualError(t, res.Err, "All AI models temporarily unavailable. Please try again in 30 seconds.")
}

func TestExecuteAllFailReturnsLastError(t *testing.T) {
	ctx := context.Background()
	svc := NewFallbackService(newBreaker(), 30*time.Second)

	res := svc.Execute(ctx, "req", []string{"A", "B"}, func(_ context.Context, key string) error {
		if key == "A" {
			return models.NewProviderError(key, models.FailureServiceUnavailable, "503", nil)
		}
		return models.NewProviderError(key, models.FailureTimeout, "slow", nil)
	})

	assert.False(t, res.Succeeded())
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, models.FailureTimeout, models.KindOf(res.Err))
}

func TestExecuteOutlivesRequestDeadline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	svc := NewFallbackService(newBreaker(), 30*time.Second)

	var called []string
	res := svc.Execute(ctx, "req", []string{"A", "B", "C"}, func(attemptCtx context.Context, key string) error {
		called = append(called, key)
		if key == "C" {
			return attemptCtx.Err()
		}
		time.Sleep(30 * time.Millisecond)
		return models.NewTimeoutError(key, context.DeadlineExceeded)
	})

	require.True(t, res.Succeeded())
	assert.Equal(t, "C", res.Model)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, []string{"A", "B", "C"}, called)
	assert.Error(t, ctx.Err())
}
