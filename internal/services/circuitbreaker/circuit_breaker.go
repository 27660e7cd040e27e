package circuitbreaker

import (
	"context"
	"time"

	"github.com/sentra-ai/diagnosis-proxy/internal/models"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
)

const defaultStoreTimeout = 1 * time.Second

// StateStore persists one CircuitStatus per model key.
type StateStore interface {
	// Update applies fn to the current status of key (a zero, CLOSED status
	// when absent) and stores the result atomically with respect to other
	// updates of the same key.
	Update(ctx context.Context, key string, fn func(models.CircuitStatus) models.CircuitStatus) (models.CircuitStatus, error)
	All(ctx context.Context) (map[string]models.CircuitStatus, error)
	Reset(ctx context.Context, key string) error
	ResetAll(ctx context.Context) error
}

// StateChangeFunc observes state transitions.
type StateChangeFunc func(key string, from, to models.CircuitState)

// CircuitBreaker gates calls per model key.
type CircuitBreaker struct {
	store    StateStore
	settings Settings
	now      func() time.Time
	onChange []StateChangeFunc
}

// Option customises a CircuitBreaker.
type Option func(*CircuitBreaker)

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(cb *CircuitBreaker) { cb.now = now }
}

// WithStateChangeHook registers an observer for transitions.
func WithStateChangeHook(fn StateChangeFunc) Option {
	return func(cb *CircuitBreaker) { cb.onChange = append(cb.onChange, fn) }
}

// New creates a breaker over store.
func New(store StateStore, settings Settings, opts ...Option) *CircuitBreaker {
	cb := &CircuitBreaker{
		store:    store,
		settings: settings,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(cb)
	}
	return cb
}

// NewFromConfig picks the store named by cfg.Backend. A redis backend without
// a client falls back to process memory.
func NewFromConfig(cfg models.CircuitBreakerConfig, redisClient *redis.Client, opts ...Option) *CircuitBreaker {
	settings := Settings{
		FailureThreshold: cfg.FailureThreshold,
		SuccessThreshold: cfg.SuccessThreshold,
		Timeout:          time.Duration(cfg.TimeoutMs) * time.Millisecond,
	}

	var store StateStore
	switch {
	case cfg.Backend == models.CircuitBackendRedis && redisClient != nil:
		fiberlog.Infof("CircuitBreaker: using redis state store (prefix %s)", cfg.KeyPrefix)
		store = NewRedisStore(redisClient, cfg.KeyPrefix)
	case cfg.Backend == models.CircuitBackendRedis:
		fiberlog.Warn("CircuitBreaker: redis backend requested but redis is not configured, using memory")
		store = NewMemoryStore()
	default:
		store = NewMemoryStore()
	}
	return New(store, settings, opts...)
}

// Settings returns the thresholds in use.
func (cb *CircuitBreaker) Settings() Settings {
	return cb.settings
}

// CanExecute reports whether key may be called now. It moves an expired OPEN
// breaker to HALF_OPEN. Store errors allow execution.
func (cb *CircuitBreaker) CanExecute(ctx context.Context, key string) bool {
	var allowed bool
	_, err := cb.apply(ctx, key, EventCheck, func(ok bool) { allowed = ok })
	if err != nil {
		fiberlog.Errorf("CircuitBreaker: failed to evaluate %s, allowing execution: %v", key, err)
		return true
	}
	return allowed
}

// RecordSuccess notes a successful call to key.
func (cb *CircuitBreaker) RecordSuccess(ctx context.Context, key string) {
	if _, err := cb.apply(ctx, key, EventSuccess, nil); err != nil {
		fiberlog.Errorf("CircuitBreaker: failed to record success for %s: %v", key, err)
	}
}

// RecordFailure notes a failed call to key.
func (cb *CircuitBreaker) RecordFailure(ctx context.Context, key string, cause error) {
	status, err := cb.apply(ctx, key, EventFailure, nil)
	if err != nil {
		fiberlog.Errorf("CircuitBreaker: failed to record failure for %s: %v", key, err)
		return
	}
	fiberlog.Debugf("CircuitBreaker: %s failure %d/%d (%s): %v",
		key, status.FailureCount, cb.settings.FailureThreshold, status.State, cause)
}

// Reset forces key back to CLOSED with zeroed counters.
func (cb *CircuitBreaker) Reset(ctx context.Context, key string) {
	ctx, cancel := context.WithTimeout(ctx, defaultStoreTimeout)
	defer cancel()

	if err := cb.store.Reset(ctx, key); err != nil {
		fiberlog.Errorf("CircuitBreaker: failed to reset %s: %v", key, err)
		return
	}
	fiberlog.Infof("CircuitBreaker: reset circuit breaker for %s", key)
}

// ResetAll forgets every breaker.
func (cb *CircuitBreaker) ResetAll(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, defaultStoreTimeout)
	defer cancel()

	if err := cb.store.ResetAll(ctx); err != nil {
		fiberlog.Errorf("CircuitBreaker: failed to reset all breakers: %v", err)
		return
	}
	fiberlog.Info("CircuitBreaker: reset all circuit breakers")
}

// GetAllStatuses returns a snapshot of every known breaker.
func (cb *CircuitBreaker) GetAllStatuses(ctx context.Context) map[string]models.CircuitStatus {
	ctx, cancel := context.WithTimeout(ctx, defaultStoreTimeout)
	defer cancel()

	statuses, err := cb.store.All(ctx)
	if err != nil {
		fiberlog.Errorf("CircuitBreaker: failed to read statuses: %v", err)
		return map[string]models.CircuitStatus{}
	}
	return statuses
}

func (cb *CircuitBreaker) apply(ctx context.Context, key string, ev Event, allowed func(bool)) (models.CircuitStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultStoreTimeout)
	defer cancel()

	now := cb.now()
	var from, to models.CircuitState
	status, err := cb.store.Update(ctx, key, func(cur models.CircuitStatus) models.CircuitStatus {
		next, ok := Transition(cur, ev, cb.settings, now)
		from, to = cur.State, next.State
		if allowed != nil {
			allowed(ok)
		}
		return next
	})
	if err != nil {
		return status, err
	}

	if from != to {
		cb.logTransition(key, ev, from, to)
		for _, fn := range cb.onChange {
			fn(key, from, to)
		}
	}
	return status, nil
}

func (cb *CircuitBreaker) logTransition(key string, ev Event, from, to models.CircuitState) {
	switch to {
	case models.CircuitOpen:
		fiberlog.Warnf("CircuitBreaker: %s transitioned %s -> %s after %s", key, from, to, ev)
	case models.CircuitHalfOpen:
		fiberlog.Infof("CircuitBreaker: %s transitioned %s -> %s, allowing trial request", key, from, to)
	default:
		fiberlog.Infof("CircuitBreaker: %s transitioned %s -> %s after %s", key, from, to, ev)
	}
}
