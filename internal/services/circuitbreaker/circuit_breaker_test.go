package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sentra-ai/diagnosis-proxy/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var errBoom = errors.New("boom")

func newRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, "test:cb:")
}

// stores runs each test against both state store implementations.
func stores(t *testing.T) map[string]StateStore {
	return map[string]StateStore{
		"memory": NewMemoryStore(),
		"redis":  newRedisStore(t),
	}
}

func TestBreakerLifecycle(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			clock := &fakeClock{now: t0}
			var transitions []string
			cb := New(store, DefaultSettings(),
				WithClock(clock.Now),
				WithStateChangeHook(func(key string, from, to models.CircuitState) {
					transitions = append(transitions, from.String()+">"+to.String())
				}))

			assert.True(t, cb.CanExecute(ctx, "DEEPSEEK_V3"))

			for range 5 {
				cb.RecordFailure(ctx, "DEEPSEEK_V3", errBoom)
			}
			assert.False(t, cb.CanExecute(ctx, "DEEPSEEK_V3"))

			clock.Advance(30 * time.Second)
			assert.True(t, cb.CanExecute(ctx, "DEEPSEEK_V3"))
			assert.Equal(t, models.CircuitHalfOpen, cb.GetAllStatuses(ctx)["DEEPSEEK_V3"].State)

			cb.RecordSuccess(ctx, "DEEPSEEK_V3")
			cb.RecordSuccess(ctx, "DEEPSEEK_V3")

			status := cb.GetAllStatuses(ctx)["DEEPSEEK_V3"]
			assert.Equal(t, models.CircuitClosed, status.State)
			assert.Zero(t, status.FailureCount)
			assert.Zero(t, status.SuccessCount)
			assert.EqualValues(t, 7, status.TotalRequests)
			assert.EqualValues(t, 5, status.TotalFailures)

			assert.Equal(t, []string{"CLOSED>OPEN", "OPEN>HALF_OPEN", "HALF_OPEN>CLOSED"}, transitions)
		})
	}
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			clock := &fakeClock{now: t0}
			cb := New(store, DefaultSettings(), WithClock(clock.Now))

			for range 5 {
				cb.RecordFailure(ctx, "GLM_CODING", errBoom)
			}
			clock.Advance(31 * time.Second)
			require.True(t, cb.CanExecute(ctx, "GLM_CODING"))

			cb.RecordFailure(ctx, "GLM_CODING", errBoom)
			assert.False(t, cb.CanExecute(ctx, "GLM_CODING"))
			assert.Equal(t, models.CircuitOpen, cb.GetAllStatuses(ctx)["GLM_CODING"].State)
		})
	}
}

func TestBreakerResetAndResetAll(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			cb := New(store, DefaultSettings())

			for range 5 {
				cb.RecordFailure(ctx, "A", errBoom)
				cb.RecordFailure(ctx, "B", errBoom)
			}
			require.False(t, cb.CanExecute(ctx, "A"))

			cb.Reset(ctx, "A")
			assert.True(t, cb.CanExecute(ctx, "A"))
			assert.Equal(t, models.CircuitStatus{}, cb.GetAllStatuses(ctx)["A"])
			assert.False(t, cb.CanExecute(ctx, "B"))

			cb.ResetAll(ctx)
			assert.Empty(t, cb.GetAllStatuses(ctx))
			assert.True(t, cb.CanExecute(ctx, "B"))
		})
	}
}

func TestBreakerConcurrentFailuresAreNotLost(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			cb := New(store, Settings{FailureThreshold: 1000, SuccessThreshold: 2, Timeout: time.Minute})

			const workers = 5
			const perWorker = 10
			var wg sync.WaitGroup
			for range workers {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for range perWorker {
						cb.RecordFailure(ctx, "QWEN_TURBO", errBoom)
					}
				}()
			}
			wg.Wait()

			status := cb.GetAllStatuses(ctx)["QWEN_TURBO"]
			assert.Equal(t, workers*perWorker, status.FailureCount)
			assert.EqualValues(t, workers*perWorker, status.TotalFailures)
		})
	}
}

type failingStore struct{ *MemoryStore }

func (*failingStore) Update(context.Context, string, func(models.CircuitStatus) models.CircuitStatus) (models.CircuitStatus, error) {
	return models.CircuitStatus{}, errBoom
}

func TestBreakerFailsOpenOnStoreError(t *testing.T) {
	cb := New(&failingStore{NewMemoryStore()}, DefaultSettings())
	assert.True(t, cb.CanExecute(context.Background(), "ANY"))
}

func TestNewFromConfigFallsBackToMemory(t *testing.T) {
	cb := NewFromConfig(models.CircuitBreakerConfig{
		Backend:          models.CircuitBackendRedis,
		FailureThreshold: 3,
		SuccessThreshold: 1,
		TimeoutMs:        1000,
	}, nil)

	_, ok := cb.store.(*MemoryStore)
	assert.True(t, ok)
	assert.Equal(t, time.Second, cb.Settings().Timeout)
}
