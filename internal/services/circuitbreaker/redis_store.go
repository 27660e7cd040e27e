package circuitbreaker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/sentra-ai/diagnosis-proxy/internal/models"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
)

const (
	indexKeySuffix = "models"
	maxBackoff     = 20 * time.Millisecond
)

// RedisStore shares breaker state between instances. Each model key is one
// JSON document updated under WATCH/MULTI; conflicting writers retry until
// their context expires.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a store whose keys start with prefix.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) statusKey(key string) string { return s.prefix + "state:" + key }
func (s *RedisStore) indexKey() string            { return s.prefix + indexKeySuffix }

func (s *RedisStore) Update(ctx context.Context, key string, fn func(models.CircuitStatus) models.CircuitStatus) (models.CircuitStatus, error) {
	statusKey := s.statusKey(key)
	var next models.CircuitStatus

	for attempt := 1; ; attempt++ {
		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			current, err := readStatus(ctx, tx, statusKey)
			if err != nil {
				return err
			}

			next = fn(current)
			payload, err := json.Marshal(next)
			if err != nil {
				return fmt.Errorf("failed to encode circuit status: %w", err)
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, statusKey, payload, 0)
				pipe.SAdd(ctx, s.indexKey(), key)
				return nil
			})
			return err
		}, statusKey)

		if err == nil {
			return next, nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return next, err
		}

		fiberlog.Debugf("CircuitBreaker: optimistic update of %s conflicted (attempt %d)", key, attempt)
		backoff := min(time.Duration(attempt)*time.Millisecond, maxBackoff)
		select {
		case <-ctx.Done():
			return next, fmt.Errorf("circuit status update for %s abandoned after %d attempts: %w", key, attempt, ctx.Err())
		case <-time.After(backoff + rand.N(time.Millisecond)):
		}
	}
}

func (s *RedisStore) All(ctx context.Context) (map[string]models.CircuitStatus, error) {
	keys, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list circuit keys: %w", err)
	}

	out := make(map[string]models.CircuitStatus, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	redisKeys := make([]string, len(keys))
	for i, key := range keys {
		redisKeys[i] = s.statusKey(key)
	}

	values, err := s.client.MGet(ctx, redisKeys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read circuit statuses: %w", err)
	}

	for i, raw := range values {
		str, ok := raw.(string)
		if !ok {
			continue
		}
		var status models.CircuitStatus
		if err := json.Unmarshal([]byte(str), &status); err != nil {
			fiberlog.Warnf("CircuitBreaker: skipping corrupt status for %s: %v", keys[i], err)
			continue
		}
		out[keys[i]] = status
	}
	return out, nil
}

func (s *RedisStore) Reset(ctx context.Context, key string) error {
	payload, err := json.Marshal(models.CircuitStatus{})
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.statusKey(key), payload, 0)
	pipe.SAdd(ctx, s.indexKey(), key)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisStore) ResetAll(ctx context.Context) error {
	keys, err := s.client.SMembers(ctx, s.indexKey()).Result()
	if err != nil {
		return fmt.Errorf("failed to list circuit keys: %w", err)
	}

	toDelete := make([]string, 0, len(keys)+1)
	for _, key := range keys {
		toDelete = append(toDelete, s.statusKey(key))
	}
	toDelete = append(toDelete, s.indexKey())
	return s.client.Del(ctx, toDelete...).Err()
}

func readStatus(ctx context.Context, tx *redis.Tx, statusKey string) (models.CircuitStatus, error) {
	var status models.CircuitStatus

	raw, err := tx.Get(ctx, statusKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return status, nil
	}
	if err != nil {
		return status, fmt.Errorf("failed to get circuit status: %w", err)
	}

	if err := json.Unmarshal(raw, &status); err != nil {
		return status, fmt.Errorf("invalid circuit status for %s: %w", statusKey, err)
	}
	return status, nil
}
