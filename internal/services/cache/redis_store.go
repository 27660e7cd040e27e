package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/sentra-ai/diagnosis-proxy/internal/models"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps exact-cache entries as JSON strings with a native expiry,
// plus a sorted set of hashes scored by creation time for eviction.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore creates a store whose keys start with prefix. Entries expire
// from redis after ttl; ExactCache applies the same TTL on read.
func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) Name() string { return "redis" }

func (s *RedisStore) entryKey(hash string) string { return s.prefix + "entry:" + hash }
func (s *RedisStore) indexKey() string            { return s.prefix + "index" }

func (s *RedisStore) Get(ctx context.Context, hash string) (*models.CacheEntry, error) {
	raw, err := s.client.Get(ctx, s.entryKey(hash)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var entry models.CacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("corrupt cache entry %s: %w", hash, err)
	}
	return &entry, nil
}

func (s *RedisStore) Set(ctx context.Context, entry models.CacheEntry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.entryKey(entry.QueryHash), payload, s.ttl)
		pipe.ZAdd(ctx, s.indexKey(), redis.Z{
			Score:  float64(entry.Timestamp.UnixMilli()),
			Member: entry.QueryHash,
		})
		return nil
	})
	return err
}

func (s *RedisStore) Delete(ctx context.Context, hash string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.entryKey(hash))
		pipe.ZRem(ctx, s.indexKey(), hash)
		return nil
	})
	return err
}

func (s *RedisStore) DeleteByModel(ctx context.Context, model string) (int64, error) {
	hashes, values, err := s.live(ctx)
	if err != nil {
		return 0, err
	}

	var matched []string
	for i, raw := range values {
		var entry models.CacheEntry
		if json.Unmarshal([]byte(raw), &entry) == nil && entry.Model == model {
			matched = append(matched, hashes[i])
		}
	}
	return int64(len(matched)), s.remove(ctx, matched)
}

// live returns the indexed hashes whose entries still exist, with their
// payloads. Index members left behind by redis key expiry are pruned.
func (s *RedisStore) live(ctx context.Context) ([]string, []string, error) {
	hashes, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil || len(hashes) == 0 {
		return nil, nil, err
	}

	values, err := s.client.MGet(ctx, s.entryKeys(hashes)...).Result()
	if err != nil {
		return nil, nil, err
	}

	var (
		alive    = make([]string, 0, len(hashes))
		payloads = make([]string, 0, len(hashes))
		dangling []any
	)
	for i, raw := range values {
		str, ok := raw.(string)
		if !ok {
			dangling = append(dangling, hashes[i])
			continue
		}
		alive = append(alive, hashes[i])
		payloads = append(payloads, str)
	}

	if len(dangling) > 0 {
		if err := s.client.ZRem(ctx, s.indexKey(), dangling...).Err(); err != nil {
			return nil, nil, err
		}
	}
	return alive, payloads, nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	hashes, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return err
	}
	keys := append(s.entryKeys(hashes), s.indexKey())
	return s.client.Del(ctx, keys...).Err()
}

func (s *RedisStore) SweepExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	hashes, err := s.client.ZRangeByScore(ctx, s.indexKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(cutoff.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, err
	}
	return int64(len(hashes)), s.remove(ctx, hashes)
}

func (s *RedisStore) EnforceLimit(ctx context.Context, capacity int) error {
	count, err := s.client.ZCard(ctx, s.indexKey()).Result()
	if err != nil {
		return err
	}
	excess := count - int64(capacity)
	if excess <= 0 {
		return nil
	}

	hashes, err := s.client.ZRange(ctx, s.indexKey(), 0, excess-1).Result()
	if err != nil {
		return err
	}
	return s.remove(ctx, hashes)
}

func (s *RedisStore) Count(ctx context.Context) (int64, error) {
	hashes, _, err := s.live(ctx)
	return int64(len(hashes)), err
}

func (s *RedisStore) Oldest(ctx context.Context) (*time.Time, error) {
	if _, _, err := s.live(ctx); err != nil {
		return nil, err
	}
	oldest, err := s.client.ZRangeWithScores(ctx, s.indexKey(), 0, 0).Result()
	if err != nil || len(oldest) == 0 {
		return nil, err
	}
	ts := time.UnixMilli(int64(oldest[0].Score))
	return &ts, nil
}

func (s *RedisStore) remove(ctx context.Context, hashes []string) error {
	if len(hashes) == 0 {
		return nil
	}
	members := make([]any, len(hashes))
	for i, h := range hashes {
		members[i] = h
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.entryKeys(hashes)...)
		pipe.ZRem(ctx, s.indexKey(), members...)
		return nil
	})
	return err
}

func (s *RedisStore) entryKeys(hashes []string) []string {
	keys := make([]string, len(hashes))
	for i, h := range hashes {
		keys[i] = s.entryKey(h)
	}
	return keys
}
