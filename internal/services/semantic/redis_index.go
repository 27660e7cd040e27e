package semantic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/sentra-ai/diagnosis-proxy/internal/models"
	"github.com/sentra-ai/diagnosis-proxy/internal/services/embedding"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
)

const (
	fieldVector = "vector"
	fieldEntry  = "entry"
)

// RedisIndex shares the vector set between instances. Each entry is a hash
// holding the vector and the JSON entry; a sorted set of IDs scored by
// creation time drives sweeping and eviction. Search is a brute-force scan.
type RedisIndex struct {
	client   *redis.Client
	prefix   string
	capacity int
}

// NewRedisIndex creates an index whose keys start with prefix.
func NewRedisIndex(client *redis.Client, prefix string, capacity int) *RedisIndex {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &RedisIndex{client: client, prefix: prefix, capacity: capacity}
}

func (r *RedisIndex) Name() string { return "redis" }

func (r *RedisIndex) recordKey(id string) string { return r.prefix + "vec:" + id }
func (r *RedisIndex) idsKey() string             { return r.prefix + "ids" }

func (r *RedisIndex) Nearest(ctx context.Context, q Query) (*Match, error) {
	if len(q.Vector) == 0 {
		return nil, errNoVector
	}

	ids, err := r.client.ZRange(ctx, r.idsKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list vectors: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	cmds := make([]*redis.SliceCmd, len(ids))
	_, err = r.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HMGet(ctx, r.recordKey(id), fieldVector, fieldEntry)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read vectors: %w", err)
	}

	var best *Match
	for i, cmd := range cmds {
		vals := cmd.Val()
		if len(vals) != 2 {
			continue
		}
		rawVec, ok1 := vals[0].(string)
		rawEntry, ok2 := vals[1].(string)
		if !ok1 || !ok2 {
			continue
		}

		var vec []float32
		if err := json.Unmarshal([]byte(rawVec), &vec); err != nil {
			fiberlog.Warnf("SemanticCache: skipping corrupt vector %s: %v", ids[i], err)
			continue
		}
		score := embedding.CosineSimilarity(q.Vector, vec)
		if best != nil && score <= best.Score {
			continue
		}

		var entry models.SemanticEntry
		if err := json.Unmarshal([]byte(rawEntry), &entry); err != nil {
			fiberlog.Warnf("SemanticCache: skipping corrupt entry %s: %v", ids[i], err)
			continue
		}
		best = &Match{ID: ids[i], Entry: entry, Score: score}
	}
	return best, nil
}

func (r *RedisIndex) Upsert(ctx context.Context, id string, q Query, entry models.SemanticEntry) error {
	if len(q.Vector) == 0 {
		return errNoVector
	}

	vec, err := json.Marshal(q.Vector)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, r.recordKey(id), fieldVector, vec, fieldEntry, payload)
		pipe.ZAdd(ctx, r.idsKey(), redis.Z{Score: float64(entry.Timestamp.UnixMilli()), Member: id})
		return nil
	})
	if err != nil {
		return err
	}
	return r.enforceCapacity(ctx)
}

func (r *RedisIndex) Delete(ctx context.Context, id string) error {
	return r.remove(ctx, []string{id})
}

func (r *RedisIndex) Clear(ctx context.Context) error {
	ids, err := r.client.ZRange(ctx, r.idsKey(), 0, -1).Result()
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, r.recordKey(id))
	}
	keys = append(keys, r.idsKey())
	return r.client.Del(ctx, keys...).Err()
}

func (r *RedisIndex) Len(ctx context.Context) (int, error) {
	n, err := r.client.ZCard(ctx, r.idsKey()).Result()
	return int(n), err
}

func (r *RedisIndex) Sweep(ctx context.Context, cutoff time.Time) (int, error) {
	ids, err := r.client.ZRangeByScore(ctx, r.idsKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: "(" + strconv.FormatInt(cutoff.UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, err
	}
	return len(ids), r.remove(ctx, ids)
}

func (r *RedisIndex) enforceCapacity(ctx context.Context) error {
	n, err := r.client.ZCard(ctx, r.idsKey()).Result()
	if err != nil {
		return err
	}
	excess := n - int64(r.capacity)
	if excess <= 0 {
		return nil
	}
	ids, err := r.client.ZRange(ctx, r.idsKey(), 0, excess-1).Result()
	if err != nil {
		return err
	}
	return r.remove(ctx, ids)
}

func (r *RedisIndex) remove(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, len(ids))
	members := make([]any, len(ids))
	for i, id := range ids {
		keys[i] = r.recordKey(id)
		members[i] = id
	}

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, keys...)
		pipe.ZRem(ctx, r.idsKey(), members...)
		return nil
	})
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}
