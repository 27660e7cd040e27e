package semantic

import (
	"context"
	"fmt"
	"time"

	"github.com/sentra-ai/diagnosis-proxy/internal/models"

	"github.com/botirk38/semanticcache"
	"github.com/botirk38/semanticcache/options"
	fiberlog "github.com/gofiber/fiber/v2/log"
)

// LibraryIndex delegates embedding and storage to semanticcache. It embeds
// Query.Text itself, so the cache runs it without an embedding provider.
type LibraryIndex struct {
	cache   *semanticcache.SemanticCache[string, models.SemanticEntry]
	backend models.CacheBackendType
}

// NewLibraryIndex builds a semanticcache over an LRU (memory) or redis backend
// with OpenAI embeddings.
func NewLibraryIndex(cfg models.SemanticCacheConfig, emb models.EmbeddingConfig, redisURL string) (*LibraryIndex, error) {
	if emb.Provider != "" && emb.Provider != models.ProviderOpenAI {
		return nil, fmt.Errorf("library semantic backend supports openai embeddings only, got %s", emb.Provider)
	}
	if emb.APIKey == "" {
		return nil, fmt.Errorf("embedding api_key is required for the library semantic backend")
	}

	model := emb.Model
	if model == "" {
		model = "text-embedding-3-small"
	}

	var (
		cache *semanticcache.SemanticCache[string, models.SemanticEntry]
		err   error
	)
	switch cfg.Index {
	case models.CacheBackendRedis:
		if redisURL == "" {
			return nil, fmt.Errorf("redis URL not set for redis semantic index")
		}
		cache, err = semanticcache.New(
			options.WithOpenAIProvider[string, models.SemanticEntry](emb.APIKey, model),
			options.WithRedisBackend[string, models.SemanticEntry](redisURL, 0),
		)
	case models.CacheBackendMemory, "":
		capacity := cfg.Capacity
		if capacity <= 0 {
			capacity = defaultCapacity
		}
		cache, err = semanticcache.New(
			options.WithOpenAIProvider[string, models.SemanticEntry](emb.APIKey, model),
			options.WithLRUBackend[string, models.SemanticEntry](capacity),
		)
	default:
		return nil, fmt.Errorf("unsupported semantic index: %s (supported: redis, memory)", cfg.Index)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create semantic cache: %w", err)
	}

	fiberlog.Infof("SemanticCache: library backend initialized (index=%s, model=%s)", cfg.Index, model)
	return &LibraryIndex{cache: cache, backend: cfg.Index}, nil
}

func (l *LibraryIndex) Name() string { return "library/" + string(l.backend) }

func (l *LibraryIndex) Nearest(ctx context.Context, q Query) (*Match, error) {
	match, err := l.cache.Lookup(ctx, q.Text, 0)
	if err != nil || match == nil {
		return nil, err
	}
	return &Match{Entry: match.Value, Score: float64(match.Score)}, nil
}

func (l *LibraryIndex) Upsert(ctx context.Context, id string, q Query, entry models.SemanticEntry) error {
	return l.cache.Set(ctx, id, q.Text, entry)
}

func (l *LibraryIndex) Delete(ctx context.Context, id string) error {
	return l.cache.Delete(ctx, id)
}

func (l *LibraryIndex) Clear(ctx context.Context) error {
	return l.cache.Flush(ctx)
}

func (l *LibraryIndex) Len(ctx context.Context) (int, error) {
	return l.cache.Len(ctx)
}

// Sweep is a no-op: the library cannot enumerate entries by age. Expired
// entries are still removed when a lookup lands on them.
func (l *LibraryIndex) Sweep(context.Context, time.Time) (int, error) {
	return 0, nil
}

// Close releases the library's backend connections.
func (l *LibraryIndex) Close() error {
	return l.cache.Close()
}
