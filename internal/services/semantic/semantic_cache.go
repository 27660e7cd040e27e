package semantic

import (
	"context"
	"errors"
	"time"

	"github.com/sentra-ai/diagnosis-proxy/internal/models"
	"github.com/sentra-ai/diagnosis-proxy/internal/services/embedding"
	"github.com/sentra-ai/diagnosis-proxy/internal/utils"

	fiberlog "github.com/gofiber/fiber/v2/log"
)

const (
	defaultCapacity  = 1000
	defaultThreshold = 0.95
	defaultTTL       = 24 * time.Hour
	defaultMaxChars  = 500
	indexTimeout     = 3 * time.Second
)

var errNoVector = errors.New("vector index requires an embedding")

// Item is one query/result pair for batch writes.
type Item struct {
	Query  string
	Result models.ICD10Result
	Model  string
}

// SemanticCache answers queries that are worded differently but mean the same
// thing. A hit needs similarity >= threshold and an entry younger than TTL.
// Every failure reads as a miss.
type SemanticCache struct {
	index     Index
	embedder  embedding.Provider
	threshold float64
	ttl       time.Duration
	maxChars  int
	now       func() time.Time
}

// Option customises a SemanticCache.
type Option func(*SemanticCache)

// WithClock injects the time source.
func WithClock(now func() time.Time) Option {
	return func(c *SemanticCache) { c.now = now }
}

// WithMaxChars sets the truncation length applied before embedding.
func WithMaxChars(n int) Option {
	return func(c *SemanticCache) {
		if n > 0 {
			c.maxChars = n
		}
	}
}

// New creates a cache over index. embedder may be nil only for indexes that
// embed internally (LibraryIndex).
func New(cfg models.SemanticCacheConfig, index Index, embedder embedding.Provider, opts ...Option) *SemanticCache {
	c := &SemanticCache{
		index:     index,
		embedder:  embedder,
		threshold: cfg.SemanticThreshold,
		ttl:       time.Duration(cfg.TTLSeconds) * time.Second,
		maxChars:  defaultMaxChars,
		now:       time.Now,
	}
	if c.threshold <= 0 || c.threshold > 1 {
		c.threshold = defaultThreshold
	}
	if c.ttl <= 0 {
		c.ttl = defaultTTL
	}
	for _, opt := range opts {
		opt(c)
	}

	fiberlog.Infof("SemanticCache: initialized with %s index (threshold=%.2f, ttl=%s)", index.Name(), c.threshold, c.ttl)
	return c
}

// Threshold returns the minimum similarity for a hit.
func (c *SemanticCache) Threshold() float64 { return c.threshold }

// Get returns the nearest entry when it is similar enough and fresh. An
// expired nearest entry is deleted.
func (c *SemanticCache) Get(ctx context.Context, query string) (*models.SemanticHit, bool) {
	start := time.Now()
	q, ok := c.query(ctx, query)
	if !ok {
		return nil, false
	}

	ctx, cancel := context.WithTimeout(ctx, indexTimeout)
	defer cancel()

	match, err := c.index.Nearest(ctx, q)
	if err != nil {
		fiberlog.Errorf("SemanticCache: %s search failed: %v", c.index.Name(), err)
		return nil, false
	}
	if match == nil {
		fiberlog.Debug("SemanticCache: miss, index empty")
		return nil, false
	}

	if match.Score < c.threshold {
		fiberlog.Debugf("SemanticCache: miss, similarity %.1f%% below %.0f%%", match.Score*100, c.threshold*100)
		return nil, false
	}

	if age := c.now().Sub(match.Entry.Timestamp); age > c.ttl {
		fiberlog.Debugf("SemanticCache: miss, nearest entry expired %s ago", (age - c.ttl).Round(time.Second))
		id := match.ID
		if id == "" {
			id = utils.SemanticID(utils.NormalizeForEmbedding(match.Entry.Query, c.maxChars))
		}
		if err := c.index.Delete(ctx, id); err != nil {
			fiberlog.Warnf("SemanticCache: failed to delete expired entry %s: %v", id, err)
		}
		return nil, false
	}

	fiberlog.Infof("SemanticCache: hit, similarity %.1f%% in %v", match.Score*100, time.Since(start))
	entry := match.Entry
	entry.Result = entry.Result.Clone()
	return &models.SemanticHit{Entry: entry, Similarity: match.Score}, true
}

// Set stores result under the deterministic ID of the normalized query.
func (c *SemanticCache) Set(ctx context.Context, query string, result models.ICD10Result, model string) {
	q, ok := c.query(ctx, query)
	if !ok {
		return
	}
	c.upsert(ctx, query, q, result, model)
}

// SetBatch stores several entries with a single embedding call.
func (c *SemanticCache) SetBatch(ctx context.Context, items []Item) int {
	queries := make([]Query, 0, len(items))
	kept := make([]Item, 0, len(items))
	for _, item := range items {
		text := utils.NormalizeForEmbedding(item.Query, c.maxChars)
		if text == "" {
			continue
		}
		queries = append(queries, Query{Text: text})
		kept = append(kept, item)
	}
	if len(kept) == 0 {
		return 0
	}

	if c.embedder != nil {
		texts := make([]string, len(queries))
		for i, q := range queries {
			texts[i] = q.Text
		}
		vectors, err := c.embedder.EmbedBatch(ctx, texts)
		if err != nil {
			fiberlog.Errorf("SemanticCache: batch embedding failed: %v", err)
			return 0
		}
		for i := range queries {
			queries[i].Vector = vectors[i]
		}
	}

	stored := 0
	for i, item := range kept {
		if c.upsert(ctx, item.Query, queries[i], item.Result, item.Model) {
			stored++
		}
	}
	return stored
}

// Invalidate removes the entry stored for query.
func (c *SemanticCache) Invalidate(ctx context.Context, query string) {
	id := utils.SemanticID(utils.NormalizeForEmbedding(query, c.maxChars))

	ctx, cancel := context.WithTimeout(ctx, indexTimeout)
	defer cancel()

	if err := c.index.Delete(ctx, id); err != nil {
		fiberlog.Errorf("SemanticCache: failed to invalidate %s: %v", id, err)
		return
	}
	fiberlog.Infof("SemanticCache: invalidated %s", id)
}

// Clear removes every entry.
func (c *SemanticCache) Clear(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, indexTimeout)
	defer cancel()

	if err := c.index.Clear(ctx); err != nil {
		fiberlog.Errorf("SemanticCache: clear failed: %v", err)
		return
	}
	fiberlog.Info("SemanticCache: cleared")
}

// Sweep removes entries older than TTL.
func (c *SemanticCache) Sweep(ctx context.Context) int {
	ctx, cancel := context.WithTimeout(ctx, 4*indexTimeout)
	defer cancel()

	n, err := c.index.Sweep(ctx, c.now().Add(-c.ttl))
	if err != nil {
		fiberlog.Errorf("SemanticCache: sweep failed: %v", err)
	}
	if n > 0 {
		fiberlog.Infof("SemanticCache: swept %d expired entries", n)
	}
	return n
}

// Stats reports configuration and index size.
func (c *SemanticCache) Stats(ctx context.Context) models.SemanticCacheStats {
	ctx, cancel := context.WithTimeout(ctx, indexTimeout)
	defer cancel()

	n, err := c.index.Len(ctx)
	if err != nil {
		fiberlog.Warnf("SemanticCache: failed to count entries: %v", err)
	}
	return models.SemanticCacheStats{
		Configured: true,
		Backend:    c.index.Name(),
		Entries:    n,
		Threshold:  c.threshold,
		TTLSeconds: int64(c.ttl / time.Second),
	}
}

func (c *SemanticCache) query(ctx context.Context, query string) (Query, bool) {
	text := utils.NormalizeForEmbedding(query, c.maxChars)
	if text == "" {
		return Query{}, false
	}
	q := Query{Text: text}
	if c.embedder == nil {
		return q, true
	}

	vec, err := c.embedder.Embed(ctx, text)
	if err != nil {
		fiberlog.Errorf("SemanticCache: embedding failed via %s: %v", c.embedder.Name(), err)
		return Query{}, false
	}
	q.Vector = vec
	return q, true
}

func (c *SemanticCache) upsert(ctx context.Context, original string, q Query, result models.ICD10Result, model string) bool {
	id := utils.SemanticID(q.Text)
	entry := models.SemanticEntry{
		Query:     original,
		Result:    result.Clone(),
		Model:     model,
		Timestamp: c.now(),
	}

	ctx, cancel := context.WithTimeout(ctx, indexTimeout)
	defer cancel()

	if err := c.index.Upsert(ctx, id, q, entry); err != nil {
		fiberlog.Errorf("SemanticCache: failed to store %s: %v", id, err)
		return false
	}
	fiberlog.Debugf("SemanticCache: stored %s (model %s)", id, model)
	return true
}
