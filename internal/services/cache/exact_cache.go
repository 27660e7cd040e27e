package cache

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/sentra-ai/diagnosis-proxy/internal/models"
	"github.com/sentra-ai/diagnosis-proxy/internal/utils"

	fiberlog "github.com/gofiber/fiber/v2/log"
)

const (
	defaultCapacity     = 100
	defaultTTL          = 24 * time.Hour
	defaultStoreTimeout = 2 * time.Second
)

// DurableStore is the second exact-cache tier. Get returns (nil, nil) on a
// miss. Implementations do not filter by TTL; ExactCache does.
type DurableStore interface {
	Name() string
	Get(ctx context.Context, hash string) (*models.CacheEntry, error)
	Set(ctx context.Context, entry models.CacheEntry) error
	Delete(ctx context.Context, hash string) error
	DeleteByModel(ctx context.Context, model string) (int64, error)
	Clear(ctx context.Context) error
	// SweepExpired removes entries created before cutoff.
	SweepExpired(ctx context.Context, cutoff time.Time) (int64, error)
	// EnforceLimit removes the oldest entries until at most capacity remain.
	EnforceLimit(ctx context.Context, capacity int) error
	Count(ctx context.Context) (int64, error)
	Oldest(ctx context.Context) (*time.Time, error)
}

// ExactCache answers repeated queries by normalized-text hash. Tier 1 is an
// in-process map, tier 2 an optional DurableStore. Both tiers are bounded and
// evict oldest-by-creation first. Durable errors are logged and read as misses.
type ExactCache struct {
	mu       sync.Mutex
	entries  map[string]models.CacheEntry
	durable  DurableStore
	capacity int
	ttl      time.Duration
	now      func() time.Time
}

// ExactOption customises an ExactCache.
type ExactOption func(*ExactCache)

// WithExactClock injects the time source used for timestamps and expiry.
func WithExactClock(now func() time.Time) ExactOption {
	return func(c *ExactCache) { c.now = now }
}

// NewExactCache builds the cache. durable may be nil for a memory-only cache.
func NewExactCache(cfg models.ExactCacheConfig, durable DurableStore, opts ...ExactOption) *ExactCache {
	c := &ExactCache{
		entries:  make(map[string]models.CacheEntry),
		durable:  durable,
		capacity: cfg.Capacity,
		ttl:      time.Duration(cfg.TTLSeconds) * time.Second,
		now:      time.Now,
	}
	if c.capacity <= 0 {
		c.capacity = defaultCapacity
	}
	if c.ttl <= 0 {
		c.ttl = defaultTTL
	}
	for _, opt := range opts {
		opt(c)
	}

	if durable != nil {
		fiberlog.Infof("ExactCache: initialized with %s durable tier (capacity=%d, ttl=%s)", durable.Name(), c.capacity, c.ttl)
	} else {
		fiberlog.Infof("ExactCache: initialized memory-only (capacity=%d, ttl=%s)", c.capacity, c.ttl)
	}
	return c
}

// cacheKey hashes the normalized query. Queries that normalize to nothing
// (punctuation only) have no key.
func cacheKey(query string) (string, bool) {
	if utils.NormalizeQuery(query) == "" {
		return "", false
	}
	return utils.HashQuery(query), true
}

// TTL returns the configured entry lifetime.
func (c *ExactCache) TTL() time.Duration { return c.ttl }

// Get returns a copy of the entry for query if one exists within TTL.
func (c *ExactCache) Get(ctx context.Context, query string) (*models.CacheEntry, bool) {
	hash, ok := cacheKey(query)
	if !ok {
		return nil, false
	}
	now := c.now()

	c.mu.Lock()
	entry, ok := c.entries[hash]
	if ok && !c.fresh(entry, now) {
		delete(c.entries, hash)
		ok = false
	}
	c.mu.Unlock()

	if ok {
		fiberlog.Debugf("ExactCache: memory hit %s", hash[:8])
		return cloneEntry(entry), true
	}

	if c.durable == nil {
		return nil, false
	}

	ctx, cancel := context.WithTimeout(ctx, defaultStoreTimeout)
	defer cancel()

	stored, err := c.durable.Get(ctx, hash)
	if err != nil {
		fiberlog.Errorf("ExactCache: %s lookup failed: %v", c.durable.Name(), err)
		return nil, false
	}
	if stored == nil || !c.fresh(*stored, now) {
		return nil, false
	}

	c.mu.Lock()
	c.putLocked(*stored)
	c.mu.Unlock()

	fiberlog.Debugf("ExactCache: %s hit %s, promoted to memory", c.durable.Name(), hash[:8])
	return cloneEntry(*stored), true
}

// Set stores result for query in both tiers, replacing any previous entry.
func (c *ExactCache) Set(ctx context.Context, query string, result models.ICD10Result, model string) {
	hash, ok := cacheKey(query)
	if !ok {
		fiberlog.Debug("ExactCache: query has no cacheable content, not stored")
		return
	}
	entry := models.CacheEntry{
		QueryHash: hash,
		Result:    result.Clone(),
		Timestamp: c.now(),
		Model:     model,
	}

	c.mu.Lock()
	c.putLocked(entry)
	c.mu.Unlock()

	if c.durable == nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, defaultStoreTimeout)
	defer cancel()

	if err := c.durable.Set(ctx, entry); err != nil {
		fiberlog.Errorf("ExactCache: %s write failed: %v", c.durable.Name(), err)
		return
	}
	if err := c.durable.EnforceLimit(ctx, c.capacity); err != nil {
		fiberlog.Warnf("ExactCache: %s eviction failed: %v", c.durable.Name(), err)
	}
	fiberlog.Debugf("ExactCache: stored %s (model %s)", entry.QueryHash[:8], model)
}

// Invalidate removes the entry for query, or everything when query is empty.
func (c *ExactCache) Invalidate(ctx context.Context, query string) {
	ctx, cancel := context.WithTimeout(ctx, defaultStoreTimeout)
	defer cancel()

	if query == "" {
		c.mu.Lock()
		clear(c.entries)
		c.mu.Unlock()

		if c.durable != nil {
			if err := c.durable.Clear(ctx); err != nil {
				fiberlog.Errorf("ExactCache: %s clear failed: %v", c.durable.Name(), err)
			}
		}
		fiberlog.Info("ExactCache: cleared all entries")
		return
	}

	hash, ok := cacheKey(query)
	if !ok {
		return
	}
	c.mu.Lock()
	delete(c.entries, hash)
	c.mu.Unlock()

	if c.durable != nil {
		if err := c.durable.Delete(ctx, hash); err != nil {
			fiberlog.Errorf("ExactCache: %s delete failed: %v", c.durable.Name(), err)
		}
	}
	fiberlog.Infof("ExactCache: invalidated %s", hash[:8])
}

// InvalidateByModel drops every entry produced by model.
func (c *ExactCache) InvalidateByModel(ctx context.Context, model string) {
	removed := 0
	c.mu.Lock()
	for hash, entry := range c.entries {
		if entry.Model == model {
			delete(c.entries, hash)
			removed++
		}
	}
	c.mu.Unlock()

	if c.durable != nil {
		ctx, cancel := context.WithTimeout(ctx, defaultStoreTimeout)
		defer cancel()

		n, err := c.durable.DeleteByModel(ctx, model)
		if err != nil {
			fiberlog.Errorf("ExactCache: %s model invalidation failed: %v", c.durable.Name(), err)
		}
		removed += int(n)
	}
	fiberlog.Infof("ExactCache: invalidated %d entries for model %s", removed, model)
}

// Sweep removes expired entries from both tiers. It runs at startup and from
// the maintenance scheduler.
func (c *ExactCache) Sweep(ctx context.Context) int64 {
	cutoff := c.now().Add(-c.ttl)

	var removed int64
	c.mu.Lock()
	for hash, entry := range c.entries {
		if entry.Timestamp.Before(cutoff) {
			delete(c.entries, hash)
			removed++
		}
	}
	c.mu.Unlock()

	if c.durable != nil {
		ctx, cancel := context.WithTimeout(ctx, 4*defaultStoreTimeout)
		defer cancel()

		n, err := c.durable.SweepExpired(ctx, cutoff)
		if err != nil {
			fiberlog.Errorf("ExactCache: %s sweep failed: %v", c.durable.Name(), err)
		}
		removed += n
	}

	if removed > 0 {
		fiberlog.Infof("ExactCache: swept %d expired entries", removed)
	}
	return removed
}

// Stats reports tier sizes and the oldest durable entry.
func (c *ExactCache) Stats(ctx context.Context) models.ExactCacheStats {
	c.mu.Lock()
	stats := models.ExactCacheStats{MemoryCount: len(c.entries)}
	var oldestMem *time.Time
	for _, entry := range c.entries {
		if oldestMem == nil || entry.Timestamp.Before(*oldestMem) {
			ts := entry.Timestamp
			oldestMem = &ts
		}
	}
	c.mu.Unlock()
	stats.OldestEntry = oldestMem

	if c.durable == nil {
		return stats
	}

	ctx, cancel := context.WithTimeout(ctx, defaultStoreTimeout)
	defer cancel()

	count, err := c.durable.Count(ctx)
	if err != nil {
		fiberlog.Warnf("ExactCache: %s count failed: %v", c.durable.Name(), err)
	}
	stats.DurableCount = int(count)

	oldest, err := c.durable.Oldest(ctx)
	if err != nil {
		fiberlog.Warnf("ExactCache: %s oldest lookup failed: %v", c.durable.Name(), err)
	}
	if oldest != nil && (stats.OldestEntry == nil || oldest.Before(*stats.OldestEntry)) {
		stats.OldestEntry = oldest
	}
	return stats
}

func (c *ExactCache) fresh(entry models.CacheEntry, now time.Time) bool {
	return now.Sub(entry.Timestamp) < c.ttl
}

func (c *ExactCache) putLocked(entry models.CacheEntry) {
	c.entries[entry.QueryHash] = entry
	if len(c.entries) <= c.capacity {
		return
	}

	byAge := make([]models.CacheEntry, 0, len(c.entries))
	for _, e := range c.entries {
		byAge = append(byAge, e)
	}
	slices.SortFunc(byAge, func(a, b models.CacheEntry) int {
		return cmp.Or(a.Timestamp.Compare(b.Timestamp), cmp.Compare(a.QueryHash, b.QueryHash))
	})
	for _, e := range byAge[:len(byAge)-c.capacity] {
		delete(c.entries, e.QueryHash)
	}
}

func cloneEntry(entry models.CacheEntry) *models.CacheEntry {
	entry.Result = entry.Result.Clone()
	return &entry
}
