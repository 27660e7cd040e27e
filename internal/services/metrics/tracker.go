package metrics

import (
	"sync"
	"time"

	"github.com/sentra-ai/diagnosis-proxy/internal/models"
)

// Source labels where a Diagnose answer came from.
type Source string

const (
	SourceExact    Source = "exact_hit"
	SourceSemantic Source = "semantic_hit"
	SourceMiss     Source = "miss"
)

// SourceFromTier maps a cache tier onto its source label.
func SourceFromTier(tier models.CacheTier) Source {
	switch tier {
	case models.CacheTierExact:
		return SourceExact
	case models.CacheTierSemantic:
		return SourceSemantic
	default:
		return SourceMiss
	}
}

// CacheTracker keeps running averages of latency per source and of semantic
// similarity, alongside the Prometheus counters.
type CacheTracker struct {
	mu sync.Mutex

	semanticHits int64
	exactHits    int64
	misses       int64

	avgSemantic   float64
	avgExact      float64
	avgMiss       float64
	avgSimilarity float64

	periodStart time.Time
}

// NewCacheTracker starts an empty tracking period.
func NewCacheTracker() *CacheTracker {
	return &CacheTracker{periodStart: time.Now()}
}

// Record notes one answered query. similarity is ignored unless source is
// SourceSemantic.
func (t *CacheTracker) Record(source Source, latency time.Duration, similarity float64) {
	ms := float64(latency.Milliseconds())

	t.mu.Lock()
	switch source {
	case SourceSemantic:
		t.semanticHits++
		t.avgSemantic = runningAvg(t.avgSemantic, ms, t.semanticHits)
		t.avgSimilarity = runningAvg(t.avgSimilarity, similarity, t.semanticHits)
	case SourceExact:
		t.exactHits++
		t.avgExact = runningAvg(t.avgExact, ms, t.exactHits)
	default:
		t.misses++
		t.avgMiss = runningAvg(t.avgMiss, ms, t.misses)
	}
	t.mu.Unlock()

	DiagnosisDuration.WithLabelValues(string(source)).Observe(latency.Seconds())
	if source == SourceSemantic {
		SemanticSimilarity.Observe(similarity)
	}
}

// Snapshot returns counters plus derived hit rates and the latency saved by
// hits relative to misses, as a percentage.
func (t *CacheTracker) Snapshot() models.CacheMetricsSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	total := t.semanticHits + t.exactHits + t.misses
	snap := models.CacheMetricsSnapshot{
		SemanticHits:       t.semanticHits,
		ExactHits:          t.exactHits,
		Misses:             t.misses,
		TotalRequests:      total,
		AvgSemanticLatency: t.avgSemantic,
		AvgExactLatency:    t.avgExact,
		AvgMissLatency:     t.avgMiss,
		AvgSimilarity:      t.avgSimilarity,
	}
	if total == 0 {
		return snap
	}

	hits := t.semanticHits + t.exactHits
	snap.SemanticHitRate = float64(t.semanticHits) / float64(total)
	snap.ExactHitRate = float64(t.exactHits) / float64(total)
	snap.TotalHitRate = float64(hits) / float64(total)

	if hits > 0 && t.avgMiss > 0 {
		avgHit := (t.avgSemantic*float64(t.semanticHits) + t.avgExact*float64(t.exactHits)) / float64(hits)
		snap.LatencyImprovement = (t.avgMiss - avgHit) / t.avgMiss * 100
	}
	return snap
}

// Reset starts a new tracking period.
func (t *CacheTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.semanticHits, t.exactHits, t.misses = 0, 0, 0
	t.avgSemantic, t.avgExact, t.avgMiss, t.avgSimilarity = 0, 0, 0, 0
	t.periodStart = time.Now()
}

// Since reports when the current period began.
func (t *CacheTracker) Since() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.periodStart
}

func runningAvg(avg, value float64, n int64) float64 {
	return avg + (value-avg)/float64(n)
}
