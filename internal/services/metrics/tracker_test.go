package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCacheTrackerSnapshot(t *testing.T) {
	tr := NewCacheTracker()

	tr.Record(SourceMiss, 2000*time.Millisecond, 0)
	tr.Record(SourceMiss, 4000*time.Millisecond, 0)
	tr.Record(SourceExact, 10*time.Millisecond, 0)
	tr.Record(SourceSemantic, 190*time.Millisecond, 0.96)
	tr.Record(SourceSemantic, 210*time.Millisecond, 0.98)

	snap := tr.Snapshot()
	assert.EqualValues(t, 5, snap.TotalRequests)
	assert.EqualValues(t, 2, snap.SemanticHits)
	assert.EqualValues(t, 1, snap.ExactHits)
	assert.EqualValues(t, 2, snap.Misses)

	assert.InDelta(t, 3000, snap.AvgMissLatency, 1e-9)
	assert.InDelta(t, 200, snap.AvgSemanticLatency, 1e-9)
	assert.InDelta(t, 10, snap.AvgExactLatency, 1e-9)
	assert.InDelta(t, 0.97, snap.AvgSimilarity, 1e-9)

	assert.InDelta(t, 0.4, snap.SemanticHitRate, 1e-9)
	assert.InDelta(t, 0.2, snap.ExactHitRate, 1e-9)
	assert.InDelta(t, 0.6, snap.TotalHitRate, 1e-9)

	// hit avg = (200*2 + 10) / 3
	assert.InDelta(t, (3000-410.0/3)/3000*100, snap.LatencyImprovement, 1e-9)
}

func TestCacheTrackerEmptyAndReset(t *testing.T) {
	tr := NewCacheTracker()
	assert.Zero(t, tr.Snapshot().TotalHitRate)

	tr.Record(SourceExact, time.Millisecond, 0)
	before := tr.Since()
	tr.Reset()

	assert.Zero(t, tr.Snapshot().TotalRequests)
	assert.False(t, tr.Since().Before(before))
}
