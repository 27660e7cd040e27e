package semantic

import (
	"context"
	"sync"
	"time"

	"github.com/sentra-ai/diagnosis-proxy/internal/models"
	"github.com/sentra-ai/diagnosis-proxy/internal/services/embedding"
)

type vectorRecord struct {
	vector []float32
	entry  models.SemanticEntry
}

// MemoryIndex is a brute-force cosine index held in process memory, bounded
// by capacity with oldest-first eviction.
type MemoryIndex struct {
	mu       sync.RWMutex
	records  map[string]vectorRecord
	capacity int
}

// NewMemoryIndex creates an index holding at most capacity entries.
func NewMemoryIndex(capacity int) *MemoryIndex {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &MemoryIndex{records: make(map[string]vectorRecord), capacity: capacity}
}

func (m *MemoryIndex) Name() string { return "memory" }

func (m *MemoryIndex) Nearest(_ context.Context, q Query) (*Match, error) {
	if len(q.Vector) == 0 {
		return nil, errNoVector
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var best *Match
	for id, rec := range m.records {
		score := embedding.CosineSimilarity(q.Vector, rec.vector)
		if best == nil || score > best.Score {
			best = &Match{ID: id, Entry: rec.entry, Score: score}
		}
	}
	return best, nil
}

func (m *MemoryIndex) Upsert(_ context.Context, id string, q Query, entry models.SemanticEntry) error {
	if len(q.Vector) == 0 {
		return errNoVector
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.records[id] = vectorRecord{vector: q.Vector, entry: entry}
	for len(m.records) > m.capacity {
		m.evictOldestLocked()
	}
	return nil
}

func (m *MemoryIndex) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, id)
	return nil
}

func (m *MemoryIndex) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.records)
	return nil
}

func (m *MemoryIndex) Len(context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records), nil
}

func (m *MemoryIndex) Sweep(_ context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, rec := range m.records {
		if rec.entry.Timestamp.Before(cutoff) {
			delete(m.records, id)
			removed++
		}
	}
	return removed, nil
}

func (m *MemoryIndex) evictOldestLocked() {
	var oldestID string
	var oldest time.Time
	for id, rec := range m.records {
		if oldestID == "" || rec.entry.Timestamp.Before(oldest) {
			oldestID, oldest = id, rec.entry.Timestamp
		}
	}
	delete(m.records, oldestID)
}
