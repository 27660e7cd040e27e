package circuitbreaker

import (
	"context"
	"maps"
	"sync"

	"github.com/sentra-ai/diagnosis-proxy/internal/models"
)

// MemoryStore keeps breaker state for the process lifetime.
type MemoryStore struct {
	mu       sync.Mutex
	statuses map[string]models.CircuitStatus
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{statuses: make(map[string]models.CircuitStatus)}
}

func (s *MemoryStore) Update(_ context.Context, key string, fn func(models.CircuitStatus) models.CircuitStatus) (models.CircuitStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := fn(s.statuses[key])
	s.statuses[key] = next
	return next, nil
}

func (s *MemoryStore) All(context.Context) (map[string]models.CircuitStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return maps.Clone(s.statuses), nil
}

func (s *MemoryStore) Reset(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.statuses[key] = models.CircuitStatus{}
	return nil
}

func (s *MemoryStore) ResetAll(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clear(s.statuses)
	return nil
}
