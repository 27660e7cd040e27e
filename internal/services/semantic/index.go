package semantic

import (
	"context"
	"time"

	"github.com/sentra-ai/diagnosis-proxy/internal/models"
)

// Query is what an Index searches with. Vector indexes use Vector; indexes
// that embed internally use Text.
type Query struct {
	Text   string
	Vector []float32
}

// Match is the nearest stored entry and its cosine similarity.
type Match struct {
	ID    string
	Entry models.SemanticEntry
	Score float64
}

// Index stores entries under deterministic IDs and answers top-1 queries.
type Index interface {
	Name() string
	// Nearest returns (nil, nil) when the index is empty.
	Nearest(ctx context.Context, q Query) (*Match, error)
	Upsert(ctx context.Context, id string, q Query, entry models.SemanticEntry) error
	Delete(ctx context.Context, id string) error
	Clear(ctx context.Context) error
	Len(ctx context.Context) (int, error)
	// Sweep removes entries stored before cutoff.
	Sweep(ctx context.Context, cutoff time.Time) (int, error)
}
