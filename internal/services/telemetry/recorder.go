package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/sentra-ai/diagnosis-proxy/internal/models"
	"github.com/sentra-ai/diagnosis-proxy/internal/services/database"
	"github.com/sentra-ai/diagnosis-proxy/internal/services/worker"

	"github.com/google/uuid"
)

const maxRecent = 500

// Recorder persists one DiagnosisEvent per Diagnose call on the worker pool.
type Recorder struct {
	db   *database.DB
	pool *worker.Pool
	now  func() time.Time
}

// NewRecorder migrates the events table and returns a recorder.
func NewRecorder(db *database.DB, pool *worker.Pool) (*Recorder, error) {
	if err := db.Migrate(&models.DiagnosisEvent{}); err != nil {
		return nil, fmt.Errorf("failed to migrate telemetry table: %w", err)
	}
	return &Recorder{db: db, pool: pool, now: time.Now}, nil
}

// Record queues outcome for persistence. The query itself is never stored.
func (r *Recorder) Record(queryHash string, outcome models.DiagnosisOutcome) {
	event := EventFromOutcome(queryHash, outcome, r.now())
	r.pool.Submit(worker.Task{
		Name:      "telemetry",
		RequestID: event.RequestID,
		Run: func(ctx context.Context) error {
			return r.db.WithContext(ctx).Create(&event).Error
		},
	})
}

// Recent returns the newest events first.
func (r *Recorder) Recent(ctx context.Context, limit int) ([]models.DiagnosisEvent, error) {
	if limit <= 0 || limit > maxRecent {
		limit = maxRecent
	}
	var events []models.DiagnosisEvent
	err := r.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("failed to read diagnosis events: %w", err)
	}
	return events, nil
}

// EventFromOutcome maps an outcome onto its telemetry row.
func EventFromOutcome(queryHash string, outcome models.DiagnosisOutcome, at time.Time) models.DiagnosisEvent {
	meta := outcome.Metadata
	return models.DiagnosisEvent{
		ID:         uuid.NewString(),
		RequestID:  meta.RequestID,
		QueryHash:  queryHash,
		Model:      meta.Model,
		Success:    outcome.Success,
		ErrorKind:  outcome.ErrorKind,
		FromCache:  meta.FromCache,
		CacheTier:  meta.CacheTier,
		LatencyMs:  meta.LatencyMs,
		Attempts:   meta.Attempts,
		PinnedUsed: meta.PinnedModel != "" && meta.PinnedModel == meta.Model,
		CreatedAt:  at,
	}
}
