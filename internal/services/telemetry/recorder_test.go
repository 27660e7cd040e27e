package telemetry

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/sentra-ai/diagnosis-proxy/internal/models"
	"github.com/sentra-ai/diagnosis-proxy/internal/services/database"
	"github.com/sentra-ai/diagnosis-proxy/internal/services/worker"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRecorder(t *testing.T) (*Recorder, *worker.Pool) {
	t.Helper()
	db, err := database.New(models.DatabaseConfig{
		Type:         models.SQLite,
		FilePath:     filepath.Join(t.TempDir(), "events.db"),
		MaxOpenConns: 1,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	pool := worker.NewPool(1, 16)
	rec, err := NewRecorder(db, pool)
	require.NoError(t, err)
	return rec, pool
}

func TestEventFromOutcome(t *testing.T) {
	at := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	ev := EventFromOutcome("hash", models.DiagnosisOutcome{
		Success: true,
		Metadata: models.OutcomeMetadata{
			Model:       "GLM_CODING",
			PinnedModel: "GLM_CODING",
			LatencyMs:   1200,
			Attempts:    1,
			RequestID:   "req_1",
		},
	}, at)

	_, err := uuid.Parse(ev.ID)
	assert.NoError(t, err)
	assert.Equal(t, "req_1", ev.RequestID)
	assert.Equal(t, "hash", ev.QueryHash)
	assert.True(t, ev.PinnedUsed)
	assert.Equal(t, at, ev.CreatedAt)
}

func TestRecorderPersistsOnPool(t *testing.T) {
	rec, pool := newRecorder(t)

	rec.Record("h1", models.DiagnosisOutcome{Success: true, Metadata: models.OutcomeMetadata{Model: "DEEPSEEK_V3", RequestID: "a"}})
	rec.Record("h2", models.DiagnosisOutcome{
		ErrorKind: models.FailureAllModelsUnavailable,
		Metadata:  models.OutcomeMetadata{RequestID: "b"},
	})
	pool.Stop()

	events, err := rec.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, events, 2)

	byRequest := map[string]models.DiagnosisEvent{}
	for _, ev := range events {
		byRequest[ev.RequestID] = ev
	}
	assert.True(t, byRequest["a"].Success)
	assert.Equal(t, models.FailureAllModelsUnavailable, byRequest["b"].ErrorKind)
}
