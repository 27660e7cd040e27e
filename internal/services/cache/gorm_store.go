package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sentra-ai/diagnosis-proxy/internal/models"
	"github.com/sentra-ai/diagnosis-proxy/internal/services/database"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore keeps exact-cache entries in the diagnosis_cache table.
type GormStore struct {
	db *database.DB
}

// NewGormStore migrates the cache table and returns the store.
func NewGormStore(db *database.DB) (*GormStore, error) {
	if err := db.Migrate(&models.CacheRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate cache table: %w", err)
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) Name() string { return "database" }

func (s *GormStore) Get(ctx context.Context, hash string) (*models.CacheEntry, error) {
	var rec models.CacheRecord
	err := s.db.WithContext(ctx).Where("query_hash = ?", hash).Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return recordToEntry(rec)
}

func (s *GormStore) Set(ctx context.Context, entry models.CacheEntry) error {
	payload, err := json.Marshal(entry.Result)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}
	rec := models.CacheRecord{
		QueryHash: entry.QueryHash,
		Result:    string(payload),
		Model:     entry.Model,
		CreatedAt: entry.Timestamp,
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "query_hash"}},
		DoUpdates: clause.AssignmentColumns([]string{"result", "model", "created_at"}),
	}).Create(&rec).Error
}

func (s *GormStore) Delete(ctx context.Context, hash string) error {
	return s.db.WithContext(ctx).Where("query_hash = ?", hash).Delete(&models.CacheRecord{}).Error
}

func (s *GormStore) DeleteByModel(ctx context.Context, model string) (int64, error) {
	res := s.db.WithContext(ctx).Where("model = ?", model).Delete(&models.CacheRecord{})
	return res.RowsAffected, res.Error
}

func (s *GormStore) Clear(ctx context.Context) error {
	return s.db.WithContext(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&models.CacheRecord{}).Error
}

func (s *GormStore) SweepExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&models.CacheRecord{})
	return res.RowsAffected, res.Error
}

func (s *GormStore) EnforceLimit(ctx context.Context, capacity int) error {
	count, err := s.Count(ctx)
	if err != nil {
		return err
	}
	excess := int(count) - capacity
	if excess <= 0 {
		return nil
	}

	var hashes []string
	if err := s.db.WithContext(ctx).Model(&models.CacheRecord{}).
		Order("created_at ASC").Order("query_hash ASC").
		Limit(excess).Pluck("query_hash", &hashes).Error; err != nil {
		return err
	}
	return s.db.WithContext(ctx).Where("query_hash IN ?", hashes).Delete(&models.CacheRecord{}).Error
}

func (s *GormStore) Count(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.CacheRecord{}).Count(&count).Error
	return count, err
}

func (s *GormStore) Oldest(ctx context.Context) (*time.Time, error) {
	var rec models.CacheRecord
	err := s.db.WithContext(ctx).Order("created_at ASC").Take(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec.CreatedAt, nil
}

func recordToEntry(rec models.CacheRecord) (*models.CacheEntry, error) {
	var result models.ICD10Result
	if err := json.Unmarshal([]byte(rec.Result), &result); err != nil {
		return nil, fmt.Errorf("corrupt cache row %s: %w", rec.QueryHash, err)
	}
	return &models.CacheEntry{
		QueryHash: rec.QueryHash,
		Result:    result,
		Timestamp: rec.CreatedAt,
		Model:     rec.Model,
	}, nil
}
