package database

import (
	"fmt"

	"gorm.io/gorm"
)

// runClickHouseMigrations creates tables with raw DDL; gorm's AutoMigrate
// does not cope with the clickhouse driver's column introspection.
func runClickHouseMigrations(db *gorm.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS diagnosis_cache (
			query_hash String,
			result String,
			model String,
			created_at DateTime64(3) DEFAULT now64(3)
		) ENGINE = ReplacingMergeTree(created_at)
		ORDER BY query_hash`,

		`CREATE TABLE IF NOT EXISTS diagnosis_events (
			id String,
			request_id String,
			query_hash String,
			model String,
			success UInt8,
			error_kind String,
			from_cache UInt8,
			cache_tier String,
			latency_ms Int64,
			attempts Int32,
			pinned_used UInt8,
			created_at DateTime64(3) DEFAULT now64(3)
		) ENGINE = MergeTree()
		ORDER BY (created_at, id)`,
	}

	for _, query := range queries {
		if err := db.Exec(query).Error; err != nil {
			return fmt.Errorf("clickhouse migration failed: %w", err)
		}
	}
	return nil
}
