package database

import (
	"fmt"

	fiberlog "github.com/gofiber/fiber/v2/log"
)

// Migrate creates the tables for the given record models.
func (db *DB) Migrate(records ...any) error {
	if db.DB == nil {
		return fmt.Errorf("database not connected")
	}

	if db.driverName == "clickhouse" {
		fiberlog.Info("Database: running clickhouse DDL migrations")
		return runClickHouseMigrations(db.DB)
	}

	if err := db.AutoMigrate(records...); err != nil {
		return fmt.Errorf("failed to migrate %s schema: %w", db.driverName, err)
	}
	return nil
}
