package database

import (
	"cmp"
	"fmt"

	"github.com/sentra-ai/diagnosis-proxy/internal/models"

	"gorm.io/gorm"
)

// DB wraps a gorm connection with the config it was opened from.
type DB struct {
	*gorm.DB
	config     models.DatabaseConfig
	driverName string
}

// New opens the database named by config.Type, sizes its pool and checks
// the connection.
func New(config models.DatabaseConfig) (*DB, error) {
	d, ok := dialects[config.Type]
	if !ok {
		return nil, fmt.Errorf("unsupported database type: %s", config.Type)
	}

	dsn, err := d.dsn(config)
	if err != nil {
		return nil, err
	}

	gormDB, err := gorm.Open(d.open(dsn), &gorm.Config{
		Logger:                 newGormLogger(config.LogLevel, config.SlowQueryMs),
		SkipDefaultTransaction: d.skipDefaultTransaction,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s connection: %w", d.label, err)
	}

	db := &DB{DB: gormDB, config: config, driverName: d.driverName}
	if err := db.configurePool(d.pool); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping %s: %w", d.label, err)
	}
	return db, nil
}

func (db *DB) Close() error {
	if db.DB == nil {
		return nil
	}
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (db *DB) Ping() error {
	if db.DB == nil {
		return fmt.Errorf("database not connected")
	}
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}

// DriverName is the database/sql driver behind the connection.
func (db *DB) DriverName() string {
	return db.driverName
}

// configurePool applies configured limits, falling back to the dialect's.
func (db *DB) configurePool(defaults poolDefaults) error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to access connection pool: %w", err)
	}

	maxOpen := cmp.Or(db.config.MaxOpenConns, defaults.maxOpen)
	maxIdle := min(cmp.Or(db.config.MaxIdleConns, defaults.maxIdle), maxOpen)
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxIdle)
	if lifetime := db.config.ConnMaxLifetime(); lifetime > 0 {
		sqlDB.SetConnMaxLifetime(lifetime)
	} else if defaults.lifetime > 0 {
		sqlDB.SetConnMaxLifetime(defaults.lifetime)
	}
	return nil
}
