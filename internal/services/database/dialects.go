package database

import (
	"fmt"
	"strings"
	"time"

	"github.com/sentra-ai/diagnosis-proxy/internal/models"

	"gorm.io/driver/clickhouse"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// poolDefaults apply when the config leaves a pool setting at zero.
type poolDefaults struct {
	maxOpen  int
	maxIdle  int
	lifetime time.Duration
}

type dialect struct {
	label      string
	driverName string
	dsn        func(models.DatabaseConfig) (string, error)
	open       func(dsn string) gorm.Dialector
	pool       poolDefaults
	// clickhouse has no transactions to wrap single writes in.
	skipDefaultTransaction bool
}

var dialects = map[models.DatabaseType]dialect{
	models.SQLite: {
		label:      "SQLite",
		driverName: "sqlite3",
		dsn:        sqliteDSN,
		open:       sqlite.Open,
		// single writer; the worker pool and request path share it
		pool: poolDefaults{maxOpen: 1, maxIdle: 1},
	},
	models.PostgreSQL: {
		label:      "PostgreSQL",
		driverName: "postgres",
		dsn:        postgresDSN,
		open:       postgres.Open,
		pool:       poolDefaults{maxOpen: 10, maxIdle: 5, lifetime: 30 * time.Minute},
	},
	models.MySQL: {
		label:      "MySQL",
		driverName: "mysql",
		dsn:        mysqlDSN,
		open:       mysql.Open,
		pool:       poolDefaults{maxOpen: 10, maxIdle: 5, lifetime: 30 * time.Minute},
	},
	models.ClickHouse: {
		label:      "ClickHouse",
		driverName: "clickhouse",
		dsn:        clickhouseDSN,
		open: func(dsn string) gorm.Dialector {
			return clickhouse.New(clickhouse.Config{
				DSN:                dsn,
				DefaultCompression: "LZ4",
			})
		},
		pool:                   poolDefaults{maxOpen: 4, maxIdle: 2, lifetime: time.Hour},
		skipDefaultTransaction: true,
	},
}

const sqlitePragmas = "_busy_timeout=5000&_journal_mode=WAL"

func sqliteDSN(cfg models.DatabaseConfig) (string, error) {
	if cfg.FilePath == "" {
		return "", fmt.Errorf("file_path is required for SQLite")
	}
	sep := "?"
	if strings.Contains(cfg.FilePath, "?") {
		sep = "&"
	}
	return cfg.FilePath + sep + sqlitePragmas, nil
}

func postgresDSN(cfg models.DatabaseConfig) (string, error) {
	if cfg.DSN != "" {
		return cfg.DSN, nil
	}
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.Username, cfg.Password, cfg.Database, sslMode), nil
}

func mysqlDSN(cfg models.DatabaseConfig) (string, error) {
	if cfg.DSN != "" {
		return cfg.DSN, nil
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
		cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database), nil
}

func clickhouseDSN(cfg models.DatabaseConfig) (string, error) {
	if cfg.DSN != "" {
		return cfg.DSN, nil
	}
	return fmt.Sprintf("clickhouse://%s:%s@%s:%d/%s",
		cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database), nil
}
