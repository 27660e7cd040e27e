package database

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sentra-ai/diagnosis-proxy/internal/models"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestNewSQLiteAndMigrate(t *testing.T) {
	db, err := New(models.DatabaseConfig{
		Type:                   models.SQLite,
		FilePath:               filepath.Join(t.TempDir(), "cache.db"),
		MaxOpenConns:           1,
		ConnMaxLifetimeSeconds: 60,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	assert.Equal(t, "sqlite3", db.DriverName())
	require.NoError(t, db.Ping())
	require.NoError(t, db.Migrate(&models.CacheRecord{}, &models.DiagnosisEvent{}))

	rec := models.CacheRecord{QueryHash: "abc", Result: "{}", Model: "M", CreatedAt: time.Now()}
	require.NoError(t, db.Create(&rec).Error)

	var count int64
	require.NoError(t, db.Model(&models.CacheRecord{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestNewRejectsUnknownType(t *testing.T) {
	_, err := New(models.DatabaseConfig{Type: "oracle"})
	assert.Error(t, err)
}

func TestNewSQLiteRequiresPath(t *testing.T) {
	_, err := New(models.DatabaseConfig{Type: models.SQLite})
	assert.ErrorContains(t, err, "file_path")
}

func TestSQLitePoolDefaultsToSingleWriter(t *testing.T) {
	db, err := New(models.DatabaseConfig{Type: models.SQLite, FilePath: filepath.Join(t.TempDir(), "a.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	sqlDB, err := db.DB.DB()
	require.NoError(t, err)
	assert.Equal(t, 1, sqlDB.Stats().MaxOpenConnections)
}

func TestConfiguredPoolOverridesDefaults(t *testing.T) {
	db, err := New(models.DatabaseConfig{
		Type:         models.SQLite,
		FilePath:     filepath.Join(t.TempDir(), "b.db"),
		MaxOpenConns: 3,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	sqlDB, err := db.DB.DB()
	require.NoError(t, err)
	assert.Equal(t, 3, sqlDB.Stats().MaxOpenConnections)
}

func TestDialectDSNs(t *testing.T) {
	tests := []struct {
		name string
		cfg  models.DatabaseConfig
		want string
	}{
		{
			name: "postgres defaults sslmode",
			cfg:  models.DatabaseConfig{Type: models.PostgreSQL, Host: "db", Port: 5432, Username: "sentra", Password: "pw", Database: "sentra_db"},
			want: "host=db port=5432 user=sentra password=pw dbname=sentra_db sslmode=disable",
		},
		{
			name: "postgres explicit dsn wins",
			cfg:  models.DatabaseConfig{Type: models.PostgreSQL, DSN: "postgres://x", Host: "ignored"},
			want: "postgres://x",
		},
		{
			name: "mysql parses time",
			cfg:  models.DatabaseConfig{Type: models.MySQL, Host: "db", Port: 3306, Username: "u", Password: "p", Database: "d"},
			want: "u:p@tcp(db:3306)/d?parseTime=true",
		},
		{
			name: "clickhouse url",
			cfg:  models.DatabaseConfig{Type: models.ClickHouse, Host: "ch", Port: 9000, Username: "u", Password: "p", Database: "d"},
			want: "clickhouse://u:p@ch:9000/d",
		},
		{
			name: "sqlite pragmas",
			cfg:  models.DatabaseConfig{Type: models.SQLite, FilePath: "sentra.db"},
			want: "sentra.db?_busy_timeout=5000&_journal_mode=WAL",
		},
		{
			name: "sqlite keeps existing params",
			cfg:  models.DatabaseConfig{Type: models.SQLite, FilePath: "sentra.db?cache=shared"},
			want: "sentra.db?cache=shared&_busy_timeout=5000&_journal_mode=WAL",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := dialects[tt.cfg.Type].dsn(tt.cfg)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	fiberlog.SetOutput(&buf)
	t.Cleanup(func() { fiberlog.SetOutput(os.Stderr) })
	return &buf
}

func TestGormLoggerTrace(t *testing.T) {
	stmt := func() (string, int64) { return "SELECT * FROM diagnosis_cache", 0 }
	ctx := context.Background()

	t.Run("errors are logged", func(t *testing.T) {
		buf := captureLog(t)
		newGormLogger("warn", 0).Trace(ctx, time.Now(), stmt, errors.New("disk I/O error"))
		assert.Contains(t, buf.String(), "disk I/O error")
		assert.Contains(t, buf.String(), "diagnosis_cache")
	})

	t.Run("missing rows are not errors", func(t *testing.T) {
		buf := captureLog(t)
		newGormLogger("warn", 0).Trace(ctx, time.Now(), stmt, gorm.ErrRecordNotFound)
		assert.Empty(t, buf.String())
	})

	t.Run("slow statements warn", func(t *testing.T) {
		buf := captureLog(t)
		newGormLogger("warn", 5).Trace(ctx, time.Now().Add(-time.Second), stmt, nil)
		assert.Contains(t, buf.String(), "slow query")
	})

	t.Run("silent logs nothing", func(t *testing.T) {
		buf := captureLog(t)
		newGormLogger("silent", 5).Trace(ctx, time.Now().Add(-time.Second), stmt, errors.New("boom"))
		assert.Empty(t, buf.String())
	})
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, logger.Warn, parseLogLevel(""))
	assert.Equal(t, logger.Error, parseLogLevel("ERROR"))
	assert.Equal(t, logger.Info, parseLogLevel("debug"))
	assert.Equal(t, logger.Silent, parseLogLevel("off"))
}
