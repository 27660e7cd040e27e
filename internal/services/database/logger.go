package database

import (
	"context"
	"errors"
	"strings"
	"time"

	fiberlog "github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const defaultSlowQuery = 200 * time.Millisecond

// gormLogger sends gorm's output through fiberlog so database lines share
// the service's format and level.
type gormLogger struct {
	level         logger.LogLevel
	slowThreshold time.Duration
}

func newGormLogger(level string, slowQueryMs int) *gormLogger {
	slow := defaultSlowQuery
	if slowQueryMs > 0 {
		slow = time.Duration(slowQueryMs) * time.Millisecond
	}
	return &gormLogger{level: parseLogLevel(level), slowThreshold: slow}
}

func parseLogLevel(level string) logger.LogLevel {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "silent", "off":
		return logger.Silent
	case "error":
		return logger.Error
	case "info", "debug":
		return logger.Info
	default:
		return logger.Warn
	}
}

func (l *gormLogger) LogMode(level logger.LogLevel) logger.Interface {
	clone := *l
	clone.level = level
	return &clone
}

func (l *gormLogger) Info(_ context.Context, msg string, data ...any) {
	if l.level >= logger.Info {
		fiberlog.Infof("Database: "+msg, data...)
	}
}

func (l *gormLogger) Warn(_ context.Context, msg string, data ...any) {
	if l.level >= logger.Warn {
		fiberlog.Warnf("Database: "+msg, data...)
	}
}

func (l *gormLogger) Error(_ context.Context, msg string, data ...any) {
	if l.level >= logger.Error {
		fiberlog.Errorf("Database: "+msg, data...)
	}
}

// Trace reports failed and slow statements. A missing row is a cache miss,
// not an error.
func (l *gormLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= logger.Silent {
		return
	}
	elapsed := time.Since(begin)

	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && l.level >= logger.Error:
		sql, rows := fc()
		fiberlog.Errorf("Database: %v [%s rows=%d] %s", err, elapsed, rows, sql)
	case elapsed > l.slowThreshold && l.level >= logger.Warn:
		sql, rows := fc()
		fiberlog.Warnf("Database: slow query over %s [%s rows=%d] %s", l.slowThreshold, elapsed, rows, sql)
	case l.level >= logger.Info:
		sql, rows := fc()
		fiberlog.Debugf("Database: [%s rows=%d] %s", elapsed, rows, sql)
	}
}
