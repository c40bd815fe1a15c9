package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/saffronhouse/orders-backend/pkg/logger"
)

// queryLogger sends GORM's statement log through the service logger. Only
// failed and slow statements are written; record-not-found is expected and
// never logged.
type queryLogger struct {
	logg *logger.Logger
	slow time.Duration
	mode gormlogger.LogLevel
}

// NewQueryLogger returns a GORM logger backed by logg. A nil logg discards
// everything; a non-positive slow threshold disables slow-query warnings.
func NewQueryLogger(logg *logger.Logger, slow time.Duration) gormlogger.Interface {
	mode := gormlogger.Warn
	if logg == nil {
		mode = gormlogger.Silent
	}
	return &queryLogger{logg: logg, slow: slow, mode: mode}
}

func (q *queryLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	clone := *q
	if q.logg != nil {
		clone.mode = level
	}
	return &clone
}

func (q *queryLogger) Info(ctx context.Context, msg string, args ...any) {
	if q.mode >= gormlogger.Info {
		q.logg.Debug(ctx, fmt.Sprintf(msg, args...))
	}
}

func (q *queryLogger) Warn(ctx context.Context, msg string, args ...any) {
	if q.mode >= gormlogger.Warn {
		q.logg.Warn(ctx, fmt.Sprintf(msg, args...))
	}
}

func (q *queryLogger) Error(ctx context.Context, msg string, args ...any) {
	if q.mode >= gormlogger.Error {
		q.logg.Error(ctx, fmt.Sprintf(msg, args...), nil)
	}
}

func (q *queryLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if q.mode <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	failed := err != nil && !errors.Is(err, gorm.ErrRecordNotFound)
	slow := q.slow > 0 && elapsed > q.slow
	if !failed && !slow && q.mode < gormlogger.Info {
		return
	}

	sql, rows := fc()
	fields := q.logg.WithFields(ctx, map[string]any{
		"sql":        sql,
		"rows":       rows,
		"elapsed_ms": elapsed.Milliseconds(),
	})
	switch {
	case failed && q.mode >= gormlogger.Error:
		q.logg.Error(fields, "db.query_failed", err)
	case slow && q.mode >= gormlogger.Warn:
		q.logg.Warn(fields, "db.query_slow")
	case q.mode >= gormlogger.Info:
		q.logg.Debug(fields, "db.query")
	}
}
