package store

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/kart-io/logger"
	gormlogger "gorm.io/gorm/logger"
)

var _ gormlogger.Interface = (*gormLogger)(nil)

// gormLogger 将 GORM 日志接入统一日志。
type gormLogger struct {
	level         gormlogger.LogLevel
	slowThreshold time.Duration
}

func newGormLogger(level gormlogger.LogLevel) *gormLogger {
	return &gormLogger{level: level, slowThreshold: 200 * time.Millisecond}
}

func (l *gormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	n := *l
	n.level = level
	return &n
}

func (l *gormLogger) Info(_ context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Info {
		logger.Infow(fmt.Sprintf(msg, data...), "component", "sqlite")
	}
}

func (l *gormLogger) Warn(_ context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Warn {
		logger.Warnw(fmt.Sprintf(msg, data...), "component", "sqlite")
	}
}

func (l *gormLogger) Error(_ context.Context, msg string, data ...interface{}) {
	if l.level >= gormlogger.Error {
		logger.Errorw(fmt.Sprintf(msg, data...), "component", "sqlite")
	}
}

func (l *gormLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	switch {
	case err != nil && l.level >= gormlogger.Error && !stderrors.Is(err, gormlogger.ErrRecordNotFound):
		sql, rows := fc()
		logger.Errorw("Database query failed",
			"error", err.Error(),
			"sql", sql,
			"rows", rows,
			"duration_ms", float64(elapsed.Nanoseconds())/1e6,
		)
	case elapsed > l.slowThreshold && l.level >= gormlogger.Warn:
		sql, rows := fc()
		logger.Warnw("Slow database query detected",
			"sql", sql,
			"rows", rows,
			"duration_ms", float64(elapsed.Nanoseconds())/1e6,
		)
	case l.level >= gormlogger.Info:
		sql, rows := fc()
		logger.Debugw("Database query executed", "sql", sql, "rows", rows)
	}
}
