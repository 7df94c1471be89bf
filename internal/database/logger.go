package database

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"time"

	"github.com/alex65536/tourney/internal/util/gormutil"
	"github.com/alex65536/tourney/internal/util/slogx"
	"github.com/mattn/go-colorable"
	"gorm.io/gorm/logger"
)

// sqlLogger forwards gorm diagnostics to slog. Duplicate key errors are expected on deduplicated
// inserts and are reported at debug level only.
type sqlLogger struct {
	log   *slog.Logger
	level logger.LogLevel
	slow  time.Duration
}

func newSQLLogger(srcLog *slog.Logger, o Options) logger.Interface {
	if o.Debug {
		return logger.New(
			log.New(colorable.NewColorableStdout(), "", log.LstdFlags),
			logger.Config{
				SlowThreshold:             o.SlowThreshold,
				LogLevel:                  logger.Info,
				IgnoreRecordNotFoundError: false,
				Colorful:                  true,
			},
		)
	}
	return &sqlLogger{
		log:   srcLog.With(slog.String("component", "sql")),
		level: logger.Warn,
		slow:  o.SlowThreshold,
	}
}

func (l *sqlLogger) LogMode(level logger.LogLevel) logger.Interface {
	res := *l
	res.level = level
	return &res
}

func (l *sqlLogger) Info(ctx context.Context, msg string, data ...any) {
	if l.level >= logger.Info {
		l.log.InfoContext(ctx, "gorm info", slog.String("msg", fmt.Sprintf(msg, data...)))
	}
}

func (l *sqlLogger) Warn(ctx context.Context, msg string, data ...any) {
	if l.level >= logger.Warn {
		l.log.WarnContext(ctx, "gorm warn", slog.String("msg", fmt.Sprintf(msg, data...)))
	}
}

func (l *sqlLogger) Error(ctx context.Context, msg string, data ...any) {
	if l.level >= logger.Error {
		l.log.ErrorContext(ctx, "gorm error", slog.String("msg", fmt.Sprintf(msg, data...)))
	}
}

func (l *sqlLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= logger.Silent {
		return
	}
	elapsed := time.Since(begin)
	switch {
	case err != nil && gormutil.IsDuplicate(err):
		sql, _ := fc()
		l.log.DebugContext(ctx, "duplicate key", slog.Duration("elapsed", elapsed), slog.String("sql", sql))
	case err != nil && !errors.Is(err, logger.ErrRecordNotFound) && l.level >= logger.Error:
		sql, rows := fc()
		l.log.ErrorContext(ctx, "sql error",
			slog.Duration("elapsed", elapsed),
			slog.Int64("rows", rows),
			slogx.Err(err),
			slog.String("sql", sql),
		)
	case l.slow > 0 && elapsed > l.slow && l.level >= logger.Warn:
		sql, rows := fc()
		l.log.WarnContext(ctx, "slow sql",
			slog.Duration("elapsed", elapsed),
			slog.Int64("rows", rows),
			slog.String("sql", sql),
		)
	}
}
