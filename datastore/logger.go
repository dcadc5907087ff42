package datastore

import (
	"context"
	"log/slog"
	"time"

	"github.com/lmittmann/tint"
	"github.com/pitabwire/util"
	glogger "gorm.io/gorm/logger"

	"github.com/pitabwire/autotranslate/data"
)

// ANSI colours for the tint console handler.
const (
	colourElapsed = 214
	colourQuery   = 2
)

// queryLogger routes gorm output to the context logger. Missing records are
// an expected outcome of history lookups and are never logged as failures.
type queryLogger struct {
	log  *util.LogEntry
	all  bool
	slow time.Duration
}

func newQueryLogger(ctx context.Context, o *options) glogger.Interface {
	return &queryLogger{log: util.Log(ctx), all: o.logQueries, slow: o.slowQuery}
}

func (l *queryLogger) LogMode(glogger.LogLevel) glogger.Interface { return l }

func (l *queryLogger) Info(ctx context.Context, msg string, args ...any) {
	l.log.WithContext(ctx).Info(msg, args...)
}

func (l *queryLogger) Warn(ctx context.Context, msg string, args ...any) {
	l.log.WithContext(ctx).Warn(msg, args...)
}

func (l *queryLogger) Error(ctx context.Context, msg string, args ...any) {
	l.log.WithContext(ctx).Error(msg, args...)
}

func (l *queryLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	elapsed := time.Since(begin)
	failed := err != nil && !data.IsNotFound(err)
	slow := l.slow > 0 && elapsed > l.slow

	level := slog.LevelDebug
	switch {
	case failed:
		level = slog.LevelError
	case slow:
		level = slog.LevelWarn
	case l.all:
		level = slog.LevelInfo
	}

	log := l.log.WithContext(ctx)
	if !log.Enabled(ctx, level) {
		return
	}

	query, rows := fc()
	log = log.With(
		tint.Attr(colourElapsed, slog.Duration("elapsed", elapsed)),
		tint.Attr(colourQuery, slog.String("query", query)),
		slog.Int64("rows", rows),
	)
	defer log.Release()

	switch level {
	case slog.LevelError:
		log.WithError(err).Error("query failed")
	case slog.LevelWarn:
		log.WithField("threshold", l.slow.String()).Warn("slow query")
	case slog.LevelInfo:
		log.Info("query")
	default:
		log.Debug("query")
	}
}
