// Package decorators wraps persistence sessions with cross-cutting behaviour.
// Every decorator keeps the Session contract, so they compose in any order.
package decorators

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"repokit/internal/domain/entity"
	"repokit/internal/query"
	"repokit/internal/repository"
)

// LoggingConfig controls what information is logged.
type LoggingConfig struct {
	LogRequests   bool          // Log the query plan
	LogErrors     bool          // Log failed calls
	LogTiming     bool          // Warn about calls slower than SlowThreshold
	LogLevel      zapcore.Level // Level of successful calls
	SlowThreshold time.Duration
}

func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		LogRequests:   true,
		LogErrors:     true,
		LogTiming:     true,
		LogLevel:      zapcore.DebugLevel,
		SlowThreshold: time.Second,
	}
}

// Logging returns a decorator that logs every call reaching the backend.
func Logging[E entity.Entity](logger *zap.Logger, config LoggingConfig) repository.Decorator[E] {
	named := logger.Named("session").With(zap.String("entity", entity.TypeName[E]()))
	return func(inner repository.Session[E]) repository.Session[E] {
		return &LoggingSession[E]{inner: inner, logger: named, config: config}
	}
}

// LoggingSession logs calls on the wrapped session.
type LoggingSession[E entity.Entity] struct {
	inner  repository.Session[E]
	logger *zap.Logger
	config LoggingConfig
}

func (s *LoggingSession[E]) fields(op string, plan *query.Plan[E]) []zap.Field {
	fields := []zap.Field{zap.String("operation", op)}
	if plan != nil {
		fields = append(fields, zap.String("operation_id", plan.ID))
		if s.config.LogRequests {
			fields = append(fields, zap.String("plan", plan.Explain()))
		}
	} else {
		fields = append(fields, zap.String("operation_id", uuid.NewString()))
	}
	return fields
}

func (s *LoggingSession[E]) done(start time.Time, fields []zap.Field, err error) {
	duration := time.Since(start)
	fields = append(fields, zap.Duration("duration", duration))
	if err != nil {
		if s.config.LogErrors {
			s.logger.Error("session call failed", append(fields, zap.Error(err))...)
		}
		return
	}
	level, message := s.config.LogLevel, "session call completed"
	if s.config.LogTiming && s.config.SlowThreshold > 0 && duration > s.config.SlowThreshold {
		level, message = zapcore.WarnLevel, "slow session call completed"
	}
	if ce := s.logger.Check(level, message); ce != nil {
		ce.Write(fields...)
	}
}

func (s *LoggingSession[E]) Find(ctx context.Context, plan query.Plan[E]) ([]E, error) {
	start := time.Now()
	rows, err := s.inner.Find(ctx, plan)
	s.done(start, append(s.fields("find", &plan), zap.Int("rows", len(rows))), err)
	return rows, err
}

func (s *LoggingSession[E]) Count(ctx context.Context, plan query.Plan[E]) (int, error) {
	start := time.Now()
	n, err := s.inner.Count(ctx, plan)
	s.done(start, append(s.fields("count", &plan), zap.Int("count", n)), err)
	return n, err
}

func (s *LoggingSession[E]) Exists(ctx context.Context, plan query.Plan[E]) (bool, error) {
	start := time.Now()
	ok, err := s.inner.Exists(ctx, plan)
	s.done(start, append(s.fields("exists", &plan), zap.Bool("exists", ok)), err)
	return ok, err
}

func (s *LoggingSession[E]) Add(entities ...E) { s.inner.Add(entities...) }

func (s *LoggingSession[E]) Remove(entities ...E) { s.inner.Remove(entities...) }

func (s *LoggingSession[E]) Modified() []E { return s.inner.Modified() }

func (s *LoggingSession[E]) SaveChanges(ctx context.Context) (int, error) {
	start := time.Now()
	n, err := s.inner.SaveChanges(ctx)
	s.done(start, append(s.fields("save_changes", nil), zap.Int("written", n)), err)
	return n, err
}
