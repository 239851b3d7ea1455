// Package persistence holds the resilience wrapper shared by every backend.
package persistence

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"repokit/internal/domain/entity"
	apperrors "repokit/internal/errors"
	"repokit/internal/query"
	"repokit/internal/repository"
)

// CircuitBreakerConfig holds configuration for circuit breaker
type CircuitBreakerConfig struct {
	Name        string
	MaxRequests uint32
	Interval    time.Duration
	Timeout     time.Duration
	// The breaker trips once MinRequests were seen and the failure ratio reaches FailureThreshold.
	FailureThreshold float64
	MinRequests      uint32
}

func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:             name,
		MaxRequests:      5,
		Interval:         30 * time.Second,
		Timeout:          60 * time.Second,
		FailureThreshold: 0.8,
		MinRequests:      5,
	}
}

// NewCircuitBreaker creates a breaker that only counts backend failures.
// Cancellations and classified errors such as Conflict say nothing about backend
// health.
func NewCircuitBreaker(config CircuitBreakerConfig, logger *zap.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < config.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= config.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || apperrors.IsCancelled(err) || apperrors.IsDomain(err)
		},
	})
}

// CircuitBreaking returns a decorator that routes backend calls through cb.
// When the breaker is open calls fail fast with an error wrapping
// gobreaker.ErrOpenState.
func CircuitBreaking[E entity.Entity](cb *gobreaker.CircuitBreaker) repository.Decorator[E] {
	return func(inner repository.Session[E]) repository.Session[E] {
		return &breakerSession[E]{inner: inner, cb: cb}
	}
}

type breakerSession[E entity.Entity] struct {
	inner repository.Session[E]
	cb    *gobreaker.CircuitBreaker
}

func run[T any](cb *gobreaker.CircuitBreaker, fn func() (T, error)) (T, error) {
	out, err := cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		var zero T
		return zero, fmt.Errorf("persistence unavailable (%s): %w", cb.Name(), err)
	}
	v, _ := out.(T)
	return v, err
}

func (s *breakerSession[E]) Find(ctx context.Context, plan query.Plan[E]) ([]E, error) {
	return run(s.cb, func() ([]E, error) { return s.inner.Find(ctx, plan) })
}

func (s *breakerSession[E]) Count(ctx context.Context, plan query.Plan[E]) (int, error) {
	return run(s.cb, func() (int, error) { return s.inner.Count(ctx, plan) })
}

func (s *breakerSession[E]) Exists(ctx context.Context, plan query.Plan[E]) (bool, error) {
	return run(s.cb, func() (bool, error) { return s.inner.Exists(ctx, plan) })
}

func (s *breakerSession[E]) Add(entities ...E) { s.inner.Add(entities...) }

func (s *breakerSession[E]) Remove(entities ...E) { s.inner.Remove(entities...) }

func (s *breakerSession[E]) Modified() []E { return s.inner.Modified() }

func (s *breakerSession[E]) SaveChanges(ctx context.Context) (int, error) {
	return run(s.cb, func() (int, error) { return s.inner.SaveChanges(ctx) })
}
