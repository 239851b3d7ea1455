package persistence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"repokit/internal/domain/entity"
	apperrors "repokit/internal/errors"
	"repokit/internal/repository"
)

type widget struct {
	entity.Base
}

type scriptedSession struct {
	repository.Session[*widget]
	err   error
	calls int
}

func (s *scriptedSession) SaveChanges(context.Context) (int, error) {
	s.calls++
	return 0, s.err
}

func testBreaker() *gobreaker.CircuitBreaker {
	cfg := DefaultCircuitBreakerConfig("widgets")
	cfg.MinRequests = 2
	cfg.FailureThreshold = 0.5
	cfg.Timeout = time.Hour
	return NewCircuitBreaker(cfg, zap.NewNop())
}

func TestCircuitBreaker_OpensOnBackendFailures(t *testing.T) {
	cb := testBreaker()
	inner := &scriptedSession{err: errors.New("connection refused")}
	s := CircuitBreaking[*widget](cb)(inner)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := s.SaveChanges(ctx)
		require.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateOpen, cb.State())

	_, err := s.SaveChanges(ctx)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 2, inner.calls, "an open breaker fails fast")
}

func TestCircuitBreaker_IgnoresCallerErrors(t *testing.T) {
	cb := testBreaker()
	ctx := context.Background()

	conflict := &scriptedSession{err: apperrors.Conflict("VERSION_MISMATCH", "stale").Build()}
	cancelled := &scriptedSession{err: context.Canceled}
	for i := 0; i < 3; i++ {
		_, err := CircuitBreaking[*widget](cb)(conflict).SaveChanges(ctx)
		assert.True(t, apperrors.IsConflict(err))
		_, err = CircuitBreaking[*widget](cb)(cancelled).SaveChanges(ctx)
		assert.ErrorIs(t, err, context.Canceled)
	}
	assert.Equal(t, gobreaker.StateClosed, cb.State())
}
