package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEntityNotFound(t *testing.T) {
	err := EntityNotFound("delete", "Product", "name = x")

	assert.True(t, IsNotFound(err))
	assert.False(t, IsConflict(err))
	assert.Contains(t, err.Error(), "Product")
	assert.Contains(t, err.Error(), "name = x")
	assert.Equal(t, "Product", err.Resource)
}

func TestFromContext(t *testing.T) {
	tests := []struct {
		name      string
		in        error
		cancelled bool
	}{
		{"nil", nil, false},
		{"canceled", context.Canceled, true},
		{"deadline", fmt.Errorf("scan: %w", context.DeadlineExceeded), true},
		{"other", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := FromContext("op", tt.in)
			if tt.in == nil {
				assert.NoError(t, out)
				return
			}
			assert.Equal(t, tt.cancelled, IsType(out, ErrorTypeCancelled))
			assert.ErrorIs(t, out, tt.in)
		})
	}
}

func TestFromContext_PassesThroughPersistenceErrors(t *testing.T) {
	backend := errors.New("disk on fire")
	assert.Same(t, backend, FromContext("save", backend))
}

func TestIsCancelled_RawContextError(t *testing.T) {
	assert.True(t, IsCancelled(context.Canceled))
	assert.False(t, IsCancelled(errors.New("x")))
}

func TestErrorIs_MatchesByTypeAndCode(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", Invalid("skip", "negative"))

	assert.ErrorIs(t, err, &Error{Type: ErrorTypeInvalidArgument})
	assert.ErrorIs(t, err, &Error{Type: ErrorTypeInvalidArgument, Code: "INVALID_ARGUMENT"})
	assert.NotErrorIs(t, err, &Error{Type: ErrorTypeNotFound})
	assert.True(t, IsDomain(err))
	assert.False(t, IsDomain(errors.New("plain")))
}
