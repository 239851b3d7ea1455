// Package errors defines the error taxonomy surfaced by the repository layer.
// Persistence failures are not wrapped here; they reach the caller unchanged.
package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ============================================================================
// ERROR TYPES
// ============================================================================

// ErrorType classifies an error for handling and response mapping.
type ErrorType string

const (
	ErrorTypeNotFound        ErrorType = "NOT_FOUND"
	ErrorTypeInvalidArgument ErrorType = "INVALID_ARGUMENT"
	ErrorTypeCancelled       ErrorType = "CANCELLED"
	ErrorTypeConflict        ErrorType = "CONFLICT"
)

// Error is the single error type produced by the repository layer.
type Error struct {
	Type    ErrorType `json:"type"`
	Code    string    `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`

	Operation     string `json:"operation,omitempty"`
	Resource      string `json:"resource,omitempty"`
	Specification string `json:"specification,omitempty"`

	Cause error `json:"-"`
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s:%s] %s", e.Type, e.Code, e.Message)
	if e.Details != "" {
		b.WriteString(": ")
		b.WriteString(e.Details)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap allows errors.Is and errors.As to reach the cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches another *Error of the same type and code, so sentinel values work with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Type == e.Type && (t.Code == "" || t.Code == e.Code)
}

// ============================================================================
// BUILDER
// ============================================================================

// Builder constructs Error values fluently.
type Builder struct {
	err *Error
}

func newBuilder(t ErrorType, code, message string) *Builder {
	return &Builder{err: &Error{Type: t, Code: code, Message: message}}
}

// NotFound starts a not-found error.
func NotFound(code, message string) *Builder {
	return newBuilder(ErrorTypeNotFound, code, message)
}

// InvalidArgument starts an invalid-argument error.
func InvalidArgument(code, message string) *Builder {
	return newBuilder(ErrorTypeInvalidArgument, code, message)
}

// Cancelled starts a cancellation error.
func Cancelled(code, message string) *Builder {
	return newBuilder(ErrorTypeCancelled, code, message)
}

// Conflict starts a conflict error.
func Conflict(code, message string) *Builder {
	return newBuilder(ErrorTypeConflict, code, message)
}

func (b *Builder) WithDetails(details string) *Builder {
	b.err.Details = details
	return b
}

func (b *Builder) WithOperation(op string) *Builder {
	b.err.Operation = op
	return b
}

func (b *Builder) WithResource(resource string) *Builder {
	b.err.Resource = resource
	return b
}

func (b *Builder) WithSpecification(description string) *Builder {
	b.err.Specification = description
	return b
}

func (b *Builder) WithCause(cause error) *Builder {
	b.err.Cause = cause
	return b
}

// Build returns the constructed error.
func (b *Builder) Build() *Error {
	return b.err
}

// ============================================================================
// CONSTRUCTORS
// ============================================================================

// EntityNotFound reports that no entity of the given type satisfied the specification.
func EntityNotFound(op, entityType, specification string) *Error {
	return NotFound("ENTITY_NOT_FOUND",
		fmt.Sprintf("could not find entity %s by specification %s", entityType, specification)).
		WithOperation(op).
		WithResource(entityType).
		WithSpecification(specification).
		Build()
}

// Invalid reports a malformed request argument.
func Invalid(op, details string) *Error {
	return InvalidArgument("INVALID_ARGUMENT", "invalid argument").
		WithOperation(op).
		WithDetails(details).
		Build()
}

// FromContext converts context cancellation and deadline errors into Cancelled errors
// that still satisfy errors.Is(err, context.Canceled) and friends. Other errors,
// including persistence failures, are returned unchanged.
func FromContext(op string, err error) error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) && existing.Type == ErrorTypeCancelled {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Cancelled("OPERATION_CANCELLED", "operation cancelled").
			WithOperation(op).
			WithCause(err).
			Build()
	}
	return err
}

// ============================================================================
// CLASSIFICATION
// ============================================================================

// TypeOf returns the ErrorType of err, or "" when err is not a classified error.
func TypeOf(err error) ErrorType {
	var e *Error
	if errors.As(err, &e) {
		return e.Type
	}
	return ""
}

// IsType reports whether err carries the given type anywhere in its chain.
func IsType(err error, t ErrorType) bool {
	return TypeOf(err) == t
}

func IsNotFound(err error) bool { return IsType(err, ErrorTypeNotFound) }

func IsInvalidArgument(err error) bool { return IsType(err, ErrorTypeInvalidArgument) }

func IsConflict(err error) bool { return IsType(err, ErrorTypeConflict) }

// IsCancelled also recognises raw context errors.
func IsCancelled(err error) bool {
	if IsType(err, ErrorTypeCancelled) {
		return true
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// IsDomain reports whether err was classified by this package. Decorators use it to
// tell caller mistakes apart from backend failures.
func IsDomain(err error) bool {
	return TypeOf(err) != ""
}
