// Package repository provides the generic repository façade over a persistence
// session: reads through the query pipeline, writes through staged changes that
// are stamped and committed atomically.
package repository

import (
	"context"

	"repokit/internal/domain/entity"
	"repokit/internal/query"
)

// Session is one unit of work against a backend. It reads through the embedded
// Source, stages additions and removals, remembers what it loaded with tracking
// enabled and commits everything at once. A session has a single writer.
type Session[E entity.Entity] interface {
	query.Source[E]

	// Add stages new entities. IDs are assigned on SaveChanges.
	Add(entities ...E)
	// Remove stages entities for deletion.
	Remove(entities ...E)
	// Modified lists tracked entities whose state differs from when they were loaded.
	Modified() []E
	// SaveChanges commits every staged change atomically and returns how many
	// entities were written. On error nothing is committed.
	SaveChanges(ctx context.Context) (int, error)
}

// Opener creates sessions.
type Opener[E entity.Entity] interface {
	Open(ctx context.Context) (Session[E], error)
}

// OpenerFunc adapts a function to Opener.
type OpenerFunc[E entity.Entity] func(ctx context.Context) (Session[E], error)

func (f OpenerFunc[E]) Open(ctx context.Context) (Session[E], error) { return f(ctx) }

// Decorator wraps a session with cross-cutting behaviour.
type Decorator[E entity.Entity] func(Session[E]) Session[E]

// Decorate returns an opener whose sessions are wrapped by decorators. The first
// decorator is the innermost.
func Decorate[E entity.Entity](opener Opener[E], decorators ...Decorator[E]) Opener[E] {
	if len(decorators) == 0 {
		return opener
	}
	return OpenerFunc[E](func(ctx context.Context) (Session[E], error) {
		s, err := opener.Open(ctx)
		if err != nil {
			return nil, err
		}
		for _, d := range decorators {
			if d != nil {
				s = d(s)
			}
		}
		return s, nil
	})
}
