package query

import (
	"context"
	"fmt"

	"repokit/internal/domain/entity"
	apperrors "repokit/internal/errors"
)

// Source is the read capability of a persistence collaborator.
//
// Find returns the entities selected by every stage of the plan. Count and Exists
// honour only the include and filter stages. Absent rows are never returned.
type Source[E entity.Entity] interface {
	Find(ctx context.Context, plan Plan[E]) ([]E, error)
	Count(ctx context.Context, plan Plan[E]) (int, error)
	Exists(ctx context.Context, plan Plan[E]) (bool, error)
}

// RelationLoader populates one relation on a batch of entities.
type RelationLoader[E entity.Entity] func(ctx context.Context, entities []E) error

// Relations maps relation names to loaders.
type Relations[E entity.Entity] map[string]RelationLoader[E]

// Check fails with InvalidArgument for names that are not registered.
func (r Relations[E]) Check(include []string) error {
	for _, name := range include {
		if _, ok := r[name]; !ok {
			return apperrors.Invalid("include", fmt.Sprintf("unknown relation %q for %s", name, entity.TypeName[E]()))
		}
	}
	return nil
}

// Load runs the loaders named in include, once each, in order.
func (r Relations[E]) Load(ctx context.Context, include []string, entities []E) error {
	if len(include) == 0 || len(entities) == 0 {
		return r.Check(include)
	}
	if err := r.Check(include); err != nil {
		return err
	}
	for _, name := range dedupe(include) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r[name](ctx, entities); err != nil {
			return fmt.Errorf("load relation %s: %w", name, err)
		}
	}
	return nil
}
