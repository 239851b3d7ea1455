package query

import (
	"context"
	"slices"

	"repokit/internal/domain/entity"
	"repokit/internal/specification"
)

// Execute applies a plan to rows in process. Backends call it for whatever they
// could not push down; rows must already be fresh copies owned by the caller.
func Execute[E entity.Entity](ctx context.Context, plan Plan[E], rows []E, relations Relations[E]) ([]E, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows = Present(rows)
	if err := relations.Load(ctx, plan.Include, rows); err != nil {
		return nil, err
	}
	rows = Filter(plan.Filter, rows)
	SortEntities(rows, plan.Sort, plan.Direction)
	return Paginate(rows, plan.Skip, plan.Take), nil
}

// Present drops absent entries. The filter tolerates absent entities, but they are
// never part of a result.
func Present[E entity.Entity](rows []E) []E {
	out := rows[:0:0]
	for _, r := range rows {
		if !entity.IsAbsent(r) {
			out = append(out, r)
		}
	}
	return out
}

// Filter keeps the rows satisfying spec, in their original order. A nil spec keeps all.
func Filter[E entity.Entity](spec *specification.Specification[E], rows []E) []E {
	out := make([]E, 0, len(rows))
	for _, r := range rows {
		if entity.IsAbsent(r) {
			continue
		}
		if spec == nil || spec.IsSatisfiedBy(r) {
			out = append(out, r)
		}
	}
	return out
}

// SortEntities orders rows by keys, primary key first, every key in the same
// direction. Ties keep their incoming order.
func SortEntities[E entity.Entity](rows []E, keys []SortKey[E], dir SortDirection) {
	if len(keys) == 0 {
		return
	}
	slices.SortStableFunc(rows, func(a, b E) int {
		for _, k := range keys {
			if c := specification.Compare(k.Value(a), k.Value(b)); c != 0 {
				if dir == Descending {
					return -c
				}
				return c
			}
		}
		return 0
	})
}

// SortValues orders values by the extracted key, stable, in one direction.
func SortValues[T any](values []T, key func(T) any, dir SortDirection) {
	slices.SortStableFunc(values, func(a, b T) int {
		c := specification.Compare(key(a), key(b))
		if dir == Descending {
			return -c
		}
		return c
	})
}

// Paginate skips then takes. Zero means "not set" for either argument; a skip past
// the end yields an empty slice.
func Paginate[T any](items []T, skip, take int) []T {
	if skip > 0 {
		if skip >= len(items) {
			return items[:0]
		}
		items = items[skip:]
	}
	if take > 0 && take < len(items) {
		items = items[:take]
	}
	return items
}
