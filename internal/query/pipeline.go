package query

import (
	"context"

	"repokit/internal/domain/entity"
	apperrors "repokit/internal/errors"
	"repokit/internal/specification"
)

// Operation names used in plans, errors and metrics.
const (
	OpGetSlice          = "get_slice"
	OpFirst             = "first"
	OpProject           = "project"
	OpFirstProjected    = "first_projected"
	OpDistinct          = "distinct"
	OpDistinctGrouped   = "distinct_grouped"
	OpDistinctOptimized = "distinct_grouped_optimized"
	OpGroupFilter       = "group_filter_project"
	OpCount             = "count"
	OpCountDistinct     = "count_distinct"
	OpAny               = "any"
)

// Fetch runs a prepared plan against src. Context errors become Cancelled errors;
// backend errors pass through unchanged.
func Fetch[E entity.Entity](ctx context.Context, src Source[E], plan Plan[E]) ([]E, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.FromContext(plan.Operation, err)
	}
	rows, err := src.Find(ctx, plan)
	if err != nil {
		return nil, apperrors.FromContext(plan.Operation, err)
	}
	return rows, nil
}

// ToSlice returns every entity selected by spec and opts.
func ToSlice[E entity.Entity](ctx context.Context, src Source[E], spec *specification.Specification[E], opts Options[E]) ([]E, error) {
	plan, err := NewPlan(OpGetSlice, spec, opts)
	if err != nil {
		return nil, err
	}
	return Fetch(ctx, src, plan)
}

// First returns the first selected entity, or the zero value (nil) when nothing matches.
// Any Take in opts is replaced by 1.
func First[E entity.Entity](ctx context.Context, src Source[E], spec *specification.Specification[E], opts Options[E]) (E, error) {
	var zero E
	opts.Take = 1
	plan, err := NewPlan(OpFirst, spec, opts)
	if err != nil {
		return zero, err
	}
	rows, err := Fetch(ctx, src, plan)
	if err != nil || len(rows) == 0 {
		return zero, err
	}
	return rows[0], nil
}

// Project maps every selected entity through project, keeping order and duplicates.
func Project[E entity.Entity, P any](ctx context.Context, src Source[E], spec *specification.Specification[E], project func(E) P, opts Options[E]) ([]P, error) {
	if project == nil {
		return nil, apperrors.Invalid(OpProject, "projection is nil")
	}
	plan, err := NewPlan(OpProject, spec, opts)
	if err != nil {
		return nil, err
	}
	rows, err := Fetch(ctx, src, plan)
	if err != nil {
		return nil, err
	}
	return mapSlice(rows, project), nil
}

// FirstProjected projects the first selected entity. ok is false when nothing matches.
func FirstProjected[E entity.Entity, P any](ctx context.Context, src Source[E], spec *specification.Specification[E], project func(E) P, opts Options[E]) (P, bool, error) {
	var zero P
	if project == nil {
		return zero, false, apperrors.Invalid(OpFirstProjected, "projection is nil")
	}
	opts.Take = 1
	plan, err := NewPlan(OpFirstProjected, spec, opts)
	if err != nil {
		return zero, false, err
	}
	rows, err := Fetch(ctx, src, plan)
	if err != nil || len(rows) == 0 {
		return zero, false, err
	}
	return project(rows[0]), true, nil
}

// Count returns how many entities satisfy spec. Sort and paging options are ignored.
func Count[E entity.Entity](ctx context.Context, src Source[E], spec *specification.Specification[E], opts Options[E]) (int, error) {
	plan, err := NewPlan(OpCount, spec, opts)
	if err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, apperrors.FromContext(plan.Operation, err)
	}
	n, err := src.Count(ctx, plan.Unpaged().WithSort())
	if err != nil {
		return 0, apperrors.FromContext(plan.Operation, err)
	}
	return n, nil
}

// Any reports whether at least one entity satisfies spec. Sort and paging options are ignored.
func Any[E entity.Entity](ctx context.Context, src Source[E], spec *specification.Specification[E], opts Options[E]) (bool, error) {
	plan, err := NewPlan(OpAny, spec, opts)
	if err != nil {
		return false, err
	}
	if err := ctx.Err(); err != nil {
		return false, apperrors.FromContext(plan.Operation, err)
	}
	ok, err := src.Exists(ctx, plan.Unpaged().WithSort())
	if err != nil {
		return false, apperrors.FromContext(plan.Operation, err)
	}
	return ok, nil
}

func mapSlice[T, R any](in []T, fn func(T) R) []R {
	out := make([]R, len(in))
	for i, v := range in {
		out[i] = fn(v)
	}
	return out
}
