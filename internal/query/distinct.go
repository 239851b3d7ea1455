package query

import (
	"context"

	"repokit/internal/domain/entity"
	apperrors "repokit/internal/errors"
	"repokit/internal/specification"
)

// Group is one bucket of entities sharing a key.
type Group[K comparable, E entity.Entity] struct {
	Key   K
	Items []E
}

// GroupBy buckets rows by key. Groups appear in the order their first member does.
func GroupBy[K comparable, E entity.Entity](rows []E, key func(E) K) []Group[K, E] {
	index := make(map[K]int)
	groups := make([]Group[K, E], 0)
	for _, r := range rows {
		k := key(r)
		i, ok := index[k]
		if !ok {
			i = len(groups)
			index[k] = i
			groups = append(groups, Group[K, E]{Key: k})
		}
		groups[i].Items = append(groups[i].Items, r)
	}
	return groups
}

// Distinct keeps the first occurrence of every value.
func Distinct[T comparable](values []T) []T {
	seen := make(map[T]struct{}, len(values))
	out := make([]T, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// DistinctProject projects the selected entities, removes duplicates, orders the
// values themselves in opts.Direction and then applies skip and take. Sort keys in
// opts are ignored.
func DistinctProject[E entity.Entity, P comparable](ctx context.Context, src Source[E], spec *specification.Specification[E], project func(E) P, opts Options[E]) ([]P, error) {
	values, plan, err := distinctValues(ctx, OpDistinct, src, spec, project, opts)
	if err != nil {
		return nil, err
	}
	SortValues(values, func(v P) any { return v }, plan.Direction)
	return Paginate(values, opts.Skip, opts.Take), nil
}

// CountDistinct counts the distinct projected values of the selected entities.
// Sort and paging options are ignored.
func CountDistinct[E entity.Entity, P comparable](ctx context.Context, src Source[E], spec *specification.Specification[E], project func(E) P, opts Options[E]) (int, error) {
	values, _, err := distinctValues(ctx, OpCountDistinct, src, spec, project, opts)
	if err != nil {
		return 0, err
	}
	return len(values), nil
}

func distinctValues[E entity.Entity, P comparable](ctx context.Context, op string, src Source[E], spec *specification.Specification[E], project func(E) P, opts Options[E]) ([]P, Plan[E], error) {
	if project == nil {
		return nil, Plan[E]{}, apperrors.Invalid(op, "projection is nil")
	}
	plan, err := NewPlan(op, spec, opts)
	if err != nil {
		return nil, plan, err
	}
	rows, err := Fetch(ctx, src, plan.Unpaged().WithSort())
	if err != nil {
		return nil, plan, err
	}
	return Distinct(mapSlice(rows, project)), plan, nil
}

// DistinctGrouped orders the selected entities by pick, groups them by key,
// projects every group key and then applies skip and take. Because the sort runs
// before grouping, the result follows the position of each group's first member.
// A pick without accessor leaves the backend order.
func DistinctGrouped[E entity.Entity, K comparable, P any](ctx context.Context, src Source[E], spec *specification.Specification[E], key func(E) K, project func(K) P, pick SortKey[E], opts Options[E]) ([]P, error) {
	if key == nil || project == nil {
		return nil, apperrors.Invalid(OpDistinctGrouped, "group key and projection are required")
	}
	plan, err := NewPlan(OpDistinctGrouped, spec, opts)
	if err != nil {
		return nil, err
	}
	plan = plan.Unpaged().WithSort()
	if pick.Value != nil {
		plan = plan.WithSort(pick)
	}
	rows, err := Fetch(ctx, src, plan)
	if err != nil {
		return nil, err
	}
	groups := GroupBy(rows, key)
	keys := make([]K, len(groups))
	for i, g := range groups {
		keys[i] = g.Key
	}
	return mapSlice(Paginate(keys, opts.Skip, opts.Take), project), nil
}

// DistinctGroupedOptimized groups the selected entities by key, orders the distinct
// keys with keyOrder (when given) in opts.Direction, applies skip and take and
// projects what is left. Entities are never sorted, only keys.
func DistinctGroupedOptimized[E entity.Entity, K comparable, P any](ctx context.Context, src Source[E], spec *specification.Specification[E], key func(E) K, project func(K) P, keyOrder func(K) any, opts Options[E]) ([]P, error) {
	if key == nil || project == nil {
		return nil, apperrors.Invalid(OpDistinctOptimized, "group key and projection are required")
	}
	plan, err := NewPlan(OpDistinctOptimized, spec, opts)
	if err != nil {
		return nil, err
	}
	rows, err := Fetch(ctx, src, plan.Unpaged().WithSort())
	if err != nil {
		return nil, err
	}
	keys := Distinct(mapSlice(rows, key))
	if keyOrder != nil {
		SortValues(keys, keyOrder, plan.Direction)
	}
	return mapSlice(Paginate(keys, opts.Skip, opts.Take), project), nil
}

// GroupFilterProject groups the selected entities by key, passes the groups through
// transform (which may drop, reorder or trim them), projects each remaining group,
// optionally orders the projections by orderBy in opts.Direction and finally applies
// skip and take.
func GroupFilterProject[E entity.Entity, K comparable, P any](ctx context.Context, src Source[E], spec *specification.Specification[E], key func(E) K, transform func([]Group[K, E]) []Group[K, E], project func(Group[K, E]) P, orderBy func(P) any, opts Options[E]) ([]P, error) {
	if key == nil || project == nil {
		return nil, apperrors.Invalid(OpGroupFilter, "group key and projection are required")
	}
	plan, err := NewPlan(OpGroupFilter, spec, opts)
	if err != nil {
		return nil, err
	}
	rows, err := Fetch(ctx, src, plan.Unpaged().WithSort())
	if err != nil {
		return nil, err
	}
	groups := GroupBy(rows, key)
	if transform != nil {
		groups = transform(groups)
	}
	out := mapSlice(groups, project)
	if orderBy != nil {
		SortValues(out, orderBy, plan.Direction)
	}
	return Paginate(out, opts.Skip, opts.Take), nil
}
