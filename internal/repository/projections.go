package repository

import (
	"context"

	"repokit/internal/domain/entity"
	"repokit/internal/query"
	"repokit/internal/specification"
)

// Projection reads are package functions because Go methods cannot declare their
// own type parameters.

// GetProjected returns the projection of every entity satisfying spec.
func GetProjected[E entity.Entity, P any](ctx context.Context, r *Repository[E], spec *specification.Specification[E], project func(E) P, opts query.Options[E]) ([]P, error) {
	return read(ctx, r, query.OpProject, func(src query.Source[E]) ([]P, error) {
		return query.Project(ctx, src, spec, project, opts)
	})
}

// FirstProjected returns the projection of the first entity satisfying spec.
// ok is false when nothing matches.
func FirstProjected[E entity.Entity, P any](ctx context.Context, r *Repository[E], spec *specification.Specification[E], project func(E) P, opts query.Options[E]) (value P, ok bool, err error) {
	s, err := r.open(ctx, query.OpFirstProjected)
	if err != nil {
		return value, false, err
	}
	return query.FirstProjected(ctx, s, spec, project, opts)
}

// CountDistinct counts distinct projected values.
func CountDistinct[E entity.Entity, P comparable](ctx context.Context, r *Repository[E], spec *specification.Specification[E], project func(E) P, opts query.Options[E]) (int, error) {
	return read(ctx, r, query.OpCountDistinct, func(src query.Source[E]) (int, error) {
		return query.CountDistinct(ctx, src, spec, project, opts)
	})
}

// GetDistinctItems returns the distinct projected values ordered by value.
func GetDistinctItems[E entity.Entity, P comparable](ctx context.Context, r *Repository[E], spec *specification.Specification[E], project func(E) P, opts query.Options[E]) ([]P, error) {
	return read(ctx, r, query.OpDistinct, func(src query.Source[E]) ([]P, error) {
		return query.DistinctProject(ctx, src, spec, project, opts)
	})
}

// GetDistinctGroupedItems sorts by pick, groups by key and projects the group keys.
func GetDistinctGroupedItems[E entity.Entity, K comparable, P any](ctx context.Context, r *Repository[E], spec *specification.Specification[E], key func(E) K, project func(K) P, pick query.SortKey[E], opts query.Options[E]) ([]P, error) {
	return read(ctx, r, query.OpDistinctGrouped, func(src query.Source[E]) ([]P, error) {
		return query.DistinctGrouped(ctx, src, spec, key, project, pick, opts)
	})
}

// GetDistinctGroupedItemsOptimized groups by key and orders the keys afterwards.
func GetDistinctGroupedItemsOptimized[E entity.Entity, K comparable, P any](ctx context.Context, r *Repository[E], spec *specification.Specification[E], key func(E) K, project func(K) P, keyOrder func(K) any, opts query.Options[E]) ([]P, error) {
	return read(ctx, r, query.OpDistinctOptimized, func(src query.Source[E]) ([]P, error) {
		return query.DistinctGroupedOptimized(ctx, src, spec, key, project, keyOrder, opts)
	})
}

// GetGroupedItems groups by key, filters the groups with transform and projects them.
func GetGroupedItems[E entity.Entity, K comparable, P any](ctx context.Context, r *Repository[E], spec *specification.Specification[E], key func(E) K, transform func([]query.Group[K, E]) []query.Group[K, E], project func(query.Group[K, E]) P, orderBy func(P) any, opts query.Options[E]) ([]P, error) {
	return read(ctx, r, query.OpGroupFilter, func(src query.Source[E]) ([]P, error) {
		return query.GroupFilterProject(ctx, src, spec, key, transform, project, orderBy, opts)
	})
}
