package repository

import (
	"context"
	"fmt"
	"time"

	"repokit/internal/domain/entity"
	apperrors "repokit/internal/errors"
	"repokit/internal/query"
	"repokit/internal/specification"
)

// Operation names reported in errors.
const (
	OpAdd         = "add"
	OpAddRange    = "add_range"
	OpDelete      = "delete"
	OpDeleteRange = "delete_range"
	OpUpdate      = "update"
	OpUpdateRange = "update_range"
	OpSave        = "save"
)

type options struct {
	clock func() time.Time
}

// Option configures a Repository.
type Option func(*options)

// WithClock replaces the time source used for audit stamps.
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// Repository is the generic façade over sessions opened from one Opener.
// It holds no per-call state and may be shared between goroutines; every
// call runs in its own session.
type Repository[E entity.Entity] struct {
	opener Opener[E]
	clock  func() time.Time
}

// New creates a repository over opener.
func New[E entity.Entity](opener Opener[E], opts ...Option) *Repository[E] {
	o := options{clock: func() time.Time { return time.Now().UTC() }}
	for _, opt := range opts {
		opt(&o)
	}
	return &Repository[E]{opener: opener, clock: o.clock}
}

func (r *Repository[E]) open(ctx context.Context, op string) (Session[E], error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.FromContext(op, err)
	}
	s, err := r.opener.Open(ctx)
	if err != nil {
		return nil, apperrors.FromContext(op, err)
	}
	return s, nil
}

// save stamps every modified entity and commits the session.
func (r *Repository[E]) save(ctx context.Context, s Session[E]) error {
	if err := ctx.Err(); err != nil {
		return apperrors.FromContext(OpSave, err)
	}
	now := r.clock()
	for _, e := range s.Modified() {
		e.Audit().MarkUpdated(now)
	}
	if _, err := s.SaveChanges(ctx); err != nil {
		return apperrors.FromContext(OpSave, err)
	}
	return nil
}

// Add persists e and returns its assigned ID.
func (r *Repository[E]) Add(ctx context.Context, e E) (int64, error) {
	if entity.IsAbsent(e) {
		return 0, apperrors.Invalid(OpAdd, "entity is nil")
	}
	s, err := r.open(ctx, OpAdd)
	if err != nil {
		return 0, err
	}
	e.Audit().MarkCreated(r.clock())
	s.Add(e)
	if err := r.save(ctx, s); err != nil {
		return 0, err
	}
	return e.Audit().ID, nil
}

// AddRange persists all entities in one commit.
func (r *Repository[E]) AddRange(ctx context.Context, entities []E) error {
	for _, e := range entities {
		if entity.IsAbsent(e) {
			return apperrors.Invalid(OpAddRange, "entities contain nil")
		}
	}
	s, err := r.open(ctx, OpAddRange)
	if err != nil {
		return err
	}
	now := r.clock()
	for _, e := range entities {
		e.Audit().MarkCreated(now)
	}
	s.Add(entities...)
	return r.save(ctx, s)
}

// Delete removes the single entity satisfying spec. It fails with NotFound when
// nothing matches and with InvalidArgument when more than one entity does.
func (r *Repository[E]) Delete(ctx context.Context, spec *specification.Specification[E]) error {
	s, err := r.open(ctx, OpDelete)
	if err != nil {
		return err
	}
	plan, err := query.NewPlan(OpDelete, spec, query.Options[E]{Track: true, Take: 2})
	if err != nil {
		return err
	}
	rows, err := query.Fetch(ctx, s, plan)
	if err != nil {
		return err
	}
	switch len(rows) {
	case 0:
		return apperrors.EntityNotFound(OpDelete, plan.Entity, spec.Description())
	case 1:
	default:
		return apperrors.Invalid(OpDelete, "specification "+spec.Description()+" matches more than one "+plan.Entity)
	}
	s.Remove(rows[0])
	return r.save(ctx, s)
}

// DeleteRange removes every entity satisfying spec. No match is not an error.
func (r *Repository[E]) DeleteRange(ctx context.Context, spec *specification.Specification[E]) error {
	s, err := r.open(ctx, OpDeleteRange)
	if err != nil {
		return err
	}
	plan, err := query.NewPlan(OpDeleteRange, spec, query.Options[E]{Track: true})
	if err != nil {
		return err
	}
	rows, err := query.Fetch(ctx, s, plan)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	s.Remove(rows...)
	return r.save(ctx, s)
}

// Update loads the first entity satisfying spec with the relations in opts, applies
// mutate and saves. It fails with NotFound when nothing matches.
func (r *Repository[E]) Update(ctx context.Context, spec *specification.Specification[E], mutate func(E), opts query.Options[E]) error {
	if mutate == nil {
		return apperrors.Invalid(OpUpdate, "mutation is nil")
	}
	s, err := r.open(ctx, OpUpdate)
	if err != nil {
		return err
	}
	opts.Track = true
	opts.Take = 1
	plan, err := query.NewPlan(OpUpdate, spec, opts)
	if err != nil {
		return err
	}
	rows, err := query.Fetch(ctx, s, plan)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return apperrors.EntityNotFound(OpUpdate, plan.Entity, spec.Description())
	}
	loaded := rows[0]
	before := []int64{loaded.Audit().ID}
	mutate(loaded)
	if err := keepIdentity(OpUpdate, []E{loaded}, before); err != nil {
		return err
	}
	return r.save(ctx, s)
}

// UpdateRange loads every entity satisfying spec, applies mutate to the whole
// collection and saves.
func (r *Repository[E]) UpdateRange(ctx context.Context, spec *specification.Specification[E], mutate func([]E), opts query.Options[E]) error {
	if mutate == nil {
		return apperrors.Invalid(OpUpdateRange, "mutation is nil")
	}
	s, err := r.open(ctx, OpUpdateRange)
	if err != nil {
		return err
	}
	opts.Track = true
	plan, err := query.NewPlan(OpUpdateRange, spec, opts)
	if err != nil {
		return err
	}
	rows, err := query.Fetch(ctx, s, plan)
	if err != nil {
		return err
	}
	loaded := append([]E(nil), rows...)
	before := make([]int64, len(loaded))
	for i, e := range loaded {
		before[i] = e.Audit().ID
	}
	mutate(rows)
	if err := keepIdentity(OpUpdateRange, loaded, before); err != nil {
		return err
	}
	return r.save(ctx, s)
}

// keepIdentity rejects a mutation that changed the id of a loaded entity.
func keepIdentity[E entity.Entity](op string, loaded []E, before []int64) error {
	for i, e := range loaded {
		if after := e.Audit().ID; after != before[i] {
			return apperrors.Invalid(op, fmt.Sprintf("%s id changed from %d to %d", entity.TypeName[E](), before[i], after))
		}
	}
	return nil
}

// Any reports whether some entity satisfies spec.
func (r *Repository[E]) Any(ctx context.Context, spec *specification.Specification[E], opts query.Options[E]) (bool, error) {
	return read(ctx, r, query.OpAny, func(src query.Source[E]) (bool, error) {
		return query.Any(ctx, src, spec, opts)
	})
}

// Count returns how many entities satisfy spec.
func (r *Repository[E]) Count(ctx context.Context, spec *specification.Specification[E], opts query.Options[E]) (int, error) {
	return read(ctx, r, query.OpCount, func(src query.Source[E]) (int, error) {
		return query.Count(ctx, src, spec, opts)
	})
}

// FirstOrDefault returns the first entity satisfying spec in the requested order,
// or nil when there is none.
func (r *Repository[E]) FirstOrDefault(ctx context.Context, spec *specification.Specification[E], opts query.Options[E]) (E, error) {
	return read(ctx, r, query.OpFirst, func(src query.Source[E]) (E, error) {
		return query.First(ctx, src, spec, opts)
	})
}

// GetSlice returns every entity satisfying spec, sorted and paged per opts.
func (r *Repository[E]) GetSlice(ctx context.Context, spec *specification.Specification[E], opts query.Options[E]) ([]E, error) {
	return read(ctx, r, query.OpGetSlice, func(src query.Source[E]) ([]E, error) {
		return query.ToSlice(ctx, src, spec, opts)
	})
}

func read[E entity.Entity, T any](ctx context.Context, r *Repository[E], op string, fn func(query.Source[E]) (T, error)) (T, error) {
	s, err := r.open(ctx, op)
	if err != nil {
		var zero T
		return zero, err
	}
	return fn(s)
}
