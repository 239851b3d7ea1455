// Package memory is an in-process backend. Committed rows are private copies, so
// nothing a caller does to a loaded entity is visible until it is saved.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"repokit/internal/domain/entity"
	apperrors "repokit/internal/errors"
	"repokit/internal/infrastructure/persistence/tracking"
	"repokit/internal/query"
	"repokit/internal/repository"
)

// Store holds the committed rows of one entity type in insertion order.
type Store[E entity.Entity] struct {
	mu        sync.RWMutex
	rows      map[int64]E
	order     []int64
	nextID    int64
	relations query.Relations[E]
}

// Option configures a Store.
type Option[E entity.Entity] func(*Store[E])

// WithRelation registers a loader for an includable relation.
func WithRelation[E entity.Entity](name string, loader query.RelationLoader[E]) Option[E] {
	return func(s *Store[E]) {
		s.relations[name] = loader
	}
}

func NewStore[E entity.Entity](opts ...Option[E]) *Store[E] {
	s := &Store[E]{
		rows:      make(map[int64]E),
		relations: make(query.Relations[E]),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open starts a session.
func (s *Store[E]) Open(ctx context.Context) (repository.Session[E], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &session[E]{store: s, tracker: tracking.New[E]()}, nil
}

// Len is the number of committed rows.
func (s *Store[E]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Get returns a copy of the committed row with the given id.
func (s *Store[E]) Get(id int64) (E, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.rows[id]
	return entity.Clone(e), ok
}

// All returns copies of every committed row in insertion order.
func (s *Store[E]) All() []E {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Store[E]) snapshotLocked() []E {
	out := make([]E, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, entity.Clone(s.rows[id]))
	}
	return out
}

// commit validates every change against the committed state before applying any
// of them.
func (s *Store[E]) commit(ctx context.Context, changes tracking.Changes[E], original func(E) (E, bool)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range changes.Added {
		if id := e.Audit().ID; id != 0 {
			return apperrors.Invalid("save", fmt.Sprintf("%s %d is already persisted", entity.TypeName[E](), id))
		}
	}
	check := func(e E) error {
		id := e.Audit().ID
		committed, ok := s.rows[id]
		if !ok {
			return apperrors.Conflict("ROW_MISSING", fmt.Sprintf("%s %d no longer exists", entity.TypeName[E](), id)).
				WithOperation("save").WithResource(entity.TypeName[E]()).Build()
		}
		want := e.Audit().Version
		if snap, ok := original(e); ok {
			want = snap.Audit().Version
		}
		if committed.Audit().Version != want {
			return apperrors.Conflict("VERSION_MISMATCH",
				fmt.Sprintf("%s %d was changed concurrently (version %d, expected %d)", entity.TypeName[E](), id, committed.Audit().Version, want)).
				WithOperation("save").WithResource(entity.TypeName[E]()).Build()
		}
		return nil
	}
	for _, e := range changes.Modified {
		if err := check(e); err != nil {
			return err
		}
	}
	for _, e := range changes.Removed {
		if err := check(e); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	for _, e := range changes.Added {
		s.nextID++
		b := e.Audit()
		b.ID = s.nextID
		b.Version = 1
		s.rows[b.ID] = entity.Clone(e)
		s.order = append(s.order, b.ID)
	}
	for _, e := range changes.Modified {
		e.Audit().Version++
		s.rows[e.Audit().ID] = entity.Clone(e)
	}
	for _, e := range changes.Removed {
		id := e.Audit().ID
		delete(s.rows, id)
		if i := slices.Index(s.order, id); i >= 0 {
			s.order = slices.Delete(s.order, i, i+1)
		}
	}
	return nil
}

type session[E entity.Entity] struct {
	store   *Store[E]
	tracker *tracking.Tracker[E]
}

func (s *session[E]) rows() []E {
	s.store.mu.RLock()
	defer s.store.mu.RUnlock()
	return s.store.snapshotLocked()
}

func (s *session[E]) Find(ctx context.Context, plan query.Plan[E]) ([]E, error) {
	out, err := query.Execute(ctx, plan, s.rows(), s.store.relations)
	if err != nil {
		return nil, err
	}
	if plan.Hints.Track {
		s.tracker.Track(out...)
	}
	return out, nil
}

func (s *session[E]) Count(ctx context.Context, plan query.Plan[E]) (int, error) {
	out, err := query.Execute(ctx, plan.Unpaged().WithSort(), s.rows(), s.store.relations)
	if err != nil {
		return 0, err
	}
	return len(out), nil
}

func (s *session[E]) Exists(ctx context.Context, plan query.Plan[E]) (bool, error) {
	p := plan.Unpaged().WithSort()
	p.Take = 1
	out, err := query.Execute(ctx, p, s.rows(), s.store.relations)
	if err != nil {
		return false, err
	}
	return len(out) > 0, nil
}

func (s *session[E]) Add(entities ...E) { s.tracker.Stage(entities...) }

func (s *session[E]) Remove(entities ...E) { s.tracker.Remove(entities...) }

func (s *session[E]) Modified() []E { return s.tracker.Modified() }

func (s *session[E]) SaveChanges(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := s.tracker.CheckIdentity(); err != nil {
		return 0, err
	}
	changes := s.tracker.Changes()
	if changes.Len() == 0 {
		return 0, nil
	}
	if err := s.store.commit(ctx, changes, s.tracker.Original); err != nil {
		return 0, err
	}
	s.tracker.AcceptAll()
	return changes.Len(), nil
}
