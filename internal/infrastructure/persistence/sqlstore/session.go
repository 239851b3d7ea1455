package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"repokit/internal/domain/entity"
	apperrors "repokit/internal/errors"
	"repokit/internal/infrastructure/persistence/tracking"
	"repokit/internal/query"
)

type session[E entity.Entity] struct {
	store   *Store[E]
	tracker *tracking.Tracker[E]
}

func (s *session[E]) Find(ctx context.Context, plan query.Plan[E]) ([]E, error) {
	if err := s.store.relations.Check(plan.Include); err != nil {
		return nil, err
	}
	stmt, err := s.store.SelectStatement(plan)
	if err != nil {
		return nil, err
	}
	if stmt.Never {
		return []E{}, nil
	}
	rows, err := s.store.fetch(ctx, stmt)
	if err != nil {
		return nil, err
	}
	rest := plan
	if stmt.Pushed {
		rest = plan.Unpaged().WithSort()
	}
	out, err := query.Execute(ctx, rest, rows, s.store.relations)
	if err != nil {
		return nil, err
	}
	if plan.Hints.Track {
		s.tracker.Track(out...)
	}
	return out, nil
}

func (s *session[E]) Count(ctx context.Context, plan query.Plan[E]) (int, error) {
	if err := s.store.relations.Check(plan.Include); err != nil {
		return 0, err
	}
	stmt, err := s.store.CountStatement(plan)
	if err != nil {
		return 0, err
	}
	if stmt.Never {
		return 0, nil
	}
	if !stmt.Complete {
		rows, err := s.Find(ctx, plan.Unpaged().WithSort())
		return len(rows), err
	}
	var n int
	if err := s.store.db.QueryRowContext(ctx, stmt.SQL, stmt.Args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", s.store.mapper.Table, err)
	}
	return n, nil
}

func (s *session[E]) Exists(ctx context.Context, plan query.Plan[E]) (bool, error) {
	if err := s.store.relations.Check(plan.Include); err != nil {
		return false, err
	}
	stmt, err := s.store.ExistsStatement(plan)
	if err != nil {
		return false, err
	}
	if stmt.Never {
		return false, nil
	}
	if !stmt.Complete {
		p := plan.Unpaged().WithSort()
		p.Take = 1
		rows, err := s.Find(ctx, p)
		return len(rows) > 0, err
	}
	var ok bool
	if err := s.store.db.QueryRowContext(ctx, stmt.SQL, stmt.Args...).Scan(&ok); err != nil {
		return false, fmt.Errorf("failed to check %s: %w", s.store.mapper.Table, err)
	}
	return ok, nil
}

func (s *session[E]) Add(entities ...E) { s.tracker.Stage(entities...) }

func (s *session[E]) Remove(entities ...E) { s.tracker.Remove(entities...) }

func (s *session[E]) Modified() []E { return s.tracker.Modified() }

// SaveChanges writes every pending change in one transaction. Updates and deletes
// are guarded by the version the row was loaded with.
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
	for _, e := range changes.Added {
		if id := e.Audit().ID; id != 0 {
			return 0, apperrors.Invalid("save", fmt.Sprintf("%s %d is already persisted", entity.TypeName[E](), id))
		}
	}

	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	ids, err := s.write(ctx, tx, changes)
	if err != nil {
		_ = tx.Rollback()
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}

	for i, e := range changes.Added {
		e.Audit().ID = ids[i]
		e.Audit().Version = 1
	}
	for _, e := range changes.Modified {
		e.Audit().Version = s.loadedVersion(e) + 1
	}
	s.tracker.AcceptAll()

	s.store.logger.Debug("Saved changes",
		zap.String("table", s.store.mapper.Table),
		zap.Int("added", len(changes.Added)),
		zap.Int("modified", len(changes.Modified)),
		zap.Int("removed", len(changes.Removed)),
	)
	return changes.Len(), nil
}

func (s *session[E]) write(ctx context.Context, tx *sql.Tx, changes tracking.Changes[E]) ([]int64, error) {
	st := s.store
	d := st.dialect
	cols := st.mapper.writeColumns()

	insert := bind(d, fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
		st.table(), st.quoted(cols), strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", "), d.Quote(columnID)))
	ids := make([]int64, len(changes.Added))
	for i, e := range changes.Added {
		c := entity.Clone(e)
		c.Audit().Version = 1
		if err := tx.QueryRowContext(ctx, insert, st.mapper.writeValues(c)...).Scan(&ids[i]); err != nil {
			return nil, fmt.Errorf("failed to insert %s: %w", entity.TypeName[E](), err)
		}
	}

	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = d.Quote(c) + " = ?"
	}
	update := bind(d, fmt.Sprintf("UPDATE %s SET %s WHERE %s = ? AND %s = ?",
		st.table(), strings.Join(sets, ", "), d.Quote(columnID), d.Quote(columnVersion)))
	for _, e := range changes.Modified {
		c := entity.Clone(e)
		loaded := s.loadedVersion(e)
		c.Audit().Version = loaded + 1
		args := append(st.mapper.writeValues(c), c.Audit().ID, loaded)
		if err := s.expectOne(tx.ExecContext(ctx, update, args...)); err != nil {
			return nil, err
		}
	}

	del := bind(d, fmt.Sprintf("DELETE FROM %s WHERE %s = ? AND %s = ?",
		st.table(), d.Quote(columnID), d.Quote(columnVersion)))
	for _, e := range changes.Removed {
		if err := s.expectOne(tx.ExecContext(ctx, del, e.Audit().ID, s.loadedVersion(e))); err != nil {
			return nil, err
		}
	}
	return ids, nil
}

// expectOne turns a write that touched no row into a Conflict.
func (s *session[E]) expectOne(res sql.Result, err error) error {
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", entity.TypeName[E](), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", entity.TypeName[E](), err)
	}
	if n == 0 {
		return apperrors.Conflict("VERSION_MISMATCH", fmt.Sprintf("%s was changed or removed concurrently", entity.TypeName[E]())).
			WithOperation("save").
			WithResource(entity.TypeName[E]()).
			Build()
	}
	return nil
}

func (s *session[E]) loadedVersion(e E) uint32 {
	if snap, ok := s.tracker.Original(e); ok {
		return snap.Audit().Version
	}
	return e.Audit().Version
}
