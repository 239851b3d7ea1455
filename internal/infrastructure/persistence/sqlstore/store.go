package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"repokit/internal/domain/entity"
	"repokit/internal/infrastructure/persistence/tracking"
	"repokit/internal/query"
	"repokit/internal/repository"
)

// Store reads and writes one entity type through database/sql.
type Store[E entity.Entity] struct {
	db         *sql.DB
	dialect    Dialect
	mapper     Mapper[E]
	translator translator
	relations  query.Relations[E]
	logger     *zap.Logger
}

// Option configures a Store.
type Option[E entity.Entity] func(*Store[E])

// WithRelation registers a loader for an includable relation.
func WithRelation[E entity.Entity](name string, loader query.RelationLoader[E]) Option[E] {
	return func(s *Store[E]) {
		s.relations[name] = loader
	}
}

func WithLogger[E entity.Entity](logger *zap.Logger) Option[E] {
	return func(s *Store[E]) {
		s.logger = logger
	}
}

func NewStore[E entity.Entity](db *sql.DB, dialect Dialect, mapper Mapper[E], opts ...Option[E]) (*Store[E], error) {
	if err := mapper.validate(); err != nil {
		return nil, err
	}
	s := &Store[E]{
		db:      db,
		dialect: dialect,
		mapper:  mapper,
		translator: translator{
			dialect: dialect,
			columns: mapper.columnSet(),
			times:   mapper.timeSet(),
		},
		relations: make(query.Relations[E]),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Open starts a session.
func (s *Store[E]) Open(ctx context.Context) (repository.Session[E], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &session[E]{store: s, tracker: tracking.New[E]()}, nil
}

// Statement is a rendered query with its arguments.
type Statement struct {
	SQL  string
	Args []any
	// Pushed reports whether ordering and paging run in the database.
	Pushed bool
	// Complete reports whether the WHERE clause alone decides the filter.
	Complete bool
	Never    bool
}

func (s *Store[E]) table() string { return s.dialect.Quote(s.mapper.Table) }

func (s *Store[E]) quoted(columns []string) string {
	q := make([]string, len(columns))
	for i, c := range columns {
		q[i] = s.dialect.Quote(c)
	}
	return strings.Join(q, ", ")
}

func (s *Store[E]) whereSQL(plan query.Plan[E]) (Where, string, error) {
	w, err := where(s.translator, plan.Filter)
	if err != nil {
		return Where{}, "", err
	}
	if w.SQL == "" {
		return w, "", nil
	}
	return w, " WHERE " + w.SQL, nil
}

// SelectStatement renders the SELECT for plan.
func (s *Store[E]) SelectStatement(plan query.Plan[E]) (Statement, error) {
	w, clause, err := s.whereSQL(plan)
	if err != nil {
		return Statement{}, err
	}
	q := "SELECT " + s.quoted(s.mapper.selectColumns()) + " FROM " + s.table() + clause
	order, ok := orderBy(s.translator, plan)
	pushed := ok && w.Complete
	if pushed {
		q += order + s.dialect.Limit(plan.Skip, plan.Take)
	} else {
		q += " ORDER BY " + s.dialect.Quote(columnID) + " ASC"
	}
	return Statement{SQL: bind(s.dialect, q), Args: w.Args, Pushed: pushed, Complete: w.Complete, Never: w.Never}, nil
}

// CountStatement renders SELECT COUNT(*) for plan, ignoring order and paging.
func (s *Store[E]) CountStatement(plan query.Plan[E]) (Statement, error) {
	w, clause, err := s.whereSQL(plan)
	if err != nil {
		return Statement{}, err
	}
	q := "SELECT COUNT(*) FROM " + s.table() + clause
	return Statement{SQL: bind(s.dialect, q), Args: w.Args, Pushed: true, Complete: w.Complete, Never: w.Never}, nil
}

// ExistsStatement renders SELECT EXISTS for plan.
func (s *Store[E]) ExistsStatement(plan query.Plan[E]) (Statement, error) {
	w, clause, err := s.whereSQL(plan)
	if err != nil {
		return Statement{}, err
	}
	q := "SELECT EXISTS (SELECT 1 FROM " + s.table() + clause + ")"
	return Statement{SQL: bind(s.dialect, q), Args: w.Args, Pushed: true, Complete: w.Complete, Never: w.Never}, nil
}

func (s *Store[E]) fetch(ctx context.Context, stmt Statement) ([]E, error) {
	s.logger.Debug("Executing query", zap.String("sql", stmt.SQL), zap.Int("args", len(stmt.Args)))
	rows, err := s.db.QueryContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", s.mapper.Table, err)
	}
	defer rows.Close()

	var out []E
	for rows.Next() {
		e := entity.New[E]()
		if err := rows.Scan(s.mapper.scanTargets(e)...); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", entity.TypeName[E](), err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", s.mapper.Table, err)
	}
	return out, nil
}
