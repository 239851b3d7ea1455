package sqlstore

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"repokit/internal/domain/entity"
	"repokit/internal/query"
	"repokit/internal/specification"
)

// Where is the pushed-down part of a specification. SQL holds '?' markers that
// bind rewrites into the dialect's placeholders.
type Where struct {
	SQL  string
	Args []any
	// Complete is true when SQL alone decides the result.
	Complete bool
	Never    bool
}

// translator renders specifications against one table.
type translator struct {
	dialect Dialect
	columns map[string]bool
	times   map[string]bool
}

// where splits top-level AND chains and pushes down every conjunct it can.
func where[E entity.Entity](t translator, spec *specification.Specification[E]) (Where, error) {
	var (
		parts    []string
		args     []any
		complete = true
	)
	for _, c := range conjuncts(spec) {
		if !pushable(t, c) {
			complete = false
			continue
		}
		cl, err := specification.Fold[E, clause](c, t)
		if errors.Is(err, specification.ErrUntranslatable) {
			complete = false
			continue
		}
		if err != nil {
			return Where{}, err
		}
		if cl.constant != nil {
			if !*cl.constant {
				return Where{Never: true, Complete: true}, nil
			}
			continue
		}
		parts = append(parts, cl.sql)
		args = append(args, cl.args...)
	}
	return Where{SQL: strings.Join(parts, " AND "), Args: args, Complete: complete}, nil
}

// pushable reports whether a conjunct has no predicates and only touches mapped columns.
func pushable[E entity.Entity](t translator, s *specification.Specification[E]) bool {
	if !s.Translatable() {
		return false
	}
	for _, c := range specification.Conditions(s) {
		if !t.columns[c.Field] {
			return false
		}
	}
	return true
}

func conjuncts[E entity.Entity](s *specification.Specification[E]) []*specification.Specification[E] {
	if s == nil {
		return nil
	}
	if s.Kind() != specification.KindAnd {
		return []*specification.Specification[E]{s}
	}
	l, r := s.Operands()
	return append(conjuncts(l), conjuncts(r)...)
}

// clause is either SQL with its arguments or a folded constant.
type clause struct {
	sql      string
	args     []any
	constant *bool
}

func constant(v bool) clause { return clause{constant: &v} }

func (translator) Constant(v bool) (clause, error) { return constant(v), nil }

func (translator) Predicate(string) (clause, error) {
	return clause{}, specification.ErrUntranslatable
}

func (translator) And(l, r clause) (clause, error) {
	switch {
	case l.constant != nil && !*l.constant, r.constant != nil && !*r.constant:
		return constant(false), nil
	case l.constant != nil:
		return r, nil
	case r.constant != nil:
		return l, nil
	}
	return clause{sql: "(" + l.sql + " AND " + r.sql + ")", args: append(append([]any(nil), l.args...), r.args...)}, nil
}

func (translator) Or(l, r clause) (clause, error) {
	switch {
	case l.constant != nil && *l.constant, r.constant != nil && *r.constant:
		return constant(true), nil
	case l.constant != nil:
		return r, nil
	case r.constant != nil:
		return l, nil
	}
	return clause{sql: "(" + l.sql + " OR " + r.sql + ")", args: append(append([]any(nil), l.args...), r.args...)}, nil
}

func (translator) Not(x clause) (clause, error) {
	if x.constant != nil {
		return constant(!*x.constant), nil
	}
	return clause{sql: "NOT " + x.sql, args: x.args}, nil
}

// Condition keeps SQL two-valued: a comparison with NULL is false, never unknown,
// so NOT behaves as it does in process.
func (t translator) Condition(c specification.Condition) (clause, error) {
	if !t.columns[c.Field] {
		return clause{}, specification.ErrUntranslatable
	}
	if !t.dialect.OrdersTime() && hasTime(c) {
		return clause{}, specification.ErrUntranslatable
	}
	col := t.dialect.Quote(c.Field)
	known := func(expr string, args ...any) (clause, error) {
		return clause{sql: "COALESCE(" + expr + ", FALSE)", args: args}, nil
	}

	switch c.Operator {
	case specification.OperatorIsNull:
		return clause{sql: col + " IS NULL"}, nil
	case specification.OperatorIsNotNull:
		return clause{sql: col + " IS NOT NULL"}, nil
	case specification.OperatorEquals:
		if specification.IsNil(c.Value) {
			return clause{sql: col + " IS NULL"}, nil
		}
		return known(col+" = ?", c.Value)
	case specification.OperatorNotEquals:
		if specification.IsNil(c.Value) {
			return clause{sql: col + " IS NOT NULL"}, nil
		}
		return known(col+" <> ?", c.Value)
	case specification.OperatorIn, specification.OperatorNotIn:
		if len(c.Values) == 0 {
			if c.Operator == specification.OperatorNotIn {
				return clause{sql: col + " IS NOT NULL"}, nil
			}
			return constant(false), nil
		}
		op := " IN ("
		if c.Operator == specification.OperatorNotIn {
			op = " NOT IN ("
		}
		marks := strings.TrimSuffix(strings.Repeat("?, ", len(c.Values)), ", ")
		return known(col+op+marks+")", c.Values...)
	}

	if specification.IsNil(c.Value) {
		return constant(false), nil
	}

	switch c.Operator {
	case specification.OperatorGreaterThan:
		return known(col+" > ?", c.Value)
	case specification.OperatorGreaterOrEqual:
		return known(col+" >= ?", c.Value)
	case specification.OperatorLessThan:
		return known(col+" < ?", c.Value)
	case specification.OperatorLessOrEqual:
		return known(col+" <= ?", c.Value)
	case specification.OperatorContains:
		s, ok := c.Value.(string)
		if !ok {
			return clause{}, specification.ErrUntranslatable
		}
		return known(t.dialect.Match(col, "?"), t.dialect.Pattern(s, false, false))
	case specification.OperatorStartsWith:
		return known(t.dialect.Match(col, "?"), t.dialect.Pattern(fmt.Sprint(c.Value), true, false))
	case specification.OperatorEndsWith:
		return known(t.dialect.Match(col, "?"), t.dialect.Pattern(fmt.Sprint(c.Value), false, true))
	}
	return clause{}, specification.ErrUntranslatable
}

func hasTime(c specification.Condition) bool {
	if _, ok := c.Value.(time.Time); ok {
		return true
	}
	for _, v := range c.Values {
		if _, ok := v.(time.Time); ok {
			return true
		}
	}
	return false
}

// orderBy renders the order stage, or reports false when it has to run in
// process. Rows tied on every key keep id order, like the in-process sort.
func orderBy[E entity.Entity](t translator, plan query.Plan[E]) (string, bool) {
	terms := make([]string, 0, len(plan.Sort)+1)
	for _, k := range plan.Sort {
		if k.Name == "" || !t.columns[k.Name] {
			return "", false
		}
		if t.times[k.Name] && !t.dialect.OrdersTime() {
			return "", false
		}
		if plan.Direction == query.Descending {
			terms = append(terms, t.dialect.Quote(k.Name)+" DESC NULLS LAST")
		} else {
			terms = append(terms, t.dialect.Quote(k.Name)+" ASC NULLS FIRST")
		}
	}
	terms = append(terms, t.dialect.Quote(columnID)+" ASC")
	return " ORDER BY " + strings.Join(terms, ", "), true
}

// bind rewrites '?' markers into numbered placeholders.
func bind(d Dialect, sql string) string {
	var b strings.Builder
	n := 0
	for _, r := range sql {
		if r == '?' {
			n++
			b.WriteString(d.Placeholder(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
