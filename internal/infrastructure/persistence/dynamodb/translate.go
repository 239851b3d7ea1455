package dynamodb

import (
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"

	"repokit/internal/domain/entity"
	"repokit/internal/specification"
)

// maxInOperands is the DynamoDB limit for the IN comparator.
const maxInOperands = 100

// Translation is the pushed-down part of a specification. The store always
// re-applies the full specification in process, so pushing down only some
// conjuncts is safe.
type Translation struct {
	// Expression is nil when nothing could be pushed down.
	Expression *expression.Expression
	// Complete is true when the expression alone decides the result.
	Complete bool
	// Never is true when the specification can match nothing.
	Never bool
}

// Translate converts spec into a scan filter. Top-level AND chains are split so
// translatable conjuncts are pushed down even when others are not.
func Translate[E entity.Entity](spec *specification.Specification[E]) (Translation, error) {
	var (
		parts    []expression.ConditionBuilder
		complete = true
	)
	for _, c := range conjuncts(spec) {
		if !c.Translatable() {
			complete = false
			continue
		}
		f, err := specification.Fold[E, filter](c, conditionVisitor{})
		if errors.Is(err, specification.ErrUntranslatable) {
			complete = false
			continue
		}
		if err != nil {
			return Translation{}, err
		}
		if f.constant != nil {
			if !*f.constant {
				return Translation{Never: true, Complete: true}, nil
			}
			continue
		}
		parts = append(parts, f.cond)
	}
	if len(parts) == 0 {
		return Translation{Complete: complete}, nil
	}
	cond := parts[0]
	if len(parts) > 1 {
		cond = expression.And(parts[0], parts[1], parts[2:]...)
	}
	expr, err := expression.NewBuilder().WithFilter(cond).Build()
	if err != nil {
		return Translation{}, fmt.Errorf("failed to build expression: %w", err)
	}
	return Translation{Expression: &expr, Complete: complete}, nil
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

// filter is either a condition or a folded constant.
type filter struct {
	cond     expression.ConditionBuilder
	constant *bool
}

func constant(v bool) filter { return filter{constant: &v} }

type conditionVisitor struct{}

func (conditionVisitor) Constant(v bool) (filter, error) { return constant(v), nil }

func (conditionVisitor) Predicate(string) (filter, error) {
	return filter{}, specification.ErrUntranslatable
}

func (conditionVisitor) And(l, r filter) (filter, error) {
	switch {
	case l.constant != nil && !*l.constant, r.constant != nil && !*r.constant:
		return constant(false), nil
	case l.constant != nil:
		return r, nil
	case r.constant != nil:
		return l, nil
	}
	return filter{cond: expression.And(l.cond, r.cond)}, nil
}

func (conditionVisitor) Or(l, r filter) (filter, error) {
	switch {
	case l.constant != nil && *l.constant, r.constant != nil && *r.constant:
		return constant(true), nil
	case l.constant != nil:
		return r, nil
	case r.constant != nil:
		return l, nil
	}
	return filter{cond: expression.Or(l.cond, r.cond)}, nil
}

func (conditionVisitor) Not(x filter) (filter, error) {
	if x.constant != nil {
		return constant(!*x.constant), nil
	}
	return filter{cond: expression.Not(x.cond)}, nil
}

func (conditionVisitor) Condition(c specification.Condition) (filter, error) {
	name := expression.Name(c.Field)
	isNull := expression.Or(name.AttributeNotExists(), name.AttributeType(expression.Null))
	// a NULL-typed attribute is absent in process, so negations must exclude it
	present := expression.Not(isNull)

	switch c.Operator {
	case specification.OperatorIsNull:
		return filter{cond: isNull}, nil
	case specification.OperatorIsNotNull:
		return filter{cond: present}, nil
	case specification.OperatorEquals:
		if specification.IsNil(c.Value) {
			return filter{cond: isNull}, nil
		}
		return filter{cond: name.Equal(expression.Value(c.Value))}, nil
	case specification.OperatorNotEquals:
		if specification.IsNil(c.Value) {
			return filter{cond: present}, nil
		}
		return filter{cond: expression.And(present, name.NotEqual(expression.Value(c.Value)))}, nil
	}

	if specification.IsNil(c.Value) && c.Operator != specification.OperatorIn && c.Operator != specification.OperatorNotIn {
		return constant(false), nil
	}

	if _, ok := c.Value.(time.Time); ok && isRange(c.Operator) {
		// timestamps are stored as RFC 3339 text, which does not sort chronologically
		return filter{}, specification.ErrUntranslatable
	}

	switch c.Operator {
	case specification.OperatorGreaterThan:
		return filter{cond: name.GreaterThan(expression.Value(c.Value))}, nil
	case specification.OperatorGreaterOrEqual:
		return filter{cond: name.GreaterThanEqual(expression.Value(c.Value))}, nil
	case specification.OperatorLessThan:
		return filter{cond: name.LessThan(expression.Value(c.Value))}, nil
	case specification.OperatorLessOrEqual:
		return filter{cond: name.LessThanEqual(expression.Value(c.Value))}, nil
	case specification.OperatorContains:
		s, ok := c.Value.(string)
		if !ok {
			return filter{}, specification.ErrUntranslatable
		}
		return filter{cond: name.Contains(s)}, nil
	case specification.OperatorStartsWith:
		return filter{cond: name.BeginsWith(fmt.Sprint(c.Value))}, nil
	case specification.OperatorIn, specification.OperatorNotIn:
		if len(c.Values) > maxInOperands {
			return filter{}, specification.ErrUntranslatable
		}
		if len(c.Values) == 0 {
			if c.Operator == specification.OperatorNotIn {
				return filter{cond: present}, nil
			}
			return constant(false), nil
		}
		rest := make([]expression.OperandBuilder, 0, len(c.Values)-1)
		for _, v := range c.Values[1:] {
			rest = append(rest, expression.Value(v))
		}
		in := name.In(expression.Value(c.Values[0]), rest...)
		if c.Operator == specification.OperatorNotIn {
			return filter{cond: expression.And(present, expression.Not(in))}, nil
		}
		return filter{cond: in}, nil
	}
	// ends_with has no DynamoDB function
	return filter{}, specification.ErrUntranslatable
}

func isRange(op specification.Operator) bool {
	switch op {
	case specification.OperatorGreaterThan, specification.OperatorGreaterOrEqual,
		specification.OperatorLessThan, specification.OperatorLessOrEqual:
		return true
	}
	return false
}
