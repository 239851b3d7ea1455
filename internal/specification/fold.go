package specification

import (
	"errors"
	"fmt"

	"repokit/internal/domain/entity"
)

// ErrUntranslatable is returned by visitors that cannot express a node natively.
// Callers fall back to evaluating the specification in process.
var ErrUntranslatable = errors.New("specification cannot be translated")

// Visitor turns specification nodes into a backend representation R.
type Visitor[R any] interface {
	Constant(value bool) (R, error)
	Condition(c Condition) (R, error)
	Predicate(description string) (R, error)
	And(left, right R) (R, error)
	Or(left, right R) (R, error)
	Not(operand R) (R, error)
}

// Fold walks s bottom-up and combines the visitor results.
func Fold[E entity.Entity, R any](s *Specification[E], v Visitor[R]) (R, error) {
	var zero R
	if s == nil {
		return zero, fmt.Errorf("fold: nil specification")
	}
	switch s.kind {
	case KindTrue:
		return v.Constant(true)
	case KindFalse:
		return v.Constant(false)
	case KindCondition:
		return v.Condition(s.condition)
	case KindPredicate:
		return v.Predicate(s.Description())
	case KindNot:
		operand, err := Fold(s.left, v)
		if err != nil {
			return zero, err
		}
		return v.Not(operand)
	case KindAnd, KindOr:
		left, err := Fold(s.left, v)
		if err != nil {
			return zero, err
		}
		right, err := Fold(s.right, v)
		if err != nil {
			return zero, err
		}
		if s.kind == KindAnd {
			return v.And(left, right)
		}
		return v.Or(left, right)
	}
	return zero, fmt.Errorf("fold: unknown node %s", s.kind)
}

// Conditions lists every field condition in s, left to right.
func Conditions[E entity.Entity](s *Specification[E]) []Condition {
	if s == nil {
		return nil
	}
	switch s.kind {
	case KindCondition:
		return []Condition{s.condition}
	case KindNot:
		return Conditions(s.left)
	case KindAnd, KindOr:
		return append(Conditions(s.left), Conditions(s.right)...)
	}
	return nil
}
