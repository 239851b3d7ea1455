// Package specification implements composable, reusable filter conditions over an
// entity type. A specification is an immutable tree: leaves are field conditions or
// opaque predicates, inner nodes are AND, OR and NOT. The same tree is evaluated in
// process by IsSatisfiedBy and translated into backend queries through Fold.
package specification

import (
	"fmt"

	"repokit/internal/domain/entity"
)

// Kind identifies the node type of a specification tree.
type Kind uint8

const (
	KindTrue Kind = iota
	KindFalse
	KindCondition
	KindPredicate
	KindAnd
	KindOr
	KindNot
)

func (k Kind) String() string {
	switch k {
	case KindTrue:
		return "true"
	case KindFalse:
		return "false"
	case KindCondition:
		return "condition"
	case KindPredicate:
		return "predicate"
	case KindAnd:
		return "and"
	case KindOr:
		return "or"
	case KindNot:
		return "not"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Specification is a named condition over entities of type E.
// Values are immutable; every combinator returns a new node and shares its operands.
type Specification[E entity.Entity] struct {
	kind      Kind
	condition Condition
	get       func(E) any
	predicate func(E) bool
	left      *Specification[E]
	right     *Specification[E]
	label     string
}

// True is satisfied by every entity.
func True[E entity.Entity]() *Specification[E] {
	return &Specification[E]{kind: KindTrue}
}

// False is satisfied by no entity.
func False[E entity.Entity]() *Specification[E] {
	return &Specification[E]{kind: KindFalse}
}

// Predicate wraps an arbitrary Go predicate. Backends cannot translate it, so any
// query containing one is filtered in process. The predicate is never called with
// an absent entity.
func Predicate[E entity.Entity](description string, match func(E) bool) *Specification[E] {
	return &Specification[E]{kind: KindPredicate, predicate: match, label: description}
}

func newCondition[E entity.Entity](get func(E) any, c Condition) *Specification[E] {
	return &Specification[E]{kind: KindCondition, condition: c, get: get}
}

// And is satisfied when both operands are.
func And[E entity.Entity](left, right *Specification[E]) *Specification[E] {
	return &Specification[E]{kind: KindAnd, left: left, right: right}
}

// Or is satisfied when at least one operand is.
func Or[E entity.Entity](left, right *Specification[E]) *Specification[E] {
	return &Specification[E]{kind: KindOr, left: left, right: right}
}

// Not is satisfied when the operand is not.
func Not[E entity.Entity](operand *Specification[E]) *Specification[E] {
	return &Specification[E]{kind: KindNot, left: operand}
}

// AllOf folds specs with AND. An empty list is True.
func AllOf[E entity.Entity](specs ...*Specification[E]) *Specification[E] {
	if len(specs) == 0 {
		return True[E]()
	}
	result := specs[0]
	for _, s := range specs[1:] {
		result = And(result, s)
	}
	return result
}

// AnyOf folds specs with OR. An empty list is False.
func AnyOf[E entity.Entity](specs ...*Specification[E]) *Specification[E] {
	if len(specs) == 0 {
		return False[E]()
	}
	result := specs[0]
	for _, s := range specs[1:] {
		result = Or(result, s)
	}
	return result
}

func (s *Specification[E]) And(other *Specification[E]) *Specification[E] { return And(s, other) }

func (s *Specification[E]) Or(other *Specification[E]) *Specification[E] { return Or(s, other) }

func (s *Specification[E]) Not() *Specification[E] { return Not(s) }

// Named returns a copy of s that describes itself with label.
func (s *Specification[E]) Named(label string) *Specification[E] {
	c := *s
	c.label = label
	return &c
}

func (s *Specification[E]) Kind() Kind { return s.kind }

// Condition returns the field condition of a condition leaf.
func (s *Specification[E]) Condition() (Condition, bool) {
	return s.condition, s.kind == KindCondition
}

// Operands returns the children of a composite node. Not has only a left operand.
func (s *Specification[E]) Operands() (left, right *Specification[E]) {
	return s.left, s.right
}

// IsSatisfiedBy evaluates the specification against e. It is total: an absent
// entity never panics; predicates report false for it and conditions see a nil
// field value. A nil operand of And or Or is absent and the other operand
// decides; a nil specification, or Not of one, is satisfied by nothing.
func (s *Specification[E]) IsSatisfiedBy(e E) bool {
	if s == nil {
		return false
	}
	switch s.kind {
	case KindTrue:
		return true
	case KindFalse:
		return false
	case KindCondition:
		var v any
		if !entity.IsAbsent(e) && s.get != nil {
			v = s.get(e)
		}
		return s.condition.Matches(v)
	case KindPredicate:
		if entity.IsAbsent(e) || s.predicate == nil {
			return false
		}
		return s.predicate(e)
	case KindAnd:
		switch {
		case s.left == nil:
			return s.right.IsSatisfiedBy(e)
		case s.right == nil:
			return s.left.IsSatisfiedBy(e)
		}
		return s.left.IsSatisfiedBy(e) && s.right.IsSatisfiedBy(e)
	case KindOr:
		switch {
		case s.left == nil:
			return s.right.IsSatisfiedBy(e)
		case s.right == nil:
			return s.left.IsSatisfiedBy(e)
		}
		return s.left.IsSatisfiedBy(e) || s.right.IsSatisfiedBy(e)
	case KindNot:
		if s.left == nil {
			return false
		}
		return !s.left.IsSatisfiedBy(e)
	}
	return false
}

// Description renders the tree for diagnostics, e.g. "(name = a AND NOT price > 10)".
func (s *Specification[E]) Description() string {
	if s == nil {
		return "<nil>"
	}
	if s.label != "" {
		return s.label
	}
	switch s.kind {
	case KindTrue:
		return "TRUE"
	case KindFalse:
		return "FALSE"
	case KindCondition:
		return s.condition.String()
	case KindPredicate:
		return "predicate"
	case KindAnd:
		return fmt.Sprintf("(%s AND %s)", s.left.Description(), s.right.Description())
	case KindOr:
		return fmt.Sprintf("(%s OR %s)", s.left.Description(), s.right.Description())
	case KindNot:
		return fmt.Sprintf("NOT %s", s.left.Description())
	}
	return s.kind.String()
}

func (s *Specification[E]) String() string { return s.Description() }

// EstimatedSelectivity approximates the fraction of entities the specification keeps.
func (s *Specification[E]) EstimatedSelectivity() float64 {
	if s == nil {
		return 0
	}
	switch s.kind {
	case KindTrue:
		return 1
	case KindFalse:
		return 0
	case KindCondition:
		return s.condition.selectivity()
	case KindAnd:
		return s.left.EstimatedSelectivity() * s.right.EstimatedSelectivity()
	case KindOr:
		l, r := s.left.EstimatedSelectivity(), s.right.EstimatedSelectivity()
		return l + r - l*r
	case KindNot:
		return 1 - s.left.EstimatedSelectivity()
	}
	return 0.5
}

// Translatable reports whether every leaf is a field condition.
func (s *Specification[E]) Translatable() bool {
	if s == nil {
		return false
	}
	switch s.kind {
	case KindPredicate:
		return false
	case KindAnd, KindOr:
		return s.left.Translatable() && s.right.Translatable()
	case KindNot:
		return s.left.Translatable()
	}
	return true
}

// Validate checks the tree for missing operands.
func (s *Specification[E]) Validate() error {
	if s == nil {
		return fmt.Errorf("specification is nil")
	}
	switch s.kind {
	case KindAnd, KindOr:
		if err := s.left.Validate(); err != nil {
			return err
		}
		return s.right.Validate()
	case KindNot:
		return s.left.Validate()
	case KindPredicate:
		if s.predicate == nil {
			return fmt.Errorf("predicate %q has no function", s.label)
		}
	case KindCondition:
		if s.get == nil || s.condition.Field == "" {
			return fmt.Errorf("condition %s has no field accessor", s.condition)
		}
	}
	return nil
}
