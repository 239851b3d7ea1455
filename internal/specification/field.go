package specification

import "repokit/internal/domain/entity"

// Field names an entity attribute and knows how to read it. The name is what
// backends see: the DynamoDB attribute or the SQL column.
type Field[E entity.Entity] struct {
	name string
	get  func(E) any
}

// NewField declares a field with a typed accessor.
func NewField[E entity.Entity, V any](name string, get func(E) V) Field[E] {
	return Field[E]{name: name, get: func(e E) any { return get(e) }}
}

func (f Field[E]) Name() string { return f.name }

// Value reads the field. Absent entities yield nil.
func (f Field[E]) Value(e E) any {
	if entity.IsAbsent(e) {
		return nil
	}
	return f.get(e)
}

func (f Field[E]) cond(op Operator, value any) *Specification[E] {
	return newCondition(f.get, Condition{Field: f.name, Operator: op, Value: value})
}

func (f Field[E]) Eq(value any) *Specification[E]  { return f.cond(OperatorEquals, value) }
func (f Field[E]) Ne(value any) *Specification[E]  { return f.cond(OperatorNotEquals, value) }
func (f Field[E]) Gt(value any) *Specification[E]  { return f.cond(OperatorGreaterThan, value) }
func (f Field[E]) Gte(value any) *Specification[E] { return f.cond(OperatorGreaterOrEqual, value) }
func (f Field[E]) Lt(value any) *Specification[E]  { return f.cond(OperatorLessThan, value) }
func (f Field[E]) Lte(value any) *Specification[E] { return f.cond(OperatorLessOrEqual, value) }

// Contains matches substrings of string fields and elements of slice fields.
func (f Field[E]) Contains(value any) *Specification[E] { return f.cond(OperatorContains, value) }

func (f Field[E]) StartsWith(prefix string) *Specification[E] {
	return f.cond(OperatorStartsWith, prefix)
}

func (f Field[E]) EndsWith(suffix string) *Specification[E] {
	return f.cond(OperatorEndsWith, suffix)
}

// Between is the inclusive range lo <= field <= hi.
func (f Field[E]) Between(lo, hi any) *Specification[E] {
	return And(f.Gte(lo), f.Lte(hi))
}

func (f Field[E]) In(values ...any) *Specification[E] {
	return newCondition(f.get, Condition{Field: f.name, Operator: OperatorIn, Values: values})
}

func (f Field[E]) NotIn(values ...any) *Specification[E] {
	return newCondition(f.get, Condition{Field: f.name, Operator: OperatorNotIn, Values: values})
}

func (f Field[E]) IsNull() *Specification[E]    { return f.cond(OperatorIsNull, nil) }
func (f Field[E]) IsNotNull() *Specification[E] { return f.cond(OperatorIsNotNull, nil) }
