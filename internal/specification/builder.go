package specification

import "repokit/internal/domain/entity"

// Builder accumulates specifications with AND, which suits request handlers that
// add conditions only for the parameters actually supplied.
type Builder[E entity.Entity] struct {
	spec *Specification[E]
}

// NewBuilder creates an empty builder. Building it without conditions yields True.
func NewBuilder[E entity.Entity]() *Builder[E] {
	return &Builder[E]{}
}

// And adds a required condition
func (b *Builder[E]) And(s *Specification[E]) *Builder[E] {
	if b.spec == nil {
		b.spec = s
	} else {
		b.spec = b.spec.And(s)
	}
	return b
}

// When adds s only if cond holds
func (b *Builder[E]) When(cond bool, s func() *Specification[E]) *Builder[E] {
	if cond {
		b.And(s())
	}
	return b
}

// Or widens everything collected so far. On an empty builder it starts with s.
func (b *Builder[E]) Or(s *Specification[E]) *Builder[E] {
	if b.spec == nil {
		b.spec = s
	} else {
		b.spec = b.spec.Or(s)
	}
	return b
}

func (b *Builder[E]) Build() *Specification[E] {
	if b.spec == nil {
		return True[E]()
	}
	return b.spec
}
