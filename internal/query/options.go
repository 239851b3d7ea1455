// Package query composes specifications with relation loading, sorting, paging,
// projection, grouping and de-duplication into a single per-call plan, and runs
// the parts a backend cannot express in process.
package query

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"repokit/internal/domain/entity"
	"repokit/internal/specification"
)

// SortDirection represents sort direction
type SortDirection string

const (
	Ascending  SortDirection = "asc"
	Descending SortDirection = "desc"
)

// SortKey orders entities by one extracted value. Named keys may be pushed down to
// a backend, so Name must match the attribute or column; computed keys have no name.
type SortKey[E entity.Entity] struct {
	Name  string
	Value func(E) any
}

// By declares a named sort key.
func By[E entity.Entity, V any](name string, value func(E) V) SortKey[E] {
	return SortKey[E]{Name: name, Value: func(e E) any { return value(e) }}
}

// Computed declares a sort key that is always evaluated in process.
func Computed[E entity.Entity, V any](value func(E) V) SortKey[E] {
	return By("", value)
}

// FieldKey sorts by a specification field.
func FieldKey[E entity.Entity](f specification.Field[E]) SortKey[E] {
	return SortKey[E]{Name: f.Name(), Value: f.Value}
}

// Options are the per-call query modifiers. The zero value means: include no
// relations, do not track, single query, backend order, no paging, ascending.
// Skip and Take treat 0 as "not set".
type Options[E entity.Entity] struct {
	Include    []string `validate:"dive,required"`
	Track      bool
	SplitQuery bool
	Sort       []SortKey[E]
	Direction  SortDirection `validate:"omitempty,oneof=asc desc"`
	Skip       int           `validate:"gte=0"`
	Take       int           `validate:"gte=0"`
}

var validate = validator.New()

// Validate rejects negative paging, unknown directions, blank relation names and
// sort keys without an accessor.
func (o Options[E]) Validate() error {
	if err := validate.Struct(o); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			parts := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				parts = append(parts, fmt.Sprintf("%s failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
			return errors.New(strings.Join(parts, "; "))
		}
		return err
	}
	for i, k := range o.Sort {
		if k.Value == nil {
			return fmt.Errorf("sort key %d (%q) has no accessor", i, k.Name)
		}
	}
	return nil
}

func (o Options[E]) direction() SortDirection {
	if o.Direction == "" {
		return Ascending
	}
	return o.Direction
}

// Builder provides a fluent API for assembling Options.
//
//	opts := query.NewBuilder[*catalog.Product]().
//	    Include(catalog.RelationCategory).
//	    OrderBy(query.FieldKey(catalog.ProductPrice)).
//	    Descending().
//	    Page(2, 20).
//	    Build()
type Builder[E entity.Entity] struct {
	opts Options[E]
}

func NewBuilder[E entity.Entity]() *Builder[E] {
	return &Builder[E]{}
}

// Include adds relations to load with every entity
func (b *Builder[E]) Include(relations ...string) *Builder[E] {
	b.opts.Include = append(b.opts.Include, relations...)
	return b
}

// Tracked asks the session to watch loaded entities for changes
func (b *Builder[E]) Tracked() *Builder[E] {
	b.opts.Track = true
	return b
}

func (b *Builder[E]) SplitQuery() *Builder[E] {
	b.opts.SplitQuery = true
	return b
}

// OrderBy appends sort keys; the first key is primary
func (b *Builder[E]) OrderBy(keys ...SortKey[E]) *Builder[E] {
	b.opts.Sort = append(b.opts.Sort, keys...)
	return b
}

func (b *Builder[E]) Ascending() *Builder[E] {
	b.opts.Direction = Ascending
	return b
}

func (b *Builder[E]) Descending() *Builder[E] {
	b.opts.Direction = Descending
	return b
}

func (b *Builder[E]) Skip(n int) *Builder[E] {
	b.opts.Skip = n
	return b
}

func (b *Builder[E]) Take(n int) *Builder[E] {
	b.opts.Take = n
	return b
}

// Page sets skip and take from a 1-based page number
func (b *Builder[E]) Page(number, size int) *Builder[E] {
	if number < 1 {
		number = 1
	}
	b.opts.Skip = (number - 1) * size
	b.opts.Take = size
	return b
}

func (b *Builder[E]) Build() Options[E] {
	opts := b.opts
	opts.Include = append([]string(nil), b.opts.Include...)
	opts.Sort = append([]SortKey[E](nil), b.opts.Sort...)
	return opts
}
