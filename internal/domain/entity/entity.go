// Package entity defines the base contract shared by every persisted entity.
package entity

import (
	"reflect"
	"time"
)

// Base carries the identity and audit fields every entity embeds.
// ID is assigned by the persistence collaborator on creation and never changes.
// Version is advanced by the persistence collaborator on every committed change.
type Base struct {
	ID          int64     `json:"id" dynamodbav:"id"`
	CreatedWhen time.Time `json:"createdWhen" dynamodbav:"created_when"`
	UpdatedWhen time.Time `json:"updatedWhen" dynamodbav:"updated_when"`
	Version     uint32    `json:"version" dynamodbav:"version"`
}

// Audit exposes the embedded base so generic code can reach it.
func (b *Base) Audit() *Base { return b }

// IsNew reports whether the entity has not been persisted yet.
func (b *Base) IsNew() bool { return b.ID == 0 }

// MarkCreated stamps creation time on an entity that has none yet.
func (b *Base) MarkCreated(now time.Time) {
	if b.CreatedWhen.IsZero() {
		b.CreatedWhen = now
	}
	if b.UpdatedWhen.Before(b.CreatedWhen) {
		b.UpdatedWhen = b.CreatedWhen
	}
}

// MarkUpdated stamps the modification time. The stamp is strictly later than the
// previous one even when the clock has not advanced.
func (b *Base) MarkUpdated(now time.Time) {
	if !now.After(b.UpdatedWhen) {
		now = b.UpdatedWhen.Add(time.Nanosecond)
	}
	if now.Before(b.CreatedWhen) {
		now = b.CreatedWhen
	}
	b.UpdatedWhen = now
}

// Entity is implemented by pointers to structs embedding Base.
type Entity interface {
	Audit() *Base
}

// IsAbsent reports whether e is the "no entity" value (a nil pointer).
// Calling Audit on such a value would dereference nil.
func IsAbsent[E Entity](e E) bool {
	v := reflect.ValueOf(e)
	if !v.IsValid() {
		return true
	}
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func:
		return v.IsNil()
	}
	return false
}

// TypeName returns the short type name of E used in diagnostics, e.g. "Product".
func TypeName[E Entity]() string {
	t := reflect.TypeOf((*E)(nil)).Elem()
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Name()
}

// Clone returns a shallow copy of e. Absent values are returned as is.
func Clone[E Entity](e E) E {
	if IsAbsent(e) {
		return e
	}
	v := reflect.ValueOf(e)
	if v.Kind() != reflect.Pointer {
		return e
	}
	c := reflect.New(v.Elem().Type())
	c.Elem().Set(v.Elem())
	return c.Interface().(E)
}

// Equal reports whether two entities hold the same field values.
func Equal[E Entity](a, b E) bool {
	if IsAbsent(a) || IsAbsent(b) {
		return IsAbsent(a) == IsAbsent(b)
	}
	return reflect.DeepEqual(reflect.ValueOf(a).Elem().Interface(), reflect.ValueOf(b).Elem().Interface())
}

// New allocates a zero entity of the struct type E points to.
func New[E Entity]() E {
	t := reflect.TypeOf((*E)(nil)).Elem()
	if t.Kind() != reflect.Pointer {
		var zero E
		return zero
	}
	return reflect.New(t.Elem()).Interface().(E)
}
