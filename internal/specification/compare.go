package specification

import (
	"fmt"
	"reflect"
	"strings"
	"time"
)

// Compare orders two field values. Nil sorts before everything else; numbers of any
// width compare numerically; strings, booleans and time.Time compare naturally.
// Values of unrelated kinds fall back to comparing their formatted text.
func Compare(a, b any) int {
	a, b = deref(a), deref(b)
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}

	if ta, ok := a.(time.Time); ok {
		if tb, ok := b.(time.Time); ok {
			return ta.Compare(tb)
		}
	}

	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	ka, kb := class(va.Kind()), class(vb.Kind())
	if ka == kb {
		switch ka {
		case classInt:
			return cmp3(va.Int(), vb.Int())
		case classUint:
			return cmp3(va.Uint(), vb.Uint())
		case classFloat:
			return cmp3(va.Float(), vb.Float())
		case classString:
			return strings.Compare(va.String(), vb.String())
		case classBool:
			return cmp3(boolRank(va.Bool()), boolRank(vb.Bool()))
		}
	}
	if fa, ok := asFloat(va); ok {
		if fb, ok := asFloat(vb); ok {
			return cmp3(fa, fb)
		}
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

// Equal reports whether two field values are the same. Ordered values use Compare,
// anything else is compared structurally.
func Equal(a, b any) bool {
	a, b = deref(a), deref(b)
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if ordered(a) && ordered(b) {
		return Compare(a, b) == 0
	}
	return reflect.DeepEqual(a, b)
}

// IsNil reports whether v is nil or a nil pointer.
func IsNil(v any) bool {
	return deref(v) == nil
}

type kindClass int

const (
	classOther kindClass = iota
	classInt
	classUint
	classFloat
	classString
	classBool
)

func class(k reflect.Kind) kindClass {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return classInt
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return classUint
	case reflect.Float32, reflect.Float64:
		return classFloat
	case reflect.String:
		return classString
	case reflect.Bool:
		return classBool
	}
	return classOther
}

func ordered(v any) bool {
	if _, ok := v.(time.Time); ok {
		return true
	}
	return class(reflect.ValueOf(v).Kind()) != classOther
}

func asFloat(v reflect.Value) (float64, bool) {
	switch class(v.Kind()) {
	case classInt:
		return float64(v.Int()), true
	case classUint:
		return float64(v.Uint()), true
	case classFloat:
		return v.Float(), true
	}
	return 0, false
}

func deref(v any) any {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	return rv.Interface()
}

func boolRank(b bool) int {
	if b {
		return 1
	}
	return 0
}

func cmp3[T int | int64 | uint64 | float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
