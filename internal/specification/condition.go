package specification

import (
	"fmt"
	"reflect"
	"strings"
)

// Operator represents comparison operators
type Operator string

const (
	OperatorEquals         Operator = "eq"
	OperatorNotEquals      Operator = "ne"
	OperatorGreaterThan    Operator = "gt"
	OperatorGreaterOrEqual Operator = "gte"
	OperatorLessThan       Operator = "lt"
	OperatorLessOrEqual    Operator = "lte"
	OperatorContains       Operator = "contains"
	OperatorStartsWith     Operator = "starts_with"
	OperatorEndsWith       Operator = "ends_with"
	OperatorIn             Operator = "in"
	OperatorNotIn          Operator = "not_in"
	OperatorIsNull         Operator = "is_null"
	OperatorIsNotNull      Operator = "is_not_null"
)

var operatorSymbols = map[Operator]string{
	OperatorEquals:         "=",
	OperatorNotEquals:      "!=",
	OperatorGreaterThan:    ">",
	OperatorGreaterOrEqual: ">=",
	OperatorLessThan:       "<",
	OperatorLessOrEqual:    "<=",
	OperatorContains:       "contains",
	OperatorStartsWith:     "starts with",
	OperatorEndsWith:       "ends with",
	OperatorIn:             "in",
	OperatorNotIn:          "not in",
	OperatorIsNull:         "is null",
	OperatorIsNotNull:      "is not null",
}

// Condition is a backend-neutral comparison of one named field against a value.
// Backends translate it; Field is the attribute or column name.
type Condition struct {
	Field    string   `json:"field"`
	Operator Operator `json:"operator"`
	Value    any      `json:"value,omitempty"`
	Values   []any    `json:"values,omitempty"`
}

func (c Condition) String() string {
	sym := operatorSymbols[c.Operator]
	switch c.Operator {
	case OperatorIsNull, OperatorIsNotNull:
		return fmt.Sprintf("%s %s", c.Field, sym)
	case OperatorIn, OperatorNotIn:
		return fmt.Sprintf("%s %s %v", c.Field, sym, c.Values)
	case OperatorContains, OperatorStartsWith, OperatorEndsWith:
		return fmt.Sprintf("%s %s %q", c.Field, sym, fmt.Sprint(c.Value))
	}
	return fmt.Sprintf("%s %s %v", c.Field, sym, c.Value)
}

// Matches evaluates the condition against an already extracted field value.
// A nil field value only satisfies "is null" and equality with nil, mirroring
// how a database treats NULL.
func (c Condition) Matches(v any) bool {
	switch c.Operator {
	case OperatorIsNull:
		return IsNil(v)
	case OperatorIsNotNull:
		return !IsNil(v)
	case OperatorEquals:
		if IsNil(c.Value) {
			return IsNil(v)
		}
		return !IsNil(v) && Equal(v, c.Value)
	case OperatorNotEquals:
		if IsNil(c.Value) {
			return !IsNil(v)
		}
		return !IsNil(v) && !Equal(v, c.Value)
	}

	if IsNil(v) {
		return false
	}

	switch c.Operator {
	case OperatorGreaterThan:
		return !IsNil(c.Value) && Compare(v, c.Value) > 0
	case OperatorGreaterOrEqual:
		return !IsNil(c.Value) && Compare(v, c.Value) >= 0
	case OperatorLessThan:
		return !IsNil(c.Value) && Compare(v, c.Value) < 0
	case OperatorLessOrEqual:
		return !IsNil(c.Value) && Compare(v, c.Value) <= 0
	case OperatorContains:
		return contains(v, c.Value)
	case OperatorStartsWith:
		s, ok := deref(v).(string)
		return ok && strings.HasPrefix(s, fmt.Sprint(c.Value))
	case OperatorEndsWith:
		s, ok := deref(v).(string)
		return ok && strings.HasSuffix(s, fmt.Sprint(c.Value))
	case OperatorIn:
		return inValues(v, c.Values)
	case OperatorNotIn:
		return !inValues(v, c.Values)
	}
	return false
}

func contains(v, needle any) bool {
	v = deref(v)
	if s, ok := v.(string); ok {
		return strings.Contains(s, fmt.Sprint(deref(needle)))
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		for i := 0; i < rv.Len(); i++ {
			if Equal(rv.Index(i).Interface(), needle) {
				return true
			}
		}
	}
	return false
}

func inValues(v any, values []any) bool {
	for _, candidate := range values {
		if Equal(v, candidate) {
			return true
		}
	}
	return false
}

// selectivity mirrors the rough estimates used when explaining plans.
func (c Condition) selectivity() float64 {
	switch c.Operator {
	case OperatorEquals:
		return 0.1
	case OperatorNotEquals, OperatorNotIn, OperatorIsNotNull:
		return 0.9
	case OperatorIn:
		s := 0.1 * float64(len(c.Values))
		if s > 1 {
			return 1
		}
		return s
	case OperatorGreaterThan, OperatorGreaterOrEqual, OperatorLessThan, OperatorLessOrEqual:
		return 0.3
	case OperatorIsNull:
		return 0.05
	}
	return 0.5
}
