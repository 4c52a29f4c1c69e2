package workflow

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/shopspring/decimal"
)

// Operator compares a field value with a condition value
type Operator string

const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "notEquals"
	OpGreaterThan Operator = "greaterThan"
	OpLessThan    Operator = "lessThan"
	OpIn          Operator = "in"
	OpNotIn       Operator = "notIn"
)

// IsValid checks if the operator is known
func (o Operator) IsValid() bool {
	switch o {
	case OpEquals, OpNotEquals, OpGreaterThan, OpLessThan, OpIn, OpNotIn:
		return true
	}
	return false
}

// Condition is a guard on a transition: Field Operator Value
type Condition struct {
	Field    string
	Operator Operator
	Value    any
}

func (c Condition) String() string {
	return fmt.Sprintf("%s %s %v", c.Field, c.Operator, c.Value)
}

// Evaluate tests the condition against the resolved field value. A missing
// field never satisfies a condition.
func (c Condition) Evaluate(actual any, present bool) (bool, error) {
	if !present {
		return false, nil
	}

	switch c.Operator {
	case OpEquals:
		return looseEqual(actual, c.Value), nil
	case OpNotEquals:
		return !looseEqual(actual, c.Value), nil
	case OpGreaterThan, OpLessThan:
		a, ok := toDecimal(actual)
		if !ok {
			return false, fmt.Errorf("%s: field value %v is not numeric", c.Operator, actual)
		}
		b, ok := toDecimal(c.Value)
		if !ok {
			return false, fmt.Errorf("%s: condition value %v is not numeric", c.Operator, c.Value)
		}
		if c.Operator == OpGreaterThan {
			return a.GreaterThan(b), nil
		}
		return a.LessThan(b), nil
	case OpIn, OpNotIn:
		items, ok := toSlice(c.Value)
		if !ok {
			return false, fmt.Errorf("%s: condition value %v is not a list", c.Operator, c.Value)
		}
		found := false
		for _, item := range items {
			if looseEqual(actual, item) {
				found = true
				break
			}
		}
		if c.Operator == OpIn {
			return found, nil
		}
		return !found, nil
	}
	return false, fmt.Errorf("unknown operator %q", c.Operator)
}

// looseEqual compares numerically when both sides are numbers, else as strings
func looseEqual(a, b any) bool {
	da, okA := toDecimal(a)
	db, okB := toDecimal(b)
	if okA && okB {
		return da.Equal(db)
	}
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func toDecimal(v any) (decimal.Decimal, bool) {
	switch x := v.(type) {
	case decimal.Decimal:
		return x, true
	case *decimal.Decimal:
		if x == nil {
			return decimal.Zero, false
		}
		return *x, true
	case int:
		return decimal.NewFromInt(int64(x)), true
	case int32:
		return decimal.NewFromInt32(x), true
	case int64:
		return decimal.NewFromInt(x), true
	case float64:
		return decimal.NewFromFloat(x), true
	case float32:
		return decimal.NewFromFloat32(x), true
	case json.Number:
		d, err := decimal.NewFromString(x.String())
		return d, err == nil
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(x))
		return d, err == nil
	}
	return decimal.Zero, false
}

func toSlice(v any) ([]any, bool) {
	if items, ok := v.([]any); ok {
		return items, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	items := make([]any, rv.Len())
	for i := range items {
		items[i] = rv.Index(i).Interface()
	}
	return items, true
}
