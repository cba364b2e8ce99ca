package batch

import (
	"fmt"
	"math"

	"github.com/aidanlsb/relq/internal/ormerr"
	"github.com/aidanlsb/relq/internal/schema"
)

// Operator is a per-column update operator.
type Operator string

const (
	Add      Operator = "+"
	Subtract Operator = "-"
	Multiply Operator = "*"
	Divide   Operator = "/"
	Replace  Operator = "="
)

// ParseOperator validates an operator symbol.
func ParseOperator(s string) (Operator, error) {
	switch op := Operator(s); op {
	case Add, Subtract, Multiply, Divide, Replace:
		return op, nil
	}
	return "", ormerr.Validation(s, "unknown update operator")
}

// Arithmetic reports whether op combines the current value with the delta.
func (op Operator) Arithmetic() bool {
	return op == Add || op == Subtract || op == Multiply || op == Divide
}

// Delta is an operator and its operand.
type Delta struct {
	Op    Operator
	Value any
}

// Set replaces the column value.
func Set(v any) Delta { return Delta{Op: Replace, Value: v} }

// Inc adds n.
func Inc(n any) Delta { return Delta{Op: Add, Value: n} }

// Dec subtracts n.
func Dec(n any) Delta { return Delta{Op: Subtract, Value: n} }

// Mul multiplies by n.
func Mul(n any) Delta { return Delta{Op: Multiply, Value: n} }

// Div divides by n.
func Div(n any) Delta { return Delta{Op: Divide, Value: n} }

// Apply computes the new value of a column the way the UPDATE statement
// does: integer operands keep integer arithmetic (division truncates toward
// zero), anything else is computed in float64.
func Apply(op Operator, current, delta any) (any, error) {
	if _, err := ParseOperator(string(op)); err != nil {
		return nil, err
	}
	if op == Replace {
		return delta, nil
	}
	d, ok := schema.AsFloat(delta)
	if !ok {
		return nil, &ormerr.ArithmeticError{Reason: fmt.Sprintf("non-numeric operand %v", delta)}
	}
	if op == Divide && d == 0 {
		return nil, &ormerr.ArithmeticError{Reason: "division by zero"}
	}
	if current == nil {
		return nil, nil
	}
	c, ok := schema.AsFloat(current)
	if !ok {
		return nil, &ormerr.ArithmeticError{Reason: fmt.Sprintf("non-numeric value %v", current)}
	}

	if isInteger(current) && isInteger(delta) {
		a, b := int64(c), int64(d)
		switch op {
		case Add:
			return a + b, nil
		case Subtract:
			return a - b, nil
		case Multiply:
			return a * b, nil
		default:
			return a / b, nil
		}
	}
	switch op {
	case Add:
		return c + d, nil
	case Subtract:
		return c - d, nil
	case Multiply:
		return c * d, nil
	default:
		return c / d, nil
	}
}

func isInteger(v any) bool {
	switch n := v.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	case string:
		f, ok := schema.AsFloat(n)
		return ok && f == math.Trunc(f)
	}
	return false
}
