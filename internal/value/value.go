// Package value implements the tagged values an executing template operates
// on, together with the coercion rules shared by every arithmetic operator.
//
// A Wrapper holds nil, an int64, a float64 or a string. Before any binary
// operation both operands are normalized: nil becomes integer zero, a string
// containing '.' or 'E' is parsed as a float and any other string as an
// integer. The operation is carried out in floating point when either
// normalized operand is a float, otherwise in integer arithmetic.
package value

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/conneroisu/scriptserv/internal/errors"
)

// Kind identifies what a Wrapper holds.
type Kind int

const (
	KindNull Kind = iota
	KindInteger
	KindDouble
	KindString
	KindInvalid
)

// String returns the string representation of the kind
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindInteger:
		return "integer"
	case KindDouble:
		return "double"
	case KindString:
		return "string"
	default:
		return "invalid"
	}
}

// Wrapper is an immutable value used during template execution.
type Wrapper struct {
	v interface{}
}

// New wraps v. Plain int and float32 values are widened; any other type is
// kept as is and fails on first use.
func New(v interface{}) Wrapper {
	switch x := v.(type) {
	case int:
		return Wrapper{v: int64(x)}
	case int32:
		return Wrapper{v: int64(x)}
	case float32:
		return Wrapper{v: float64(x)}
	default:
		return Wrapper{v: v}
	}
}

// Int wraps an integer.
func Int(i int64) Wrapper { return Wrapper{v: i} }

// Float wraps a floating-point number.
func Float(f float64) Wrapper { return Wrapper{v: f} }

// String wraps text.
func String(s string) Wrapper { return Wrapper{v: s} }

// Null returns the absent value.
func Null() Wrapper { return Wrapper{} }

// Value returns the wrapped Go value.
func (w Wrapper) Value() interface{} { return w.v }

// Kind reports what the wrapper holds.
func (w Wrapper) Kind() Kind {
	switch w.v.(type) {
	case nil:
		return KindNull
	case int64:
		return KindInteger
	case float64:
		return KindDouble
	case string:
		return KindString
	default:
		return KindInvalid
	}
}

// String renders the value as it appears in template output. Integral
// doubles keep a trailing ".0" so they stay distinguishable from integers.
func (w Wrapper) String() string {
	switch x := w.v.(type) {
	case nil:
		return "null"
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return formatFloat(x)
	case string:
		return x
	default:
		return fmt.Sprint(x)
	}
}

func formatFloat(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatFloat(f, 'f', 1, 64)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// Normalize returns the numeric form of w: an int64 or a float64 wrapper.
func (w Wrapper) Normalize() (Wrapper, error) {
	switch x := w.v.(type) {
	case nil:
		return Int(0), nil
	case int64, float64:
		return w, nil
	case string:
		return parseNumber(x)
	default:
		return Wrapper{}, errors.NewArithmeticError(errors.ErrCodeCoercion,
			fmt.Sprintf("unsupported value type %T", x))
	}
}

func parseNumber(s string) (Wrapper, error) {
	t := strings.TrimSpace(s)
	if strings.ContainsAny(t, ".E") {
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return Wrapper{}, errors.NewArithmeticError(errors.ErrCodeCoercion,
				fmt.Sprintf("cannot convert %q to a double", s))
		}
		return Float(f), nil
	}

	i, err := strconv.ParseInt(t, 10, 64)
	if err != nil {
		return Wrapper{}, errors.NewArithmeticError(errors.ErrCodeCoercion,
			fmt.Sprintf("cannot convert %q to an integer", s))
	}
	return Int(i), nil
}

// Float64 returns the numeric value of w as a float64.
func (w Wrapper) Float64() (float64, error) {
	n, err := w.Normalize()
	if err != nil {
		return 0, err
	}
	if i, ok := n.v.(int64); ok {
		return float64(i), nil
	}
	return n.v.(float64), nil
}

type operation int

const (
	opAdd operation = iota
	opSub
	opMul
	opDiv
)

// Add returns w + o.
func (w Wrapper) Add(o Wrapper) (Wrapper, error) { return w.apply(opAdd, o) }

// Sub returns w - o.
func (w Wrapper) Sub(o Wrapper) (Wrapper, error) { return w.apply(opSub, o) }

// Mul returns w * o.
func (w Wrapper) Mul(o Wrapper) (Wrapper, error) { return w.apply(opMul, o) }

// Div returns w / o. Integer division by zero is an error; floating-point
// division by zero yields an IEEE-754 infinity or NaN.
func (w Wrapper) Div(o Wrapper) (Wrapper, error) { return w.apply(opDiv, o) }

// Compare returns a negative number, zero or a positive number when w is
// respectively less than, equal to or greater than o.
func (w Wrapper) Compare(o Wrapper) (int, error) {
	a, b, isFloat, err := normalizePair(w, o)
	if err != nil {
		return 0, err
	}

	if isFloat {
		x, y := toFloat(a), toFloat(b)
		switch {
		case x < y:
			return -1, nil
		case x > y:
			return 1, nil
		default:
			return 0, nil
		}
	}

	x, y := a.v.(int64), b.v.(int64)
	switch {
	case x < y:
		return -1, nil
	case x > y:
		return 1, nil
	default:
		return 0, nil
	}
}

// Apply evaluates one of the template operators "+", "-", "*" or "/".
func Apply(symbol string, left, right Wrapper) (Wrapper, error) {
	switch symbol {
	case "+":
		return left.Add(right)
	case "-":
		return left.Sub(right)
	case "*":
		return left.Mul(right)
	case "/":
		return left.Div(right)
	default:
		return Wrapper{}, errors.NewArithmeticError(errors.ErrCodeCoercion,
			fmt.Sprintf("unknown operator %q", symbol))
	}
}

func (w Wrapper) apply(op operation, o Wrapper) (Wrapper, error) {
	a, b, isFloat, err := normalizePair(w, o)
	if err != nil {
		return Wrapper{}, err
	}

	if isFloat {
		x, y := toFloat(a), toFloat(b)
		switch op {
		case opAdd:
			return Float(x + y), nil
		case opSub:
			return Float(x - y), nil
		case opMul:
			return Float(x * y), nil
		default:
			return Float(x / y), nil
		}
	}

	x, y := a.v.(int64), b.v.(int64)
	switch op {
	case opAdd:
		r := x + y
		if (x^r)&(y^r) < 0 {
			return Wrapper{}, overflow(x, "+", y)
		}
		return Int(r), nil
	case opSub:
		r := x - y
		if (x^y)&(x^r) < 0 {
			return Wrapper{}, overflow(x, "-", y)
		}
		return Int(r), nil
	case opMul:
		r := x * y
		if x != 0 && (r/x != y || (x == -1 && y == math.MinInt64)) {
			return Wrapper{}, overflow(x, "*", y)
		}
		return Int(r), nil
	default:
		if y == 0 {
			return Wrapper{}, errors.NewArithmeticError(errors.ErrCodeDivideByZero,
				fmt.Sprintf("integer division %d / 0", x))
		}
		if x == math.MinInt64 && y == -1 {
			return Wrapper{}, overflow(x, "/", y)
		}
		return Int(x / y), nil
	}
}

func overflow(x int64, op string, y int64) error {
	return errors.NewArithmeticError(errors.ErrCodeOverflow,
		fmt.Sprintf("integer overflow in %d %s %d", x, op, y))
}

func normalizePair(w, o Wrapper) (Wrapper, Wrapper, bool, error) {
	a, err := w.Normalize()
	if err != nil {
		return Wrapper{}, Wrapper{}, false, err
	}
	b, err := o.Normalize()
	if err != nil {
		return Wrapper{}, Wrapper{}, false, err
	}
	return a, b, a.Kind() == KindDouble || b.Kind() == KindDouble, nil
}

func toFloat(w Wrapper) float64 {
	if i, ok := w.v.(int64); ok {
		return float64(i)
	}
	return w.v.(float64)
}
