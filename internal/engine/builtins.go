package engine

import (
	"math"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/conneroisu/scriptserv/internal/value"
)

// Function is a built-in callable from an echo tag as @name. It consumes
// and produces values on the operand stack.
type Function func(stack *Stack, rc Context) error

// Stack is the operand stack of one echo tag.
type Stack struct {
	values []value.Wrapper
}

// Push adds v on top.
func (s *Stack) Push(v value.Wrapper) {
	s.values = append(s.values, v)
}

// Pop removes and returns the top value.
func (s *Stack) Pop() (value.Wrapper, error) {
	if len(s.values) == 0 {
		return value.Wrapper{}, execError("operand stack is empty")
	}
	v := s.values[len(s.values)-1]
	s.values = s.values[:len(s.values)-1]
	return v, nil
}

// Empty reports whether the stack holds no values.
func (s *Stack) Empty() bool { return len(s.values) == 0 }

// Len returns the number of values on the stack.
func (s *Stack) Len() int { return len(s.values) }

// parameter scope accessors used by the get/set/del built-ins
type scope struct {
	get func(rc Context, name string) (string, bool)
	set func(rc Context, name, value string)
	del func(rc Context, name string)
}

var (
	requestScope = scope{
		get: func(rc Context, name string) (string, bool) { return rc.Parameter(name) },
	}
	persistentScope = scope{
		get: func(rc Context, name string) (string, bool) { return rc.PersistentParameter(name) },
		set: func(rc Context, name, v string) { rc.SetPersistentParameter(name, v) },
		del: func(rc Context, name string) { rc.RemovePersistentParameter(name) },
	}
	temporaryScope = scope{
		get: func(rc Context, name string) (string, bool) { return rc.TemporaryParameter(name) },
		set: func(rc Context, name, v string) { rc.SetTemporaryParameter(name, v) },
		del: func(rc Context, name string) { rc.RemoveTemporaryParameter(name) },
	}
)

func registerBuiltins(e *Engine) {
	e.Register("sin", sine)
	e.Register("decfmt", decimalFormat)
	e.Register("dup", duplicate)
	e.Register("swap", swap)
	e.Register("setMimeType", setMimeType)

	e.Register("paramGet", paramGet(requestScope))
	e.Register("pparamGet", paramGet(persistentScope))
	e.Register("tparamGet", paramGet(temporaryScope))
	e.Register("pparamSet", paramSet(persistentScope))
	e.Register("tparamSet", paramSet(temporaryScope))
	e.Register("pparamDel", paramDel(persistentScope))
	e.Register("tparamDel", paramDel(temporaryScope))
}

// sine: x -> sin(x), x in degrees
func sine(stack *Stack, _ Context) error {
	x, err := stack.Pop()
	if err != nil {
		return err
	}
	f, err := x.Float64()
	if err != nil {
		return err
	}
	stack.Push(value.Float(math.Sin(f * math.Pi / 180)))
	return nil
}

// decimalFormat: x pattern -> formatted text
func decimalFormat(stack *Stack, _ Context) error {
	pattern, err := stack.Pop()
	if err != nil {
		return err
	}
	x, err := stack.Pop()
	if err != nil {
		return err
	}
	f, err := x.Float64()
	if err != nil {
		return err
	}
	stack.Push(value.String(FormatDecimal(f, pattern.String())))
	return nil
}

var printer = message.NewPrinter(language.English)

// FormatDecimal formats f after a DecimalFormat style pattern such as
// "0.000" or "#.##": '0' is a mandatory digit, '#' an optional one.
func FormatDecimal(f float64, pattern string) string {
	intPart, fracPart, _ := strings.Cut(pattern, ".")

	minInt := strings.Count(intPart, "0")
	minFrac := strings.Count(fracPart, "0")
	maxFrac := minFrac + strings.Count(fracPart, "#")

	opts := []number.Option{
		number.MinFractionDigits(minFrac),
		number.MaxFractionDigits(maxFrac),
		number.NoSeparator(),
	}
	if minInt > 0 {
		opts = append(opts, number.MinIntegerDigits(minInt))
	}
	return printer.Sprint(number.Decimal(f, opts...))
}

// duplicate: x -> x x
func duplicate(stack *Stack, _ Context) error {
	x, err := stack.Pop()
	if err != nil {
		return err
	}
	stack.Push(x)
	stack.Push(x)
	return nil
}

// swap: a b -> b a
func swap(stack *Stack, _ Context) error {
	b, err := stack.Pop()
	if err != nil {
		return err
	}
	a, err := stack.Pop()
	if err != nil {
		return err
	}
	stack.Push(b)
	stack.Push(a)
	return nil
}

// setMimeType: mime ->
func setMimeType(stack *Stack, rc Context) error {
	mime, err := stack.Pop()
	if err != nil {
		return err
	}
	rc.SetMimeType(mime.String())
	return nil
}

// paramGet: name default -> value, or default when name is absent
func paramGet(sc scope) Function {
	return func(stack *Stack, rc Context) error {
		dv, err := stack.Pop()
		if err != nil {
			return err
		}
		name, err := stack.Pop()
		if err != nil {
			return err
		}
		if v, ok := sc.get(rc, name.String()); ok {
			stack.Push(value.String(v))
			return nil
		}
		stack.Push(dv)
		return nil
	}
}

// paramSet: value name ->
func paramSet(sc scope) Function {
	return func(stack *Stack, rc Context) error {
		name, err := stack.Pop()
		if err != nil {
			return err
		}
		v, err := stack.Pop()
		if err != nil {
			return err
		}
		sc.set(rc, name.String(), v.String())
		return nil
	}
}

// paramDel: name ->
func paramDel(sc scope) Function {
	return func(stack *Stack, rc Context) error {
		name, err := stack.Pop()
		if err != nil {
			return err
		}
		sc.del(rc, name.String())
		return nil
	}
}
