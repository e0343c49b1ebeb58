// Package engine executes parsed templates against a request context.
//
// Execution walks the node tree once. Text is written verbatim, FOR loops
// scope their variable on a multistack, and echo tags are evaluated as
// postfix expressions over an operand stack whose leftovers are written to
// the response, top first.
package engine

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/conneroisu/scriptserv/internal/errors"
	"github.com/conneroisu/scriptserv/internal/multistack"
	"github.com/conneroisu/scriptserv/internal/template"
	"github.com/conneroisu/scriptserv/internal/value"
)

// Context is the part of a request context templates can reach.
type Context interface {
	WriteString(s string) (int, error)
	SetMimeType(mime string)

	Parameter(name string) (string, bool)

	PersistentParameter(name string) (string, bool)
	SetPersistentParameter(name, value string)
	RemovePersistentParameter(name string)

	TemporaryParameter(name string) (string, bool)
	SetTemporaryParameter(name, value string)
	RemoveTemporaryParameter(name string)
}

// Engine holds the built-in function table. It is safe for concurrent use
// once constructed.
type Engine struct {
	functions map[string]Function
}

// New creates an engine with the default built-ins registered.
func New() *Engine {
	e := &Engine{functions: make(map[string]Function)}
	registerBuiltins(e)
	return e
}

// Register adds or replaces a built-in. Call it before the engine is shared.
func (e *Engine) Register(name string, fn Function) {
	e.functions[name] = fn
}

// Functions returns the registered built-in names.
func (e *Engine) Functions() []string {
	names := make([]string, 0, len(e.functions))
	for name := range e.functions {
		names = append(names, name)
	}
	return names
}

// Execute runs doc, writing its output through rc. ctx is checked between
// loop iterations so a cancelled request stops a long-running template.
func (e *Engine) Execute(ctx context.Context, doc *template.DocumentNode, rc Context) error {
	ex := &execution{
		ctx:       ctx,
		engine:    e,
		rc:        rc,
		variables: multistack.New(),
	}
	return ex.nodes(doc.Children())
}

type execution struct {
	ctx       context.Context
	engine    *Engine
	rc        Context
	variables *multistack.MultiStack
}

func (ex *execution) nodes(nodes []template.Node) error {
	for _, n := range nodes {
		if err := ex.node(n); err != nil {
			return err
		}
	}
	return nil
}

func (ex *execution) node(n template.Node) error {
	switch n := n.(type) {
	case *template.TextNode:
		_, err := ex.rc.WriteString(n.Text())
		return err
	case *template.ForLoopNode:
		return ex.forLoop(n)
	case *template.EchoNode:
		return ex.echo(n)
	case *template.DocumentNode:
		return ex.nodes(n.Children())
	default:
		return execError("unsupported node %T", n)
	}
}

func (ex *execution) forLoop(n *template.ForLoopNode) error {
	start, err := ex.operand(n.Start())
	if err != nil {
		return err
	}
	end, err := ex.operand(n.End())
	if err != nil {
		return err
	}
	step := value.Int(1)
	if n.Step() != nil {
		if step, err = ex.operand(n.Step()); err != nil {
			return err
		}
	}

	if err := checkTermination(start, end, step); err != nil {
		return err
	}

	name := n.Variable().Name
	ex.variables.Push(name, start)
	defer ex.variables.Pop(name) //nolint:errcheck

	for {
		if err := ex.ctx.Err(); err != nil {
			return err
		}

		current, err := ex.variables.Peek(name)
		if err != nil {
			return err
		}
		cmp, err := current.Compare(end)
		if err != nil {
			return err
		}
		if cmp > 0 {
			return nil
		}

		if err := ex.nodes(n.Children()); err != nil {
			return err
		}

		next, err := current.Add(step)
		if stderrors.Is(err, errors.ErrOverflow) {
			// the next value lies past any representable end
			return nil
		}
		if err != nil {
			return err
		}
		if err := ex.variables.Replace(name, next); err != nil {
			return err
		}
	}
}

// checkTermination rejects loops that would run forever.
func checkTermination(start, end, step value.Wrapper) error {
	dir, err := step.Compare(value.Int(0))
	if err != nil {
		return err
	}
	if dir > 0 {
		return nil
	}
	cmp, err := start.Compare(end)
	if err != nil {
		return err
	}
	if cmp <= 0 {
		return execError("FOR loop from %s to %s with step %s never ends", start, end, step)
	}
	return nil
}

func (ex *execution) echo(n *template.EchoNode) error {
	stack := &Stack{}
	for _, el := range n.Elements() {
		switch el := el.(type) {
		case template.OperatorElement:
			right, err := stack.Pop()
			if err != nil {
				return err
			}
			left, err := stack.Pop()
			if err != nil {
				return err
			}
			result, err := value.Apply(el.Symbol, left, right)
			if err != nil {
				return err
			}
			stack.Push(result)
		case template.FunctionElement:
			fn, ok := ex.engine.functions[el.Name]
			if !ok {
				return execError("unknown function @%s", el.Name)
			}
			if err := fn(stack, ex.rc); err != nil {
				return fmt.Errorf("@%s: %w", el.Name, err)
			}
		default:
			v, err := ex.operand(el)
			if err != nil {
				return err
			}
			stack.Push(v)
		}
	}

	for !stack.Empty() {
		v, _ := stack.Pop()
		if _, err := ex.rc.WriteString(v.String()); err != nil {
			return err
		}
	}
	return nil
}

// operand evaluates an element that produces a single value.
func (ex *execution) operand(el template.Element) (value.Wrapper, error) {
	switch el := el.(type) {
	case template.VariableElement:
		v, err := ex.variables.Peek(el.Name)
		if err != nil {
			return value.Wrapper{}, execError("undefined variable %q", el.Name)
		}
		return v, nil
	case template.IntegerElement:
		return value.Int(el.Value), nil
	case template.DoubleElement:
		return value.Float(el.Value), nil
	case template.StringElement:
		return value.String(el.Value), nil
	default:
		return value.Wrapper{}, execError("%s is not a value", el)
	}
}

func execError(format string, args ...interface{}) error {
	return errors.NewTemplateError(errors.ErrCodeExecution, fmt.Sprintf(format, args...), nil)
}
