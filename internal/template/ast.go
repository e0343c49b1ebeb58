package template

import (
	"strconv"
	"strings"
)

// Node is one node of a parsed template. The concrete types are
// *DocumentNode, *TextNode, *ForLoopNode and *EchoNode. Trees are never
// modified after Parse returns, so they can be shared between goroutines.
type Node interface {
	node()
	// String renders the node back to template source.
	String() string
}

// Element is one operand or operation inside a tag. The concrete types are
// VariableElement, IntegerElement, DoubleElement, StringElement,
// OperatorElement and FunctionElement.
type Element interface {
	element()
	String() string
}

// DocumentNode is the root of a template.
type DocumentNode struct {
	children []Node
}

// TextNode is literal output.
type TextNode struct {
	text string
}

// ForLoopNode repeats its children while the loop variable does not exceed End.
type ForLoopNode struct {
	variable VariableElement
	start    Element
	end      Element
	step     Element
	children []Node
}

// EchoNode evaluates its elements as a postfix expression.
type EchoNode struct {
	elements []Element
}

func (*DocumentNode) node() {}
func (*TextNode) node()     {}
func (*ForLoopNode) node()  {}
func (*EchoNode) node()     {}

// Children returns the top-level nodes in document order.
func (d *DocumentNode) Children() []Node { return d.children }

// String renders the whole document.
func (d *DocumentNode) String() string {
	var sb strings.Builder
	writeNodes(&sb, d.children)
	return sb.String()
}

// Text returns the literal content, escapes already resolved.
func (t *TextNode) Text() string { return t.text }

// String renders the text with '\' and '{' escaped.
func (t *TextNode) String() string {
	var sb strings.Builder
	for _, r := range t.text {
		if r == '\\' || r == '{' {
			sb.WriteByte('\\')
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// Variable returns the loop variable.
func (f *ForLoopNode) Variable() VariableElement { return f.variable }

// Start returns the start expression.
func (f *ForLoopNode) Start() Element { return f.start }

// End returns the end expression.
func (f *ForLoopNode) End() Element { return f.end }

// Step returns the step expression, or nil when the tag omitted it.
func (f *ForLoopNode) Step() Element { return f.step }

// Children returns the loop body.
func (f *ForLoopNode) Children() []Node { return f.children }

// String renders the loop including its body and closing tag.
func (f *ForLoopNode) String() string {
	var sb strings.Builder
	sb.WriteString("{{FOR ")
	sb.WriteString(f.variable.String())
	sb.WriteByte(' ')
	sb.WriteString(f.start.String())
	sb.WriteByte(' ')
	sb.WriteString(f.end.String())
	if f.step != nil {
		sb.WriteByte(' ')
		sb.WriteString(f.step.String())
	}
	sb.WriteString("}}")
	writeNodes(&sb, f.children)
	sb.WriteString("{{END}}")
	return sb.String()
}

// Elements returns the expression in evaluation order.
func (e *EchoNode) Elements() []Element { return e.elements }

// String renders the echo tag.
func (e *EchoNode) String() string {
	var sb strings.Builder
	sb.WriteString("{{=")
	for _, el := range e.elements {
		sb.WriteByte(' ')
		sb.WriteString(el.String())
	}
	sb.WriteString(" }}")
	return sb.String()
}

func writeNodes(sb *strings.Builder, nodes []Node) {
	for _, n := range nodes {
		sb.WriteString(n.String())
	}
}

// VariableElement references a loop variable by name.
type VariableElement struct {
	Name string
}

// IntegerElement is an integer constant.
type IntegerElement struct {
	Value int64
}

// DoubleElement is a floating-point constant.
type DoubleElement struct {
	Value float64
}

// StringElement is a string literal with escapes resolved.
type StringElement struct {
	Value string
}

// OperatorElement is one of + - * /.
type OperatorElement struct {
	Symbol string
}

// FunctionElement calls a built-in function by name (without the '@').
type FunctionElement struct {
	Name string
}

func (VariableElement) element() {}
func (IntegerElement) element()  {}
func (DoubleElement) element()   {}
func (StringElement) element()   {}
func (OperatorElement) element() {}
func (FunctionElement) element() {}

func (e VariableElement) String() string { return e.Name }
func (e IntegerElement) String() string  { return strconv.FormatInt(e.Value, 10) }
func (e OperatorElement) String() string { return e.Symbol }
func (e FunctionElement) String() string { return "@" + e.Name }

// String keeps a decimal point so the literal lexes back as a double.
func (e DoubleElement) String() string {
	s := strconv.FormatFloat(e.Value, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

// String quotes the literal using the escapes the lexer understands.
func (e StringElement) String() string {
	var sb strings.Builder
	sb.WriteByte('"')
	for _, r := range e.Value {
		switch r {
		case '\\':
			sb.WriteString(`\\`)
		case '"':
			sb.WriteString(`\"`)
		case '\n':
			sb.WriteString(`\n`)
		case '\r':
			sb.WriteString(`\r`)
		case '\t':
			sb.WriteString(`\t`)
		default:
			sb.WriteRune(r)
		}
	}
	sb.WriteByte('"')
	return sb.String()
}
