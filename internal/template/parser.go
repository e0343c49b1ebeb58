// Package template parses the tag language served from the document root.
//
// Text is copied to the output verbatim; "{{" opens a tag and "}}" closes
// it. Three tags exist:
//
//	{{FOR var start end [step]}} ... {{END}}
//	{{= element element ... }}
//
// Inside text, "\{" produces a literal brace and "\\" a literal backslash.
// Parse produces an immutable tree; the first syntax error aborts parsing.
package template

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/conneroisu/scriptserv/internal/errors"
)

type parser struct {
	lexer *Lexer
	// open containers, the document root always at index 0
	stack []*[]Node
	loops []*ForLoopNode
}

// Parse builds the node tree for src.
func Parse(src string) (*DocumentNode, error) {
	doc := &DocumentNode{}
	p := &parser{
		lexer: NewLexer(src),
		stack: []*[]Node{&doc.children},
	}
	if err := p.parse(); err != nil {
		return nil, err
	}
	return doc, nil
}

func (p *parser) parse() error {
	for {
		tok, err := p.lexer.Next()
		if err != nil {
			return err
		}

		switch tok.Type {
		case TokenEOF:
			if len(p.loops) > 0 {
				open := p.loops[len(p.loops)-1]
				return p.errorAt(tok, "FOR %s is never closed with END", open.variable.Name)
			}
			return nil
		case TokenText:
			p.append(&TextNode{text: tok.Value})
		case TokenTagOpen:
			if err := p.parseTag(); err != nil {
				return err
			}
		default:
			return p.errorAt(tok, "unexpected %s", tok.Type)
		}
	}
}

func (p *parser) parseTag() error {
	tok, err := p.lexer.Next()
	if err != nil {
		return err
	}

	switch {
	case tok.Type == TokenEquals:
		return p.parseEcho()
	case tok.Type == TokenName && strings.EqualFold(tok.Value, "FOR"):
		return p.parseFor(tok)
	case tok.Type == TokenName && strings.EqualFold(tok.Value, "END"):
		return p.parseEnd(tok)
	case tok.Type == TokenTagClose:
		return p.errorAt(tok, "empty tag")
	default:
		return p.errorAt(tok, "unknown tag %q", tok.Value)
	}
}

func (p *parser) parseFor(forTok Token) error {
	varTok, err := p.lexer.Next()
	if err != nil {
		return err
	}
	if varTok.Type != TokenName {
		return p.errorAt(varTok, "FOR expects a variable name, got %s", varTok.Type)
	}

	var exprs []Element
	for {
		tok, err := p.lexer.Next()
		if err != nil {
			return err
		}
		if tok.Type == TokenTagClose {
			break
		}
		switch tok.Type {
		case TokenName, TokenInteger, TokenDouble, TokenString:
		default:
			return p.errorAt(tok, "invalid FOR expression %s", tok.Type)
		}
		el, err := p.element(tok)
		if err != nil {
			return err
		}
		exprs = append(exprs, el)
	}

	if len(exprs) < 2 || len(exprs) > 3 {
		return p.errorAt(forTok, "FOR expects 2 or 3 expressions, got %d", len(exprs))
	}

	loop := &ForLoopNode{
		variable: VariableElement{Name: varTok.Value},
		start:    exprs[0],
		end:      exprs[1],
	}
	if len(exprs) == 3 {
		loop.step = exprs[2]
	}

	p.append(loop)
	p.stack = append(p.stack, &loop.children)
	p.loops = append(p.loops, loop)
	return nil
}

func (p *parser) parseEnd(endTok Token) error {
	tok, err := p.lexer.Next()
	if err != nil {
		return err
	}
	if tok.Type != TokenTagClose {
		return p.errorAt(tok, "END takes no arguments")
	}
	if len(p.loops) == 0 {
		return p.errorAt(endTok, "END without matching FOR")
	}
	p.stack = p.stack[:len(p.stack)-1]
	p.loops = p.loops[:len(p.loops)-1]
	return nil
}

func (p *parser) parseEcho() error {
	echo := &EchoNode{}
	for {
		tok, err := p.lexer.Next()
		if err != nil {
			return err
		}
		if tok.Type == TokenTagClose {
			break
		}
		el, err := p.element(tok)
		if err != nil {
			return err
		}
		echo.elements = append(echo.elements, el)
	}
	p.append(echo)
	return nil
}

func (p *parser) element(tok Token) (Element, error) {
	switch tok.Type {
	case TokenName:
		return VariableElement{Name: tok.Value}, nil
	case TokenInteger:
		i, err := strconv.ParseInt(tok.Value, 10, 64)
		if err != nil {
			return nil, p.errorAt(tok, "malformed integer %q", tok.Value)
		}
		return IntegerElement{Value: i}, nil
	case TokenDouble:
		f, err := strconv.ParseFloat(tok.Value, 64)
		if err != nil {
			return nil, p.errorAt(tok, "malformed double %q", tok.Value)
		}
		return DoubleElement{Value: f}, nil
	case TokenString:
		return StringElement{Value: tok.Value}, nil
	case TokenOperator:
		if !strings.Contains(operators, tok.Value) || len(tok.Value) != 1 {
			return nil, p.errorAt(tok, "unknown operator %q", tok.Value)
		}
		return OperatorElement{Symbol: tok.Value}, nil
	case TokenFunction:
		return FunctionElement{Name: tok.Value}, nil
	default:
		return nil, p.errorAt(tok, "unexpected %s in tag", tok.Type)
	}
}

func (p *parser) append(n Node) {
	top := p.stack[len(p.stack)-1]
	*top = append(*top, n)
}

func (p *parser) errorAt(tok Token, format string, args ...interface{}) error {
	return errors.NewTemplateError(errors.ErrCodeParse, fmt.Sprintf(format, args...), nil).
		WithLocation("", tok.Line, tok.Column)
}
