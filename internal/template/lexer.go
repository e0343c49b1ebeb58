package template

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/conneroisu/scriptserv/internal/errors"
)

// TokenType identifies a lexical token.
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenText
	TokenTagOpen
	TokenTagClose
	TokenName
	TokenEquals
	TokenInteger
	TokenDouble
	TokenString
	TokenOperator
	TokenFunction
)

var tokenNames = [...]string{
	TokenEOF:      "EOF",
	TokenText:     "TEXT",
	TokenTagOpen:  "TAG_OPEN",
	TokenTagClose: "TAG_CLOSE",
	TokenName:     "NAME",
	TokenEquals:   "EQUALS",
	TokenInteger:  "INTEGER",
	TokenDouble:   "DOUBLE",
	TokenString:   "STRING",
	TokenOperator: "OPERATOR",
	TokenFunction: "FUNCTION",
}

// String returns the token type name
func (t TokenType) String() string {
	if int(t) < len(tokenNames) {
		return tokenNames[t]
	}
	return "UNKNOWN"
}

// Token is a lexeme with its position. Value holds the resolved text for
// TokenText and TokenString, and the raw lexeme otherwise.
type Token struct {
	Type   TokenType
	Value  string
	Line   int
	Column int
}

func (t Token) String() string {
	return fmt.Sprintf("%s(%q) at %d:%d", t.Type, t.Value, t.Line, t.Column)
}

// LexerState selects between plain text scanning and tag scanning.
type LexerState int

const (
	StateText LexerState = iota
	StateTag
)

const operators = "+-*/"

// Lexer splits template source into tokens. "{{" switches to tag scanning
// and "}}" switches back.
type Lexer struct {
	src    string
	pos    int
	line   int
	column int
	state  LexerState
}

// NewLexer creates a lexer positioned at the start of src.
func NewLexer(src string) *Lexer {
	return &Lexer{src: src, line: 1, column: 1}
}

// State reports the current scanning state.
func (l *Lexer) State() LexerState { return l.state }

// Next returns the next token. After an error the lexer must not be reused.
func (l *Lexer) Next() (Token, error) {
	if l.state == StateText {
		return l.lexText()
	}
	return l.lexTag()
}

func (l *Lexer) lexText() (Token, error) {
	line, col := l.line, l.column
	if l.pos >= len(l.src) {
		return Token{Type: TokenEOF, Line: line, Column: col}, nil
	}
	if strings.HasPrefix(l.src[l.pos:], "{{") {
		l.advance(2)
		l.state = StateTag
		return Token{Type: TokenTagOpen, Value: "{{", Line: line, Column: col}, nil
	}

	var sb strings.Builder
	for l.pos < len(l.src) && !strings.HasPrefix(l.src[l.pos:], "{{") {
		c := l.src[l.pos]
		if c != '\\' {
			sb.WriteByte(c)
			l.advance(1)
			continue
		}
		if l.pos+1 >= len(l.src) {
			return Token{}, l.errorf("unterminated escape at end of text")
		}
		next := l.src[l.pos+1]
		if next != '\\' && next != '{' {
			return Token{}, l.errorf("invalid escape %q in text", "\\"+string(next))
		}
		sb.WriteByte(next)
		l.advance(2)
	}
	return Token{Type: TokenText, Value: sb.String(), Line: line, Column: col}, nil
}

func (l *Lexer) lexTag() (Token, error) {
	l.skipSpace()
	line, col := l.line, l.column
	if l.pos >= len(l.src) {
		return Token{}, l.errorf("unterminated tag")
	}

	if strings.HasPrefix(l.src[l.pos:], "}}") {
		l.advance(2)
		l.state = StateText
		return Token{Type: TokenTagClose, Value: "}}", Line: line, Column: col}, nil
	}

	r, _ := utf8.DecodeRuneInString(l.src[l.pos:])
	switch {
	case r == '=':
		l.advance(1)
		return Token{Type: TokenEquals, Value: "=", Line: line, Column: col}, nil
	case r == '"':
		s, err := l.lexString()
		if err != nil {
			return Token{}, err
		}
		return Token{Type: TokenString, Value: s, Line: line, Column: col}, nil
	case r == '@':
		l.advance(1)
		first, _ := utf8.DecodeRuneInString(l.src[l.pos:])
		if !unicode.IsLetter(first) {
			return Token{}, l.errorf("invalid function name")
		}
		return Token{Type: TokenFunction, Value: l.lexName(), Line: line, Column: col}, nil
	case unicode.IsLetter(r):
		return Token{Type: TokenName, Value: l.lexName(), Line: line, Column: col}, nil
	case isDigit(r) || (r == '-' && isDigit(l.peekByte(1))):
		return l.lexNumber(line, col)
	case strings.ContainsRune(operators, r):
		l.advance(1)
		return Token{Type: TokenOperator, Value: string(r), Line: line, Column: col}, nil
	case unicode.IsPunct(r) || unicode.IsSymbol(r):
		return Token{}, l.errorf("unknown operator %q", r)
	default:
		return Token{}, l.errorf("unexpected character %q in tag", r)
	}
}

func (l *Lexer) lexName() string {
	start := l.pos
	for l.pos < len(l.src) {
		r, w := utf8.DecodeRuneInString(l.src[l.pos:])
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			break
		}
		l.advance(w)
	}
	return l.src[start:l.pos]
}

func (l *Lexer) lexNumber(line, col int) (Token, error) {
	start := l.pos
	if l.src[l.pos] == '-' {
		l.advance(1)
	}
	l.digits()

	isDouble := false
	if l.peekByte(0) == '.' {
		isDouble = true
		l.advance(1)
		if l.digits() == 0 {
			return Token{}, l.errorf("malformed number %q", l.src[start:l.pos])
		}
	}
	if c := l.peekByte(0); c == 'e' || c == 'E' {
		isDouble = true
		l.advance(1)
		if c := l.peekByte(0); c == '+' || c == '-' {
			l.advance(1)
		}
		if l.digits() == 0 {
			return Token{}, l.errorf("malformed number %q", l.src[start:l.pos])
		}
	}

	if l.pos < len(l.src) {
		r, _ := utf8.DecodeRuneInString(l.src[l.pos:])
		if r == '.' || r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r) {
			return Token{}, l.errorf("malformed number %q", l.src[start:l.pos+1])
		}
	}

	lexeme := l.src[start:l.pos]
	if isDouble {
		if _, err := strconv.ParseFloat(lexeme, 64); err != nil {
			return Token{}, l.errorf("malformed number %q", lexeme)
		}
		return Token{Type: TokenDouble, Value: lexeme, Line: line, Column: col}, nil
	}
	if _, err := strconv.ParseInt(lexeme, 10, 64); err != nil {
		return Token{}, l.errorf("malformed number %q", lexeme)
	}
	return Token{Type: TokenInteger, Value: lexeme, Line: line, Column: col}, nil
}

func (l *Lexer) lexString() (string, error) {
	l.advance(1)
	var sb strings.Builder
	for {
		if l.pos >= len(l.src) {
			return "", l.errorf("unterminated string")
		}
		c := l.src[l.pos]
		switch c {
		case '"':
			l.advance(1)
			return sb.String(), nil
		case '\\':
			if l.pos+1 >= len(l.src) {
				return "", l.errorf("unterminated string")
			}
			switch l.src[l.pos+1] {
			case '\\':
				sb.WriteByte('\\')
			case '"':
				sb.WriteByte('"')
			case 'n':
				sb.WriteByte('\n')
			case 'r':
				sb.WriteByte('\r')
			case 't':
				sb.WriteByte('\t')
			default:
				return "", l.errorf("invalid escape %q in string", l.src[l.pos:l.pos+2])
			}
			l.advance(2)
		default:
			sb.WriteByte(c)
			l.advance(1)
		}
	}
}

func (l *Lexer) digits() int {
	n := 0
	for l.pos < len(l.src) && isDigit(rune(l.src[l.pos])) {
		l.advance(1)
		n++
	}
	return n
}

func (l *Lexer) skipSpace() {
	for l.pos < len(l.src) {
		switch l.src[l.pos] {
		case ' ', '\t', '\r', '\n':
			l.advance(1)
		default:
			return
		}
	}
}

// advance moves n bytes forward, tracking line and rune column.
func (l *Lexer) advance(n int) {
	for i := 0; i < n && l.pos < len(l.src); i++ {
		c := l.src[l.pos]
		l.pos++
		switch {
		case c == '\n':
			l.line++
			l.column = 1
		case c&0xC0 != 0x80:
			l.column++
		}
	}
}

func (l *Lexer) peekByte(offset int) rune {
	if l.pos+offset >= len(l.src) {
		return 0
	}
	return rune(l.src[l.pos+offset])
}

func (l *Lexer) errorf(format string, args ...interface{}) error {
	return errors.NewTemplateError(errors.ErrCodeParse, fmt.Sprintf(format, args...), nil).
		WithLocation("", l.line, l.column)
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}
