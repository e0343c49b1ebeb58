package engine

import (
	"bytes"
	"context"
	stderrors "errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/scriptserv/internal/errors"
	"github.com/conneroisu/scriptserv/internal/template"
	"github.com/conneroisu/scriptserv/internal/value"
	"github.com/conneroisu/scriptserv/internal/webctx"
)

// fakeContext records output and parameter changes without a response header.
type fakeContext struct {
	out        strings.Builder
	mime       string
	params     map[string]string
	persistent map[string]string
	temporary  map[string]string
}

func newFakeContext() *fakeContext {
	return &fakeContext{
		params:     map[string]string{},
		persistent: map[string]string{},
		temporary:  map[string]string{},
	}
}

func (f *fakeContext) WriteString(s string) (int, error) { return f.out.WriteString(s) }
func (f *fakeContext) SetMimeType(m string)              { f.mime = m }
func (f *fakeContext) Parameter(n string) (string, bool) {
	v, ok := f.params[n]
	return v, ok
}
func (f *fakeContext) PersistentParameter(n string) (string, bool) {
	v, ok := f.persistent[n]
	return v, ok
}
func (f *fakeContext) SetPersistentParameter(n, v string) { f.persistent[n] = v }
func (f *fakeContext) RemovePersistentParameter(n string) { delete(f.persistent, n) }
func (f *fakeContext) TemporaryParameter(n string) (string, bool) {
	v, ok := f.temporary[n]
	return v, ok
}
func (f *fakeContext) SetTemporaryParameter(n, v string) { f.temporary[n] = v }
func (f *fakeContext) RemoveTemporaryParameter(n string) { delete(f.temporary, n) }

func run(t *testing.T, src string, rc Context) error {
	t.Helper()
	doc, err := template.Parse(src)
	require.NoError(t, err)
	return New().Execute(context.Background(), doc, rc)
}

func render(t *testing.T, src string) string {
	t.Helper()
	rc := newFakeContext()
	require.NoError(t, run(t, src, rc))
	return rc.out.String()
}

func TestExecuteOutput(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		expected string
	}{
		{"text only", "Hello, world!", "Hello, world!"},
		{"escaped text", `a \{{ b \\ c`, `a {{ b \ c`},
		{"integer sum", "{{= 1 2 + }}", "3"},
		{"float promotion", `{{= 1 "2.0" + }}`, "3.0"},
		{"string integer", `{{= 1 "2" + }}`, "3"},
		{"operand order", "{{= 10 4 - }}", "6"},
		{"integer division", "{{= 7 2 / }}", "3"},
		{"float division by zero", "{{= 1.0 0 / }}", "+Inf"},
		{"leftover top first", `{{= "a" "b" "c" }}`, "cba"},
		{"string literal", `{{= "line\n" }}`, "line\n"},
		{"simple loop", "{{FOR i 1 3}}{{= i }} {{END}}", "1 2 3 "},
		{"loop with step", "{{FOR i 0 10 5}}{{= i }},{{END}}", "0,5,10,"},
		{"loop not entered", "{{FOR i 3 1}}x{{END}}", ""},
		{"negative step", "{{FOR i 3 1 -1}}x{{END}}", ""},
		{"float loop", "{{FOR x 0.5 1.5 0.5}}{{= x }};{{END}}", "0.5;1.0;1.5;"},
		{"string bounds", `{{FOR i "1" "2"}}{{= i }}{{END}}`, "12"},
		{"nested shadowing", "{{FOR i 1 2}}[{{FOR i 5 6}}{{= i }}{{END}}{{= i }}]{{END}}", "[565][566]"},
		{"loop bound from variable", "{{FOR i 1 2}}{{FOR j 1 i}}{{= j }}{{END}}|{{END}}", "1|12|"},
		{"case insensitive tags", "{{for i 1 2}}{{= i }}{{end}}", "12"},
		{"dup", "{{= 2 @dup * }}", "4"},
		{"swap", "{{= 1 2 @swap - }}", "1"},
		{"sin", "{{= 90 @sin }}", "1.0"},
		{"decfmt", `{{= 3.14159 "0.000" @decfmt }}`, "3.142"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, render(t, tt.src))
		})
	}
}

func TestExecuteErrors(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		errType errors.ErrorType
		code    string
	}{
		{"integer division by zero", "{{= 1 0 / }}", errors.ErrorTypeArithmetic, errors.ErrCodeDivideByZero},
		{"unparsable string", `{{= "abc" 1 + }}`, errors.ErrorTypeArithmetic, errors.ErrCodeCoercion},
		{"stack underflow", "{{= 1 + }}", errors.ErrorTypeTemplate, errors.ErrCodeExecution},
		{"unknown function", "{{= @nope }}", errors.ErrorTypeTemplate, errors.ErrCodeExecution},
		{"undefined variable", "{{= x }}", errors.ErrorTypeTemplate, errors.ErrCodeExecution},
		{"endless loop", "{{FOR i 1 3 0}}x{{END}}", errors.ErrorTypeTemplate, errors.ErrCodeExecution},
		{"endless negative loop", "{{FOR i 1 3 -1}}x{{END}}", errors.ErrorTypeTemplate, errors.ErrCodeExecution},
		{"integer overflow", "{{= 9223372036854775807 1 + }}", errors.ErrorTypeArithmetic, errors.ErrCodeOverflow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := run(t, tt.src, newFakeContext())
			require.Error(t, err)

			var se *errors.ServerError
			require.True(t, stderrors.As(err, &se))
			assert.Equal(t, tt.errType, se.Type)
			assert.Equal(t, tt.code, se.Code)
			assert.Equal(t, 500, errors.StatusCode(err))
		})
	}
}

func TestExecuteStopsOnError(t *testing.T) {
	rc := newFakeContext()
	err := run(t, "before{{= 1 0 / }}after", rc)
	require.Error(t, err)
	assert.Equal(t, "before", rc.out.String())
}

func TestExecuteCancelled(t *testing.T) {
	doc, err := template.Parse("{{FOR i 1 1000000}}x{{END}}")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = New().Execute(ctx, doc, newFakeContext())
	assert.ErrorIs(t, err, context.Canceled)
}

func TestForLoopAtIntegerLimit(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		expected string
	}{
		{"ends at max", "{{FOR i 9223372036854775806 9223372036854775807}}x{{END}}", "xx"},
		{"large step", "{{FOR i 9223372036854775800 9223372036854775807 5}}{{= i}},{{END}}", "9223372036854775800,9223372036854775805,"},
		{"starts at min", "{{FOR i -9223372036854775808 -9223372036854775807}}x{{END}}", "xx"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := template.Parse(tt.src)
			require.NoError(t, err)

			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()

			rc := newFakeContext()
			require.NoError(t, New().Execute(ctx, doc, rc))
			assert.Equal(t, tt.expected, rc.out.String())
		})
	}
}

func TestParameterBuiltins(t *testing.T) {
	rc := newFakeContext()
	rc.params["name"] = "Ana"
	rc.params["empty"] = ""
	rc.persistent["bgcolor"] = "00FF00"

	src := `{{= "name" "?" @paramGet }}|` +
		`{{= "missing" "dflt" @paramGet }}|` +
		`{{= "empty" "dflt" @paramGet }}|` +
		`{{= "bgcolor" "7F7F7F" @pparamGet }}|` +
		`{{= 42 "answer" @tparamSet "answer" 0 @tparamGet }}|` +
		`{{= "x" "saved" @pparamSet "bgcolor" @pparamDel }}` +
		`{{= "answer" @tparamDel "answer" "gone" @tparamGet }}`

	require.NoError(t, run(t, src, rc))
	assert.Equal(t, "Ana|dflt||00FF00|42|gone", rc.out.String())
	assert.Equal(t, map[string]string{"saved": "x"}, rc.persistent)
	assert.Empty(t, rc.temporary)
}

func TestSetMimeTypeBuiltin(t *testing.T) {
	rc := newFakeContext()
	require.NoError(t, run(t, `{{= "text/plain" @setMimeType }}`, rc))
	assert.Equal(t, "text/plain", rc.mime)
	assert.Empty(t, rc.out.String())
}

func TestRegisterCustomFunction(t *testing.T) {
	e := New()
	e.Register("upper", func(stack *Stack, _ Context) error {
		v, err := stack.Pop()
		if err != nil {
			return err
		}
		stack.Push(value.String(strings.ToUpper(v.String())))
		return nil
	})
	assert.Contains(t, e.Functions(), "upper")

	doc, err := template.Parse(`{{= "shout" @upper }}`)
	require.NoError(t, err)
	rc := newFakeContext()
	require.NoError(t, e.Execute(context.Background(), doc, rc))
	assert.Equal(t, "SHOUT", rc.out.String())
}

func TestFormatDecimal(t *testing.T) {
	tests := []struct {
		f        float64
		pattern  string
		expected string
	}{
		{3.14159, "0.000", "3.142"},
		{2, "0.00", "2.00"},
		{2.5, "#.##", "2.5"},
		{7, "0", "7"},
	}

	for _, tt := range tests {
		t.Run(tt.pattern, func(t *testing.T) {
			assert.Equal(t, tt.expected, FormatDecimal(tt.f, tt.pattern))
		})
	}
}

// Header emission through a real request context: text and echo output
// must both land after exactly one header.
func TestExecuteWithRequestContext(t *testing.T) {
	var buf bytes.Buffer
	rc := webctx.New(&buf, map[string]string{"n": "3"}, nil)

	doc, err := template.Parse(`{{= "text/plain" @setMimeType }}{{FOR i 1 3}}{{= i }}{{END}}{{= "n" 0 @paramGet }}`)
	require.NoError(t, err)
	require.NoError(t, New().Execute(context.Background(), doc, rc))

	out := buf.String()
	assert.Equal(t, 1, strings.Count(out, "HTTP/1.1 200 OK\r\n"))
	assert.True(t, strings.HasSuffix(out, "Content-Type: text/plain;charset=UTF-8\r\n\r\n1233"))
}
