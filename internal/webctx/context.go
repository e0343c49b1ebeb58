// Package webctx holds the per-request state a handler or template sees:
// request, session and temporary parameters, response cookies and response
// metadata. The response header is generated on the first write; from then
// on status, MIME type, encoding, content length and cookies are frozen and
// changing them panics with a *errors.UsageError.
package webctx

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"

	"github.com/conneroisu/scriptserv/internal/errors"
	"github.com/conneroisu/scriptserv/internal/protocol"
)

const (
	DefaultMimeType = "text/html"
	DefaultEncoding = "UTF-8"
)

// Dispatcher routes a path on behalf of a running request. Calls made
// through RequestContext.Dispatch are internal and may reach private paths.
type Dispatcher interface {
	Dispatch(rc *RequestContext, path string) error
}

// RequestContext is owned by the goroutine serving one request and is not
// safe for concurrent use. The persistent store is the exception: it belongs
// to the session and synchronizes itself.
type RequestContext struct {
	out        io.Writer
	params     map[string]string
	persistent ParamStore
	temporary  map[string]string
	cookies    []Cookie
	dispatcher Dispatcher
	ctx        context.Context

	statusCode    int
	statusText    string
	mimeType      string
	encodingName  string
	encoder       *encoding.Encoder
	contentLength int64

	headerGenerated bool
}

// Option configures a RequestContext.
type Option func(*RequestContext)

// WithDispatcher enables RequestContext.Dispatch.
func WithDispatcher(d Dispatcher) Option {
	return func(rc *RequestContext) { rc.dispatcher = d }
}

// WithContext attaches the request's context.
func WithContext(ctx context.Context) Option {
	return func(rc *RequestContext) { rc.ctx = ctx }
}

// WithCookies registers cookies up front.
func WithCookies(cookies ...Cookie) Option {
	return func(rc *RequestContext) { rc.cookies = append(rc.cookies, cookies...) }
}

// New creates a context writing to out. params is copied; a nil persistent
// store is replaced by an empty one.
func New(out io.Writer, params map[string]string, persistent ParamStore, opts ...Option) *RequestContext {
	if persistent == nil {
		persistent = NewParams()
	}
	copied := make(map[string]string, len(params))
	for k, v := range params {
		copied[k] = v
	}

	rc := &RequestContext{
		out:           out,
		params:        copied,
		persistent:    persistent,
		temporary:     make(map[string]string),
		statusCode:    200,
		statusText:    protocol.StatusText(200),
		mimeType:      DefaultMimeType,
		encodingName:  DefaultEncoding,
		contentLength: -1,
		ctx:           context.Background(),
	}
	for _, opt := range opts {
		opt(rc)
	}
	return rc
}

// Context returns the request's context.
func (rc *RequestContext) Context() context.Context { return rc.ctx }

// Parameter returns a request parameter.
func (rc *RequestContext) Parameter(name string) (string, bool) {
	v, ok := rc.params[name]
	return v, ok
}

// ParameterNames returns the request parameter names in sorted order.
func (rc *RequestContext) ParameterNames() []string {
	return sortedKeys(rc.params)
}

// PersistentParameter returns a session parameter.
func (rc *RequestContext) PersistentParameter(name string) (string, bool) {
	return rc.persistent.Get(name)
}

// SetPersistentParameter stores a session parameter.
func (rc *RequestContext) SetPersistentParameter(name, value string) {
	rc.persistent.Set(name, value)
}

// RemovePersistentParameter deletes a session parameter.
func (rc *RequestContext) RemovePersistentParameter(name string) {
	rc.persistent.Delete(name)
}

// PersistentParameterNames returns the session parameter names.
func (rc *RequestContext) PersistentParameterNames() []string {
	return rc.persistent.Names()
}

// TemporaryParameter returns a request-scoped parameter.
func (rc *RequestContext) TemporaryParameter(name string) (string, bool) {
	v, ok := rc.temporary[name]
	return v, ok
}

// SetTemporaryParameter stores a request-scoped parameter.
func (rc *RequestContext) SetTemporaryParameter(name, value string) {
	rc.temporary[name] = value
}

// RemoveTemporaryParameter deletes a request-scoped parameter.
func (rc *RequestContext) RemoveTemporaryParameter(name string) {
	delete(rc.temporary, name)
}

// TemporaryParameterNames returns the request-scoped parameter names.
func (rc *RequestContext) TemporaryParameterNames() []string {
	return sortedKeys(rc.temporary)
}

// AddCookie registers a cookie for the response header.
func (rc *RequestContext) AddCookie(c Cookie) {
	errors.MustNotCommit(rc.headerGenerated, "AddCookie")
	rc.cookies = append(rc.cookies, c)
}

// Cookies returns the registered cookies.
func (rc *RequestContext) Cookies() []Cookie {
	out := make([]Cookie, len(rc.cookies))
	copy(out, rc.cookies)
	return out
}

// SetStatusCode sets the status code and its standard reason phrase.
func (rc *RequestContext) SetStatusCode(code int) {
	errors.MustNotCommit(rc.headerGenerated, "SetStatusCode")
	rc.statusCode = code
	rc.statusText = protocol.StatusText(code)
}

// SetStatusText overrides the reason phrase.
func (rc *RequestContext) SetStatusText(text string) {
	errors.MustNotCommit(rc.headerGenerated, "SetStatusText")
	rc.statusText = text
}

// SetMimeType sets the Content-Type media type.
func (rc *RequestContext) SetMimeType(mime string) {
	errors.MustNotCommit(rc.headerGenerated, "SetMimeType")
	rc.mimeType = mime
}

// SetEncoding selects the charset used by WriteString. Unknown charset names
// are rejected.
func (rc *RequestContext) SetEncoding(name string) error {
	errors.MustNotCommit(rc.headerGenerated, "SetEncoding")
	if _, err := lookupEncoding(name); err != nil {
		return err
	}
	rc.encodingName = name
	return nil
}

// SetContentLength announces the body length. A negative length omits the header.
func (rc *RequestContext) SetContentLength(n int64) {
	errors.MustNotCommit(rc.headerGenerated, "SetContentLength")
	rc.contentLength = n
}

// StatusCode returns the response status code.
func (rc *RequestContext) StatusCode() int { return rc.statusCode }

// MimeType returns the response media type.
func (rc *RequestContext) MimeType() string { return rc.mimeType }

// Encoding returns the response charset name.
func (rc *RequestContext) Encoding() string { return rc.encodingName }

// HeaderGenerated reports whether the header has been written.
func (rc *RequestContext) HeaderGenerated() bool { return rc.headerGenerated }

// WriteHeader emits the header if it has not been written yet. Handlers
// that may produce an empty body call it to guarantee a response.
func (rc *RequestContext) WriteHeader() error {
	if rc.headerGenerated {
		return nil
	}
	return rc.writeHeader()
}

// Write writes body bytes, emitting the header first if needed.
func (rc *RequestContext) Write(p []byte) (int, error) {
	if !rc.headerGenerated {
		if err := rc.writeHeader(); err != nil {
			return 0, err
		}
	}
	return rc.out.Write(p)
}

// WriteString encodes s in the response charset and writes it.
func (rc *RequestContext) WriteString(s string) (int, error) {
	if !rc.headerGenerated {
		if err := rc.writeHeader(); err != nil {
			return 0, err
		}
	}
	if rc.encoder == nil {
		return io.WriteString(rc.out, s)
	}
	b, err := rc.encoder.Bytes([]byte(s))
	if err != nil {
		return 0, errors.WrapIO(err, "ERR_ENCODE", "encoding response text")
	}
	return rc.out.Write(b)
}

// Dispatch routes path internally through the configured dispatcher.
func (rc *RequestContext) Dispatch(path string) error {
	if rc.dispatcher == nil {
		return errors.NewNotFoundError(path, fmt.Errorf("no dispatcher configured"))
	}
	return rc.dispatcher.Dispatch(rc, path)
}

// writeHeader emits, in order: status line, Content-Type, Content-Length
// and one Set-Cookie per cookie, then the blank line.
func (rc *RequestContext) writeHeader() error {
	enc, err := lookupEncoding(rc.encodingName)
	if err != nil {
		return err
	}
	if enc != unicode.UTF8 && enc != encoding.Nop {
		rc.encoder = encoding.ReplaceUnsupported(enc.NewEncoder())
	}
	rc.headerGenerated = true

	var sb strings.Builder
	sb.WriteString(protocol.StatusLine(rc.statusCode, rc.statusText))
	sb.WriteString("Content-Type: ")
	sb.WriteString(rc.mimeType)
	if strings.HasPrefix(rc.mimeType, "text/") {
		sb.WriteString(";charset=")
		sb.WriteString(rc.encodingName)
	}
	sb.WriteString("\r\n")
	if rc.contentLength >= 0 {
		sb.WriteString("Content-Length: ")
		sb.WriteString(strconv.FormatInt(rc.contentLength, 10))
		sb.WriteString("\r\n")
	}
	for _, c := range rc.cookies {
		sb.WriteString("Set-Cookie: ")
		sb.WriteString(c.String())
		sb.WriteString("\r\n")
	}
	sb.WriteString("\r\n")

	if _, err := io.WriteString(rc.out, sb.String()); err != nil {
		return errors.WrapIO(err, "ERR_WRITE", "writing response header")
	}
	return nil
}

func lookupEncoding(name string) (encoding.Encoding, error) {
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, errors.NewConfigError(fmt.Sprintf("unknown charset %q", name), err)
	}
	return enc, nil
}
