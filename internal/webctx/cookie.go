package webctx

import (
	"fmt"
	"strconv"
	"strings"
)

// Cookie is a cookie registered for the response. Name and Value are
// mandatory. MaxAge follows net/http: zero omits the attribute and a
// negative value sends Max-Age=0.
type Cookie struct {
	Name     string
	Value    string
	Domain   string
	Path     string
	MaxAge   int
	HTTPOnly bool
}

// NewCookie creates a cookie, rejecting an empty name or value.
func NewCookie(name, value string) (Cookie, error) {
	if name == "" {
		return Cookie{}, fmt.Errorf("cookie name is required")
	}
	if value == "" {
		return Cookie{}, fmt.Errorf("cookie %q: value is required", name)
	}
	if strings.ContainsAny(name, "=;, \t\r\n\"") {
		return Cookie{}, fmt.Errorf("cookie name %q contains invalid characters", name)
	}
	if strings.ContainsAny(value, "\";\r\n") {
		return Cookie{}, fmt.Errorf("cookie %q: value contains invalid characters", name)
	}
	return Cookie{Name: name, Value: value}, nil
}

// String renders the Set-Cookie header value:
// name="value"[;Domain=d][;Path=p][;Max-Age=s][;HttpOnly]
func (c Cookie) String() string {
	var sb strings.Builder
	sb.WriteString(c.Name)
	sb.WriteString(`="`)
	sb.WriteString(c.Value)
	sb.WriteByte('"')
	if c.Domain != "" {
		sb.WriteString(";Domain=")
		sb.WriteString(c.Domain)
	}
	if c.Path != "" {
		sb.WriteString(";Path=")
		sb.WriteString(c.Path)
	}
	switch {
	case c.MaxAge > 0:
		sb.WriteString(";Max-Age=")
		sb.WriteString(strconv.Itoa(c.MaxAge))
	case c.MaxAge < 0:
		sb.WriteString(";Max-Age=0")
	}
	if c.HTTPOnly {
		sb.WriteString(";HttpOnly")
	}
	return sb.String()
}
