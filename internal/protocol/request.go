package protocol

import (
	"net"
	"strings"
)

const (
	// Version is the only protocol version accepted.
	Version = "HTTP/1.1"
	// MethodGet is the only method accepted.
	MethodGet = "GET"
)

// Header is one logical header line, continuation lines already folded in.
type Header struct {
	Name  string
	Value string
}

// Request is a parsed request. It is not modified after ParseRequest returns.
type Request struct {
	Method  string
	Target  string
	Path    string
	Query   string
	Version string
	Headers []Header
	Params  map[string]string
	Body    []byte
}

// Header returns the value of the first header named name, compared
// case-insensitively.
func (r *Request) Header(name string) (string, bool) {
	for _, h := range r.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value, true
		}
	}
	return "", false
}

// HeaderValues returns the values of every header named name, in order.
func (r *Request) HeaderValues(name string) []string {
	var out []string
	for _, h := range r.Headers {
		if strings.EqualFold(h.Name, name) {
			out = append(out, h.Value)
		}
	}
	return out
}

// Host returns the Host header with any port removed.
func (r *Request) Host() (string, bool) {
	v, ok := r.Header("Host")
	if !ok {
		return "", false
	}
	return StripPort(strings.TrimSpace(v)), true
}

// StripPort removes a trailing ":port" from host, keeping IPv6 literals intact.
func StripPort(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
}

// Cookies returns the values of every cookie called name across all Cookie
// headers, in the order they were sent. Surrounding quotes are removed.
func (r *Request) Cookies(name string) []string {
	var out []string
	for _, line := range r.HeaderValues("Cookie") {
		for _, part := range strings.Split(line, ";") {
			k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
			if !ok || strings.TrimSpace(k) != name {
				continue
			}
			v = strings.TrimSpace(v)
			if len(v) >= 2 && v[0] == '"' && v[len(v)-1] == '"' {
				v = v[1 : len(v)-1]
			}
			out = append(out, v)
		}
	}
	return out
}
