// Package protocol parses the subset of HTTP/1.1 the server speaks: a single
// GET request per connection, header folding, query parameters and an
// optional Content-Length body.
package protocol

import (
	"bufio"
	stderrors "errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/conneroisu/scriptserv/internal/errors"
)

// DefaultMaxHeaderBytes bounds the header block when no limit is configured.
const DefaultMaxHeaderBytes = 64 << 10

// header terminator scanner states
const (
	stScan = iota // scanning
	stCR          // seen CR
	stCRLF        // seen CR LF
	stEnd         // seen CR LF CR, or a bare LF
)

// ReadHeader reads bytes from r until CR LF CR LF (or LF LF) and returns them,
// terminator included. limit <= 0 selects DefaultMaxHeaderBytes.
func ReadHeader(r io.ByteReader, limit int) ([]byte, error) {
	if limit <= 0 {
		limit = DefaultMaxHeaderBytes
	}

	buf := make([]byte, 0, 512)
	state := stScan
	for {
		b, err := r.ReadByte()
		if err != nil {
			if stderrors.Is(err, io.EOF) {
				return nil, errIncomplete
			}
			if stderrors.Is(err, os.ErrDeadlineExceeded) {
				return nil, errTimeout
			}
			return nil, errors.WrapIO(err, "ERR_READ", "reading request header")
		}

		buf = append(buf, b)
		if len(buf) > limit {
			return nil, errHeaderTooBig
		}

		switch state {
		case stScan:
			if b == '\r' {
				state = stCR
			} else if b == '\n' {
				state = stEnd
			}
		case stCR:
			if b == '\n' {
				state = stCRLF
			} else {
				state = stScan
			}
		case stCRLF:
			if b == '\r' {
				state = stEnd
			} else {
				state = stScan
			}
		case stEnd:
			if b == '\n' {
				return buf, nil
			}
			state = stScan
		}
	}
}

// HeaderLines splits a header block into logical lines. A line starting with
// a space or tab continues the previous logical line. Empty lines are dropped.
func HeaderLines(block []byte) []string {
	var lines []string
	for _, raw := range strings.Split(string(block), "\n") {
		line := strings.TrimSuffix(raw, "\r")
		if line == "" {
			continue
		}
		if (line[0] == ' ' || line[0] == '\t') && len(lines) > 0 {
			lines[len(lines)-1] += line
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

// ParseRequest parses a header block as returned by ReadHeader.
func ParseRequest(block []byte) (*Request, error) {
	lines := HeaderLines(block)
	if len(lines) == 0 {
		return nil, errEmpty
	}

	parts := strings.Fields(lines[0])
	if len(parts) != 3 {
		return nil, malformed(fmt.Sprintf("invalid request line %q", lines[0]))
	}
	method, target, version := parts[0], parts[1], parts[2]
	if method != MethodGet {
		return nil, unsupported(fmt.Sprintf("method %q not supported", method))
	}
	if version != Version {
		return nil, unsupported(fmt.Sprintf("protocol %q not supported", version))
	}

	rawPath, query, _ := strings.Cut(target, "?")
	if !strings.HasPrefix(rawPath, "/") {
		return nil, malformed(fmt.Sprintf("invalid request target %q", target))
	}
	path, err := url.PathUnescape(rawPath)
	if err != nil {
		return nil, malformed(fmt.Sprintf("invalid path encoding %q", rawPath))
	}

	headers := make([]Header, 0, len(lines)-1)
	for _, line := range lines[1:] {
		name, val, ok := strings.Cut(line, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, malformed(fmt.Sprintf("invalid header line %q", line))
		}
		headers = append(headers, Header{Name: name, Value: strings.TrimSpace(val)})
	}

	return &Request{
		Method:  method,
		Target:  target,
		Path:    path,
		Query:   query,
		Version: version,
		Headers: headers,
		Params:  ParseQuery(query),
	}, nil
}

// ParseQuery splits a query string on '&' and then on the first '='. Pairs
// without '=' are dropped and later keys win. Values are percent-decoded
// when possible and kept raw otherwise.
func ParseQuery(query string) map[string]string {
	params := make(map[string]string)
	if query == "" {
		return params
	}
	for _, pair := range strings.Split(query, "&") {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || k == "" {
			continue
		}
		params[unescape(k)] = unescape(v)
	}
	return params
}

func unescape(s string) string {
	if u, err := url.QueryUnescape(s); err == nil {
		return u
	}
	return s
}

// Read reads and parses one request from r, including a Content-Length body
// of at most maxBody bytes.
func Read(r *bufio.Reader, maxHeader int, maxBody int64) (*Request, error) {
	block, err := ReadHeader(r, maxHeader)
	if err != nil {
		return nil, err
	}
	req, err := ParseRequest(block)
	if err != nil {
		return nil, err
	}

	cl, ok := req.Header("Content-Length")
	if !ok {
		return req, nil
	}
	n, err := strconv.ParseInt(strings.TrimSpace(cl), 10, 64)
	if err != nil || n < 0 {
		return nil, malformed(fmt.Sprintf("invalid Content-Length %q", cl))
	}
	if n > maxBody {
		return nil, malformed("request body too large")
	}
	if n > 0 {
		req.Body = make([]byte, n)
		if _, err := io.ReadFull(r, req.Body); err != nil {
			return nil, malformed("request body truncated")
		}
	}
	return req, nil
}
