// Package testutils holds fixtures shared by package tests.
package testutils

import (
	"bufio"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// CreateTempRoot creates a document root holding files, keyed by
// slash-separated paths relative to the root.
func CreateTempRoot(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		WriteFile(t, root, rel, content)
	}
	return root
}

// WriteFile writes content to root/rel, creating parent directories.
func WriteFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// StandardPages are the private pages the built-in workers dispatch to,
// reduced to the parameters they print.
var StandardPages = map[string]string{
	"private/pages/calc.smscr": `{{= "varA" 0 @tparamGet }}+{{= "varB" 0 @tparamGet }}={{= "zbroj" 0 @tparamGet }} {{= "imgName" "" @tparamGet }}`,
	"private/pages/home.smscr": `bg={{= "background" "" @tparamGet }}`,
}

// RoundTrip sends raw to addr, half-closes the write side and returns
// everything the server sends back before closing.
func RoundTrip(t *testing.T, addr, raw string) string {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))

	_, err = io.WriteString(conn, raw)
	require.NoError(t, err)
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.CloseWrite()
	}

	out, err := io.ReadAll(bufio.NewReader(conn))
	require.NoError(t, err)
	return string(out)
}

// SplitResponse separates a raw response into header block and body.
func SplitResponse(t *testing.T, resp string) (header, body string) {
	t.Helper()
	header, body, found := strings.Cut(resp, "\r\n\r\n")
	require.True(t, found, "response has no header terminator: %q", resp)
	return header, body
}

// SecurityTestCases provides request paths that must never leave the
// document root.
var SecurityTestCases = struct {
	PathTraversal []string
}{
	PathTraversal: []string{
		"/../../../etc/passwd",
		"/./../../etc/passwd",
		"/../../../../../etc/passwd",
		"/sub/../../outside/secret.txt",
		"/..",
	},
}
