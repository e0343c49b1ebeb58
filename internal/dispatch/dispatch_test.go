package dispatch

import (
	"bytes"
	stderrors "errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/scriptserv/internal/errors"
	"github.com/conneroisu/scriptserv/internal/testutils"
	"github.com/conneroisu/scriptserv/internal/webctx"
)

// newTestRoot lays out:
//
//	outside/secret.txt
//	root/index.html
//	root/empty.txt
//	root/data.bin
//	root/hello.smscr
//	root/broken.smscr
//	root/sub/
//	root/private/pages/inner.smscr
//	root/escape -> ../outside/secret.txt
func newTestRoot(t *testing.T) (string, string) {
	t.Helper()
	base := t.TempDir()
	root := filepath.Join(base, "root")
	outside := filepath.Join(base, "outside")

	files := map[string]string{
		filepath.Join(outside, "secret.txt"):                   "top secret",
		filepath.Join(root, "index.html"):                      "<h1>index</h1>",
		filepath.Join(root, "empty.txt"):                       "",
		filepath.Join(root, "data.bin"):                        "\x00\x01\x02",
		filepath.Join(root, "hello.smscr"):                     `Hello {{= "name" "world" @paramGet }}!`,
		filepath.Join(root, "broken.smscr"):                    "{{FOR i 1 2}}never closed",
		filepath.Join(root, "private", "pages", "inner.smscr"): `inner {{= "who" "?" @tparamGet }}`,
	}
	for path, content := range files {
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub"), 0o755))
	require.NoError(t, os.Symlink(filepath.Join(outside, "secret.txt"), filepath.Join(root, "escape")))
	return root, outside
}

func newTestDispatcher(t *testing.T) *Dispatcher {
	t.Helper()
	root, _ := newTestRoot(t)
	d, err := New(Options{
		Root:               root,
		TemplateExtensions: []string{".smscr"},
		Routes:             map[string]string{"/greet": "Greeter"},
	}, nil)
	require.NoError(t, err)

	d.Register("Greeter", WorkerFunc(func(rc *webctx.RequestContext) error {
		_, err := rc.WriteString("greetings")
		return err
	}))
	d.Register("Inner", WorkerFunc(func(rc *webctx.RequestContext) error {
		rc.SetTemporaryParameter("who", "worker")
		return rc.Dispatch("/private/pages/inner.smscr")
	}))
	return d
}

func serve(d *Dispatcher, path string, params map[string]string) (string, error) {
	var buf bytes.Buffer
	rc := webctx.New(&buf, params, nil, webctx.WithDispatcher(d))
	err := d.Serve(rc, path)
	return buf.String(), err
}

func TestServeStaticFile(t *testing.T) {
	d := newTestDispatcher(t)

	out, err := serve(d, "/index.html", nil)
	require.NoError(t, err)
	assert.Equal(t, "HTTP/1.1 200 OK\r\n"+
		"Content-Type: text/html;charset=UTF-8\r\n"+
		"Content-Length: 14\r\n"+
		"\r\n<h1>index</h1>", out)

	out, err = serve(d, "/data.bin", nil)
	require.NoError(t, err)
	assert.Contains(t, out, "Content-Type: application/octet-stream\r\nContent-Length: 3\r\n\r\n")
	assert.True(t, strings.HasSuffix(out, "\x00\x01\x02"))
}

func TestServeEmptyFileStillSendsHeader(t *testing.T) {
	d := newTestDispatcher(t)

	out, err := serve(d, "/empty.txt", nil)
	require.NoError(t, err)
	assert.Equal(t, "HTTP/1.1 200 OK\r\nContent-Type: text/plain;charset=UTF-8\r\nContent-Length: 0\r\n\r\n", out)
}

func TestServeTemplate(t *testing.T) {
	d := newTestDispatcher(t)

	out, err := serve(d, "/hello.smscr", map[string]string{"name": "Ana"})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(out, "\r\n\r\nHello Ana!"))
	assert.Equal(t, 1, strings.Count(out, "HTTP/1.1"))

	out, err = serve(d, "/hello.smscr", nil)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(out, "Hello world!"))

	hits, misses := d.Cache().Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
}

func TestServeErrors(t *testing.T) {
	d := newTestDispatcher(t)

	tests := []struct {
		name   string
		path   string
		status int
	}{
		{"missing file", "/nope.html", 404},
		{"directory", "/sub", 404},
		{"traversal", "/../outside/secret.txt", 403},
		{"deep traversal", "/sub/../../outside/secret.txt", 403},
		{"symlink escape", "/escape", 403},
		{"private direct", "/private/pages/inner.smscr", 404},
		{"private disguised", "/sub/../private/pages/inner.smscr", 404},
		{"unknown worker", "/ext/Nobody", 404},
		{"parse error", "/broken.smscr", 500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := serve(d, tt.path, nil)
			require.Error(t, err)
			assert.Equal(t, tt.status, errors.StatusCode(err))
			assert.NotContains(t, out, "top secret")
		})
	}
}

func TestTraversalVectors(t *testing.T) {
	d := newTestDispatcher(t)

	for _, path := range testutils.SecurityTestCases.PathTraversal {
		t.Run(path, func(t *testing.T) {
			out, err := serve(d, path, nil)
			require.Error(t, err)
			assert.Contains(t, []int{403, 404}, errors.StatusCode(err))
			assert.NotContains(t, out, "top secret")
		})
	}
}

func TestWorkers(t *testing.T) {
	d := newTestDispatcher(t)
	assert.Equal(t, []string{"Greeter", "Inner"}, d.Workers())

	out, err := serve(d, "/ext/Greeter", nil)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(out, "greetings"))

	out, err = serve(d, "/greet", nil)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(out, "greetings"))

	out, err = serve(d, "/ext/Inner", nil)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(out, "inner worker"))
}

func TestWorkerErrorIsWrapped(t *testing.T) {
	d := newTestDispatcher(t)
	d.Register("Failing", WorkerFunc(func(rc *webctx.RequestContext) error {
		return errors.NewNotFoundError("/thing", nil)
	}))

	_, err := serve(d, "/ext/Failing", nil)
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrNotFound))
	assert.Contains(t, err.Error(), "worker Failing")
}

func TestCheckRoutes(t *testing.T) {
	d := newTestDispatcher(t)
	assert.NoError(t, d.CheckRoutes())

	d.routes["/ghost"] = "Ghost"
	err := d.CheckRoutes()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "/ghost -> Ghost")
}

func TestNewRejectsBadRoot(t *testing.T) {
	_, err := New(Options{Root: filepath.Join(t.TempDir(), "missing")}, nil)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))

	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	_, err = New(Options{Root: file}, nil)
	assert.Error(t, err)
}

func TestTemplateCacheReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "t.smscr")
	require.NoError(t, os.WriteFile(path, []byte("one"), 0o644))

	cache := NewTemplateCache()
	info, err := os.Stat(path)
	require.NoError(t, err)

	first, err := cache.Load(path, info)
	require.NoError(t, err)
	again, err := cache.Load(path, info)
	require.NoError(t, err)
	assert.Same(t, first, again)

	require.NoError(t, os.WriteFile(path, []byte("two!"), 0o644))
	later := info.ModTime().Add(time.Second)
	require.NoError(t, os.Chtimes(path, later, later))
	info, err = os.Stat(path)
	require.NoError(t, err)

	reloaded, err := cache.Load(path, info)
	require.NoError(t, err)
	assert.NotSame(t, first, reloaded)
	assert.Equal(t, "two!", reloaded.String())

	assert.True(t, cache.Invalidate(path))
	assert.False(t, cache.Invalidate(path))
	assert.Equal(t, 0, cache.Len())
}

func TestTemplateCacheParseErrorNotCached(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.smscr")
	require.NoError(t, os.WriteFile(path, []byte("{{END}}"), 0o644))
	info, err := os.Stat(path)
	require.NoError(t, err)

	cache := NewTemplateCache()
	_, err = cache.Load(path, info)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeTemplate))
	assert.Equal(t, 0, cache.Len())
}

func TestMimeTable(t *testing.T) {
	table := NewMimeTable(map[string]string{"smscr": "text/html", ".CSV": "text/csv"}, "")

	tests := []struct {
		name     string
		expected string
	}{
		{"a.html", "text/html"},
		{"a.PNG", "image/png"},
		{"report.csv", "text/csv"},
		{"page.smscr", "text/html"},
		{"unknown.xyz", DefaultMimeType},
		{"noext", DefaultMimeType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, table.Lookup(tt.name))
		})
	}
}

func TestRootRel(t *testing.T) {
	dir := t.TempDir()
	root, err := NewRoot(dir)
	require.NoError(t, err)

	rel, ok := root.Rel(filepath.Join(root.Dir(), "a", "b.smscr"))
	assert.True(t, ok)
	assert.Equal(t, "/a/b.smscr", rel)

	_, ok = root.Rel(filepath.Dir(root.Dir()))
	assert.False(t, ok)
}
