//go:build integration
// +build integration

package integration_tests

import (
	"context"
	"encoding/json"
	"io/fs"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/scriptserv/internal/admin"
	"github.com/conneroisu/scriptserv/internal/dispatch"
	"github.com/conneroisu/scriptserv/internal/server"
	"github.com/conneroisu/scriptserv/internal/session"
	"github.com/conneroisu/scriptserv/internal/testutils"
	"github.com/conneroisu/scriptserv/internal/watcher"
	"github.com/conneroisu/scriptserv/internal/workers"
)

// System is the full server stack over a copy of the sample webroot.
type System struct {
	Root       string
	Dispatcher *dispatch.Dispatcher
	Server     *server.Server
	Admin      *admin.Server
	Addr       string
	AdminAddr  string
}

func copyWebroot(t *testing.T) string {
	t.Helper()
	src, err := filepath.Abs(filepath.Join("..", "webroot"))
	require.NoError(t, err)
	dst := t.TempDir()

	err = filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(src, path)
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return os.WriteFile(target, data, 0o644)
	})
	require.NoError(t, err)
	return dst
}

func startSystem(t *testing.T) *System {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	sys := &System{Root: copyWebroot(t)}

	d, err := dispatch.New(dispatch.Options{
		Root:               sys.Root,
		TemplateExtensions: []string{".smscr"},
		Routes:             workers.DefaultRoutes(),
	}, nil)
	require.NoError(t, err)
	workers.Register(d)
	require.NoError(t, d.CheckRoutes())
	sys.Dispatcher = d

	hub := admin.NewHub(nil)
	sessions := session.NewManager(time.Minute, session.WithSweepHook(func(n int) {
		hub.Publish(admin.Event{Type: admin.EventSessionSwept, Count: n})
	}))

	fw, err := watcher.NewFileWatcher(20*time.Millisecond, nil)
	require.NoError(t, err)
	fw.AddFilter(watcher.ExtensionFilter(".smscr"))
	fw.AddHandler(func(events []watcher.ChangeEvent) error {
		for _, ev := range events {
			if d.Cache().Invalidate(ev.Path) {
				rel, _ := d.Root().Rel(ev.Path)
				hub.Publish(admin.Event{Type: admin.EventTemplateInvalidated, Path: rel})
			}
		}
		return nil
	})
	require.NoError(t, fw.AddRecursive(d.Root().Dir()))
	require.NoError(t, fw.Start(ctx))

	sys.Server = server.New(server.Config{Workers: 4, ReadTimeout: 2 * time.Second, WriteTimeout: 2 * time.Second}, d, sessions, nil)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	sys.Addr = ln.Addr().String()
	serveDone := make(chan error, 1)
	go func() { serveDone <- sys.Server.Serve(ctx, ln) }()

	sys.Admin = admin.New("127.0.0.1:0", sys.Server, hub, nil)
	adminLn, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	sys.AdminAddr = adminLn.Addr().String()
	go func() { _ = sys.Admin.Serve(ctx, adminLn) }()

	require.Eventually(t, sys.Server.Running, 2*time.Second, 5*time.Millisecond)

	t.Cleanup(func() {
		cancel()
		fw.Stop()
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		_ = sys.Admin.Shutdown(shutdownCtx)
		assert.NoError(t, <-serveDone)
	})
	return sys
}

func (s *System) get(t *testing.T, target string, headers ...string) (header, body string) {
	t.Helper()
	req := "GET " + target + " HTTP/1.1\r\nHost: localhost\r\n"
	for _, h := range headers {
		req += h + "\r\n"
	}
	return testutils.SplitResponse(t, testutils.RoundTrip(t, s.Addr, req+"\r\n"))
}

var sidPattern = regexp.MustCompile(`sid="([^"]+)"`)

func TestSampleScripts(t *testing.T) {
	sys := startSystem(t)

	header, body := sys.get(t, "/scripts/fibonacci.smscr")
	assert.Contains(t, header, "Content-Type: text/plain;charset=UTF-8")
	assert.Contains(t, body, "r_0: 0\n")
	assert.Contains(t, body, "r_10: 55\n")
	assert.Contains(t, body, "r_25: 75025\n")

	_, body = sys.get(t, "/scripts/zbrajanje.smscr?a=4&b=2")
	assert.Contains(t, body, "<td>a+b=</td><td>6</td>")

	_, body = sys.get(t, "/scripts/osnovni.smscr")
	assert.Contains(t, body, "This is 10-th time")
	assert.Contains(t, body, "sin(2^2) = 0.070")
}

func TestCallCounterAcrossRequests(t *testing.T) {
	sys := startSystem(t)

	header, body := sys.get(t, "/scripts/brojPoziva.smscr")
	assert.Contains(t, body, "Number of calls in this session: 2")
	m := sidPattern.FindStringSubmatch(header)
	require.Len(t, m, 2)

	_, body = sys.get(t, "/scripts/brojPoziva.smscr", `Cookie: sid="`+m[1]+`"`)
	assert.Contains(t, body, "Number of calls in this session: 3")
}

func TestWorkersOverWire(t *testing.T) {
	sys := startSystem(t)

	_, body := sys.get(t, "/calc?a=7&b=5")
	assert.Contains(t, body, "<td>12</td>")
	assert.Contains(t, body, "/images/even.png")

	header, body := sys.get(t, "/setbgcolor?bgcolor=00ff00")
	m := sidPattern.FindStringSubmatch(header)
	require.Len(t, m, 2)
	assert.Contains(t, body, "updated")

	_, body = sys.get(t, "/index2.html", `Cookie: sid="`+m[1]+`"`)
	assert.Contains(t, body, "background-color: #00FF00")

	header, body = sys.get(t, "/cw")
	assert.Contains(t, header, "Content-Type: image/png")
	assert.True(t, strings.HasPrefix(body, "\x89PNG"))

	header, _ = sys.get(t, "/images/odd.png")
	assert.Contains(t, header, "Content-Type: image/png")

	header, _ = sys.get(t, "/private/pages/home.smscr")
	assert.True(t, strings.HasPrefix(header, "HTTP/1.1 404 "))
}

func TestTemplateEditInvalidatesCacheAndNotifies(t *testing.T) {
	sys := startSystem(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws://"+sys.AdminAddr+"/events", nil)
	require.NoError(t, err)
	defer conn.CloseNow()
	require.Eventually(t, func() bool { return sys.Admin.Hub().Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	page := testutils.WriteFile(t, sys.Root, "scripts/live.smscr", "version one")
	_, body := sys.get(t, "/scripts/live.smscr")
	assert.Equal(t, "version one", body)

	require.NoError(t, os.WriteFile(page, []byte("version two, longer"), 0o644))

	for {
		_, data, err := conn.Read(ctx)
		require.NoError(t, err)
		var ev admin.Event
		require.NoError(t, json.Unmarshal(data, &ev))
		if ev.Type == admin.EventTemplateInvalidated && ev.Path == "/scripts/live.smscr" {
			break
		}
	}

	_, body = sys.get(t, "/scripts/live.smscr")
	assert.Equal(t, "version two, longer", body)
}

func TestHealthReportsSessions(t *testing.T) {
	sys := startSystem(t)
	sys.get(t, "/index.html")

	resp, err := http.Get("http://" + sys.AdminAddr + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	var h admin.Health
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&h))
	assert.Equal(t, "healthy", h.Status)
	assert.Equal(t, 1, h.Sessions)
	assert.GreaterOrEqual(t, h.Served, int64(1))
}
