package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventTypeString(t *testing.T) {
	testCases := []struct {
		eventType EventType
		expected  string
	}{
		{EventTypeCreated, "created"},
		{EventTypeModified, "modified"},
		{EventTypeDeleted, "deleted"},
		{EventTypeRenamed, "renamed"},
		{EventType(42), "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.eventType.String())
		})
	}
}

func TestEventTypeFromOp(t *testing.T) {
	assert.Equal(t, EventTypeCreated, eventType(fsnotify.Create))
	assert.Equal(t, EventTypeModified, eventType(fsnotify.Write))
	assert.Equal(t, EventTypeDeleted, eventType(fsnotify.Remove))
	assert.Equal(t, EventTypeRenamed, eventType(fsnotify.Rename))
	assert.Equal(t, EventTypeModified, eventType(fsnotify.Chmod))
}

func TestFilters(t *testing.T) {
	templates := ExtensionFilter("smscr", ".HTML")

	testCases := []struct {
		path     string
		template bool
		visible  bool
	}{
		{"/root/index.smscr", true, true},
		{"/root/page.html", true, true},
		{"/root/Page.SMSCR", true, true},
		{"/root/style.css", false, true},
		{"/root/.index.smscr.swp", false, false},
		{"/root/index.smscr~", false, false},
	}

	for _, tc := range testCases {
		t.Run(tc.path, func(t *testing.T) {
			assert.Equal(t, tc.template, templates(tc.path))
			assert.Equal(t, tc.visible, NoHiddenFilter(tc.path))
		})
	}
}

func TestDebouncerKeepsLatestPerPath(t *testing.T) {
	d := newDebouncer(10 * time.Millisecond)

	d.addEvent(ChangeEvent{Type: EventTypeCreated, Path: "/b"})
	d.addEvent(ChangeEvent{Type: EventTypeModified, Path: "/a"})
	d.addEvent(ChangeEvent{Type: EventTypeDeleted, Path: "/b"})

	select {
	case events := <-d.output:
		require.Len(t, events, 2)
		assert.Equal(t, "/a", events[0].Path)
		assert.Equal(t, "/b", events[1].Path)
		assert.Equal(t, EventTypeDeleted, events[1].Type)
	case <-time.After(time.Second):
		t.Fatal("debouncer did not flush")
	}
}

func TestFileWatcherReportsTemplateChanges(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "private"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".git"), 0o755))

	fw, err := NewFileWatcher(20*time.Millisecond, nil)
	require.NoError(t, err)
	defer fw.Stop()

	fw.AddFilter(NoHiddenFilter)
	fw.AddFilter(ExtensionFilter(".smscr"))

	var mu sync.Mutex
	seen := map[string]bool{}
	fw.AddHandler(func(events []ChangeEvent) error {
		mu.Lock()
		defer mu.Unlock()
		for _, e := range events {
			seen[filepath.Base(e.Path)] = true
		}
		return nil
	})

	require.NoError(t, fw.AddRecursive(root))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, fw.Start(ctx))

	require.NoError(t, os.WriteFile(filepath.Join(root, "private", "home.smscr"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "style.css"), []byte("x"), 0o644))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return seen["home.smscr"]
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.False(t, seen["style.css"])
}

func TestFileWatcherFollowsNewDirectories(t *testing.T) {
	root := t.TempDir()

	fw, err := NewFileWatcher(20*time.Millisecond, nil)
	require.NoError(t, err)
	defer fw.Stop()

	changed := make(chan string, 10)
	fw.AddFilter(ExtensionFilter(".smscr"))
	fw.AddHandler(func(events []ChangeEvent) error {
		for _, e := range events {
			changed <- filepath.Base(e.Path)
		}
		return nil
	})

	require.NoError(t, fw.AddRecursive(root))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, fw.Start(ctx))

	dir := filepath.Join(root, "pages")
	require.NoError(t, os.Mkdir(dir, 0o755))

	// The new directory is registered asynchronously; keep touching the file
	// until an event for it arrives.
	deadline := time.After(3 * time.Second)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case name := <-changed:
			if name == "calc.smscr" {
				return
			}
		case <-ticker.C:
			require.NoError(t, os.WriteFile(filepath.Join(dir, "calc.smscr"), []byte("x"), 0o644))
		case <-deadline:
			t.Fatal("no event for file in new directory")
		}
	}
}

func TestAddRecursiveMissingRoot(t *testing.T) {
	fw, err := NewFileWatcher(time.Millisecond, nil)
	require.NoError(t, err)
	defer fw.Stop()

	assert.Error(t, fw.AddRecursive(filepath.Join(t.TempDir(), "missing")))
}
