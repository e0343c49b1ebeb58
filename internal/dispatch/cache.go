package dispatch

import (
	"io/fs"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/conneroisu/scriptserv/internal/errors"
	"github.com/conneroisu/scriptserv/internal/template"
)

// TemplateCache keeps parsed templates keyed by file path. An entry is
// reused while the file's size and modification time are unchanged, or
// until Invalidate drops it. Parsed trees are immutable and shared by all
// requests.
type TemplateCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry

	hits   int64
	misses int64
}

type cacheEntry struct {
	doc     *template.DocumentNode
	modTime time.Time
	size    int64
}

// NewTemplateCache creates an empty cache.
func NewTemplateCache() *TemplateCache {
	return &TemplateCache{entries: make(map[string]cacheEntry)}
}

// Load returns the parsed template at path, parsing it when the cached
// copy is missing or stale. Parse failures are not cached.
func (c *TemplateCache) Load(path string, info fs.FileInfo) (*template.DocumentNode, error) {
	c.mu.RLock()
	entry, ok := c.entries[path]
	c.mu.RUnlock()

	if ok && entry.size == info.Size() && entry.modTime.Equal(info.ModTime()) {
		atomic.AddInt64(&c.hits, 1)
		return entry.doc, nil
	}
	atomic.AddInt64(&c.misses, 1)

	src, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewNotFoundError(path, err)
	}
	doc, err := template.Parse(string(src))
	if err != nil {
		return nil, errors.WrapTemplate(err, errors.ErrCodeParse, path)
	}

	c.mu.Lock()
	c.entries[path] = cacheEntry{doc: doc, modTime: info.ModTime(), size: info.Size()}
	c.mu.Unlock()
	return doc, nil
}

// Invalidate drops path and reports whether it was cached.
func (c *TemplateCache) Invalidate(path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[path]
	delete(c.entries, path)
	return ok
}

// Len returns the number of cached templates.
func (c *TemplateCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns the hit and miss counters.
func (c *TemplateCache) Stats() (hits, misses int64) {
	return atomic.LoadInt64(&c.hits), atomic.LoadInt64(&c.misses)
}
