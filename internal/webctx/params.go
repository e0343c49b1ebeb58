package webctx

import (
	"sort"
	"sync"
)

// ParamStore is a string-to-string parameter scope.
type ParamStore interface {
	Get(name string) (string, bool)
	Set(name, value string)
	Delete(name string)
	Names() []string
}

// Params is a ParamStore safe for concurrent use. Sessions hand the same
// Params to every request carrying their SID, and those may run in parallel.
type Params struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewParams creates an empty store.
func NewParams() *Params {
	return &Params{values: make(map[string]string)}
}

// Get returns the value for name and whether it was present.
func (p *Params) Get(name string) (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.values[name]
	return v, ok
}

// Set stores value under name.
func (p *Params) Set(name, value string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values[name] = value
}

// Delete removes name.
func (p *Params) Delete(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.values, name)
}

// Names returns the stored names in sorted order.
func (p *Params) Names() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return sortedKeys(p.values)
}

// Len returns the number of stored values.
func (p *Params) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.values)
}

func sortedKeys(m map[string]string) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
