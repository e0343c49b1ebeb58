// Package session tracks client sessions identified by a SID cookie.
//
// Every lookup that decides whether a presented SID is accepted, every
// insertion, every expiry refresh and every eviction happens under the one
// Manager mutex, so concurrent requests never create two sessions for the
// same SID and the sweeper never evicts a session that a request has just
// refreshed.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/conneroisu/scriptserv/internal/webctx"
)

// Session is a server-side session record.
type Session struct {
	SID  string
	Host string

	// Params is shared by every request presenting this SID.
	Params *webctx.Params

	expires time.Time
}

// Clock returns the current time. Tests substitute their own.
type Clock func() time.Time

// Manager owns the session table.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	timeout  time.Duration
	now      Clock
	newSID   func() string
	onSweep  func(evicted int)
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces time.Now.
func WithClock(c Clock) Option {
	return func(m *Manager) { m.now = c }
}

// WithSIDGenerator replaces the random SID source.
func WithSIDGenerator(gen func() string) Option {
	return func(m *Manager) { m.newSID = gen }
}

// WithSweepHook is called after every sweep that evicted at least one session.
func WithSweepHook(fn func(evicted int)) Option {
	return func(m *Manager) { m.onSweep = fn }
}

// NewManager creates a manager whose sessions live for timeout after their
// last use.
func NewManager(timeout time.Duration, opts ...Option) *Manager {
	m := &Manager{
		sessions: make(map[string]*Session),
		timeout:  timeout,
		now:      time.Now,
		newSID:   func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Timeout returns the session lifetime.
func (m *Manager) Timeout() time.Duration { return m.timeout }

// Resolve returns the session for a request to host presenting the given
// candidate SIDs, in order. The first candidate that exists, is bound to
// host and has not expired wins; otherwise a new session is created.
// Either way the session's expiry is pushed to now+timeout. created
// reports whether a new session was made.
func (m *Manager) Resolve(host string, candidates []string) (s *Session, created bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for _, sid := range candidates {
		c, ok := m.sessions[sid]
		if !ok || c.Host != host || !now.Before(c.expires) {
			continue
		}
		c.expires = now.Add(m.timeout)
		return c, false
	}

	sid := m.newSID()
	for _, taken := m.sessions[sid]; taken; _, taken = m.sessions[sid] {
		sid = m.newSID()
	}
	s = &Session{
		SID:     sid,
		Host:    host,
		Params:  webctx.NewParams(),
		expires: now.Add(m.timeout),
	}
	m.sessions[sid] = s
	return s, true
}

// Cookie returns the Set-Cookie entry binding s to its host.
func (m *Manager) Cookie(name string, s *Session) webctx.Cookie {
	return webctx.Cookie{
		Name:     name,
		Value:    s.SID,
		Domain:   s.Host,
		Path:     "/",
		HTTPOnly: true,
	}
}

// Sweep evicts every expired session and returns how many were removed.
func (m *Manager) Sweep() int {
	m.mu.Lock()
	now := m.now()
	evicted := 0
	for sid, s := range m.sessions {
		if now.After(s.expires) {
			delete(m.sessions, sid)
			evicted++
		}
	}
	m.mu.Unlock()

	if evicted > 0 && m.onSweep != nil {
		m.onSweep(evicted)
	}
	return evicted
}

// Run sweeps every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// Len returns the number of live entries in the table.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// ExpiresAt returns the expiry time of sid.
func (m *Manager) ExpiresAt(sid string) (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sid]
	if !ok {
		return time.Time{}, false
	}
	return s.expires, true
}
