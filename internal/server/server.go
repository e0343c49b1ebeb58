// Package server accepts raw HTTP/1.1 connections and serves one request
// per connection through the dispatcher.
//
// A single acceptor goroutine hands every accepted connection to a fixed
// pool of workers and never blocks on request processing. Each worker reads
// and parses the request, resolves the client's session, builds a request
// context and routes the path.
package server

import (
	"context"
	stderrors "errors"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/conneroisu/scriptserv/internal/dispatch"
	"github.com/conneroisu/scriptserv/internal/errors"
	"github.com/conneroisu/scriptserv/internal/logging"
	"github.com/conneroisu/scriptserv/internal/session"
)

// Config holds the acceptor and connection settings.
type Config struct {
	Host string
	Port int
	// Domain answers for requests without a Host header.
	Domain string

	Workers        int
	Backlog        int
	MaxConnections int
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxHeaderBytes int
	ReusePort      bool

	CookieName string
	// Encoding is the initial response charset; empty means UTF-8.
	Encoding string
}

// Addr returns host:port.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Stats is a point-in-time view of server load.
type Stats struct {
	Queued   int   `json:"queued"`
	Active   int   `json:"active"`
	Served   int64 `json:"served"`
	Rejected int64 `json:"rejected"`
	Sessions int   `json:"sessions"`

	Templates   int   `json:"templates"`
	CacheHits   int64 `json:"cache_hits"`
	CacheMisses int64 `json:"cache_misses"`
}

// Server is the connection acceptor.
type Server struct {
	cfg        Config
	dispatcher *dispatch.Dispatcher
	sessions   *session.Manager
	logger     logging.Logger

	mu       sync.Mutex
	listener net.Listener
	pool     *pool
	baseCtx  context.Context
	cancel   context.CancelFunc
	done     chan struct{}

	running  atomic.Bool
	served   atomic.Int64
	rejected atomic.Int64
}

// New creates a server. It does not open a socket.
func New(cfg Config, d *dispatch.Dispatcher, sessions *session.Manager, logger logging.Logger) *Server {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.CookieName == "" {
		cfg.CookieName = "sid"
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Server{
		cfg:        cfg,
		dispatcher: d,
		sessions:   sessions,
		logger:     logger.WithComponent("server"),
	}
}

// ListenAndServe opens the configured address and serves until ctx is
// cancelled or Shutdown is called.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := listen(ctx, s.cfg.Addr(), s.cfg.ReusePort, s.cfg.MaxConnections)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections from ln until ctx is cancelled or Shutdown is
// called. It returns after queued and in-flight requests have finished.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	if s.running.Load() {
		s.mu.Unlock()
		return errors.NewInternalError("server already running", nil)
	}
	s.listener = ln
	s.baseCtx, s.cancel = context.WithCancel(ctx)
	s.pool = newPool(s.cfg.Workers, s.cfg.Backlog, s.handle)
	s.done = make(chan struct{})
	s.running.Store(true)
	baseCtx, p, done := s.baseCtx, s.pool, s.done
	s.mu.Unlock()

	defer close(done)

	go func() {
		<-baseCtx.Done()
		s.running.Store(false)
		ln.Close()
	}()

	s.logger.Info(ctx, "Server listening", "addr", ln.Addr().String(), "workers", s.cfg.Workers)

	var acceptErr error
	for s.running.Load() {
		conn, err := ln.Accept()
		if err != nil {
			if !s.running.Load() {
				break
			}
			var ne net.Error
			if stderrors.As(err, &ne) && ne.Timeout() {
				continue
			}
			acceptErr = err
			break
		}

		if err := p.Submit(conn); err != nil {
			s.rejected.Add(1)
			s.logger.Warn(ctx, err, "Connection rejected", "remote", conn.RemoteAddr().String())
			go s.reject(conn, err)
		}
	}

	s.running.Store(false)
	s.cancel()
	p.Close()
	s.logger.Info(ctx, "Server stopped", "served", s.served.Load())
	return acceptErr
}

// Shutdown stops the accept loop and waits for in-flight requests, or for
// ctx to end.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()
	if cancel == nil {
		return nil
	}

	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Addr returns the listening address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Running reports whether the accept loop is active.
func (s *Server) Running() bool { return s.running.Load() }

// Stats returns current load figures.
func (s *Server) Stats() Stats {
	st := Stats{
		Served:   s.served.Load(),
		Rejected: s.rejected.Load(),
	}
	s.mu.Lock()
	p := s.pool
	s.mu.Unlock()
	if p != nil {
		st.Queued = p.Queued()
		st.Active = p.Active()
	}
	if s.sessions != nil {
		st.Sessions = s.sessions.Len()
	}
	if s.dispatcher != nil {
		cache := s.dispatcher.Cache()
		st.Templates = cache.Len()
		st.CacheHits, st.CacheMisses = cache.Stats()
	}
	return st
}
