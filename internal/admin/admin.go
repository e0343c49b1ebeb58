// Package admin serves an optional HTTP surface next to the main server:
// a JSON health check and a websocket stream of cache and session events.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/conneroisu/scriptserv/internal/logging"
	"github.com/conneroisu/scriptserv/internal/server"
	"github.com/conneroisu/scriptserv/internal/version"
)

// StatsProvider reports the load of the main server.
type StatsProvider interface {
	Stats() server.Stats
}

// Health is the body of GET /health.
type Health struct {
	Status       string    `json:"status"`
	Version      string    `json:"version"`
	Timestamp    time.Time `json:"timestamp"`
	Running      bool      `json:"running"`
	Sessions     int       `json:"sessions"`
	Queued       int       `json:"queued"`
	Active       int       `json:"active"`
	Served       int64     `json:"served"`
	Rejected     int64     `json:"rejected"`
	EventClients int       `json:"event_clients"`
	Templates    int       `json:"templates"`
	CacheHits    int64     `json:"cache_hits"`
	CacheMisses  int64     `json:"cache_misses"`
}

// Server is the admin HTTP listener.
type Server struct {
	addr   string
	stats  StatsProvider
	hub    *Hub
	logger logging.Logger

	mu         sync.Mutex
	httpServer *http.Server
	listener   net.Listener
}

// New creates an admin server bound to addr. stats may be nil while the
// main server is not yet constructed.
func New(addr string, stats StatsProvider, hub *Hub, logger logging.Logger) *Server {
	if logger == nil {
		logger = logging.Discard()
	}
	if hub == nil {
		hub = NewHub(logger)
	}
	return &Server{
		addr:   addr,
		stats:  stats,
		hub:    hub,
		logger: logger.WithComponent("admin"),
	}
}

// Hub returns the event hub.
func (s *Server) Hub() *Hub { return s.hub }

// Handler returns the admin routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/events", s.hub)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	h := Health{
		Status:       "healthy",
		Version:      version.GetShortVersion(),
		Timestamp:    time.Now().UTC(),
		EventClients: s.hub.Clients(),
	}
	if s.stats != nil {
		st := s.stats.Stats()
		h.Sessions = st.Sessions
		h.Queued = st.Queued
		h.Active = st.Active
		h.Served = st.Served
		h.Rejected = st.Rejected
		h.Templates = st.Templates
		h.CacheHits = st.CacheHits
		h.CacheMisses = st.CacheMisses
		h.Running = true
	}
	if rs, ok := s.stats.(interface{ Running() bool }); ok {
		h.Running = rs.Running()
	}
	if !h.Running {
		h.Status = "starting"
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")
	if err := json.NewEncoder(w).Encode(h); err != nil {
		s.logger.Warn(r.Context(), err, "Cannot encode health response")
	}
}

// ListenAndServe serves until ctx is cancelled or Shutdown is called.
func (s *Server) ListenAndServe(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.addr)
	if err != nil {
		return fmt.Errorf("admin listen on %s: %w", s.addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	s.mu.Lock()
	s.httpServer = srv
	s.listener = ln
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Shutdown(shutdownCtx)
	}()

	s.logger.Info(ctx, "Admin server listening", "addr", ln.Addr().String())
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("admin server error: %w", err)
	}
	return nil
}

// Addr returns the bound address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Shutdown closes event streams first, then the HTTP listener.
func (s *Server) Shutdown(ctx context.Context) error {
	hubErr := s.hub.Shutdown(ctx)

	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()
	if srv == nil {
		return hubErr
	}
	if err := srv.Shutdown(ctx); err != nil {
		return err
	}
	return hubErr
}
