package server

import (
	"bufio"
	"context"
	stderrors "errors"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/conneroisu/scriptserv/internal/errors"
	"github.com/conneroisu/scriptserv/internal/logging"
	"github.com/conneroisu/scriptserv/internal/protocol"
	"github.com/conneroisu/scriptserv/internal/webctx"
)

// maxBodyBytes bounds the Content-Length body read with a GET request.
const maxBodyBytes = 1 << 20

// handle serves exactly one request on c and closes it.
func (s *Server) handle(c net.Conn) {
	defer c.Close()
	defer s.served.Add(1)

	// Shutdown cancels baseCtx to stop accepting; requests already taken
	// run to completion, bounded only by their own timeout.
	ctx := context.WithoutCancel(s.baseCtx)
	if s.cfg.WriteTimeout > 0 || s.cfg.ReadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ReadTimeout+s.cfg.WriteTimeout)
		defer cancel()
	}
	remote := c.RemoteAddr().String()
	op := logging.StartOperation(s.logger.With("remote", remote), "request")

	if s.cfg.ReadTimeout > 0 {
		_ = c.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	}
	maxHeader := s.cfg.MaxHeaderBytes
	if maxHeader <= 0 {
		maxHeader = protocol.DefaultMaxHeaderBytes
	}

	req, err := protocol.Read(bufio.NewReader(c), maxHeader, maxBodyBytes)
	if err != nil {
		op.EndWithError(ctx, err)
		s.writeError(c, err)
		drain(c)
		return
	}

	if s.cfg.WriteTimeout > 0 {
		_ = c.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
	}

	host, ok := req.Host()
	if !ok || host == "" {
		host = s.cfg.Domain
	}
	if host == "" {
		err := errors.NewProtocolError(errors.ErrCodeBadHost, "missing Host header")
		op.EndWithError(ctx, err, "path", req.Path)
		s.writeError(c, err)
		return
	}

	candidates := req.Cookies(s.cfg.CookieName)
	sess, created := s.sessions.Resolve(host, candidates)
	if created && len(candidates) > 0 {
		logging.LogSecurityEvent(ctx, s.logger, "session_rejected", map[string]interface{}{
			"host":   host,
			"remote": remote,
		})
	}

	out := bufio.NewWriter(c)
	rc := webctx.New(out, req.Params, sess.Params,
		webctx.WithDispatcher(s.dispatcher),
		webctx.WithContext(ctx),
		webctx.WithCookies(s.sessions.Cookie(s.cfg.CookieName, sess)),
	)
	if s.cfg.Encoding != "" {
		if err := rc.SetEncoding(s.cfg.Encoding); err != nil {
			s.logger.Warn(ctx, err, "Ignoring configured encoding", "encoding", s.cfg.Encoding)
		}
	}

	err = s.serveRequest(rc, req.Path)
	if err != nil {
		if !rc.HeaderGenerated() {
			writeErrorBody(rc, errors.StatusCode(err))
		}
		op.EndWithError(ctx, err, "path", req.Path, "status", errors.StatusCode(err))
	} else {
		err = rc.WriteHeader()
		op.End(ctx, "path", req.Path, "status", rc.StatusCode())
	}

	if ferr := out.Flush(); ferr != nil && err == nil {
		s.logger.Debug(ctx, "Flushing response failed", "remote", remote, "error", ferr.Error())
	}
}

// serveRequest routes path, turning a panic in a handler into an error so
// one request can never take the server down.
func (s *Server) serveRequest(rc *webctx.RequestContext, path string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.RecoveredError(r)
			var usage *errors.UsageError
			if stderrors.As(err, &usage) {
				s.logger.Error(rc.Context(), err, "Response metadata changed after header was sent", "path", path)
			} else {
				s.logger.Error(rc.Context(), err, "Handler panicked", "path", path)
			}
		}
	}()
	return s.dispatcher.Serve(rc, path)
}

// writeError answers a request that never reached the dispatcher.
func (s *Server) writeError(w io.Writer, err error) {
	out := bufio.NewWriter(w)
	rc := webctx.New(out, nil, nil)
	writeErrorBody(rc, errors.StatusCode(err))
	_ = out.Flush()
}

// reject answers a connection the pool could not take.
func (s *Server) reject(c net.Conn, err error) {
	defer c.Close()
	_ = c.SetWriteDeadline(time.Now().Add(time.Second))
	s.writeError(c, err)
	drain(c)
}

// drain half-closes c and discards what the client is still sending.
// Closing with unread input would reset the connection and the client
// could lose the response.
func drain(c net.Conn) {
	if cw, ok := c.(interface{ CloseWrite() error }); ok {
		_ = cw.CloseWrite()
	}
	_ = c.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
	_, _ = io.Copy(io.Discard, io.LimitReader(c, 64<<10))
}

// writeErrorBody emits the fixed-format error response for status.
func writeErrorBody(rc *webctx.RequestContext, status int) {
	body := protocol.StatusText(status)
	text := strconv.Itoa(status) + " " + body + "\n"

	rc.SetStatusCode(status)
	rc.SetMimeType("text/plain")
	rc.SetContentLength(int64(len(text)))
	_, _ = rc.WriteString(text)
}
