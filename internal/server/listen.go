package server

import (
	"context"
	"fmt"
	"net"
	"syscall"

	"golang.org/x/net/netutil"
)

// listen opens the server socket. SO_REUSEADDR is always requested and
// SO_REUSEPORT when reusePort is set; maxConns > 0 caps the number of
// simultaneously open connections.
func listen(ctx context.Context, addr string, reusePort bool, maxConns int) (net.Listener, error) {
	lc := net.ListenConfig{
		Control: func(network, address string, rawConn syscall.RawConn) error {
			var sockErr error
			err := rawConn.Control(func(fd uintptr) {
				sockErr = setReuse(fd, reusePort)
			})
			if err != nil {
				return err
			}
			return sockErr
		},
	}

	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", addr, err)
	}
	if maxConns > 0 {
		ln = netutil.LimitListener(ln, maxConns)
	}
	return ln, nil
}
