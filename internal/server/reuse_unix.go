//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package server

import "golang.org/x/sys/unix"

func setReuse(fd uintptr, reusePort bool) error {
	if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return err
	}
	if reusePort {
		return unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
	}
	return nil
}
