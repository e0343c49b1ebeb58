//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)

package server

// setReuse is a no-op where the socket options are not exposed.
func setReuse(fd uintptr, reusePort bool) error {
	return nil
}
