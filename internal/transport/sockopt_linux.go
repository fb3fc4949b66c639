//go:build linux

package transport

import (
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// socketControl sets TCP_NODELAY and, when userTimeout is positive,
// TCP_USER_TIMEOUT so a silently dead server is detected while input is
// still being written.
func socketControl(userTimeout time.Duration) func(string, string, syscall.RawConn) error {
	return func(_, _ string, rc syscall.RawConn) error {
		var serr error
		err := rc.Control(func(fd uintptr) {
			s := int(fd) //nolint:gosec // G115: fd fits in int
			if serr = unix.SetsockoptInt(s, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1); serr != nil {
				return
			}
			if userTimeout > 0 {
				ms := int(userTimeout / time.Millisecond)
				serr = unix.SetsockoptInt(s, unix.IPPROTO_TCP, unix.TCP_USER_TIMEOUT, ms)
			}
		})
		if err != nil {
			return err
		}
		return serr
	}
}
