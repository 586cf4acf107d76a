// Package listener opens the API's TCP listener, optionally with SO_REUSEPORT
// so several registry processes on one host can share the port.
package listener

import (
	"context"
	"net"
	"syscall"
)

// Listen opens a TCP listener on addr. With reusePort set the socket gets
// SO_REUSEPORT before bind.
func Listen(ctx context.Context, addr string, reusePort bool) (net.Listener, error) {
	lc := net.ListenConfig{}
	if reusePort {
		lc.Control = func(_, _ string, c syscall.RawConn) error {
			var sockErr error
			if err := c.Control(func(fd uintptr) {
				sockErr = setReusePort(fd)
			}); err != nil {
				return err
			}
			return sockErr
		}
	}
	return lc.Listen(ctx, "tcp", addr)
}
