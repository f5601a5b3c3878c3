//go:build windows

package transport

import (
	"fmt"
	"syscall"

	"golang.org/x/sys/windows"
)

// setSocketOptions sets SO_REUSEADDR so the mDNS socket can share port 5353
// with other responders. Windows has no SO_REUSEPORT; its SO_REUSEADDR
// already allows multiple processes to bind the same port, which is the
// behavior the other platforms get from SO_REUSEPORT.
func setSocketOptions(fd uintptr) error {
	if err := windows.SetsockoptInt(windows.Handle(fd), windows.SOL_SOCKET, windows.SO_REUSEADDR, 1); err != nil {
		return fmt.Errorf("failed to set SO_REUSEADDR: %w", err)
	}
	return nil
}

// PlatformControl is the net.ListenConfig Control hook applying this
// platform's port-sharing socket options before bind.
func PlatformControl(_, _ string, c syscall.RawConn) error {
	var sockoptErr error
	if err := c.Control(func(fd uintptr) {
		sockoptErr = setSocketOptions(fd)
	}); err != nil {
		return fmt.Errorf("raw conn control failed: %w", err)
	}
	return sockoptErr
}
