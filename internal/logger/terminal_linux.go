//go:build linux

package logger

import "golang.org/x/sys/unix"

// isTerminal reports whether the descriptor is an interactive terminal.
// The binder driver is Linux-only, so the TCGETS probe is the one that
// matters; other platforms get the conservative stub.
func isTerminal(fd uintptr) bool {
	_, err := unix.IoctlGetTermios(int(fd), unix.TCGETS)
	return err == nil
}
