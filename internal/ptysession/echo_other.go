//go:build !unix

package ptysession

import "os"

// disableEcho is a no-op on platforms without PTY/termios support.
func disableEcho(f *os.File) {}
