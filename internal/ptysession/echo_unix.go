//go:build unix

package ptysession

import (
	"os"

	"golang.org/x/sys/unix"
)

// disableEcho clears ECHO|ECHONL on the PTY master's termios. Spawn
// calls it right after the child has started and before any input is
// written, so the child's own echo is the only echo that reaches the
// output stream.
func disableEcho(f *os.File) {
	fd := int(f.Fd())
	termios, err := unix.IoctlGetTermios(fd, ioctlGetTermios)
	if err != nil {
		return
	}
	termios.Lflag &^= unix.ECHO | unix.ECHONL
	_ = unix.IoctlSetTermios(fd, ioctlSetTermios, termios)
}
