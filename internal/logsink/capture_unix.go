//go:build linux || darwin || freebsd || netbsd || openbsd

package logsink

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// capture points descriptor fd at a pipe drained into dst. Everything that
// writes to the descriptor is captured, including runtime panics and code
// holding its own *os.File for it.
func capture(_ **os.File, fd int, dst io.Writer, echo bool) (func() error, error) {
	saved, err := unix.Dup(fd)
	if err != nil {
		return nil, fmt.Errorf("dup fd %d: %w", fd, err)
	}
	r, w, err := os.Pipe()
	if err != nil {
		_ = unix.Close(saved)
		return nil, fmt.Errorf("pipe for fd %d: %w", fd, err)
	}
	if err := unix.Dup2(int(w.Fd()), fd); err != nil {
		_ = unix.Close(saved)
		_ = r.Close()
		_ = w.Close()
		return nil, fmt.Errorf("dup2 fd %d: %w", fd, err)
	}
	_ = w.Close()

	orig := os.NewFile(uintptr(saved), fmt.Sprintf("fd%d-original", fd))
	if echo {
		dst = io.MultiWriter(dst, orig)
	}
	done := make(chan struct{})
	go pump(r, dst, done)

	return func() error {
		err := unix.Dup2(saved, fd)
		<-done
		_ = orig.Close()
		if err != nil {
			return fmt.Errorf("restore fd %d: %w", fd, err)
		}
		return nil
	}, nil
}
