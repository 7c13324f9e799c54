//go:build !(linux || darwin || freebsd || netbsd || openbsd)

package logsink

import (
	"fmt"
	"io"
	"os"
)

// capture swaps the package-level *os.File for a pipe drained into dst.
// Writers that cached the original file beforehand are not captured.
func capture(target **os.File, fd int, dst io.Writer, echo bool) (func() error, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("pipe for fd %d: %w", fd, err)
	}
	orig := *target
	if echo {
		dst = io.MultiWriter(dst, orig)
	}
	*target = w
	done := make(chan struct{})
	go pump(r, dst, done)

	return func() error {
		*target = orig
		err := w.Close()
		<-done
		return err
	}, nil
}
