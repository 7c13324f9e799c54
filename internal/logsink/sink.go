// Package logsink captures the agent's own standard output and standard
// error in memory so the controller can read them back.
package logsink

import (
	"bytes"
	"io"
	"os"
	"sync"
)

// Buffer is an unbounded append-only byte buffer safe for concurrent
// writes and snapshots.
type Buffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *Buffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

// Bytes returns a copy of everything written so far.
func (b *Buffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return bytes.Clone(b.buf.Bytes())
}

// Sink holds the captured stdout and stderr of the process. It never
// truncates; it lives as long as the process does.
type Sink struct {
	stdout Buffer
	stderr Buffer

	mu       sync.Mutex
	restores []func() error
}

func New() *Sink { return &Sink{} }

func (s *Sink) Stdout() io.Writer { return &s.stdout }
func (s *Sink) Stderr() io.Writer { return &s.stderr }

// Snapshot returns the full contents of both buffers.
func (s *Sink) Snapshot() (stdout, stderr []byte) {
	return s.stdout.Bytes(), s.stderr.Bytes()
}

// Install redirects the process-wide standard output and standard error into
// the sink. With echo set, captured bytes are also copied to the original
// streams. Call it before anything else writes diagnostics.
func (s *Sink) Install(echo bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	restoreOut, err := capture(&os.Stdout, 1, &s.stdout, echo)
	if err != nil {
		return err
	}
	restoreErr, err := capture(&os.Stderr, 2, &s.stderr, echo)
	if err != nil {
		_ = restoreOut()
		return err
	}
	s.restores = append(s.restores, restoreErr, restoreOut)
	return nil
}

// Restore undoes Install and waits until every byte written before the call
// has reached the buffers.
func (s *Sink) Restore() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var first error
	for _, fn := range s.restores {
		if err := fn(); err != nil && first == nil {
			first = err
		}
	}
	s.restores = nil
	return first
}

// pump copies r into dst until EOF and then closes done.
func pump(r *os.File, dst io.Writer, done chan<- struct{}) {
	_, _ = io.Copy(dst, r)
	_ = r.Close()
	close(done)
}
