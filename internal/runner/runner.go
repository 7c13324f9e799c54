package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/rs/zerolog/log"

	"github.com/Ryuchen/Panda-Sandbox-Agent/internal/core"
)

// Options controls a single launch.
type Options struct {
	Dir      string
	Blocking bool
	Env      []string
}

// Outcome describes a launched process. Stdout, Stderr and ExitCode are only
// meaningful when Exited is true.
type Outcome struct {
	PID      int
	Exited   bool
	ExitCode int
	Stdout   []byte
	Stderr   []byte
}

// Runner starts external processes.
type Runner struct {
	Shell []string
}

func New(shell []string) *Runner {
	if len(shell) == 0 {
		shell = DefaultShell()
	}
	return &Runner{Shell: shell}
}

// Run launches inv. A blocking run waits for exit with no timeout of its own;
// cancelling ctx kills the child, so callers that must not interrupt it pass
// a context without cancellation. A detached run returns as soon as the
// process exists and its output is discarded.
func (r *Runner) Run(ctx context.Context, inv Invocation, opts Options) (Outcome, error) {
	argv := inv.argv(r.Shell)
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = opts.Dir
	if len(opts.Env) > 0 {
		cmd.Env = append(os.Environ(), opts.Env...)
	}

	var stdout, stderr bytes.Buffer
	if opts.Blocking {
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
	}

	if err := cmd.Start(); err != nil {
		return Outcome{}, core.Wrap(core.KindLaunch, "launch", fmt.Sprintf("unable to launch %s", inv), err)
	}
	out := Outcome{PID: cmd.Process.Pid}
	log.Debug().Int("pid", out.PID).Str("invocation", inv.String()).Bool("blocking", opts.Blocking).Msg("process started")

	if !opts.Blocking {
		go reap(cmd)
		return out, nil
	}

	err := cmd.Wait()
	out.Exited = true
	out.Stdout = stdout.Bytes()
	out.Stderr = stderr.Bytes()
	if err != nil {
		var exit *exec.ExitError
		if !errors.As(err, &exit) {
			return out, fmt.Errorf("wait for pid %d: %w", out.PID, err)
		}
		out.ExitCode = exit.ExitCode()
	}
	log.Debug().Int("pid", out.PID).Int("exit_code", out.ExitCode).Msg("process exited")
	return out, nil
}

// reap collects a detached child's exit status so it does not linger as a
// zombie. Nothing else about it is tracked.
func reap(cmd *exec.Cmd) {
	err := cmd.Wait()
	log.Debug().Int("pid", cmd.Process.Pid).Err(err).Msg("detached process exited")
}
