// Package dispatch turns execution directives into process launches.
//
// Blocking requests occupy the calling goroutine for as long as the child
// runs. There is no timeout and client disconnects are not observed; a
// controller that needs a deadline must enforce it itself.
package dispatch

import (
	"context"

	"github.com/Ryuchen/Panda-Sandbox-Agent/internal/core"
	"github.com/Ryuchen/Panda-Sandbox-Agent/internal/runner"
)

// Request is one execution directive.
type Request struct {
	Target   string
	Dir      string
	Blocking bool
	Shell    bool
	// Args are extra argv entries for non-shell commands.
	Args []string
}

// Result is reported for every successful launch. Stdout and Stderr are set
// only for blocking requests.
type Result struct {
	Launched bool
	PID      int
	Stdout   *[]byte
	Stderr   *[]byte
	ExitCode *int
}

// Launcher is the process runner contract the dispatcher depends on.
type Launcher interface {
	Run(ctx context.Context, inv runner.Invocation, opts runner.Options) (runner.Outcome, error)
}

// Dispatcher validates execution requests and maps runner outcomes.
type Dispatcher struct {
	launcher    Launcher
	interpreter string
	env         []string
}

func New(l Launcher, interpreter string, env []string) *Dispatcher {
	return &Dispatcher{launcher: l, interpreter: interpreter, env: env}
}

// RunCommand executes a generic command, through the shell only when
// req.Shell is set.
func (d *Dispatcher) RunCommand(ctx context.Context, req Request) (Result, error) {
	if req.Target == "" {
		return Result{}, core.Errorf(core.KindClient, "execute", "no command has been provided")
	}
	var inv runner.Invocation = runner.ArgumentVector{Program: req.Target, Args: req.Args}
	if req.Shell {
		inv = runner.ShellCommand{Command: req.Target}
	}
	return d.run(ctx, "execute", inv, req)
}

// RunScript executes the script at req.Target with the configured
// interpreter. req.Shell is ignored.
func (d *Dispatcher) RunScript(ctx context.Context, req Request) (Result, error) {
	if req.Target == "" {
		return Result{}, core.Errorf(core.KindClient, "execpy", "no script file path has been provided")
	}
	if d.interpreter == "" {
		return Result{}, core.Errorf(core.KindUnsupported, "execpy", "no script interpreter configured")
	}
	inv := runner.ArgumentVector{Program: d.interpreter, Args: []string{req.Target}}
	return d.run(ctx, "execpy", inv, req)
}

func (d *Dispatcher) run(ctx context.Context, op string, inv runner.Invocation, req Request) (Result, error) {
	// The child must outlive a dropped controller connection.
	ctx = context.WithoutCancel(ctx)
	out, err := d.launcher.Run(ctx, inv, runner.Options{Dir: req.Dir, Blocking: req.Blocking, Env: d.env})
	if err != nil {
		if core.KindOf(err) == core.KindLaunch {
			return Result{}, err
		}
		if out.PID == 0 {
			return Result{}, core.Wrap(core.KindLaunch, op, "error executing command", err)
		}
		return Result{}, core.Wrap(core.KindInternal, op, "error collecting process output", err)
	}
	res := Result{Launched: true, PID: out.PID}
	if req.Blocking && out.Exited {
		stdout, stderr, code := out.Stdout, out.Stderr, out.ExitCode
		res.Stdout, res.Stderr, res.ExitCode = &stdout, &stderr, &code
	}
	return res, nil
}
