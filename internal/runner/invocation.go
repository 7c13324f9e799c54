package runner

import (
	"runtime"
	"strconv"
	"strings"
)

// Invocation is a fully resolved process launch. The two variants keep the
// shell/no-shell distinction in the type: only ShellCommand is ever handed
// to a shell.
type Invocation interface {
	argv(shell []string) []string
	String() string
}

// ShellCommand is a raw command line parsed and expanded by the shell.
type ShellCommand struct {
	Command string
}

func (c ShellCommand) argv(shell []string) []string {
	out := make([]string, 0, len(shell)+1)
	out = append(out, shell...)
	return append(out, c.Command)
}

func (c ShellCommand) String() string { return c.Command }

// ArgumentVector runs Program directly with Args. Program is one executable
// name or path; nothing in it is split or expanded.
type ArgumentVector struct {
	Program string
	Args    []string
}

func (v ArgumentVector) argv([]string) []string {
	return append([]string{v.Program}, v.Args...)
}

func (v ArgumentVector) String() string {
	parts := make([]string, 0, len(v.Args)+1)
	parts = append(parts, strconv.Quote(v.Program))
	for _, a := range v.Args {
		parts = append(parts, strconv.Quote(a))
	}
	return strings.Join(parts, " ")
}

// DefaultShell returns the platform shell prefix for ShellCommand.
func DefaultShell() []string {
	if runtime.GOOS == "windows" {
		return []string{"cmd.exe", "/C"}
	}
	return []string{"/bin/sh", "-c"}
}

// ParseShell turns a configured shell such as "/bin/bash -c" into a prefix.
// An empty value selects DefaultShell.
func ParseShell(s string) []string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return DefaultShell()
	}
	return fields
}
