package runner

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ryuchen/Panda-Sandbox-Agent/internal/core"
)

func skipWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("POSIX shell semantics")
	}
}

func TestBlockingCapturesStdout(t *testing.T) {
	skipWindows(t)
	r := New(nil)
	out, err := r.Run(context.Background(), ArgumentVector{Program: "printf", Args: []string{"hello"}}, Options{Blocking: true})
	require.NoError(t, err)
	assert.True(t, out.Exited)
	assert.Equal(t, "hello", string(out.Stdout))
	assert.Empty(t, out.Stderr)
	assert.Equal(t, 0, out.ExitCode)
	assert.NotZero(t, out.PID)
}

func TestBlockingSplitsStreamsAndExitCode(t *testing.T) {
	skipWindows(t)
	r := New(nil)
	out, err := r.Run(context.Background(), ShellCommand{Command: "echo out; echo err 1>&2; exit 7"}, Options{Blocking: true})
	require.NoError(t, err)
	assert.Equal(t, "out\n", string(out.Stdout))
	assert.Equal(t, "err\n", string(out.Stderr))
	assert.Equal(t, 7, out.ExitCode)
}

func TestBlockingDoesNotTruncateLargeOutput(t *testing.T) {
	skipWindows(t)
	r := New(nil)
	out, err := r.Run(context.Background(), ShellCommand{Command: "head -c 1048576 /dev/zero"}, Options{Blocking: true})
	require.NoError(t, err)
	assert.Len(t, out.Stdout, 1<<20)
}

func TestShellExpandsMetacharacters(t *testing.T) {
	skipWindows(t)
	r := New(nil)
	out, err := r.Run(context.Background(), ShellCommand{Command: "echo a; echo b"}, Options{Blocking: true})
	require.NoError(t, err)
	assert.Equal(t, "a\nb\n", string(out.Stdout))
}

func TestArgumentVectorNeverExpands(t *testing.T) {
	skipWindows(t)
	r := New(nil)
	_, err := r.Run(context.Background(), ArgumentVector{Program: "echo a; echo b"}, Options{Blocking: true})
	require.Error(t, err)
	assert.Equal(t, core.KindLaunch, core.KindOf(err))

	out, err := r.Run(context.Background(), ArgumentVector{Program: "echo", Args: []string{"$HOME;", "`id`"}}, Options{Blocking: true})
	require.NoError(t, err)
	assert.Equal(t, "$HOME; `id`\n", string(out.Stdout))
}

func TestDetachedReturnsImmediately(t *testing.T) {
	skipWindows(t)
	r := New(nil)
	start := time.Now()
	out, err := r.Run(context.Background(), ArgumentVector{Program: "sleep", Args: []string{"3"}}, Options{})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.False(t, out.Exited)
	assert.Nil(t, out.Stdout)
	assert.Nil(t, out.Stderr)
	assert.NotZero(t, out.PID)
}

func TestWorkingDirectoryAndEnv(t *testing.T) {
	skipWindows(t)
	dir := t.TempDir()
	r := New(nil)
	out, err := r.Run(context.Background(), ShellCommand{Command: "pwd; echo $PANDA_TEST_VAR"}, Options{Blocking: true, Dir: dir, Env: []string{"PANDA_TEST_VAR=sandbox"}})
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(out.Stdout)), "\n")
	require.Len(t, lines, 2)
	want, _ := filepath.EvalSymlinks(dir)
	got, _ := filepath.EvalSymlinks(lines[0])
	assert.Equal(t, want, got)
	assert.Equal(t, "sandbox", lines[1])
}

func TestLaunchFailures(t *testing.T) {
	skipWindows(t)
	r := New(nil)
	cases := map[string]struct {
		inv  Invocation
		opts Options
	}{
		"missing executable": {ArgumentVector{Program: "/nonexistent/panda-bin"}, Options{Blocking: true}},
		"invalid cwd":        {ArgumentVector{Program: "true"}, Options{Dir: filepath.Join(t.TempDir(), "gone")}},
		"not executable":     {ArgumentVector{Program: writeFile(t, "plain.txt", "data", 0o644)}, Options{}},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := r.Run(context.Background(), tc.inv, tc.opts)
			require.Error(t, err)
			assert.Equal(t, core.KindLaunch, core.KindOf(err))
			assert.NotEqual(t, core.Message(err), err.Error(), "platform error text is kept")
		})
	}
}

func TestParseShell(t *testing.T) {
	assert.Equal(t, DefaultShell(), ParseShell(""))
	assert.Equal(t, []string{"/bin/bash", "-c"}, ParseShell("/bin/bash -c"))
}

func writeFile(t *testing.T, name, content string, mode os.FileMode) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), mode))
	return p
}
