package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

// TestFullWorkflow drives the built binaries end to end: the agent serves,
// the controller CLI talks to it, and a kill stops it.
func TestFullWorkflow(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
	if runtime.GOOS == "windows" {
		t.Skip("POSIX commands")
	}

	tmpDir := t.TempDir()
	agentBin, ctlBin, err := buildBinaries(tmpDir)
	if err != nil {
		t.Fatalf("Failed to build binaries: %v", err)
	}

	addr := freeAddr(t)
	configPath := filepath.Join(tmpDir, "config.yaml")
	configContent := fmt.Sprintf(`listen: %s
interpreter: /bin/sh
journal: %s
log_level: debug
`, addr, filepath.Join(tmpDir, "journal.db"))
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to create config file: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()
	agentCmd := exec.CommandContext(ctx, agentBin, "--config", configPath, "serve")
	if err := agentCmd.Start(); err != nil {
		t.Fatalf("Failed to start agent: %v", err)
	}
	exited := make(chan error, 1)
	go func() { exited <- agentCmd.Wait() }()
	defer func() {
		if agentCmd.Process != nil {
			_ = agentCmd.Process.Kill()
		}
	}()
	waitForAgent(t, "http://"+addr)

	ctl := func(args ...string) string {
		t.Helper()
		full := append([]string{"--agent", "http://" + addr}, args...)
		cmd := exec.CommandContext(ctx, ctlBin, full...)
		cmd.Env = append(os.Environ(), "NO_COLOR=1")
		output, err := cmd.CombinedOutput()
		if err != nil {
			t.Fatalf("panda-ctl %v failed: %v\nOutput: %s", args, err, output)
		}
		return string(output)
	}

	t.Run("Version", func(t *testing.T) {
		out, err := exec.Command(agentBin, "version").CombinedOutput()
		if err != nil || !strings.Contains(string(out), "panda-agent") {
			t.Fatalf("version: %v %s", err, out)
		}
	})

	t.Run("Status", func(t *testing.T) {
		ctl("set-status", "running", "--description", "integration")
		if out := ctl("status"); !strings.Contains(out, "running") || !strings.Contains(out, "integration") {
			t.Fatalf("unexpected status output: %s", out)
		}
	})

	t.Run("Exec", func(t *testing.T) {
		if out := ctl("exec", "--wait", "echo", "hello from guest"); !strings.Contains(out, "hello from guest") {
			t.Fatalf("unexpected exec output: %s", out)
		}
		if out := ctl("exec", "--wait", "--shell", "echo a && echo b"); !strings.Contains(out, "a\nb") {
			t.Fatalf("unexpected shell output: %s", out)
		}
	})

	t.Run("Files", func(t *testing.T) {
		local := filepath.Join(tmpDir, "payload.sh")
		if err := os.WriteFile(local, []byte("echo from script\n"), 0644); err != nil {
			t.Fatal(err)
		}
		remote := strings.TrimSpace(ctl("mkdtemp", "--prefix", "it"))
		target := filepath.Join(remote, "payload.sh")
		ctl("push", local, target)
		if out := ctl("execpy", "--wait", target); !strings.Contains(out, "from script") {
			t.Fatalf("unexpected execpy output: %s", out)
		}
		pulled := filepath.Join(tmpDir, "pulled.sh")
		ctl("pull", target, pulled)
		if b, err := os.ReadFile(pulled); err != nil || string(b) != "echo from script\n" {
			t.Fatalf("pulled content mismatch: %q %v", b, err)
		}
		ctl("rm", "-r", remote)
		if _, err := os.Stat(remote); !os.IsNotExist(err) {
			t.Fatalf("remote dir still present: %v", err)
		}
	})

	t.Run("JournalAndLogs", func(t *testing.T) {
		if out := ctl("journal"); !strings.Contains(out, "execpy") {
			t.Fatalf("journal missing execpy: %s", out)
		}
		if out := ctl("logs"); !strings.Contains(out, "agent listening") {
			t.Fatalf("logs missing agent output: %s", out)
		}
	})

	t.Run("Kill", func(t *testing.T) {
		ctl("kill")
		select {
		case err := <-exited:
			if err != nil {
				t.Fatalf("agent exited with error: %v", err)
			}
		case <-time.After(10 * time.Second):
			t.Fatalf("agent did not exit after kill")
		}
	})
}

func buildBinaries(dir string) (string, string, error) {
	agentBin := filepath.Join(dir, "panda-agent")
	ctlBin := filepath.Join(dir, "panda-ctl")
	for bin, pkg := range map[string]string{agentBin: "./cmd/panda-agent", ctlBin: "./cmd/panda-ctl"} {
		cmd := exec.Command("go", "build", "-o", bin, pkg)
		output, err := cmd.CombinedOutput()
		if err != nil {
			return "", "", fmt.Errorf("build %s failed: %v\nOutput: %s", pkg, err, output)
		}
	}
	return agentBin, ctlBin, nil
}

func freeAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer l.Close()
	return l.Addr().String()
}

func waitForAgent(t *testing.T, base string) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(base + "/")
		if err == nil {
			resp.Body.Close()
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("agent at %s did not come up", base)
}
