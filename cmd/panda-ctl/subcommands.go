package main

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Ryuchen/Panda-Sandbox-Agent/internal/fsops"
	"github.com/Ryuchen/Panda-Sandbox-Agent/pkg/api"
)

// Show agent status
func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the analysis status reported to the agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := client(cmd).Status(cmd.Context())
			if err != nil {
				return err
			}
			cyan := color.New(color.FgCyan)
			cyan.Print("status:      ")
			fmt.Println(orUnset(st.Status))
			cyan.Print("description: ")
			fmt.Println(orUnset(st.Description))
			return nil
		},
	}
}

func orUnset(v *string) string {
	if v == nil {
		return "(unset)"
	}
	return *v
}

func newSetStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set-status STATUS",
		Short: "Replace the analysis status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var desc *string
			if cmd.Flags().Changed("description") {
				d, _ := cmd.Flags().GetString("description")
				desc = &d
			}
			if err := client(cmd).SetStatus(cmd.Context(), args[0], desc); err != nil {
				return err
			}
			color.Green("status set to %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().String("description", "", "status description")
	return cmd
}

func newPinCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pin",
		Short: "Pin the agent to this controller",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client(cmd).Pin(cmd.Context())
			if err != nil {
				return err
			}
			color.Green("pinned to %s\n", resp.ClientIP)
			return nil
		},
	}
}

func printExec(resp api.ExecResponse, wait bool) {
	if !wait {
		color.Green("launched pid %d\n", resp.PID)
		return
	}
	if resp.Stdout != nil {
		fmt.Print(*resp.Stdout)
	}
	if resp.Stderr != nil {
		color.New(color.FgYellow).Fprint(os.Stderr, *resp.Stderr)
	}
	if resp.ExitCode != nil && *resp.ExitCode != 0 {
		color.Red("exit code %d\n", *resp.ExitCode)
	}
}

// Run a command on the agent
func newExecCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exec COMMAND [ARG...]",
		Short: "Execute a command on the agent",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			shell, _ := cmd.Flags().GetBool("shell")
			wait, _ := cmd.Flags().GetBool("wait")
			cwd, _ := cmd.Flags().GetString("cwd")
			resp, err := client(cmd).Execute(cmd.Context(), api.ExecRequest{
				Target: args[0],
				Args:   args[1:],
				Cwd:    cwd,
				Shell:  shell,
				Wait:   wait,
			})
			if err != nil {
				return err
			}
			printExec(resp, wait)
			return nil
		},
	}
	cmd.Flags().Bool("shell", false, "run through the platform shell")
	cmd.Flags().BoolP("wait", "w", false, "wait and print output")
	cmd.Flags().String("cwd", "", "working directory on the agent")
	return cmd
}

func newExecPyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "execpy SCRIPT",
		Short: "Run a script through the agent's interpreter",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wait, _ := cmd.Flags().GetBool("wait")
			cwd, _ := cmd.Flags().GetString("cwd")
			resp, err := client(cmd).ExecPy(cmd.Context(), api.ExecRequest{Target: args[0], Cwd: cwd, Wait: wait})
			if err != nil {
				return err
			}
			printExec(resp, wait)
			return nil
		},
	}
	cmd.Flags().BoolP("wait", "w", false, "wait and print output")
	cmd.Flags().String("cwd", "", "working directory on the agent")
	return cmd
}

func newKillCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "kill",
		Short: "Stop the agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := client(cmd).Kill(cmd.Context()); err != nil {
				return err
			}
			color.Green("agent terminating\n")
			return nil
		},
	}
}

func newLogsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logs",
		Short: "Print the agent's captured output",
		RunE: func(cmd *cobra.Command, args []string) error {
			logs, err := client(cmd).Logs(cmd.Context())
			if err != nil {
				return err
			}
			cyan := color.New(color.FgCyan)
			cyan.Println("--- stdout")
			fmt.Print(logs.Stdout)
			cyan.Println("--- stderr")
			fmt.Print(logs.Stderr)
			return nil
		},
	}
}

func newSystemCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "system",
		Short: "Show the guest platform",
		RunE: func(cmd *cobra.Command, args []string) error {
			sys, err := client(cmd).System(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("%s\t%s\t%s\n", sys.System, sys.Arch, sys.Hostname)
			return nil
		},
	}
}

func newEnvironCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "environ",
		Short: "Show the agent's environment",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := client(cmd).Environ(cmd.Context())
			if err != nil {
				return err
			}
			keys := make([]string, 0, len(env.Environ))
			for k := range env.Environ {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Printf("%s=%s\n", k, env.Environ[k])
			}
			return nil
		},
	}
}

func newMkdirCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mkdir DIR",
		Short: "Create a directory on the agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			modeStr, _ := cmd.Flags().GetString("mode")
			var mode uint64
			if modeStr != "" {
				var err error
				if mode, err = strconv.ParseUint(modeStr, 8, 32); err != nil {
					return fmt.Errorf("invalid mode %q: %w", modeStr, err)
				}
			}
			return client(cmd).Mkdir(cmd.Context(), args[0], uint32(mode))
		},
	}
	cmd.Flags().String("mode", "", "octal permission bits")
	return cmd
}

func tempFlags(cmd *cobra.Command) {
	cmd.Flags().String("prefix", "tmp", "name prefix")
	cmd.Flags().String("suffix", "", "name suffix")
	cmd.Flags().String("dir", "", "parent directory (agent temp dir by default)")
}

func readTempFlags(cmd *cobra.Command) (prefix, suffix, dir string) {
	prefix, _ = cmd.Flags().GetString("prefix")
	suffix, _ = cmd.Flags().GetString("suffix")
	dir, _ = cmd.Flags().GetString("dir")
	return prefix, suffix, dir
}

func newMktempCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mktemp",
		Short: "Create a temporary file on the agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			prefix, suffix, dir := readTempFlags(cmd)
			path, err := client(cmd).Mktemp(cmd.Context(), prefix, suffix, dir)
			if err != nil {
				return err
			}
			fmt.Println(path)
			return nil
		},
	}
	tempFlags(cmd)
	return cmd
}

func newMkdtempCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mkdtemp",
		Short: "Create a temporary directory on the agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			prefix, suffix, dir := readTempFlags(cmd)
			path, err := client(cmd).Mkdtemp(cmd.Context(), prefix, suffix, dir)
			if err != nil {
				return err
			}
			fmt.Println(path)
			return nil
		},
	}
	tempFlags(cmd)
	return cmd
}

// Upload a file
func newPushCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "push LOCAL REMOTE",
		Short: "Store a local file on the agent",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sum, err := fsops.Checksum(args[0])
			if err != nil {
				return err
			}
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			if err := client(cmd).Store(cmd.Context(), args[1], f, sum); err != nil {
				return err
			}
			color.Green("stored %s (sha256 %s)\n", args[1], sum)
			return nil
		},
	}
}

// Download a file
func newPullCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pull REMOTE LOCAL",
		Short: "Retrieve a file from the agent",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Create(args[1])
			if err != nil {
				return err
			}
			h := sha256.New()
			want, err := client(cmd).Retrieve(cmd.Context(), args[0], io.MultiWriter(f, h))
			if cerr := f.Close(); err == nil {
				err = cerr
			}
			if err != nil {
				_ = os.Remove(args[1])
				return err
			}
			got := hex.EncodeToString(h.Sum(nil))
			if want != "" && want != got {
				return fmt.Errorf("checksum mismatch: agent reported %s, received %s", want, got)
			}
			color.Green("retrieved %s (sha256 %s)\n", args[1], got)
			return nil
		},
	}
}

func newExtractCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "extract ZIPFILE DIR",
		Short: "Upload a zip archive and unpack it on the agent",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			return client(cmd).Extract(cmd.Context(), args[1], f)
		},
	}
}

func newRmCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rm PATH",
		Short: "Remove a file or directory on the agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			recursive, _ := cmd.Flags().GetBool("recursive")
			force, _ := cmd.Flags().GetBool("force")
			return client(cmd).Remove(cmd.Context(), args[0], recursive, force)
		},
	}
	cmd.Flags().BoolP("recursive", "r", false, "remove directories and their contents")
	cmd.Flags().BoolP("force", "f", false, "clear read-only bits first")
	return cmd
}

func newJournalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "List recent executions recorded by the agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			resp, err := client(cmd).Journal(cmd.Context(), limit)
			if err != nil {
				return err
			}
			green := color.New(color.FgGreen)
			red := color.New(color.FgRed)
			for _, e := range resp.Entries {
				mark := green.Sprint("ok")
				if !e.Launched {
					mark = red.Sprint("failed")
				}
				exit := "-"
				if e.ExitCode != nil {
					exit = strconv.Itoa(*e.ExitCode)
				}
				fmt.Printf("%s\t%s\t%s\t%s\texit=%s\t%s\n", e.CreatedAt.Format("2006-01-02T15:04:05"), e.Directive, e.Remote, mark, exit, e.Target)
			}
			return nil
		},
	}
	cmd.Flags().Int("limit", 20, "number of entries")
	return cmd
}
