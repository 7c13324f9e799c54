package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Ryuchen/Panda-Sandbox-Agent/pkg/api"
)

var (
	version   = "0.1.0"
	commit    = ""
	buildDate = ""
)

const defaultAgent = "http://127.0.0.1:63554"

// Create the root command
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "panda-ctl",
		Short: "Drive a Panda Sandbox Agent from the analysis host",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringP("log", "l", "warn", "Set log level. Available: debug, info, warn, error, fatal")
	cmd.PersistentFlags().String("agent", envOr("PANDA_AGENT_URL", defaultAgent), "agent base URL")
	cmd.PersistentFlags().Duration("timeout", 0, "request timeout (0 waits forever)")

	cmd.PersistentPreRun = func(c *cobra.Command, args []string) {
		levelStr, _ := c.Flags().GetString("log")
		level, err := zerolog.ParseLevel(levelStr)
		if err != nil || levelStr == "" {
			level = zerolog.WarnLevel
		}
		zerolog.SetGlobalLevel(level)
	}

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newSetStatusCmd())
	cmd.AddCommand(newPinCmd())
	cmd.AddCommand(newExecCmd())
	cmd.AddCommand(newExecPyCmd())
	cmd.AddCommand(newKillCmd())
	cmd.AddCommand(newLogsCmd())
	cmd.AddCommand(newSystemCmd())
	cmd.AddCommand(newEnvironCmd())
	cmd.AddCommand(newMkdirCmd())
	cmd.AddCommand(newMktempCmd())
	cmd.AddCommand(newMkdtempCmd())
	cmd.AddCommand(newPushCmd())
	cmd.AddCommand(newPullCmd())
	cmd.AddCommand(newExtractCmd())
	cmd.AddCommand(newRmCmd())
	cmd.AddCommand(newJournalCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("panda-ctl %s (%s) %s\n", version, commit, buildDate)
		},
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// client builds an API client from the persistent flags.
func client(cmd *cobra.Command) *api.Client {
	base, _ := cmd.Flags().GetString("agent")
	timeout, _ := cmd.Flags().GetDuration("timeout")
	return api.NewClient(base, timeout)
}

// Setup the logger
func setupLogger() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	zerolog.SetGlobalLevel(zerolog.WarnLevel)
}

func main() {
	setupLogger()
	root := newRootCmd()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	root.SetContext(ctx)
	if err := root.Execute(); err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}
