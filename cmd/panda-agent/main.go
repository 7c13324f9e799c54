package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Ryuchen/Panda-Sandbox-Agent/internal/agent"
	"github.com/Ryuchen/Panda-Sandbox-Agent/internal/core"
	"github.com/Ryuchen/Panda-Sandbox-Agent/internal/dispatch"
	"github.com/Ryuchen/Panda-Sandbox-Agent/internal/logsink"
	"github.com/Ryuchen/Panda-Sandbox-Agent/internal/runner"
	"github.com/Ryuchen/Panda-Sandbox-Agent/internal/telemetry"
)

var (
	version   = "0.1.0"
	commit    = ""
	buildDate = ""
)

// Create the root command
func newRootCmd(sink *logsink.Sink) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "panda-agent",
		Short: "Panda Sandbox Agent: remote control inside an analysis guest",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringP("log", "l", "", "Set log level. Available: debug, info, warn, error, fatal")
	cmd.PersistentFlags().String("config", "", "config file")

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newServeCmd(sink))
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("panda-agent %s (%s) %s\n", version, commit, buildDate)
		},
	}
}

func newServeCmd(sink *logsink.Sink) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve [host] [port]",
		Short: "Serve directives until killed",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			cfg, err := core.LoadConfig(cfgPath)
			if err != nil {
				return err
			}
			if err := applyServeFlags(cmd, args, &cfg); err != nil {
				return err
			}
			// Capture starts before the first log line so /logs sees it all.
			if err := sink.Install(cfg.LogEcho); err != nil {
				fmt.Fprintln(os.Stderr, "log capture unavailable:", err)
			}
			defer sink.Restore()
			log.Logger = consoleLogger()
			setLevel(cfg.LogLevel)
			return serve(cmd.Context(), cfg, sink)
		},
	}
	cmd.Flags().String("listen", "", "listen address (host:port)")
	cmd.Flags().String("interpreter", "", "script interpreter for execpy")
	cmd.Flags().String("journal", "", "execution journal database path")
	cmd.Flags().Bool("enforce-pin", false, "reject controllers other than the pinned one")
	return cmd
}

// applyServeFlags layers positional host/port and flags over the loaded config.
func applyServeFlags(cmd *cobra.Command, args []string, cfg *core.Config) error {
	if len(args) > 0 {
		host, port, err := net.SplitHostPort(cfg.Listen)
		if err != nil {
			return fmt.Errorf("listen address %q: %w", cfg.Listen, err)
		}
		host = args[0]
		if len(args) > 1 {
			port = args[1]
		}
		cfg.Listen = net.JoinHostPort(host, port)
	}
	if v, _ := cmd.Flags().GetString("listen"); v != "" {
		cfg.Listen = v
	}
	if v, _ := cmd.Flags().GetString("interpreter"); v != "" {
		cfg.Interpreter = v
	}
	if v, _ := cmd.Flags().GetString("journal"); v != "" {
		cfg.Journal = v
	}
	if cmd.Flags().Changed("enforce-pin") {
		cfg.EnforcePin, _ = cmd.Flags().GetBool("enforce-pin")
	}
	if v, _ := cmd.Flags().GetString("log"); v != "" {
		cfg.LogLevel = v
	}
	return nil
}

func serve(ctx context.Context, cfg core.Config, sink *logsink.Sink) error {
	metrics := telemetry.InitGlobal(cfg.Telemetry)
	defer metrics.Flush()

	var env []string
	if cfg.EnvFile != "" {
		var err error
		if env, err = core.LoadEnvFile(cfg.EnvFile); err != nil {
			return err
		}
	}

	var journal *core.Journal
	if cfg.Journal != "" {
		var err error
		if journal, err = core.OpenJournal(cfg.Journal); err != nil {
			return err
		}
		defer journal.Close()
		if err := journal.Ping(ctx); err != nil {
			return fmt.Errorf("journal %s: %w", cfg.Journal, err)
		}
		log.Info().Str("path", cfg.Journal).Msg("execution journal ready")
	}

	srv := agent.New(agent.Options{
		Version:    version,
		State:      core.NewState(),
		Dispatcher: dispatch.New(runner.New(runner.ParseShell(cfg.Shell)), cfg.Interpreter, env),
		Sink:       sink,
		Journal:    journal,
		Metrics:    metrics,
		EnforcePin: cfg.EnforcePin,
	})

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigc)
	go func() {
		select {
		case s := <-sigc:
			log.Info().Str("signal", s.String()).Msg("panda-agent shutting down")
		case <-ctx.Done():
		case <-srv.Stopped():
			return
		}
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			log.Error().Err(err).Msg("shutdown")
		}
	}()

	err := srv.ListenAndServe(cfg.Listen)
	if errors.Is(err, http.ErrServerClosed) {
		<-srv.Stopped()
		log.Info().Msg("panda-agent stopped")
		return nil
	}
	return err
}

func setLevel(level string) {
	switch level {
	case "trace":
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	case "fatal":
		zerolog.SetGlobalLevel(zerolog.FatalLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// Setup the logger
func setupLogger() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	log.Logger = consoleLogger()
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

// consoleLogger writes to whatever os.Stderr currently is.
func consoleLogger() zerolog.Logger {
	return log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339, NoColor: true})
}

func main() {
	setupLogger()
	root := newRootCmd(logsink.New())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	root.SetContext(ctx)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
