// Package cmd implements the daemonproxy-go command line: flag parsing
// and logging setup around the internal/supervisor main loop.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"daemonproxy-go/internal/pool"
	"daemonproxy-go/internal/supervisor"
	"daemonproxy-go/logging"
)

// Version information set at build time.
var (
	Version   = "0.1.0"
	BuildTime = "unknown"
)

// Global flags
var (
	globalLog       string
	globalLogFormat string
	globalDebug     bool

	flagStdin      bool
	flagConfig     string
	flagSocket     string
	flagServicePool string
	flagFdPool      string
	flagControlPool string
	flagExecOnExit  []string
	flagFailsafe    string
)

// rootCmd is daemonproxy-go itself: the whole program is one
// long-running supervisor process (spec.md §6), and its only
// subcommand is "version" (cmd/version.go).
var rootCmd = &cobra.Command{
	Use:   "daemonproxy-go",
	Short: "A POSIX process supervisor usable as PID 1",
	Long: `daemonproxy-go supervises a table of named services, reaping and
restarting their processes, and exposes that table to one or more
controller connections over a line-oriented text protocol.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupLogging()
		return nil
	},
	RunE: runSupervisor,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.Flags().BoolVar(&flagStdin, "stdin", false, "treat stdin/stdout as a controller endpoint")
	rootCmd.Flags().StringVar(&flagConfig, "config", "", "read lines from PATH as commands before entering the main loop")
	rootCmd.Flags().StringVar(&flagSocket, "socket", "", "listen on a UNIX-domain socket for additional controllers")
	rootCmd.Flags().StringVar(&flagServicePool, "service-pool", "", "cap the service table at N services, BYTES of vars each (N:BYTES)")
	rootCmd.Flags().StringVar(&flagFdPool, "fd-pool", "", "cap the named-fd table at N non-special entries (N or N:BYTES)")
	rootCmd.Flags().StringVar(&flagControlPool, "controller-pool", "", "cap the number of simultaneous controller connections (N or N:BYTES)")
	rootCmd.Flags().StringArrayVar(&flagExecOnExit, "exec-on-exit", nil, "argv to exec once the shutdown sequence completes")
	rootCmd.Flags().StringVar(&flagFailsafe, "failsafe", "", "pre-arm the failsafe guard with CODE")

	rootCmd.PersistentFlags().StringVar(&globalLog, "log", "", "set the log file path")
	rootCmd.PersistentFlags().StringVar(&globalLogFormat, "log-format", "text", "set the format for log output (text or json)")
	rootCmd.PersistentFlags().BoolVar(&globalDebug, "debug", false, "enable debug logging")
}

func setupLogging() {
	var logOutput = os.Stderr
	if globalLog != "" {
		f, err := os.OpenFile(globalLog, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err == nil {
			logOutput = f
		}
	}

	logLevel := slog.LevelInfo
	if globalDebug {
		logLevel = slog.LevelDebug
	}

	logger := logging.NewLogger(logging.Config{
		Level:  logLevel,
		Format: globalLogFormat,
		Output: logOutput,
	})
	logging.SetDefault(logger)
}

func runSupervisor(cmd *cobra.Command, args []string) error {
	cfg := supervisor.Config{
		StdinMode:    flagStdin,
		ConfigPath:   flagConfig,
		SocketPath:   flagSocket,
		ExecOnExit:   flagExecOnExit,
		FailsafeCode: flagFailsafe,
		IsPID1:       os.Getpid() == 1,
	}

	var err error
	if cfg.ServicePool, err = pool.ParseSpec(flagServicePool); err != nil {
		return err
	}
	if cfg.FdPool, err = pool.ParseSpec(flagFdPool); err != nil {
		return err
	}
	if cfg.ControlPool, err = pool.ParseSpec(flagControlPool); err != nil {
		return err
	}
	if !cfg.StdinMode && cfg.SocketPath == "" {
		return fmt.Errorf("daemonproxy-go: need --stdin, --socket, or both")
	}

	sv, err := supervisor.New(cfg)
	if err != nil {
		return err
	}

	code, err := sv.Run()
	if err != nil {
		logging.Default().Error("supervisor exited with error", "error", err)
	}
	os.Exit(code)
	return nil
}
