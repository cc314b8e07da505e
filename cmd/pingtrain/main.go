// Command pingtrain sends trains of ICMP echo probes and reports the outcome
// of every probe, either once for a single host or continuously for a list of
// targets.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/doridoridoriand/pingtrain/internal/config"
	"github.com/doridoridoriand/pingtrain/internal/log"
	"github.com/doridoridoriand/pingtrain/internal/ping"
	"github.com/doridoridoriand/pingtrain/internal/scheduler"
	"github.com/doridoridoriand/pingtrain/internal/session"
	"github.com/doridoridoriand/pingtrain/internal/tracing"
)

var version = "0.1.0"

// Exit codes.
const (
	exitOK      = 0
	exitNoReply = 1
	exitFailure = 2
)

// exitError carries a process exit code out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error {
	return e.err
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := newRootCommand(stdout, stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}
	var exit *exitError
	if errors.As(err, &exit) {
		if exit.err != nil {
			fmt.Fprintf(stderr, "pingtrain: %v\n", exit.err)
		}
		return exit.code
	}
	fmt.Fprintf(stderr, "pingtrain: %v\n", err)
	return exitFailure
}

func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "pingtrain",
		Short:         "Concurrent ICMP echo probe runner",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.AddCommand(
		newRunCommand(stdout, stderr),
		newWatchCommand(stdout, stderr),
		newVersionCommand(stdout),
	)
	return root
}

func newVersionCommand(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(stdout, "pingtrain version %s\n", version)
		},
	}
}

func newLogger(level string, w io.Writer) *log.Logger {
	logger := log.NewLogger(log.ParseLevel(level))
	logger.SetOutput(w)
	return logger
}

// openSession builds the engine and scheduler described by global.
func openSession(ctx context.Context, global config.GlobalOptions, logger *log.Logger, tracer *tracing.Provider) (*session.Session, error) {
	mode, err := scheduler.ParseMode(global.Mode)
	if err != nil {
		return nil, err
	}
	kind, err := ping.ParseKind(global.Engine)
	if err != nil {
		return nil, err
	}
	return session.Open(ctx, session.Options{
		Engine:      ping.EngineConfig{Kind: kind, Privileged: global.Privileged},
		Mode:        mode,
		MaxInFlight: global.MaxInFlight,
		Tracer:      tracer.Tracer(),
		Logger:      logger,
	})
}
