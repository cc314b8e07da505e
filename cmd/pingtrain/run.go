package main

import (
	"context"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/doridoridoriand/pingtrain/internal/cli"
	"github.com/doridoridoriand/pingtrain/internal/config"
	"github.com/doridoridoriand/pingtrain/internal/ping"
	"github.com/doridoridoriand/pingtrain/internal/report"
	"github.com/doridoridoriand/pingtrain/internal/scheduler"
	"github.com/doridoridoriand/pingtrain/internal/stats"
	"github.com/doridoridoriand/pingtrain/internal/tracing"
)

func newRunCommand(stdout, stderr io.Writer) *cobra.Command {
	var flags cli.RunFlags
	cmd := &cobra.Command{
		Use:   "run <address>",
		Short: "Send one train of probes to a host and print every outcome",
		Long: "Send count probes to address, probe i starting i*delay after the first,\n" +
			"and print one outcome per probe followed by summary statistics.\n" +
			"Exits 1 when no probe was answered and 2 when the run itself failed.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			global := config.DefaultGlobalOptions()
			config.ApplyOverrides(&global, flags.Overrides())
			if err := global.Validate(); err != nil {
				return err
			}
			return runOnce(cmd.Context(), args[0], global, stdout, stderr)
		},
	}
	flags.Register(cmd.Flags())
	return cmd
}

func runOnce(ctx context.Context, address string, global config.GlobalOptions, stdout, stderr io.Writer) error {
	format, err := report.ParseFormat(global.Output)
	if err != nil {
		return err
	}
	target, err := ping.ResolveIP(address)
	if err != nil {
		return err
	}

	logger := newLogger(global.LogLevel, stderr)
	provider, err := tracing.Init(ctx, global.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.LogError("tracing", err, nil)
		}
	}()

	sess, err := openSession(ctx, global, logger, provider)
	if err != nil {
		return &exitError{code: exitFailure, err: err}
	}
	defer sess.Close()

	result, err := sess.Run(ctx, scheduler.RunRequest{
		Target: target,
		Count:  global.Count,
		Delay:  global.Delay,
		Expiry: global.Expiry,
	})
	if err != nil {
		return &exitError{code: exitFailure, err: err}
	}
	if sess.Degraded() {
		logger.Warn("raw ICMP unavailable, probed with the system ping command", nil)
	}

	summary := stats.Summarize(result)
	if err := report.Write(stdout, format, result, summary); err != nil {
		return err
	}
	if summary.Sent > 0 && summary.Received == 0 {
		return &exitError{code: exitNoReply}
	}
	return nil
}
