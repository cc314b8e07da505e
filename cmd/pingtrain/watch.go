package main

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/doridoridoriand/pingtrain/internal/cli"
	"github.com/doridoridoriand/pingtrain/internal/config"
	"github.com/doridoridoriand/pingtrain/internal/log"
	"github.com/doridoridoriand/pingtrain/internal/metrics"
	"github.com/doridoridoriand/pingtrain/internal/monitor"
	"github.com/doridoridoriand/pingtrain/internal/state"
	"github.com/doridoridoriand/pingtrain/internal/tracing"
	"github.com/doridoridoriand/pingtrain/internal/ui"
)

func newWatchCommand(stdout, stderr io.Writer) *cobra.Command {
	var flags cli.WatchFlags
	cmd := &cobra.Command{
		Use:   "watch <config-file>",
		Short: "Probe every target in a config file on an interval",
		Long: "Load targets from config-file and run a probe train against each one per\n" +
			"interval. Status is shown in a terminal table, exported as metrics when\n" +
			"metrics.listen is set, and reloaded from the file on SIGHUP.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return watch(cmd.Context(), args[0], flags.Overrides(), stderr)
		},
	}
	flags.Register(cmd.Flags())
	return cmd
}

func loadWatchConfig(path string, overrides config.CLIOverrides) (*config.Config, error) {
	cfg, err := config.Load(path, overrides)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func watch(ctx context.Context, path string, overrides config.CLIOverrides, stderr io.Writer) error {
	cfg, err := loadWatchConfig(path, overrides)
	logger := newLogger(logLevel(cfg), stderr)
	logger.LogConfigLoad(err == nil, path, err)
	if err != nil {
		return err
	}

	provider, err := tracing.Init(ctx, cfg.Global.Tracing)
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

	sess, err := openSession(ctx, cfg.Global, logger, provider)
	if err != nil {
		return &exitError{code: exitFailure, err: err}
	}
	defer sess.Close()

	store := state.NewStore(cfg.Targets, cfg.Global.Expiry)
	mon := monitor.New(cfg.Global, cfg.Targets, sess, store, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return mon.Run(gctx)
	})
	if cfg.Global.MetricsListen != "" {
		g.Go(func() error {
			logger.Info("metrics listening", map[string]interface{}{"addr": cfg.Global.MetricsListen})
			return metrics.Serve(gctx, cfg.Global.MetricsListen, cfg.Global.MetricsMode, store)
		})
	}
	if !cfg.Global.UIDisable {
		// The table owns the terminal while it runs.
		logger.SetOutput(io.Discard)
		g.Go(func() error {
			return ui.New(cfg.Global, store).Run(gctx)
		})
	}
	g.Go(func() error {
		reloadOnHangup(gctx, path, overrides, mon, logger)
		return nil
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

// reloadOnHangup re-reads path on SIGHUP and applies it to mon. A config that
// fails to load or validate is logged and the running one is kept.
func reloadOnHangup(ctx context.Context, path string, overrides config.CLIOverrides, mon monitor.Monitor, logger *log.Logger) {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hup:
			cfg, err := loadWatchConfig(path, overrides)
			logger.LogConfigLoad(err == nil, path, err)
			if err != nil {
				continue
			}
			mon.UpdateConfig(cfg.Global, cfg.Targets)
			logger.Info("config reloaded", map[string]interface{}{"targets": len(cfg.Targets)})
		}
	}
}

func logLevel(cfg *config.Config) string {
	if cfg == nil {
		return config.DefaultGlobalOptions().LogLevel
	}
	return cfg.Global.LogLevel
}

