package cli

import (
	"github.com/spf13/pflag"

	"github.com/doridoridoriand/pingtrain/internal/config"
)

// RunFlags are the flags shared by commands that execute probe runs.
type RunFlags struct {
	Count       OptionalInt
	Delay       OptionalDuration
	Expiry      OptionalDuration
	Engine      OptionalString
	Privileged  OptionalBool
	Mode        OptionalString
	MaxInFlight OptionalInt
	LogLevel    OptionalString
	Output      OptionalString
	Tracing     OptionalString
}

// Register adds the run flags to fs.
func (f *RunFlags) Register(fs *pflag.FlagSet) {
	fs.VarP(&f.Count, "count", "c", "probes per run")
	fs.VarP(&f.Delay, "delay", "i", "delay between probe starts")
	fs.VarP(&f.Expiry, "expiry", "W", "time to wait for each reply")
	fs.Var(&f.Engine, "engine", "probe engine: auto|icmp|probing|exec")
	boolVar(fs, &f.Privileged, "privileged", "", "use raw ICMP sockets")
	fs.Var(&f.Mode, "mode", "scheduling mode: staggered|sequential")
	fs.Var(&f.MaxInFlight, "max-in-flight", "cap on concurrently running probes per run (0 = uncapped)")
	fs.Var(&f.LogLevel, "log-level", "log level: debug|info|warn|error")
	fs.VarP(&f.Output, "output", "o", "report format: text|json|yaml")
	fs.Var(&f.Tracing, "otlp-endpoint", "OTLP collector endpoint for traces")
}

// Overrides converts explicitly set flags into config overrides.
func (f *RunFlags) Overrides() config.CLIOverrides {
	overrides := config.CLIOverrides{}

	if v, ok := f.Count.Value(); ok {
		overrides.Count = &v
	}
	if v, ok := f.Delay.Value(); ok {
		overrides.Delay = &v
	}
	if v, ok := f.Expiry.Value(); ok {
		overrides.Expiry = &v
	}
	if v, ok := f.Engine.Value(); ok && v != "" {
		overrides.Engine = &v
	}
	if v, ok := f.Privileged.Value(); ok {
		overrides.Privileged = &v
	}
	if v, ok := f.Mode.Value(); ok && v != "" {
		overrides.Mode = &v
	}
	if v, ok := f.MaxInFlight.Value(); ok {
		overrides.MaxInFlight = &v
	}
	if v, ok := f.LogLevel.Value(); ok && v != "" {
		overrides.LogLevel = &v
	}
	if v, ok := f.Output.Value(); ok && v != "" {
		overrides.Output = &v
	}
	if v, ok := f.Tracing.Value(); ok {
		overrides.TracingEndpoint = &v
	}
	return overrides
}

// WatchFlags extend RunFlags with watch-mode settings.
type WatchFlags struct {
	RunFlags
	Interval      OptionalDuration
	RunRate       OptionalFloat
	MetricsMode   OptionalMetricsMode
	MetricsListen OptionalString
	NoUI          OptionalBool
}

// Register adds run and watch flags to fs.
func (f *WatchFlags) Register(fs *pflag.FlagSet) {
	f.RunFlags.Register(fs)
	fs.Var(&f.Interval, "interval", "time between runs of one target")
	fs.Var(&f.RunRate, "run-rate", "max run launches per second across targets (0 = unlimited)")
	fs.Var(&f.MetricsMode, "metrics-mode", "metrics mode: per-target|aggregated|both")
	fs.Var(&f.MetricsListen, "metrics-listen", "metrics listen address (e.g. :9100)")
	boolVar(fs, &f.NoUI, "no-ui", "", "disable TUI (log only)")
}

// Overrides converts explicitly set flags into config overrides.
func (f *WatchFlags) Overrides() config.CLIOverrides {
	overrides := f.RunFlags.Overrides()

	if v, ok := f.Interval.Value(); ok {
		overrides.Interval = &v
	}
	if v, ok := f.RunRate.Value(); ok {
		overrides.RunRate = &v
	}
	if v, ok := f.MetricsMode.Value(); ok {
		overrides.MetricsMode = &v
	}
	if v, ok := f.MetricsListen.Value(); ok && v != "" {
		overrides.MetricsListen = &v
	}
	if v, ok := f.NoUI.Value(); ok {
		overrides.UIDisable = &v
	}
	return overrides
}

func boolVar(fs *pflag.FlagSet, v *OptionalBool, name, shorthand, usage string) {
	flag := fs.VarPF(v, name, shorthand, usage)
	flag.NoOptDefVal = "true"
}
