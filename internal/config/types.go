package config

import "time"

// MetricsMode describes the granularity of exported metrics.
type MetricsMode string

const (
	MetricsModePerTarget  MetricsMode = "per-target"
	MetricsModeAggregated MetricsMode = "aggregated"
	MetricsModeBoth       MetricsMode = "both"
)

// TracingConfig configures OpenTelemetry export. An empty endpoint disables tracing.
type TracingConfig struct {
	Endpoint    string
	Protocol    string
	Insecure    bool
	SampleRate  float64
	ServiceName string
}

// GlobalOptions holds global settings parsed from config and CLI overrides.
type GlobalOptions struct {
	// Count is the number of probes per run.
	Count int
	// Delay spaces successive probe starts within a run.
	Delay time.Duration
	// Expiry bounds each probe.
	Expiry time.Duration
	// Interval is the watch-mode cadence between runs of one target.
	Interval time.Duration

	Engine      string
	Privileged  bool
	Mode        string
	MaxInFlight int
	// RunRate limits run launches per second across all targets. Zero disables the limit.
	RunRate float64

	MetricsMode   MetricsMode
	MetricsListen string
	UIScale       int
	UIDisable     bool

	LogLevel string
	Output   string
	Tracing  TracingConfig
}

// TargetConfig represents a single target definition.
type TargetConfig struct {
	Name    string            `mapstructure:"name"`
	Address string            `mapstructure:"address"`
	Group   string            `mapstructure:"group"`
	Options map[string]string `mapstructure:"options"`
}

// Config is the parsed configuration file with global settings.
type Config struct {
	Targets []TargetConfig
	Global  GlobalOptions
}

// CLIOverrides holds optional CLI values that override config file values.
type CLIOverrides struct {
	Count           *int
	Delay           *time.Duration
	Expiry          *time.Duration
	Interval        *time.Duration
	Engine          *string
	Privileged      *bool
	Mode            *string
	MaxInFlight     *int
	RunRate         *float64
	MetricsMode     *MetricsMode
	MetricsListen   *string
	UIDisable       *bool
	LogLevel        *string
	Output          *string
	TracingEndpoint *string
}

// Parser defines config parsing behavior.
type Parser interface {
	LoadConfig(path string, overrides CLIOverrides) (*Config, error)
	ParseDirective(line string) (map[string]string, error)
	ParseTargetLine(line string, group string) (TargetConfig, error)
}
