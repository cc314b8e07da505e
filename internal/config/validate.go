package config

import (
	"errors"
	"fmt"
	"strings"
)

var (
	engineNames   = []string{"", "auto", "icmp", "probing", "exec"}
	modeNames     = []string{"", "staggered", "sequential"}
	outputNames   = []string{"", "text", "json", "yaml", "yml"}
	protocolNames = []string{"", "grpc", "http"}
	levelNames    = []string{"", "debug", "info", "warn", "warning", "error"}
)

// Validate checks option ranges and enumerations. All problems are reported together.
func (g GlobalOptions) Validate() error {
	var errs []error
	if g.Count < 0 {
		errs = append(errs, fmt.Errorf("count must be >= 0, got %d", g.Count))
	}
	if g.Delay < 0 {
		errs = append(errs, fmt.Errorf("delay must be >= 0, got %s", g.Delay))
	}
	if g.Expiry <= 0 {
		errs = append(errs, fmt.Errorf("expiry must be > 0, got %s", g.Expiry))
	}
	if g.Interval <= 0 {
		errs = append(errs, fmt.Errorf("interval must be > 0, got %s", g.Interval))
	}
	if g.MaxInFlight < 0 {
		errs = append(errs, fmt.Errorf("max_in_flight must be >= 0, got %d", g.MaxInFlight))
	}
	if g.RunRate < 0 {
		errs = append(errs, fmt.Errorf("run_rate must be >= 0, got %g", g.RunRate))
	}
	if g.UIScale <= 0 {
		errs = append(errs, fmt.Errorf("ui.scale must be > 0, got %d", g.UIScale))
	}
	if !oneOf(g.Engine, engineNames) {
		errs = append(errs, fmt.Errorf("unknown engine %q", g.Engine))
	}
	if !oneOf(g.Mode, modeNames) {
		errs = append(errs, fmt.Errorf("unknown mode %q", g.Mode))
	}
	if !oneOf(g.Output, outputNames) {
		errs = append(errs, fmt.Errorf("unknown output %q", g.Output))
	}
	if !oneOf(strings.ToLower(g.LogLevel), levelNames) {
		errs = append(errs, fmt.Errorf("unknown log.level %q", g.LogLevel))
	}
	switch g.MetricsMode {
	case "", MetricsModePerTarget, MetricsModeAggregated, MetricsModeBoth:
	default:
		errs = append(errs, fmt.Errorf("unknown metrics.mode %q", g.MetricsMode))
	}
	if !oneOf(strings.ToLower(g.Tracing.Protocol), protocolNames) {
		errs = append(errs, fmt.Errorf("unknown tracing.protocol %q", g.Tracing.Protocol))
	}
	if g.Tracing.SampleRate < 0 || g.Tracing.SampleRate > 1 {
		errs = append(errs, fmt.Errorf("tracing.sample_rate must be between 0 and 1, got %g", g.Tracing.SampleRate))
	}
	return errors.Join(errs...)
}

// Validate checks global options and every target.
func (c *Config) Validate() error {
	errs := []error{c.Global.Validate()}
	seen := make(map[string]bool, len(c.Targets))
	for _, tgt := range c.Targets {
		if seen[tgt.Name] {
			errs = append(errs, fmt.Errorf("duplicate target name %q", tgt.Name))
		}
		seen[tgt.Name] = true
		resolved, err := tgt.Resolve(c.Global)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if resolved.Count < 1 {
			errs = append(errs, fmt.Errorf("target %s: count must be >= 1 in watch mode", tgt.Name))
		}
		if resolved.Delay < 0 || resolved.Expiry <= 0 {
			errs = append(errs, fmt.Errorf("target %s: delay must be >= 0 and expiry > 0", tgt.Name))
		}
	}
	return errors.Join(errs...)
}

func oneOf(value string, allowed []string) bool {
	for _, a := range allowed {
		if value == a {
			return true
		}
	}
	return false
}
