package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const directivePrefix = "pingtrain:"

// LineParser reads the line-oriented target list format:
// "name address [key=value...]" per target, "--- [group]" separators and
// "# pingtrain: key=value" directives for global options.
type LineParser struct{}

// DefaultGlobalOptions returns baseline settings used before config overrides.
func DefaultGlobalOptions() GlobalOptions {
	return GlobalOptions{
		Count:         4,
		Delay:         1 * time.Second,
		Expiry:        2 * time.Second,
		Interval:      10 * time.Second,
		Engine:        "auto",
		Mode:          "staggered",
		MaxInFlight:   0,
		RunRate:       0,
		MetricsMode:   MetricsModePerTarget,
		MetricsListen: "",
		UIScale:       10,
		UIDisable:     false,
		LogLevel:      "info",
		Output:        "text",
		Tracing: TracingConfig{
			Protocol:   "grpc",
			SampleRate: 1.0,
		},
	}
}

// LoadConfig parses a target list file with CLI overrides applied.
func (p LineParser) LoadConfig(path string, overrides CLIOverrides) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	cfg := &Config{Global: DefaultGlobalOptions()}

	scanner := bufio.NewScanner(file)
	groupIndex := 0
	currentGroup := ""

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "#") {
			if strings.HasPrefix(line, "# "+directivePrefix) {
				pairs, err := p.ParseDirective(line)
				if err != nil {
					return nil, err
				}
				if err := applyDirective(&cfg.Global, pairs); err != nil {
					return nil, err
				}
			}
			continue
		}

		if strings.HasPrefix(line, directivePrefix) {
			pairs, err := p.ParseDirective(line)
			if err != nil {
				return nil, err
			}
			if err := applyDirective(&cfg.Global, pairs); err != nil {
				return nil, err
			}
			continue
		}

		if strings.HasPrefix(line, "---") {
			groupIndex++
			groupName := strings.TrimSpace(strings.TrimPrefix(line, "---"))
			if groupName == "" {
				groupName = fmt.Sprintf("group-%d", groupIndex)
			}
			currentGroup = groupName
			continue
		}

		target, err := p.ParseTargetLine(line, currentGroup)
		if err != nil {
			return nil, err
		}
		cfg.Targets = append(cfg.Targets, target)
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	applyCLIOverrides(&cfg.Global, overrides)
	return cfg, nil
}

// ParseDirective extracts key=value pairs from a directive line.
func (p LineParser) ParseDirective(line string) (map[string]string, error) {
	trimmed := strings.TrimSpace(line)
	if strings.HasPrefix(trimmed, "#") {
		trimmed = strings.TrimSpace(strings.TrimPrefix(trimmed, "#"))
	}
	if !strings.HasPrefix(trimmed, directivePrefix) {
		return nil, fmt.Errorf("directive line must start with '# %s' or '%s': %q", directivePrefix, directivePrefix, line)
	}
	payload := strings.TrimSpace(strings.TrimPrefix(trimmed, directivePrefix))
	if payload == "" {
		return map[string]string{}, nil
	}

	pairs := make(map[string]string)
	for _, token := range strings.Fields(payload) {
		kv := strings.SplitN(token, "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("invalid directive token: %q", token)
		}
		pairs[kv[0]] = kv[1]
	}
	return pairs, nil
}

// ParseTargetLine parses a single target definition.
func (p LineParser) ParseTargetLine(line string, group string) (TargetConfig, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return TargetConfig{}, fmt.Errorf("invalid target line: %q", line)
	}

	target := TargetConfig{
		Name:    fields[0],
		Address: fields[1],
		Group:   group,
		Options: map[string]string{},
	}

	if len(fields) > 2 {
		for _, field := range fields[2:] {
			kv := strings.SplitN(field, "=", 2)
			if len(kv) != 2 {
				return TargetConfig{}, fmt.Errorf("invalid target option: %q", field)
			}
			target.Options[kv[0]] = kv[1]
		}
	}
	if _, err := target.Resolve(DefaultGlobalOptions()); err != nil {
		return TargetConfig{}, err
	}

	return target, nil
}

// targetKeys are the run settings a target line may override.
var targetKeys = map[string]bool{
	"count":  true,
	"delay":  true,
	"expiry": true,
}

// Resolve returns global with the target's per-run overrides applied.
func (t TargetConfig) Resolve(global GlobalOptions) (GlobalOptions, error) {
	pairs := make(map[string]string, len(t.Options))
	for key, val := range t.Options {
		if targetKeys[key] {
			pairs[key] = val
		}
	}
	if err := applyDirective(&global, pairs); err != nil {
		return GlobalOptions{}, fmt.Errorf("target %s: %w", t.Name, err)
	}
	return global, nil
}

func applyDirective(global *GlobalOptions, pairs map[string]string) error {
	for key, val := range pairs {
		switch key {
		case "count":
			n, err := strconv.Atoi(val)
			if err != nil {
				return fmt.Errorf("invalid count: %w", err)
			}
			global.Count = n
		case "delay":
			d, err := time.ParseDuration(val)
			if err != nil {
				return fmt.Errorf("invalid delay: %w", err)
			}
			global.Delay = d
		case "expiry", "timeout":
			d, err := time.ParseDuration(val)
			if err != nil {
				return fmt.Errorf("invalid %s: %w", key, err)
			}
			global.Expiry = d
		case "interval":
			d, err := time.ParseDuration(val)
			if err != nil {
				return fmt.Errorf("invalid interval: %w", err)
			}
			global.Interval = d
		case "engine":
			global.Engine = val
		case "privileged":
			b, err := strconv.ParseBool(val)
			if err != nil {
				return fmt.Errorf("invalid privileged: %w", err)
			}
			global.Privileged = b
		case "mode":
			global.Mode = val
		case "max_in_flight":
			n, err := strconv.Atoi(val)
			if err != nil {
				return fmt.Errorf("invalid max_in_flight: %w", err)
			}
			global.MaxInFlight = n
		case "run_rate":
			f, err := strconv.ParseFloat(val, 64)
			if err != nil {
				return fmt.Errorf("invalid run_rate: %w", err)
			}
			global.RunRate = f
		case "metrics.mode":
			switch val {
			case string(MetricsModePerTarget):
				global.MetricsMode = MetricsModePerTarget
			case string(MetricsModeAggregated):
				global.MetricsMode = MetricsModeAggregated
			case string(MetricsModeBoth):
				global.MetricsMode = MetricsModeBoth
			default:
				return fmt.Errorf("invalid metrics.mode: %q", val)
			}
		case "metrics.listen":
			global.MetricsListen = normalizeListen(val)
		case "ui.scale":
			n, err := strconv.Atoi(val)
			if err != nil {
				return fmt.Errorf("invalid ui.scale: %w", err)
			}
			global.UIScale = n
		case "ui.disable":
			b, err := strconv.ParseBool(val)
			if err != nil {
				return fmt.Errorf("invalid ui.disable: %w", err)
			}
			global.UIDisable = b
		case "log.level":
			global.LogLevel = val
		case "output":
			global.Output = val
		case "tracing.endpoint":
			global.Tracing.Endpoint = val
		case "tracing.protocol":
			global.Tracing.Protocol = val
		case "tracing.insecure":
			b, err := strconv.ParseBool(val)
			if err != nil {
				return fmt.Errorf("invalid tracing.insecure: %w", err)
			}
			global.Tracing.Insecure = b
		case "tracing.sample_rate":
			f, err := strconv.ParseFloat(val, 64)
			if err != nil {
				return fmt.Errorf("invalid tracing.sample_rate: %w", err)
			}
			global.Tracing.SampleRate = f
		case "tracing.service_name":
			global.Tracing.ServiceName = val
		default:
			// Ignore unknown keys for forward compatibility.
		}
	}
	return nil
}

func applyCLIOverrides(global *GlobalOptions, overrides CLIOverrides) {
	if overrides.Count != nil {
		global.Count = *overrides.Count
	}
	if overrides.Delay != nil {
		global.Delay = *overrides.Delay
	}
	if overrides.Expiry != nil {
		global.Expiry = *overrides.Expiry
	}
	if overrides.Interval != nil {
		global.Interval = *overrides.Interval
	}
	if overrides.Engine != nil {
		global.Engine = *overrides.Engine
	}
	if overrides.Privileged != nil {
		global.Privileged = *overrides.Privileged
	}
	if overrides.Mode != nil {
		global.Mode = *overrides.Mode
	}
	if overrides.MaxInFlight != nil {
		global.MaxInFlight = *overrides.MaxInFlight
	}
	if overrides.RunRate != nil {
		global.RunRate = *overrides.RunRate
	}
	if overrides.MetricsMode != nil {
		global.MetricsMode = *overrides.MetricsMode
	}
	if overrides.MetricsListen != nil {
		global.MetricsListen = normalizeListen(*overrides.MetricsListen)
	}
	if overrides.UIDisable != nil {
		global.UIDisable = *overrides.UIDisable
	}
	if overrides.LogLevel != nil {
		global.LogLevel = *overrides.LogLevel
	}
	if overrides.Output != nil {
		global.Output = *overrides.Output
	}
	if overrides.TracingEndpoint != nil {
		global.Tracing.Endpoint = *overrides.TracingEndpoint
	}
}

// ApplyOverrides applies CLI overrides to global.
func ApplyOverrides(global *GlobalOptions, overrides CLIOverrides) {
	applyCLIOverrides(global, overrides)
}

func normalizeListen(value string) string {
	if isDigits(value) {
		return ":" + value
	}
	return value
}

func isDigits(value string) bool {
	if value == "" {
		return false
	}
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
