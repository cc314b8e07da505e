package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/doridoridoriand/pingtrain/internal/config"
)

// The Optional* types implement pflag.Value and remember whether the flag was
// given, so that only explicit flags override config file values.

type optional[T any] struct {
	value T
	set   bool
}

func (o *optional[T]) store(v T) {
	o.value = v
	o.set = true
}

// Value returns the parsed flag value and whether the flag was given.
func (o *optional[T]) Value() (T, bool) {
	return o.value, o.set
}

func (o *optional[T]) format(f func(T) string) string {
	if !o.set {
		return ""
	}
	return f(o.value)
}

// OptionalDuration records a duration flag and whether it was set.
type OptionalDuration struct{ optional[time.Duration] }

func (o *OptionalDuration) Set(s string) error {
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	o.store(v)
	return nil
}

func (o *OptionalDuration) String() string { return o.format(time.Duration.String) }
func (o *OptionalDuration) Type() string   { return "duration" }

// OptionalInt records an int flag and whether it was set.
type OptionalInt struct{ optional[int] }

func (o *OptionalInt) Set(s string) error {
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	o.store(v)
	return nil
}

func (o *OptionalInt) String() string { return o.format(strconv.Itoa) }
func (o *OptionalInt) Type() string   { return "int" }

// OptionalFloat records a float flag and whether it was set.
type OptionalFloat struct{ optional[float64] }

func (o *OptionalFloat) Set(s string) error {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	o.store(v)
	return nil
}

func (o *OptionalFloat) String() string {
	return o.format(func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) })
}

func (o *OptionalFloat) Type() string { return "float" }

// OptionalString records a string flag and whether it was set.
type OptionalString struct{ optional[string] }

func (o *OptionalString) Set(s string) error {
	o.store(s)
	return nil
}

func (o *OptionalString) String() string { return o.format(func(v string) string { return v }) }
func (o *OptionalString) Type() string   { return "string" }

// OptionalBool records a bool flag and whether it was set. Registered with
// NoOptDefVal "true" so a bare --flag enables it.
type OptionalBool struct{ optional[bool] }

func (o *OptionalBool) Set(s string) error {
	v, err := strconv.ParseBool(s)
	if err != nil {
		return err
	}
	o.store(v)
	return nil
}

func (o *OptionalBool) String() string   { return o.format(strconv.FormatBool) }
func (o *OptionalBool) Type() string     { return "bool" }
func (o *OptionalBool) IsBoolFlag() bool { return true }

// OptionalMetricsMode records a metrics mode flag and whether it was set.
type OptionalMetricsMode struct{ optional[config.MetricsMode] }

func (o *OptionalMetricsMode) Set(s string) error {
	switch mode := config.MetricsMode(s); mode {
	case config.MetricsModePerTarget, config.MetricsModeAggregated, config.MetricsModeBoth:
		o.store(mode)
		return nil
	default:
		return fmt.Errorf("invalid metrics mode: %q (valid values: per-target, aggregated, both)", s)
	}
}

func (o *OptionalMetricsMode) String() string {
	return o.format(func(v config.MetricsMode) string { return string(v) })
}

func (o *OptionalMetricsMode) Type() string { return "mode" }
