package ping

import "fmt"

// Kind names a concrete engine backend.
type Kind string

const (
	KindAuto    Kind = "auto"
	KindICMP    Kind = "icmp"
	KindProbing Kind = "probing"
	KindExec    Kind = "exec"
)

// EngineConfig selects and configures an engine at startup.
type EngineConfig struct {
	Kind       Kind
	Privileged bool
}

// ParseKind validates an engine name. An empty name means KindAuto.
func ParseKind(value string) (Kind, error) {
	switch Kind(value) {
	case "", KindAuto:
		return KindAuto, nil
	case KindICMP, KindProbing, KindExec:
		return Kind(value), nil
	default:
		return "", fmt.Errorf("unknown engine %q", value)
	}
}

// New builds the engine named by cfg.Kind. KindAuto resolves to the default
// backend for the build target.
func New(cfg EngineConfig) (Engine, error) {
	kind, err := ParseKind(string(cfg.Kind))
	if err != nil {
		return nil, err
	}
	if kind == KindAuto {
		return newDefaultEngine(cfg.Privileged), nil
	}
	switch kind {
	case KindICMP:
		return NewICMPEngine(cfg.Privileged), nil
	case KindProbing:
		return NewProbingEngine(cfg.Privileged), nil
	default:
		return NewExternalEngine(), nil
	}
}
