package config

import (
	"strings"
	"testing"
	"time"
)

func TestDefaultGlobalOptionsAreValid(t *testing.T) {
	if err := DefaultGlobalOptions().Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestValidateReportsEveryProblem(t *testing.T) {
	g := DefaultGlobalOptions()
	g.Count = -1
	g.Expiry = 0
	g.Engine = "carrier-pigeon"
	g.Tracing.SampleRate = 2

	err := g.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	for _, want := range []string{"count", "expiry", "carrier-pigeon", "sample_rate"} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("expected error to mention %q, got %v", want, err)
		}
	}
}

func TestConfigValidateTargets(t *testing.T) {
	cfg := &Config{
		Global: DefaultGlobalOptions(),
		Targets: []TargetConfig{
			{Name: "a", Address: "192.0.2.1"},
			{Name: "a", Address: "192.0.2.2"},
			{Name: "b", Address: "192.0.2.3", Options: map[string]string{"count": "0"}},
		},
	}
	err := cfg.Validate()
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if !strings.Contains(err.Error(), "duplicate target name") || !strings.Contains(err.Error(), "target b") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestConfigValidateAcceptsTargetOverrides(t *testing.T) {
	cfg := &Config{
		Global:  DefaultGlobalOptions(),
		Targets: []TargetConfig{{Name: "a", Address: "192.0.2.1", Options: map[string]string{"delay": "0s"}}},
	}
	cfg.Global.Delay = 50 * time.Millisecond
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}
