package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cast"
	"github.com/spf13/viper"
)

// Load reads path and applies overrides. Files ending in .yaml, .yml, .json
// or .toml are decoded with viper; anything else uses the line format.
func Load(path string, overrides CLIOverrides) (*Config, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json", ".toml":
		return StructuredParser{}.LoadConfig(path, overrides)
	default:
		return LineParser{}.LoadConfig(path, overrides)
	}
}

// StructuredParser reads YAML, JSON and TOML documents of the form
//
//	global:
//	  count: 4
//	  delay: 1s
//	  metrics:
//	    listen: ":9100"
//	targets:
//	  - name: router
//	    address: 192.0.2.1
//	    group: core
//	    options: {count: "10"}
//
// Global keys mirror the directive keys of the line format.
type StructuredParser struct{}

// LoadConfig decodes path with viper and applies overrides.
func (StructuredParser) LoadConfig(path string, overrides CLIOverrides) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	cfg := &Config{Global: DefaultGlobalOptions()}

	if global := v.Sub("global"); global != nil {
		pairs := make(map[string]string)
		for _, key := range global.AllKeys() {
			val, err := cast.ToStringE(global.Get(key))
			if err != nil {
				return nil, fmt.Errorf("global.%s: %w", key, err)
			}
			pairs[key] = val
		}
		if err := applyDirective(&cfg.Global, pairs); err != nil {
			return nil, err
		}
	}

	if err := v.UnmarshalKey("targets", &cfg.Targets); err != nil {
		return nil, fmt.Errorf("targets: %w", err)
	}
	for i := range cfg.Targets {
		tgt := &cfg.Targets[i]
		if tgt.Name == "" || tgt.Address == "" {
			return nil, fmt.Errorf("targets[%d]: name and address are required", i)
		}
		if tgt.Options == nil {
			tgt.Options = map[string]string{}
		}
		if _, err := tgt.Resolve(DefaultGlobalOptions()); err != nil {
			return nil, err
		}
	}

	applyCLIOverrides(&cfg.Global, overrides)
	return cfg, nil
}
