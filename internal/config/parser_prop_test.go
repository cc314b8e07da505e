package config

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/prop"
)

type targetShape struct {
	Name    string
	Address string
}

type configShape struct {
	Groups [][]targetShape
}

type directiveShape struct {
	Count         int
	DelayMs       int
	ExpiryMs      int
	IntervalMs    int
	MaxInFlight   int
	MetricsMode   MetricsMode
	MetricsListen string
	UIScale       int
	UIDisable     bool
}

func TestPropertyConfigParsing(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 25
	props := gopter.NewProperties(params)

	props.Property("targets and groups are parsed accurately", prop.ForAll(
		func(shape configShape) bool {
			configText, expected := buildConfigFromShape(shape)
			parser := LineParser{}
			path := writeTempConfig(t, configText)
			cfg, err := parser.LoadConfig(path, CLIOverrides{})
			if err != nil {
				return false
			}
			if len(cfg.Targets) != len(expected) {
				return false
			}
			for i, tgt := range expected {
				got := cfg.Targets[i]
				if got.Name != tgt.Name || got.Address != tgt.Address || got.Group != tgt.Group {
					return false
				}
			}
			return true
		},
		genConfigShape(),
	))

	props.TestingRun(t)
}

func TestPropertyDirectiveParsing(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 25
	props := gopter.NewProperties(params)

	props.Property("pingtrain directives map to GlobalOptions", prop.ForAll(
		func(shape directiveShape) bool {
			directive := fmt.Sprintf(
				"# pingtrain: count=%d delay=%dms expiry=%dms interval=%dms max_in_flight=%d metrics.mode=%s metrics.listen=%s ui.scale=%d ui.disable=%t\n",
				shape.Count,
				shape.DelayMs,
				shape.ExpiryMs,
				shape.IntervalMs,
				shape.MaxInFlight,
				shape.MetricsMode,
				shape.MetricsListen,
				shape.UIScale,
				shape.UIDisable,
			)
			parser := LineParser{}
			path := writeTempConfig(t, directive)
			cfg, err := parser.LoadConfig(path, CLIOverrides{})
			if err != nil {
				return false
			}
			if cfg.Global.Count != shape.Count {
				return false
			}
			if cfg.Global.Delay != time.Duration(shape.DelayMs)*time.Millisecond {
				return false
			}
			if cfg.Global.Expiry != time.Duration(shape.ExpiryMs)*time.Millisecond {
				return false
			}
			if cfg.Global.Interval != time.Duration(shape.IntervalMs)*time.Millisecond {
				return false
			}
			if cfg.Global.MaxInFlight != shape.MaxInFlight {
				return false
			}
			if cfg.Global.MetricsMode != shape.MetricsMode {
				return false
			}
			if cfg.Global.MetricsListen != shape.MetricsListen {
				return false
			}
			if cfg.Global.UIScale != shape.UIScale {
				return false
			}
			if cfg.Global.UIDisable != shape.UIDisable {
				return false
			}
			return true
		},
		genDirectiveShape(),
	))

	props.TestingRun(t)
}

func TestPropertyCommentHandling(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 25
	props := gopter.NewProperties(params)

	props.Property("comment-only files produce no targets", prop.ForAll(
		func(count int) bool {
			if count < 1 {
				return true
			}
			lines := make([]string, 0, count)
			for i := 0; i < count; i++ {
				lines = append(lines, "# comment")
			}
			parser := LineParser{}
			path := writeTempConfig(t, strings.Join(lines, "\n"))
			cfg, err := parser.LoadConfig(path, CLIOverrides{})
			if err != nil {
				return false
			}
			return len(cfg.Targets) == 0
		},
		gopter.Gen(func(genParams *gopter.GenParameters) *gopter.GenResult {
			count := genParams.Rng.Intn(10) + 1
			return gopter.NewGenResult(count, gopter.NoShrinker)
		}),
	))

	props.Property("invalid target lines are rejected", prop.ForAll(
		func(token string) bool {
			token = strings.TrimSpace(token)
			if token == "" {
				token = "invalid"
			}
			parser := LineParser{}
			path := writeTempConfig(t, token+"\n")
			_, err := parser.LoadConfig(path, CLIOverrides{})
			return err != nil
		},
		gopter.Gen(func(genParams *gopter.GenParameters) *gopter.GenResult {
			token := randomToken(genParams.Rng)
			return gopter.NewGenResult(token, gopter.NoShrinker)
		}),
	))

	props.TestingRun(t)
}

func TestPropertyCLIPriority(t *testing.T) {
	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 25
	props := gopter.NewProperties(params)

	props.Property("CLI overrides config values", prop.ForAll(
		func(intervalMs, expiryMs, maxInFlight int) bool {
			if intervalMs < 1 || expiryMs < 1 || maxInFlight < 1 {
				return true
			}
			configText := fmt.Sprintf(
				"# pingtrain: interval=%dms expiry=%dms max_in_flight=%d ui.disable=false\n",
				intervalMs,
				expiryMs,
				maxInFlight,
			)
			parser := LineParser{}
			path := writeTempConfig(t, configText)

			overrideInterval := time.Duration(intervalMs+1) * time.Millisecond
			overrideExpiry := time.Duration(expiryMs+1) * time.Millisecond
			overrideMaxInFlight := maxInFlight + 1
			overrideNoUI := true
			overrides := CLIOverrides{
				Interval:    &overrideInterval,
				Expiry:      &overrideExpiry,
				MaxInFlight: &overrideMaxInFlight,
				UIDisable:   &overrideNoUI,
			}

			cfg, err := parser.LoadConfig(path, overrides)
			if err != nil {
				return false
			}

			return cfg.Global.Interval == overrideInterval &&
				cfg.Global.Expiry == overrideExpiry &&
				cfg.Global.MaxInFlight == overrideMaxInFlight &&
				cfg.Global.UIDisable == overrideNoUI
		},
		gopter.Gen(func(genParams *gopter.GenParameters) *gopter.GenResult {
			value := genParams.Rng.Intn(500) + 1
			return gopter.NewGenResult(value, gopter.NoShrinker)
		}),
		gopter.Gen(func(genParams *gopter.GenParameters) *gopter.GenResult {
			value := genParams.Rng.Intn(500) + 1
			return gopter.NewGenResult(value, gopter.NoShrinker)
		}),
		gopter.Gen(func(genParams *gopter.GenParameters) *gopter.GenResult {
			value := genParams.Rng.Intn(50) + 1
			return gopter.NewGenResult(value, gopter.NoShrinker)
		}),
	))

	props.TestingRun(t)
}

func genConfigShape() gopter.Gen {
	return gopter.Gen(func(genParams *gopter.GenParameters) *gopter.GenResult {
		groupCount := genParams.Rng.Intn(3) + 1
		groups := make([][]targetShape, groupCount)
		for i := 0; i < groupCount; i++ {
			targetCount := genParams.Rng.Intn(3) + 1
			group := make([]targetShape, targetCount)
			for j := 0; j < targetCount; j++ {
				group[j] = targetShape{
					Name:    randomToken(genParams.Rng),
					Address: randomToken(genParams.Rng),
				}
			}
			groups[i] = group
		}
		shape := configShape{Groups: groups}
		return gopter.NewGenResult(shape, gopter.NoShrinker)
	})
}

func genDirectiveShape() gopter.Gen {
	return gopter.Gen(func(genParams *gopter.GenParameters) *gopter.GenResult {
		modes := []MetricsMode{MetricsModePerTarget, MetricsModeAggregated, MetricsModeBoth}
		shape := directiveShape{
			Count:         genParams.Rng.Intn(100),
			DelayMs:       genParams.Rng.Intn(4000),
			ExpiryMs:      genParams.Rng.Intn(4000) + 1,
			IntervalMs:    genParams.Rng.Intn(4000) + 1,
			MaxInFlight:   genParams.Rng.Intn(200),
			MetricsMode:   modes[genParams.Rng.Intn(len(modes))],
			MetricsListen: fmt.Sprintf(":%d", genParams.Rng.Intn(60000)+1024),
			UIScale:       genParams.Rng.Intn(100) + 1,
			UIDisable:     genParams.Rng.Intn(2) == 0,
		}
		return gopter.NewGenResult(shape, gopter.NoShrinker)
	})
}

func buildConfigFromShape(shape configShape) (string, []TargetConfig) {
	var lines []string
	var expected []TargetConfig

	for groupIndex, group := range shape.Groups {
		if groupIndex > 0 {
			lines = append(lines, "---")
		}
		groupName := ""
		if groupIndex > 0 {
			groupName = fmt.Sprintf("group-%d", groupIndex)
		}
		for _, tgt := range group {
			lines = append(lines, fmt.Sprintf("%s %s", tgt.Name, tgt.Address))
			expected = append(expected, TargetConfig{
				Name:    tgt.Name,
				Address: tgt.Address,
				Group:   groupName,
				Options: map[string]string{},
			})
		}
	}

	return strings.Join(lines, "\n"), expected
}

func randomToken(rng *rand.Rand) string {
	const letters = "abcdefghijklmnopqrstuvwxyz0123456789"
	length := rng.Intn(8) + 1
	buf := make([]byte, length)
	for i := range buf {
		buf[i] = letters[rng.Intn(len(letters))]
	}
	return string(buf)
}
