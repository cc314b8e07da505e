// Package report renders run results for humans and machines.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/doridoridoriand/pingtrain/internal/scheduler"
	"github.com/doridoridoriand/pingtrain/internal/stats"
)

// Format selects the output encoding.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat validates an output format name. Empty means text.
func ParseFormat(value string) (Format, error) {
	switch Format(value) {
	case "", FormatText:
		return FormatText, nil
	case FormatJSON:
		return FormatJSON, nil
	case FormatYAML, "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unknown output format %q", value)
	}
}

// Write renders result and its summary to w.
func Write(w io.Writer, format Format, result scheduler.RunResult, summary stats.Summary) error {
	switch format {
	case "", FormatText:
		return writeText(w, result, summary)
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(newDocument(result, summary))
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(newDocument(result, summary)); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func writeText(w io.Writer, result scheduler.RunResult, summary stats.Summary) error {
	target := result.Target.String()
	ew := &errWriter{w: w}

	ew.printf("PING %s: %d probes\n", target, summary.Sent)
	for _, o := range result.Outcomes {
		switch o.Outcome.Kind {
		case scheduler.Replied:
			ew.printf("reply from %s: seq=%d time=%.3f ms\n", target, o.Sequence, millis(o.Outcome.Elapsed))
		case scheduler.TimedOut:
			ew.printf("no reply from %s: seq=%d timeout\n", target, o.Sequence)
		default:
			ew.printf("error probing %s: seq=%d %v\n", target, o.Sequence, o.Outcome.Err)
		}
	}

	ew.printf("\n--- %s ping statistics ---\n", target)
	ew.printf("%d probes transmitted, %d received, %.1f%% packet loss, time %dms\n",
		summary.Sent, summary.Received, summary.LossPercent, summary.Elapsed.Milliseconds())
	if summary.TransportErrors > 0 {
		ew.printf("%d transport errors\n", summary.TransportErrors)
	}
	if summary.Received > 0 {
		ew.printf("rtt min/avg/max/mdev = %.3f/%.3f/%.3f/%.3f ms\n",
			millis(summary.Min), millis(summary.Avg), millis(summary.Max), millis(summary.StdDev))
		ew.printf("rtt p50/p90/p99 = %.3f/%.3f/%.3f ms\n",
			millis(summary.P50), millis(summary.P90), millis(summary.P99))
	}
	return ew.err
}

type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...interface{}) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
