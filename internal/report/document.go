package report

import (
	"time"

	"github.com/doridoridoriand/pingtrain/internal/scheduler"
	"github.com/doridoridoriand/pingtrain/internal/stats"
)

type document struct {
	RunID     string       `json:"run_id" yaml:"run_id"`
	Target    string       `json:"target" yaml:"target"`
	Started   string       `json:"started" yaml:"started"`
	ElapsedMs float64      `json:"elapsed_ms" yaml:"elapsed_ms"`
	Probes    []probeEntry `json:"probes" yaml:"probes"`
	Summary   summaryEntry `json:"summary" yaml:"summary"`
}

type probeEntry struct {
	Seq     int      `json:"seq" yaml:"seq"`
	Outcome string   `json:"outcome" yaml:"outcome"`
	RTTUs   *int64   `json:"rtt_us,omitempty" yaml:"rtt_us,omitempty"`
	RTTMs   *float64 `json:"rtt_ms,omitempty" yaml:"rtt_ms,omitempty"`
	Error   string   `json:"error,omitempty" yaml:"error,omitempty"`
}

type summaryEntry struct {
	Sent            int     `json:"sent" yaml:"sent"`
	Received        int     `json:"received" yaml:"received"`
	Lost            int     `json:"lost" yaml:"lost"`
	TransportErrors int     `json:"transport_errors" yaml:"transport_errors"`
	LossPercent     float64 `json:"loss_percent" yaml:"loss_percent"`
	MinMs           float64 `json:"min_ms" yaml:"min_ms"`
	AvgMs           float64 `json:"avg_ms" yaml:"avg_ms"`
	MaxMs           float64 `json:"max_ms" yaml:"max_ms"`
	StdDevMs        float64 `json:"stddev_ms" yaml:"stddev_ms"`
	P50Ms           float64 `json:"p50_ms" yaml:"p50_ms"`
	P90Ms           float64 `json:"p90_ms" yaml:"p90_ms"`
	P99Ms           float64 `json:"p99_ms" yaml:"p99_ms"`
}

func newDocument(result scheduler.RunResult, summary stats.Summary) document {
	doc := document{
		RunID:     result.ID,
		Target:    result.Target.String(),
		ElapsedMs: millis(result.Elapsed),
		Probes:    make([]probeEntry, 0, len(result.Outcomes)),
		Summary: summaryEntry{
			Sent:            summary.Sent,
			Received:        summary.Received,
			Lost:            summary.Lost,
			TransportErrors: summary.TransportErrors,
			LossPercent:     summary.LossPercent,
			MinMs:           millis(summary.Min),
			AvgMs:           millis(summary.Avg),
			MaxMs:           millis(summary.Max),
			StdDevMs:        millis(summary.StdDev),
			P50Ms:           millis(summary.P50),
			P90Ms:           millis(summary.P90),
			P99Ms:           millis(summary.P99),
		},
	}
	if !result.Started.IsZero() {
		doc.Started = result.Started.Format(time.RFC3339Nano)
	}

	for _, o := range result.Outcomes {
		entry := probeEntry{Seq: o.Sequence, Outcome: o.Outcome.Kind.String()}
		if rtt, ok := o.Outcome.RTT(); ok {
			us := rtt.Microseconds()
			ms := millis(rtt)
			entry.RTTUs = &us
			entry.RTTMs = &ms
		}
		if o.Outcome.Err != nil {
			entry.Error = o.Outcome.Err.Error()
		}
		doc.Probes = append(doc.Probes, entry)
	}
	return doc
}
