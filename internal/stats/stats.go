// Package stats summarizes the outcomes of a probe run.
package stats

import (
	"math"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/doridoridoriand/pingtrain/internal/scheduler"
)

// Summary aggregates one run. Timeouts and transport errors count as lost.
type Summary struct {
	Sent            int
	Received        int
	Lost            int
	TransportErrors int
	LossPercent     float64

	Min    time.Duration
	Avg    time.Duration
	Max    time.Duration
	StdDev time.Duration
	P50    time.Duration
	P90    time.Duration
	P99    time.Duration

	Elapsed time.Duration
}

func newHistogram() *hdrhistogram.Histogram {
	// Track round trips from 1µs up to 60s with 3 significant figures.
	return hdrhistogram.New(1, 60_000_000, 3)
}

// Summarize computes loss and round-trip statistics for result.
func Summarize(result scheduler.RunResult) Summary {
	summary := Summary{
		Sent:    len(result.Outcomes),
		Elapsed: result.Elapsed,
	}

	hist := newHistogram()
	var sum, sumSq float64
	for _, o := range result.Outcomes {
		rtt, ok := o.Outcome.RTT()
		if !ok {
			if o.Outcome.Kind == scheduler.TransportError {
				summary.TransportErrors++
			}
			continue
		}
		if summary.Received == 0 || rtt < summary.Min {
			summary.Min = rtt
		}
		if rtt > summary.Max {
			summary.Max = rtt
		}
		summary.Received++
		sum += float64(rtt)
		sumSq += float64(rtt) * float64(rtt)
		record(hist, rtt)
	}

	summary.Lost = summary.Sent - summary.Received
	if summary.Sent > 0 {
		summary.LossPercent = 100 * float64(summary.Lost) / float64(summary.Sent)
	}
	if summary.Received == 0 {
		return summary
	}

	n := float64(summary.Received)
	mean := sum / n
	summary.Avg = time.Duration(mean)
	if variance := sumSq/n - mean*mean; variance > 0 {
		summary.StdDev = time.Duration(math.Sqrt(variance))
	}
	summary.P50 = quantile(hist, 50)
	summary.P90 = quantile(hist, 90)
	summary.P99 = quantile(hist, 99)
	return summary
}

func record(hist *hdrhistogram.Histogram, rtt time.Duration) {
	us := rtt.Microseconds()
	if us < hist.LowestTrackableValue() {
		us = hist.LowestTrackableValue()
	}
	if us > hist.HighestTrackableValue() {
		us = hist.HighestTrackableValue()
	}
	_ = hist.RecordValue(us)
}

func quantile(hist *hdrhistogram.Histogram, q float64) time.Duration {
	return time.Duration(hist.ValueAtQuantile(q)) * time.Microsecond
}
