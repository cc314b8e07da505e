package ping

import (
	"context"
	"fmt"
	"net"
	"time"

	probing "github.com/prometheus-community/pro-bing"
)

// ProbingEngine runs a single-count pro-bing pinger per probe.
type ProbingEngine struct {
	privileged bool
	size       int
}

// NewProbingEngine returns a pro-bing backed engine.
func NewProbingEngine(privileged bool) *ProbingEngine {
	return &ProbingEngine{privileged: privileged, size: 24}
}

// Probe sends one echo request through pro-bing.
func (e *ProbingEngine) Probe(ctx context.Context, target net.IP, seq int, deadline time.Time) (time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	deadline = effectiveDeadline(ctx, deadline)
	timeout := time.Until(deadline)
	if timeout <= 0 {
		return 0, ErrTimeout
	}

	pinger, err := probing.NewPinger(target.String())
	if err != nil {
		return 0, fmt.Errorf("pro-bing seq=%d: %w", seq, err)
	}
	pinger.Count = 1
	pinger.Size = e.size
	pinger.Timeout = timeout
	pinger.SetPrivileged(e.privileged)

	if err := pinger.RunWithContext(ctx); err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, fmt.Errorf("pro-bing seq=%d: %w", seq, err)
	}

	stats := pinger.Statistics()
	if stats.PacketsRecv == 0 || len(stats.Rtts) == 0 {
		return 0, ErrTimeout
	}
	return stats.Rtts[0], nil
}
