package scheduler

import (
	"errors"
	"fmt"
	"math"
	"net"
	"time"
)

// MaxCount bounds the probes in one run to the 16-bit ICMP sequence space.
const MaxCount = 1 << 16

var (
	// ErrInvalidRequest reports a RunRequest that fails validation.
	ErrInvalidRequest = errors.New("invalid run request")
	// ErrEngineUnavailable reports that the probe engine could not be used for the run.
	ErrEngineUnavailable = errors.New("probe engine unavailable")
	// ErrIncompleteRun reports that at least one probe never produced an outcome.
	ErrIncompleteRun = errors.New("run incomplete: probe outcome missing")
	// ErrProbePanic wraps a panic raised while a single probe was running.
	ErrProbePanic = errors.New("probe panicked")
)

// RunRequest describes one probe run against a single target.
type RunRequest struct {
	Target net.IP
	Count  int
	// Delay is the spacing between successive probe starts.
	Delay time.Duration
	// Expiry bounds each probe, measured from that probe's own start.
	Expiry time.Duration
}

// Validate checks the request before any probe is launched.
func (r RunRequest) Validate() error {
	switch {
	case len(r.Target) != net.IPv4len && len(r.Target) != net.IPv6len:
		return fmt.Errorf("%w: target %q is not an IP address", ErrInvalidRequest, r.Target.String())
	case r.Count < 0:
		return fmt.Errorf("%w: count must be >= 0, got %d", ErrInvalidRequest, r.Count)
	case r.Count > MaxCount:
		return fmt.Errorf("%w: count must be <= %d, got %d", ErrInvalidRequest, MaxCount, r.Count)
	case r.Delay < 0:
		return fmt.Errorf("%w: delay must be >= 0, got %s", ErrInvalidRequest, r.Delay)
	case r.Expiry <= 0:
		return fmt.Errorf("%w: expiry must be > 0, got %s", ErrInvalidRequest, r.Expiry)
	case r.Count > 1 && r.Delay > (math.MaxInt64-r.Expiry)/time.Duration(r.Count-1):
		return fmt.Errorf("%w: (count-1)*delay+expiry overflows a duration", ErrInvalidRequest)
	}
	return nil
}

// OutcomeKind classifies the terminal state of a probe.
type OutcomeKind string

const (
	Replied        OutcomeKind = "replied"
	TimedOut       OutcomeKind = "timed_out"
	TransportError OutcomeKind = "transport_error"
)

func (k OutcomeKind) String() string {
	return string(k)
}

// ProbeOutcome is the terminal result of one probe.
type ProbeOutcome struct {
	Kind OutcomeKind
	// Elapsed is the round-trip time; set only when Kind is Replied.
	Elapsed time.Duration
	// Err carries the failure for TransportError outcomes.
	Err error
}

// RTT returns the round-trip time and whether a reply was received.
func (o ProbeOutcome) RTT() (time.Duration, bool) {
	if o.Kind != Replied {
		return 0, false
	}
	return o.Elapsed, true
}

// SequencedOutcome pairs an outcome with its zero-based sequence number.
type SequencedOutcome struct {
	Sequence int
	Outcome  ProbeOutcome
}

// RunResult holds exactly one outcome per sequence in 0..Count-1, ascending.
type RunResult struct {
	ID       string
	Target   net.IP
	Started  time.Time
	Elapsed  time.Duration
	Outcomes []SequencedOutcome
}

// Replies counts the probes that received a reply.
func (r RunResult) Replies() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Outcome.Kind == Replied {
			n++
		}
	}
	return n
}

// Count reports the number of outcomes in the run.
func (r RunResult) Count() int {
	return len(r.Outcomes)
}
