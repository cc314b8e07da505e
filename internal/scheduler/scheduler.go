// Package scheduler runs bounded trains of echo probes against one target.
//
// A run launches Count probes, probe i starting at runStart + i*Delay, and
// gathers exactly one outcome per sequence number. Faults inside one probe are
// recorded as that probe's outcome; only engine acquisition and an unrecoverable
// join fail the run as a whole.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"

	"github.com/doridoridoriand/pingtrain/internal/log"
	"github.com/doridoridoriand/pingtrain/internal/ping"
	"github.com/doridoridoriand/pingtrain/internal/tracing"
)

// Mode selects how probes of a run are dispatched.
type Mode string

const (
	// ModeStaggered launches every probe on its own goroutine.
	ModeStaggered Mode = "staggered"
	// ModeSequential probes, waits for the outcome, then sleeps Delay.
	ModeSequential Mode = "sequential"
)

// ParseMode converts a config value into a Mode. Empty selects ModeStaggered.
func ParseMode(value string) (Mode, error) {
	switch Mode(value) {
	case "", ModeStaggered:
		return ModeStaggered, nil
	case ModeSequential:
		return ModeSequential, nil
	default:
		return "", fmt.Errorf("unknown scheduling mode %q", value)
	}
}

// Observer receives each outcome as soon as its probe terminates.
type Observer func(runID string, outcome SequencedOutcome)

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithMode sets the dispatch mode.
func WithMode(mode Mode) Option {
	return func(s *Scheduler) {
		s.mode = mode
	}
}

// WithMaxInFlight caps concurrently running probes per run. Zero means uncapped.
func WithMaxInFlight(n int) Option {
	return func(s *Scheduler) {
		s.maxInFlight = n
	}
}

// WithObserver registers a callback invoked from probe goroutines.
func WithObserver(observer Observer) Option {
	return func(s *Scheduler) {
		s.observer = observer
	}
}

// WithTracer sets the tracer used for run and probe spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(s *Scheduler) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// WithLogger sets the logger for probe and run events.
func WithLogger(logger *log.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Scheduler executes runs against a shared engine. It holds no per-run state
// and is safe for concurrent use.
type Scheduler struct {
	engine      ping.Engine
	mode        Mode
	maxInFlight int
	observer    Observer
	tracer      trace.Tracer
	logger      *log.Logger
}

// New constructs a scheduler around engine.
func New(engine ping.Engine, opts ...Option) *Scheduler {
	s := &Scheduler{
		engine: engine,
		mode:   ModeStaggered,
		tracer: tracing.Noop(),
		logger: log.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run executes req and returns one outcome per sequence, ordered ascending.
//
// The returned error is non-nil only for run-level failures: an invalid
// request, an engine that cannot be prepared, a probe whose outcome could not
// be recovered, or cancellation of ctx. A run in which every probe timed out
// is a successful run.
func (s *Scheduler) Run(ctx context.Context, req RunRequest) (RunResult, error) {
	if err := req.Validate(); err != nil {
		return RunResult{}, err
	}

	result := RunResult{
		ID:       uuid.NewString(),
		Target:   req.Target,
		Started:  time.Now(),
		Outcomes: []SequencedOutcome{},
	}
	if req.Count == 0 {
		return result, nil
	}

	ctx, span := tracing.StartRunSpan(ctx, s.tracer, result.ID, req.Target, req.Count)

	outcomes, err := s.execute(ctx, result.ID, req)
	result.Elapsed = time.Since(result.Started)
	if err != nil {
		s.logger.LogRunFault(result.ID, req.Target.String(), err)
		tracing.EndSpan(span, err)
		return RunResult{}, err
	}
	result.Outcomes = outcomes

	replies := result.Replies()
	s.logger.LogRun(result.ID, req.Target.String(), req.Count, replies, result.Elapsed)
	tracing.EndSpan(span, nil, attribute.Int("pingtrain.replies", replies))
	return result, nil
}

func (s *Scheduler) execute(ctx context.Context, runID string, req RunRequest) ([]SequencedOutcome, error) {
	if s.engine == nil {
		return nil, fmt.Errorf("%w: no engine configured", ErrEngineUnavailable)
	}
	if err := ping.Prepare(ctx, s.engine, req.Target); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("run %s cancelled: %w", runID, ctxErr)
		}
		return nil, fmt.Errorf("%w: %w", ErrEngineUnavailable, err)
	}

	var collected []SequencedOutcome
	if s.mode == ModeSequential {
		collected = s.runSequential(ctx, runID, req)
	} else {
		collected = s.runStaggered(ctx, runID, req)
	}

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("run %s cancelled: %w", runID, err)
	}
	return assemble(collected, req.Count)
}

func (s *Scheduler) runStaggered(ctx context.Context, runID string, req RunRequest) []SequencedOutcome {
	var sem *semaphore.Weighted
	if s.maxInFlight > 0 {
		sem = semaphore.NewWeighted(int64(s.maxInFlight))
	}

	reports := make(chan SequencedOutcome, req.Count)
	start := time.Now()

	var wg sync.WaitGroup
	for seq := 0; seq < req.Count; seq++ {
		wg.Add(1)
		go func(seq int) {
			defer wg.Done()
			if !waitUntil(ctx, start.Add(time.Duration(seq)*req.Delay)) {
				reports <- cancelled(seq, ctx.Err())
				return
			}
			if sem != nil {
				if err := sem.Acquire(ctx, 1); err != nil {
					reports <- cancelled(seq, err)
					return
				}
				defer sem.Release(1)
			}
			reports <- s.probe(ctx, runID, req, seq)
		}(seq)
	}
	wg.Wait()
	close(reports)

	collected := make([]SequencedOutcome, 0, req.Count)
	for outcome := range reports {
		collected = append(collected, outcome)
	}
	return collected
}

func (s *Scheduler) runSequential(ctx context.Context, runID string, req RunRequest) []SequencedOutcome {
	collected := make([]SequencedOutcome, 0, req.Count)
	for seq := 0; seq < req.Count; seq++ {
		if seq > 0 && !sleep(ctx, req.Delay) {
			break
		}
		// Own goroutine: an engine calling runtime.Goexit loses only this sequence.
		reported := make(chan SequencedOutcome, 1)
		done := make(chan struct{})
		go func(seq int) {
			defer close(done)
			reported <- s.probe(ctx, runID, req, seq)
		}(seq)
		<-done
		select {
		case outcome := <-reported:
			collected = append(collected, outcome)
		default:
		}
	}
	return collected
}

// probe runs one engine call and classifies it. Panics become TransportError.
func (s *Scheduler) probe(ctx context.Context, runID string, req RunRequest, seq int) (out SequencedOutcome) {
	out.Sequence = seq
	deadline := time.Now().Add(req.Expiry)
	probeCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()
	probeCtx, span := tracing.StartProbeSpan(probeCtx, s.tracer, seq)

	finished := false
	defer func() {
		if r := recover(); r != nil {
			out.Outcome = ProbeOutcome{Kind: TransportError, Err: fmt.Errorf("%w: %v", ErrProbePanic, r)}
			finished = true
		}
		if !finished {
			// runtime.Goexit: nothing to report, the join notices the gap.
			span.End()
			return
		}
		tracing.EndSpan(span, out.Outcome.Err, attribute.String("pingtrain.outcome", out.Outcome.Kind.String()))
		s.notify(runID, req.Target.String(), out)
	}()

	rtt, err := s.engine.Probe(probeCtx, req.Target, seq, deadline)
	out.Outcome = classify(ctx, rtt, err, req.Expiry)
	finished = true
	return out
}

// notify logs the outcome and hands it to the observer. A panicking observer
// is logged and does not affect the run.
func (s *Scheduler) notify(runID, target string, out SequencedOutcome) {
	s.logger.LogProbe(runID, target, out.Sequence, out.Outcome.Kind.String(), out.Outcome.Elapsed, out.Outcome.Err)
	if s.observer == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("observer panicked", log.Fields{
				"run_id": runID,
				"seq":    out.Sequence,
				"panic":  fmt.Sprint(r),
			})
		}
	}()
	s.observer(runID, out)
}

// classify maps an engine return onto an outcome. A context deadline that
// fires while the run context is still live is the probe's own expiry.
func classify(runCtx context.Context, rtt time.Duration, err error, expiry time.Duration) ProbeOutcome {
	switch {
	case err == nil:
		if rtt > expiry {
			return ProbeOutcome{Kind: TimedOut}
		}
		if rtt < 0 {
			rtt = 0
		}
		return ProbeOutcome{Kind: Replied, Elapsed: rtt}
	case errors.Is(err, ping.ErrTimeout):
		return ProbeOutcome{Kind: TimedOut}
	case errors.Is(err, context.DeadlineExceeded) && runCtx.Err() == nil:
		return ProbeOutcome{Kind: TimedOut}
	default:
		return ProbeOutcome{Kind: TransportError, Err: err}
	}
}

func cancelled(seq int, err error) SequencedOutcome {
	return SequencedOutcome{
		Sequence: seq,
		Outcome:  ProbeOutcome{Kind: TransportError, Err: err},
	}
}

// assemble orders outcomes and verifies one outcome per sequence in 0..count-1.
func assemble(collected []SequencedOutcome, count int) ([]SequencedOutcome, error) {
	sort.Slice(collected, func(i, j int) bool {
		return collected[i].Sequence < collected[j].Sequence
	})
	if len(collected) != count {
		return nil, fmt.Errorf("%w: %d of %d probes reported", ErrIncompleteRun, len(collected), count)
	}
	for i, outcome := range collected {
		if outcome.Sequence != i {
			return nil, fmt.Errorf("%w: sequence %d missing", ErrIncompleteRun, i)
		}
	}
	return collected, nil
}

func waitUntil(ctx context.Context, at time.Time) bool {
	return sleep(ctx, time.Until(at))
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
