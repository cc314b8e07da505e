// Package session owns a probe engine for the lifetime of many runs.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/trace"

	"github.com/doridoridoriand/pingtrain/internal/log"
	"github.com/doridoridoriand/pingtrain/internal/ping"
	"github.com/doridoridoriand/pingtrain/internal/scheduler"
)

// ErrSessionClosed is returned by Run after Close has been called.
var ErrSessionClosed = errors.New("session closed")

// Options configures a session.
type Options struct {
	Engine      ping.EngineConfig
	Mode        scheduler.Mode
	MaxInFlight int
	Observer    scheduler.Observer
	Tracer      trace.Tracer
	Logger      *log.Logger
}

// Session shares one engine handle across runs. Runs may execute
// concurrently; the engine is closed only after every run has finished.
type Session struct {
	engine    ping.Engine
	scheduler *scheduler.Scheduler
	logger    *log.Logger

	mu       sync.Mutex
	closed   bool
	inflight sync.WaitGroup
}

// Open builds the engine selected by opts.Engine and a scheduler around it.
func Open(ctx context.Context, opts Options) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	engine, err := ping.New(opts.Engine)
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}
	return New(engine, opts), nil
}

// New wraps an existing engine. The session takes ownership of engine.
func New(engine ping.Engine, opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = log.Discard()
	}
	mode := opts.Mode
	if mode == "" {
		mode = scheduler.ModeStaggered
	}
	return &Session{
		engine: engine,
		logger: logger,
		scheduler: scheduler.New(engine,
			scheduler.WithMode(mode),
			scheduler.WithMaxInFlight(opts.MaxInFlight),
			scheduler.WithObserver(opts.Observer),
			scheduler.WithTracer(opts.Tracer),
			scheduler.WithLogger(logger),
		),
	}
}

// Run executes one probe run on the shared engine.
func (s *Session) Run(ctx context.Context, req scheduler.RunRequest) (scheduler.RunResult, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return scheduler.RunResult{}, ErrSessionClosed
	}
	s.inflight.Add(1)
	s.mu.Unlock()
	defer s.inflight.Done()

	return s.scheduler.Run(ctx, req)
}

// Degraded reports whether the engine has fallen back to its secondary backend.
func (s *Session) Degraded() bool {
	if d, ok := s.engine.(interface{ Degraded() bool }); ok {
		return d.Degraded()
	}
	return false
}

// Close rejects new runs, waits for in-flight runs to drain and closes the
// engine. Calling Close more than once is a no-op.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.inflight.Wait()
	if err := ping.Close(s.engine); err != nil {
		s.logger.LogError("session", err, nil)
		return fmt.Errorf("close engine: %w", err)
	}
	return nil
}
