package session

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/doridoridoriand/pingtrain/internal/ping"
	"github.com/doridoridoriand/pingtrain/internal/scheduler"
)

type gatedEngine struct {
	release chan struct{}
	started chan struct{}
	closes  atomic.Int32
	probes  atomic.Int32
	closed  atomic.Bool
}

func newGatedEngine() *gatedEngine {
	return &gatedEngine{release: make(chan struct{}), started: make(chan struct{}, 16)}
}

func (e *gatedEngine) Probe(ctx context.Context, target net.IP, seq int, deadline time.Time) (time.Duration, error) {
	if e.closed.Load() {
		return 0, ping.ErrClosed
	}
	e.probes.Add(1)
	e.started <- struct{}{}
	select {
	case <-e.release:
		return time.Millisecond, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (e *gatedEngine) Close() error {
	e.closes.Add(1)
	e.closed.Store(true)
	return nil
}

func request(count int) scheduler.RunRequest {
	return scheduler.RunRequest{Target: net.ParseIP("127.0.0.1"), Count: count, Expiry: time.Second}
}

func TestSessionRunDelegatesToScheduler(t *testing.T) {
	engine := newGatedEngine()
	close(engine.release)
	s := New(engine, Options{})
	defer s.Close()

	result, err := s.Run(context.Background(), request(3))
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if result.Replies() != 3 {
		t.Fatalf("expected 3 replies, got %d", result.Replies())
	}
}

func TestSessionCloseWaitsForInflightRuns(t *testing.T) {
	engine := newGatedEngine()
	s := New(engine, Options{})

	runDone := make(chan error, 1)
	go func() {
		_, err := s.Run(context.Background(), request(1))
		runDone <- err
	}()
	<-engine.started

	closeDone := make(chan struct{})
	go func() {
		_ = s.Close()
		close(closeDone)
	}()

	select {
	case <-closeDone:
		t.Fatalf("close returned while a run was in flight")
	case <-time.After(20 * time.Millisecond):
	}
	if engine.closes.Load() != 0 {
		t.Fatalf("engine closed under an in-flight probe")
	}

	close(engine.release)
	if err := <-runDone; err != nil {
		t.Fatalf("in-flight run failed: %v", err)
	}
	select {
	case <-closeDone:
	case <-time.After(time.Second):
		t.Fatalf("close did not return after runs drained")
	}
	if engine.closes.Load() != 1 {
		t.Fatalf("expected engine closed once, got %d", engine.closes.Load())
	}
}

func TestSessionRejectsRunsAfterClose(t *testing.T) {
	engine := newGatedEngine()
	s := New(engine, Options{})
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if engine.closes.Load() != 1 {
		t.Fatalf("expected a single engine close, got %d", engine.closes.Load())
	}
	if _, err := s.Run(context.Background(), request(1)); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
	if engine.probes.Load() != 0 {
		t.Fatalf("expected no probes after close")
	}
}

func TestSessionConcurrentRuns(t *testing.T) {
	engine := newGatedEngine()
	close(engine.release)
	s := New(engine, Options{MaxInFlight: 2})
	defer s.Close()

	errs := make(chan error, 5)
	for i := 0; i < 5; i++ {
		go func() {
			_, err := s.Run(context.Background(), request(2))
			errs <- err
		}()
	}
	for i := 0; i < 5; i++ {
		if err := <-errs; err != nil {
			t.Fatalf("concurrent run failed: %v", err)
		}
	}
}

func TestOpenSelectsEngine(t *testing.T) {
	s, err := Open(context.Background(), Options{Engine: ping.EngineConfig{Kind: ping.KindExec}})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if s.Degraded() {
		t.Fatalf("exec engine never degrades")
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	if _, err := Open(context.Background(), Options{Engine: ping.EngineConfig{Kind: "carrier-pigeon"}}); err == nil {
		t.Fatalf("expected error for unknown engine")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Open(ctx, Options{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context error, got %v", err)
	}
}
