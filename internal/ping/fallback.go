package ping

import (
	"context"
	"errors"
	"net"
	"os"
	"strings"
	"sync/atomic"
	"syscall"
	"time"
)

// FallbackEngine delegates to primary, then secondary when permission errors occur.
// Once the primary has been refused permission it is skipped for later probes.
type FallbackEngine struct {
	primary   Engine
	secondary Engine
	degraded  atomic.Bool
}

// NewFallbackEngine wraps primary with a secondary fallback.
func NewFallbackEngine(primary, secondary Engine) *FallbackEngine {
	return &FallbackEngine{primary: primary, secondary: secondary}
}

// Prepare prepares the primary and switches to the secondary on permission errors.
func (e *FallbackEngine) Prepare(ctx context.Context, target net.IP) error {
	if !e.degraded.Load() {
		err := Prepare(ctx, e.primary, target)
		if err == nil || !isPermissionError(err) {
			return err
		}
		e.degraded.Store(true)
	}
	return Prepare(ctx, e.secondary, target)
}

// Probe uses the primary engine and falls back on permission-related errors.
func (e *FallbackEngine) Probe(ctx context.Context, target net.IP, seq int, deadline time.Time) (time.Duration, error) {
	if e.degraded.Load() {
		return e.secondary.Probe(ctx, target, seq, deadline)
	}
	rtt, err := e.primary.Probe(ctx, target, seq, deadline)
	if err == nil || !isPermissionError(err) {
		return rtt, err
	}
	e.degraded.Store(true)
	return e.secondary.Probe(ctx, target, seq, deadline)
}

// Degraded reports whether the secondary engine is in use.
func (e *FallbackEngine) Degraded() bool {
	return e.degraded.Load()
}

// Close closes both engines.
func (e *FallbackEngine) Close() error {
	return errors.Join(Close(e.primary), Close(e.secondary))
}

func isPermissionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, os.ErrPermission) || errors.Is(err, syscall.EPERM) || errors.Is(err, syscall.EACCES) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "operation not permitted") || strings.Contains(msg, "permission denied")
}
