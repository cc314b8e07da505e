package ping

import (
	"context"
	"errors"
	"net"
	"time"
)

var (
	// ErrTimeout reports that no echo reply arrived before the probe deadline.
	ErrTimeout = errors.New("ping: no reply before deadline")
	// ErrClosed is returned by engines that have been closed.
	ErrClosed = errors.New("ping: engine closed")
)

// Engine performs a single echo probe.
//
// Probe returns the elapsed time until the matching reply, ErrTimeout when no
// reply arrived before deadline, or any other error for transport faults.
// Implementations must be safe for concurrent use and must return no later
// than deadline.
type Engine interface {
	Probe(ctx context.Context, target net.IP, seq int, deadline time.Time) (time.Duration, error)
}

// Preparer is implemented by engines that acquire resources for a target's
// address family before probing.
type Preparer interface {
	Prepare(ctx context.Context, target net.IP) error
}

// Prepare calls engine.Prepare when the engine implements Preparer.
func Prepare(ctx context.Context, engine Engine, target net.IP) error {
	if p, ok := engine.(Preparer); ok {
		return p.Prepare(ctx, target)
	}
	return nil
}

// Close closes engine when it owns resources.
func Close(engine Engine) error {
	if c, ok := engine.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

// effectiveDeadline is the earlier of deadline and the context's deadline.
func effectiveDeadline(ctx context.Context, deadline time.Time) time.Time {
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		return ctxDeadline
	}
	return deadline
}

func isIPv4(ip net.IP) bool {
	return ip.To4() != nil
}
