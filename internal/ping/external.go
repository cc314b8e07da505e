package ping

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/exec"
	"regexp"
	"runtime"
	"strconv"
	"time"
)

var timePattern = regexp.MustCompile(`time[=<]([0-9.]+)\s*ms`)

// ExternalEngine invokes the system ping command for environments without
// socket access.
type ExternalEngine struct {
	command string
	run     func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// NewExternalEngine returns an engine that shells out to ping.
func NewExternalEngine() *ExternalEngine {
	return &ExternalEngine{command: "ping", run: runCommand}
}

// Probe runs ping -c 1 and parses the RTT from its output.
func (e *ExternalEngine) Probe(ctx context.Context, target net.IP, seq int, deadline time.Time) (time.Duration, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	deadline = effectiveDeadline(ctx, deadline)
	timeout := time.Until(deadline)
	if timeout <= 0 {
		return 0, ErrTimeout
	}

	cmdCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	start := time.Now()
	out, err := e.run(cmdCtx, e.command, pingArgs(target.String(), timeout)...)
	if err != nil {
		if cmdCtx.Err() != nil && ctx.Err() == nil {
			return 0, ErrTimeout
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			return 0, ErrTimeout
		}
		return 0, fmt.Errorf("external ping failed seq=%d: %w", seq, err)
	}

	rtt := parseRTT(out)
	if rtt == 0 {
		rtt = time.Since(start)
	}
	return rtt, nil
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

func pingArgs(addr string, timeout time.Duration) []string {
	switch runtime.GOOS {
	case "darwin":
		timeoutMs := maxInt(100, int(timeout.Milliseconds()))
		return []string{"-n", "-c", "1", "-W", strconv.Itoa(timeoutMs), addr}
	case "windows":
		timeoutMs := maxInt(1, int(timeout.Milliseconds()))
		return []string{"-n", "1", "-w", strconv.Itoa(timeoutMs), addr}
	default:
		timeoutSec := maxInt(1, int(timeout.Seconds()+0.5))
		return []string{"-n", "-c", "1", "-W", strconv.Itoa(timeoutSec), addr}
	}
}

func parseRTT(output []byte) time.Duration {
	matches := timePattern.FindSubmatch(output)
	if len(matches) < 2 {
		return 0
	}
	value, err := strconv.ParseFloat(string(matches[1]), 64)
	if err != nil {
		return 0
	}
	return time.Duration(value * float64(time.Millisecond))
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
