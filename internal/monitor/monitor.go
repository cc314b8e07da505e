// Package monitor repeats probe runs against every configured target on an
// interval and feeds the summaries into the state store.
package monitor

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/doridoridoriand/pingtrain/internal/config"
	"github.com/doridoridoriand/pingtrain/internal/log"
	"github.com/doridoridoriand/pingtrain/internal/ping"
	"github.com/doridoridoriand/pingtrain/internal/scheduler"
	"github.com/doridoridoriand/pingtrain/internal/state"
	"github.com/doridoridoriand/pingtrain/internal/stats"
)

// Runner executes a single probe run. *session.Session satisfies it.
type Runner interface {
	Run(ctx context.Context, req scheduler.RunRequest) (scheduler.RunResult, error)
}

// Monitor drives periodic runs for a set of targets.
type Monitor interface {
	Run(ctx context.Context) error
	UpdateConfig(global config.GlobalOptions, targets []config.TargetConfig)
	Stop()
}

// Impl provides the default monitor implementation.
type Impl struct {
	mu         sync.RWMutex
	cfg        config.GlobalOptions
	targets    map[string]config.TargetConfig
	runner     Runner
	state      state.Store
	logger     *log.Logger
	limiter    *rate.Limiter
	resolve    func(string) (net.IP, error)
	targetJobs map[string]context.CancelFunc
	wg         sync.WaitGroup
	cancel     context.CancelFunc
	runCtx     context.Context
}

// New constructs a monitor. A nil logger discards output.
func New(global config.GlobalOptions, targets []config.TargetConfig, runner Runner, store state.Store, logger *log.Logger) *Impl {
	if logger == nil {
		logger = log.Discard()
	}
	m := &Impl{
		cfg:        global,
		targets:    make(map[string]config.TargetConfig),
		runner:     runner,
		state:      store,
		logger:     logger,
		limiter:    newLimiter(global.RunRate),
		resolve:    ping.ResolveIP,
		targetJobs: make(map[string]context.CancelFunc),
	}
	for _, tgt := range targets {
		m.targets[tgt.Name] = tgt
	}
	return m
}

// Run starts a loop per target and blocks until ctx is cancelled or Stop is
// called. Each loop runs immediately, then once per interval.
func (m *Impl) Run(ctx context.Context) error {
	m.mu.Lock()
	if m.cancel != nil {
		m.mu.Unlock()
		return fmt.Errorf("monitor already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.runCtx = runCtx
	targets := make([]config.TargetConfig, 0, len(m.targets))
	for _, tgt := range m.targets {
		targets = append(targets, tgt)
	}
	m.mu.Unlock()

	for _, tgt := range targets {
		m.startTarget(runCtx, tgt.Name)
	}

	<-runCtx.Done()
	m.wg.Wait()
	m.mu.Lock()
	m.cancel = nil
	m.runCtx = nil
	m.targetJobs = make(map[string]context.CancelFunc)
	m.mu.Unlock()
	return runCtx.Err()
}

// UpdateConfig applies new global options and target list. Added targets start
// at once, removed ones stop, and a target whose address changed restarts.
// Per-target run settings are re-read on every iteration.
func (m *Impl) UpdateConfig(global config.GlobalOptions, targets []config.TargetConfig) {
	m.mu.Lock()
	m.cfg = global
	m.limiter = newLimiter(global.RunRate)

	updated := make(map[string]config.TargetConfig, len(targets))
	for _, tgt := range targets {
		updated[tgt.Name] = tgt
	}

	runCtx := m.runCtx
	var toStart []string
	var toStop []context.CancelFunc

	for name, tgt := range updated {
		existing, ok := m.targets[name]
		if !ok {
			toStart = append(toStart, name)
			continue
		}
		if existing.Address != tgt.Address {
			if cancel, ok := m.targetJobs[name]; ok {
				toStop = append(toStop, cancel)
				delete(m.targetJobs, name)
			}
			toStart = append(toStart, name)
		}
	}
	for name, cancel := range m.targetJobs {
		if _, ok := updated[name]; !ok {
			toStop = append(toStop, cancel)
			delete(m.targetJobs, name)
		}
	}

	m.targets = updated
	m.mu.Unlock()

	m.state.SetExpiry(global.Expiry)
	m.state.UpdateTargets(targets)

	for _, cancel := range toStop {
		cancel()
	}
	if runCtx == nil {
		return
	}
	for _, name := range toStart {
		m.startTarget(runCtx, name)
	}
}

// Stop cancels all running target loops.
func (m *Impl) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (m *Impl) startTarget(ctx context.Context, name string) {
	m.mu.Lock()
	if _, ok := m.targetJobs[name]; ok {
		m.mu.Unlock()
		return
	}
	targetCtx, cancel := context.WithCancel(ctx)
	m.targetJobs[name] = cancel
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()
		m.runTargetLoop(targetCtx, name)
	}()
}

func (m *Impl) runTargetLoop(ctx context.Context, name string) {
	for {
		global, target, ok := m.current(name)
		if !ok {
			return
		}
		m.runOnce(ctx, global, target)

		interval := global.Interval
		if interval <= 0 {
			interval = time.Second
		}
		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (m *Impl) runOnce(ctx context.Context, global config.GlobalOptions, target config.TargetConfig) {
	settings, err := target.Resolve(global)
	if err != nil {
		m.fault(target.Name, err)
		return
	}
	ip, err := m.resolve(target.Address)
	if err != nil {
		m.fault(target.Name, fmt.Errorf("resolve %s: %w", target.Address, err))
		return
	}
	if limiter := m.currentLimiter(); limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return
		}
	}

	result, err := m.runner.Run(ctx, scheduler.RunRequest{
		Target: ip,
		Count:  settings.Count,
		Delay:  settings.Delay,
		Expiry: settings.Expiry,
	})
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		m.fault(target.Name, err)
		return
	}
	m.state.UpdateRun(target.Name, result, stats.Summarize(result))
}

func (m *Impl) fault(name string, err error) {
	m.logger.LogError("monitor", err, map[string]interface{}{"target": name})
	m.state.UpdateFault(name, err)
}

func (m *Impl) current(name string) (config.GlobalOptions, config.TargetConfig, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	target, ok := m.targets[name]
	return m.cfg, target, ok
}

func (m *Impl) currentLimiter() *rate.Limiter {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.limiter
}

// newLimiter caps run starts across all targets; zero or less is unlimited.
func newLimiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		return nil
	}
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}
