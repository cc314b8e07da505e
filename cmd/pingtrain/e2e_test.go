package main

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/doridoridoriand/pingtrain/internal/config"
	"github.com/doridoridoriand/pingtrain/internal/metrics"
	"github.com/doridoridoriand/pingtrain/internal/monitor"
	"github.com/doridoridoriand/pingtrain/internal/ping"
	"github.com/doridoridoriand/pingtrain/internal/session"
	"github.com/doridoridoriand/pingtrain/internal/state"
)

// mockEngine answers every probe after a fixed RTT and counts probes per target.
type mockEngine struct {
	mu     sync.Mutex
	rtt    time.Duration
	counts map[string]int
}

func newMockEngine(rtt time.Duration) *mockEngine {
	return &mockEngine{rtt: rtt, counts: make(map[string]int)}
}

func (m *mockEngine) Probe(ctx context.Context, target net.IP, seq int, deadline time.Time) (time.Duration, error) {
	m.mu.Lock()
	m.counts[target.String()]++
	m.mu.Unlock()
	return m.rtt, nil
}

func (m *mockEngine) count(addr string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[addr]
}

var _ ping.Engine = (*mockEngine)(nil)

func createTempConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func waitForCondition(t *testing.T, condition func() bool, timeout time.Duration, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timeout: %s", msg)
}

func TestE2EConfigToMetrics(t *testing.T) {
	path := createTempConfig(t, "targets.conf", `# pingtrain: count=3 delay=0s expiry=200ms interval=50ms
--- core
router 192.0.2.1
switch 192.0.2.2 count=5
`)
	cfg, err := loadWatchConfig(path, config.CLIOverrides{})
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	engine := newMockEngine(2 * time.Millisecond)
	sess := session.New(engine, session.Options{})
	defer sess.Close()
	store := state.NewStore(cfg.Targets, cfg.Global.Expiry)
	mon := monitor.New(cfg.Global, cfg.Targets, sess, store, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go func() { _ = mon.Run(ctx) }()

	waitForCondition(t, func() bool {
		for _, target := range store.GetSnapshot() {
			if target.TotalRuns == 0 {
				return false
			}
		}
		return true
	}, 2*time.Second, "every target should complete a run")

	router, _ := store.GetTargetStatus("router")
	if router.Status != state.StatusOK || router.Group != "core" {
		t.Fatalf("unexpected router status %+v", router)
	}
	if router.LastSummary.Sent != 3 || router.LastRTT != 2*time.Millisecond {
		t.Fatalf("unexpected router summary %+v", router.LastSummary)
	}
	sw, _ := store.GetTargetStatus("switch")
	if sw.LastSummary.Sent != 5 {
		t.Fatalf("per-target count not applied: %+v", sw.LastSummary)
	}

	handler := metrics.NewServer(config.MetricsModeBoth, store).Handler()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()
	for _, want := range []string{
		"pingtrain_targets_total 2",
		`pingtrain_target_up{target="router",address="192.0.2.1",group="core"} 1`,
		`pingtrain_target_rtt_ms{target="router",address="192.0.2.1",group="core"} 2`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in metrics:\n%s", want, body)
		}
	}
}

func TestE2EConfigReload(t *testing.T) {
	path := createTempConfig(t, "targets.conf", `# pingtrain: count=1 expiry=200ms interval=20ms
target1 192.0.2.1
target2 192.0.2.2
`)
	cfg, err := loadWatchConfig(path, config.CLIOverrides{})
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	engine := newMockEngine(time.Millisecond)
	sess := session.New(engine, session.Options{})
	defer sess.Close()
	store := state.NewStore(cfg.Targets, cfg.Global.Expiry)
	mon := monitor.New(cfg.Global, cfg.Targets, sess, store, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	go func() { _ = mon.Run(ctx) }()

	waitForCondition(t, func() bool {
		return engine.count("192.0.2.1") > 0 && engine.count("192.0.2.2") > 0
	}, 2*time.Second, "initial targets should be probed")

	updated := `# pingtrain: count=1 expiry=200ms interval=20ms
target1 192.0.2.1
target3 192.0.2.3
`
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		t.Fatalf("rewrite config: %v", err)
	}
	newCfg, err := loadWatchConfig(path, config.CLIOverrides{})
	if err != nil {
		t.Fatalf("reload config: %v", err)
	}
	mon.UpdateConfig(newCfg.Global, newCfg.Targets)

	waitForCondition(t, func() bool {
		return engine.count("192.0.2.3") > 0
	}, 2*time.Second, "added target should be probed")

	names := map[string]bool{}
	for _, target := range store.GetSnapshot() {
		names[target.Name] = true
	}
	if len(names) != 2 || !names["target1"] || !names["target3"] {
		t.Fatalf("unexpected targets after reload: %v", names)
	}
}

var _ monitor.Runner = (*session.Session)(nil)
