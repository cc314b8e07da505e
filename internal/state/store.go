package state

import (
	"slices"
	"sync"
	"time"

	"github.com/doridoridoriand/pingtrain/internal/config"
	"github.com/doridoridoriand/pingtrain/internal/scheduler"
	"github.com/doridoridoriand/pingtrain/internal/stats"
)

const (
	defaultHistorySize      = 100
	defaultDownThreshold    = 3
	thresholdDataPointCount = 10
)

// StoreImpl is a thread-safe in-memory state store.
type StoreImpl struct {
	mu            sync.RWMutex
	targets       map[string]*TargetStatus
	historySize   int
	downThreshold int
	expiry        time.Duration
}

// NewStore creates a store initialized with the provided targets. expiry is
// the per-probe wait used to grade round-trip times.
func NewStore(targets []config.TargetConfig, expiry time.Duration) *StoreImpl {
	store := &StoreImpl{
		targets:       make(map[string]*TargetStatus),
		historySize:   defaultHistorySize,
		downThreshold: defaultDownThreshold,
		expiry:        expiry,
	}
	store.UpdateTargets(targets)
	return store
}

// SetExpiry changes the expiry used for grading subsequent runs.
func (s *StoreImpl) SetExpiry(expiry time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expiry = expiry
}

// UpdateRun records a completed run. A run with at least one reply counts as
// a success; a run in which every probe was lost counts as a failure. Runs for
// targets no longer registered are dropped.
func (s *StoreImpl) UpdateRun(name string, result scheduler.RunResult, summary stats.Summary) {
	s.mu.Lock()
	defer s.mu.Unlock()

	target, ok := s.targets[name]
	if !ok {
		return
	}
	now := result.Started.Add(result.Elapsed)
	if result.Started.IsZero() {
		now = time.Now()
	}

	target.LastRunID = result.ID
	target.LastRunAt = now
	target.LastSummary = summary
	target.LastLoss = summary.LossPercent
	target.LastRTT = summary.Avg
	target.LastError = ""
	target.TotalRuns++
	target.ProbesSent += summary.Sent
	target.ProbesReceived += summary.Received
	s.appendHistory(target, RTTPoint{Time: now, RTT: summary.Avg, LossPercent: summary.LossPercent})

	if summary.Received == 0 {
		s.markFailure(target, now)
		return
	}

	target.LastSuccessAt = now
	target.ConsecutiveOK++
	target.ConsecutiveNG = 0
	target.Status = s.grade(target, summary)
}

// grade rates a run that got replies. Any loss is WARN; otherwise the recent
// average RTT must stay within a quarter of expiry to be OK.
func (s *StoreImpl) grade(target *TargetStatus, summary stats.Summary) Status {
	if summary.Lost > 0 {
		return StatusWarn
	}
	avg := calculateRecentAvgRTT(target.History, thresholdDataPointCount)
	if avg <= 0 {
		avg = summary.Avg
	}
	if avg <= s.expiry/4 {
		return StatusOK
	}
	return StatusWarn
}

// UpdateFault records a run that failed as a whole.
func (s *StoreImpl) UpdateFault(name string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	target, ok := s.targets[name]
	if !ok {
		return
	}
	now := time.Now()
	target.LastRunAt = now
	target.TotalRuns++
	target.FailedRuns++
	if err != nil {
		target.LastError = err.Error()
	}
	s.markFailure(target, now)
}

func (s *StoreImpl) markFailure(target *TargetStatus, at time.Time) {
	target.LastFailureAt = at
	target.ConsecutiveNG++
	target.ConsecutiveOK = 0
	if target.ConsecutiveNG >= s.downThreshold {
		target.Status = StatusDown
	} else {
		target.Status = StatusWarn
	}
}

// GetSnapshot returns a snapshot copy of all target states.
func (s *StoreImpl) GetSnapshot() []TargetStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]TargetStatus, 0, len(s.targets))
	for _, target := range s.targets {
		result = append(result, copyTargetStatus(target))
	}
	return result
}

// UpdateTargets updates the target list, keeping history for existing targets.
func (s *StoreImpl) UpdateTargets(targets []config.TargetConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()

	updated := make(map[string]*TargetStatus, len(targets))
	for _, tgt := range targets {
		if existing, ok := s.targets[tgt.Name]; ok {
			existing.Address = tgt.Address
			existing.Group = tgt.Group
			updated[tgt.Name] = existing
			continue
		}
		updated[tgt.Name] = &TargetStatus{
			Name:    tgt.Name,
			Address: tgt.Address,
			Group:   tgt.Group,
			Status:  StatusUnknown,
		}
	}

	s.targets = updated
}

// GetTargetStatus returns a copy of a single target status.
func (s *StoreImpl) GetTargetStatus(name string) (TargetStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	target, ok := s.targets[name]
	if !ok {
		return TargetStatus{}, false
	}
	return copyTargetStatus(target), true
}

func (s *StoreImpl) appendHistory(target *TargetStatus, point RTTPoint) {
	if s.historySize <= 0 {
		return
	}
	if len(target.History) < s.historySize {
		target.History = append(target.History, point)
		return
	}
	copy(target.History, target.History[1:])
	target.History[len(target.History)-1] = point
}

func copyTargetStatus(source *TargetStatus) TargetStatus {
	clone := *source
	clone.History = slices.Clone(source.History)
	return clone
}

// calculateRecentAvgRTT averages the RTT of the most recent count runs that
// received replies. Returns 0 if none did.
func calculateRecentAvgRTT(history []RTTPoint, count int) time.Duration {
	var sum time.Duration
	used := 0
	for _, point := range history[max(0, len(history)-count):] {
		if point.RTT > 0 {
			sum += point.RTT
			used++
		}
	}
	if used == 0 {
		return 0
	}
	return sum / time.Duration(used)
}
