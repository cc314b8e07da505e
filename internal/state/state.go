package state

import (
	"time"

	"github.com/doridoridoriand/pingtrain/internal/config"
	"github.com/doridoridoriand/pingtrain/internal/scheduler"
	"github.com/doridoridoriand/pingtrain/internal/stats"
)

// Status represents target health.
type Status string

const (
	StatusUnknown Status = "UNKNOWN"
	StatusOK      Status = "OK"
	StatusWarn    Status = "WARN"
	StatusDown    Status = "DOWN"
)

// RTTPoint records one completed run.
type RTTPoint struct {
	Time time.Time
	// RTT is the run's average round trip; zero when nothing replied.
	RTT         time.Duration
	LossPercent float64
}

// TargetStatus captures the current state and history for a target.
type TargetStatus struct {
	Name    string
	Address string
	Group   string

	LastRunID   string
	LastRunAt   time.Time
	LastRTT     time.Duration
	LastLoss    float64
	LastSummary stats.Summary
	LastError   string

	LastSuccessAt time.Time
	LastFailureAt time.Time
	ConsecutiveOK int
	ConsecutiveNG int

	TotalRuns      int
	// FailedRuns counts runs that returned an error instead of a result.
	FailedRuns     int
	ProbesSent     int
	ProbesReceived int

	Status  Status
	History []RTTPoint
}

// Store defines operations for tracking target state.
type Store interface {
	UpdateRun(name string, result scheduler.RunResult, summary stats.Summary)
	UpdateFault(name string, err error)
	GetSnapshot() []TargetStatus
	UpdateTargets(targets []config.TargetConfig)
	GetTargetStatus(name string) (TargetStatus, bool)
	SetExpiry(expiry time.Duration)
}
