package metrics

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/doridoridoriand/pingtrain/internal/config"
	"github.com/doridoridoriand/pingtrain/internal/state"
)

const contentType = "text/plain; version=0.0.4"

// Server exposes Prometheus-style metrics based on current state.
type Server struct {
	mode  config.MetricsMode
	store state.Store
}

// NewServer constructs a metrics server.
func NewServer(mode config.MetricsMode, store state.Store) *Server {
	return &Server{mode: mode, store: store}
}

// Handler returns the router serving /metrics, /healthz and /targets/{name}.
// Methods other than GET are answered with 405.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/metrics", s.handleMetrics).Methods(http.MethodGet)
	r.HandleFunc("/healthz", handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/targets/{name}", s.handleTarget).Methods(http.MethodGet)
	return r
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", contentType)
	bw := bufio.NewWriter(w)
	defer bw.Flush()
	s.writeMetrics(bw)
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = w.Write([]byte("ok\n"))
}

// targetView is the JSON shape served for a single target.
type targetView struct {
	Name           string  `json:"name"`
	Address        string  `json:"address"`
	Group          string  `json:"group,omitempty"`
	Status         string  `json:"status"`
	LastRunID      string  `json:"last_run_id,omitempty"`
	LastRunAt      string  `json:"last_run_at,omitempty"`
	LastRTTMs      float64 `json:"last_rtt_ms"`
	LastLoss       float64 `json:"last_loss_percent"`
	LastError      string  `json:"last_error,omitempty"`
	ConsecutiveOK  int     `json:"consecutive_ok"`
	ConsecutiveNG  int     `json:"consecutive_ng"`
	TotalRuns      int     `json:"total_runs"`
	FailedRuns     int     `json:"failed_runs"`
	ProbesSent     int     `json:"probes_sent"`
	ProbesReceived int     `json:"probes_received"`
}

func (s *Server) handleTarget(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	status, ok := s.store.GetTargetStatus(name)
	if !ok {
		http.Error(w, fmt.Sprintf("unknown target %q", name), http.StatusNotFound)
		return
	}

	view := targetView{
		Name:           status.Name,
		Address:        status.Address,
		Group:          status.Group,
		Status:         string(status.Status),
		LastRunID:      status.LastRunID,
		LastRTTMs:      millis(status.LastRTT),
		LastLoss:       status.LastLoss,
		LastError:      status.LastError,
		ConsecutiveOK:  status.ConsecutiveOK,
		ConsecutiveNG:  status.ConsecutiveNG,
		TotalRuns:      status.TotalRuns,
		FailedRuns:     status.FailedRuns,
		ProbesSent:     status.ProbesSent,
		ProbesReceived: status.ProbesReceived,
	}
	if !status.LastRunAt.IsZero() {
		view.LastRunAt = status.LastRunAt.UTC().Format(time.RFC3339Nano)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(view); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) writeMetrics(w *bufio.Writer) {
	snapshot := s.store.GetSnapshot()
	if s.mode == "" {
		return
	}

	if s.mode == config.MetricsModeAggregated || s.mode == config.MetricsModeBoth {
		writeAggregated(w, snapshot)
	}
	if s.mode == config.MetricsModePerTarget || s.mode == config.MetricsModeBoth {
		writePerTarget(w, snapshot)
	}
}

func writeAggregated(w *bufio.Writer, snapshot []state.TargetStatus) {
	total := len(snapshot)
	var okCount, warnCount, downCount, unknownCount int
	var sent, received int
	for _, target := range snapshot {
		switch target.Status {
		case state.StatusOK:
			okCount++
		case state.StatusWarn:
			warnCount++
		case state.StatusDown:
			downCount++
		default:
			unknownCount++
		}
		sent += target.ProbesSent
		received += target.ProbesReceived
	}
	fmt.Fprintf(w, "pingtrain_targets_total %d\n", total)
	fmt.Fprintf(w, "pingtrain_targets_ok %d\n", okCount)
	fmt.Fprintf(w, "pingtrain_targets_warn %d\n", warnCount)
	fmt.Fprintf(w, "pingtrain_targets_down %d\n", downCount)
	fmt.Fprintf(w, "pingtrain_targets_unknown %d\n", unknownCount)
	fmt.Fprintf(w, "pingtrain_probes_sent_total %d\n", sent)
	fmt.Fprintf(w, "pingtrain_probes_received_total %d\n", received)
}

func writePerTarget(w *bufio.Writer, snapshot []state.TargetStatus) {
	for _, target := range snapshot {
		labels := fmt.Sprintf(
			"target=\"%s\",address=\"%s\",group=\"%s\"",
			escapeLabel(target.Name),
			escapeLabel(target.Address),
			escapeLabel(target.Group),
		)
		up := 0
		if target.Status == state.StatusOK {
			up = 1
		}
		fmt.Fprintf(w, "pingtrain_target_up{%s} %d\n", labels, up)
		if target.TotalRuns == 0 {
			continue
		}
		if target.LastRTT > 0 {
			fmt.Fprintf(w, "pingtrain_target_rtt_ms{%s} %s\n", labels, formatFloat(millis(target.LastRTT)))
		}
		fmt.Fprintf(w, "pingtrain_target_loss_percent{%s} %s\n", labels, formatFloat(target.LastLoss))
		fmt.Fprintf(w, "pingtrain_target_runs_total{%s} %d\n", labels, target.TotalRuns)
		fmt.Fprintf(w, "pingtrain_target_failed_runs_total{%s} %d\n", labels, target.FailedRuns)
		fmt.Fprintf(w, "pingtrain_target_probes_sent_total{%s} %d\n", labels, target.ProbesSent)
		fmt.Fprintf(w, "pingtrain_target_probes_received_total{%s} %d\n", labels, target.ProbesReceived)
	}
}

func escapeLabel(value string) string {
	value = strings.ReplaceAll(value, "\\", "\\\\")
	value = strings.ReplaceAll(value, "\"", "\\\"")
	value = strings.ReplaceAll(value, "\n", "\\n")
	return value
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func formatFloat(v float64) string {
	return fmt.Sprintf("%g", v)
}

// Serve starts an HTTP server and blocks until context cancellation.
func Serve(ctx context.Context, addr string, mode config.MetricsMode, store state.Store) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           NewServer(mode, store).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return context.Canceled
		}
		return err
	}
}
