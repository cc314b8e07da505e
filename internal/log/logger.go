// Package log writes leveled JSON lines.
package log

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Level orders log severities.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return fmt.Sprintf("LEVEL(%d)", int(l))
	}
}

// ParseLevel maps a level name onto a Level, case-insensitively.
// Unknown names fall back to LevelInfo.
func ParseLevel(name string) Level {
	switch strings.ToLower(name) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Fields are attached to an entry as a JSON object.
type Fields = map[string]interface{}

// LogEntry is one JSON line.
type LogEntry struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Message   string `json:"message"`
	Fields    Fields `json:"fields,omitempty"`
}

// Logger writes entries at or above its level. It is safe for concurrent use;
// each entry is written with a single Write call.
type Logger struct {
	mu     sync.Mutex
	level  Level
	output io.Writer
}

// NewLogger returns a logger writing to stderr.
func NewLogger(level Level) *Logger {
	return &Logger{level: level, output: os.Stderr}
}

// Discard returns a logger that drops every entry.
func Discard() *Logger {
	return &Logger{level: LevelError + 1, output: io.Discard}
}

func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	l.output = w
	l.mu.Unlock()
}

func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	l.level = level
	l.mu.Unlock()
}

// Enabled reports whether entries at level are written.
func (l *Logger) Enabled(level Level) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return level >= l.level
}

func (l *Logger) emit(level Level, message string, fields Fields) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if level < l.level {
		return
	}

	entry := LogEntry{
		Timestamp: time.Now().Format(time.RFC3339),
		Level:     level.String(),
		Message:   message,
		Fields:    fields,
	}
	data, err := json.Marshal(entry)
	if err != nil {
		// a field value json cannot encode; keep the message
		data = []byte(fmt.Sprintf(`{"timestamp":%q,"level":%q,"message":%q}`, entry.Timestamp, entry.Level, message))
	}
	_, _ = l.output.Write(append(data, '\n'))
}

func (l *Logger) Debug(message string, fields Fields) { l.emit(LevelDebug, message, fields) }
func (l *Logger) Info(message string, fields Fields)  { l.emit(LevelInfo, message, fields) }
func (l *Logger) Warn(message string, fields Fields)  { l.emit(LevelWarn, message, fields) }
func (l *Logger) Error(message string, fields Fields) { l.emit(LevelError, message, fields) }

// LogProbe records the terminal outcome of one probe. Failed probes log at
// WARN, replies and timeouts at DEBUG.
func (l *Logger) LogProbe(runID, target string, seq int, outcome string, rtt time.Duration, err error) {
	fields := Fields{"run_id": runID, "target": target, "seq": seq, "outcome": outcome}
	if rtt > 0 {
		fields["rtt_us"] = rtt.Microseconds()
	}
	if err != nil {
		fields["error"] = err.Error()
		l.Warn("probe failed", fields)
		return
	}
	l.Debug("probe finished", fields)
}

// LogRun records a completed run.
func (l *Logger) LogRun(runID, target string, count, replies int, elapsed time.Duration) {
	fields := Fields{
		"run_id":     runID,
		"target":     target,
		"count":      count,
		"replies":    replies,
		"elapsed_ms": elapsed.Milliseconds(),
	}
	if count > 0 && replies == 0 {
		l.Warn("run finished without replies", fields)
		return
	}
	l.Info("run finished", fields)
}

// LogRunFault records a run that returned an error instead of a result.
func (l *Logger) LogRunFault(runID, target string, err error) {
	l.Error("run failed", withError(Fields{"run_id": runID, "target": target}, err))
}

func (l *Logger) LogConfigLoad(success bool, path string, err error) {
	fields := withError(Fields{"path": path}, err)
	if success {
		l.Info("config loaded", fields)
		return
	}
	l.Error("config load failed", fields)
}

// LogError records err against a component. fields may be nil.
func (l *Logger) LogError(component string, err error, fields Fields) {
	if fields == nil {
		fields = Fields{}
	}
	fields["component"] = component
	l.Error("error occurred", withError(fields, err))
}

func withError(fields Fields, err error) Fields {
	if err != nil {
		fields["error"] = err.Error()
	}
	return fields
}
