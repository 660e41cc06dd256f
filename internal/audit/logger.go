// Package audit writes one JSONL record per controller action, rotated by
// size so long bench sessions cannot grow the log without bound.
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/instrument-control/smuctl/internal/controller"
)

// Compile-time assertion that Logger satisfies the controller's audit
// contract.
var _ controller.AuditLogger = (*Logger)(nil)

// Entry is a single audit record.
type Entry struct {
	Timestamp time.Time `json:"ts"`
	Resource  string    `json:"resource"`
	Channel   string    `json:"channel"`
	Action    string    `json:"action"`
	Outcome   string    `json:"outcome"`
	LatencyMs int64     `json:"latencyMs"`
}

// Options tunes log placement and rotation.
type Options struct {
	Dir        string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Logger appends audit entries to <dir>/audit.jsonl.
type Logger struct {
	mu       sync.Mutex
	out      *lumberjack.Logger
	resource string
}

// NewLogger creates an audit logger for actions against the named resource.
func NewLogger(opts Options, resource string) *Logger {
	return &Logger{
		out: &lumberjack.Logger{
			Filename:   filepath.Join(opts.Dir, "audit.jsonl"),
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
		},
		resource: resource,
	}
}

// LogAction records one normalized action outcome.
func (l *Logger) LogAction(action, channel, outcome string, latency time.Duration) {
	entry := Entry{
		Timestamp: time.Now().UTC(),
		Resource:  l.resource,
		Channel:   channel,
		Action:    action,
		Outcome:   outcome,
		LatencyMs: latency.Milliseconds(),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "audit: marshal entry: %v\n", err)
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.out.Write(append(data, '\n')); err != nil {
		fmt.Fprintf(os.Stderr, "audit: write entry: %v\n", err)
	}
}

// Close flushes and closes the underlying log file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.out.Close()
}
