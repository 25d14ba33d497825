package events

import (
	"context"
	"sync"
	"time"

	"github.com/specialistvlad/buildchain/internal/ctxlog"
)

// Event is one step state transition. Build level events leave Step empty.
type Event struct {
	RunID  string    `json:"run_id" yaml:"run_id"`
	Step   string    `json:"step,omitempty" yaml:"step,omitempty"`
	Status string    `json:"status" yaml:"status"`
	Reason string    `json:"reason,omitempty" yaml:"reason,omitempty"`
	Error  string    `json:"error,omitempty" yaml:"error,omitempty"`
	Time   time.Time `json:"time" yaml:"time"`
}

// Sink receives events. Emit must be safe for concurrent use and must not
// block for long; executors call it from worker goroutines.
type Sink interface {
	Emit(ctx context.Context, e Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, e Event)

// Emit calls f(ctx, e).
func (f SinkFunc) Emit(ctx context.Context, e Event) { f(ctx, e) }

// Multi fans every event out to each sink in order.
type Multi []Sink

// Emit forwards e to every non-nil sink.
func (m Multi) Emit(ctx context.Context, e Event) {
	for _, s := range m {
		if s != nil {
			s.Emit(ctx, e)
		}
	}
}

// Discard drops every event.
var Discard Sink = SinkFunc(func(context.Context, Event) {})

// LogSink writes every event to the logger carried by the context.
type LogSink struct{}

// Emit logs e at debug level, or warn level for failures.
func (LogSink) Emit(ctx context.Context, e Event) {
	logger := ctxlog.FromContext(ctx)
	args := []any{"run_id", e.RunID, "status", e.Status}
	if e.Step != "" {
		args = append(args, "step", e.Step)
	}
	if e.Reason != "" {
		args = append(args, "reason", e.Reason)
	}
	if e.Error != "" {
		args = append(args, "error", e.Error)
		logger.Warn("Build event.", args...)
		return
	}
	logger.Debug("Build event.", args...)
}

// Recorder keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Emit appends e.
func (r *Recorder) Emit(_ context.Context, e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// ForStep returns the statuses recorded for one step, in order.
func (r *Recorder) ForStep(step string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events {
		if e.Step == step {
			out = append(out, e.Status)
		}
	}
	return out
}
