package engine

import (
	"context"
	"sync"
	"time"
)

// TraceEntry records one executed statement.
type TraceEntry struct {
	Database string        `json:"database"`
	SQL      string        `json:"sql"`
	Params   []any         `json:"params,omitempty"`
	Duration time.Duration `json:"duration"`
	Worker   string        `json:"worker"`
	Conn     string        `json:"conn,omitempty"`
	Err      error         `json:"-"`
}

// Trace collects entries for every statement submitted under its context.
// Workers append concurrently.
type Trace struct {
	mu      sync.Mutex
	entries []TraceEntry
}

type traceKey struct{}

// WithTrace returns a context that records statements submitted with it.
func WithTrace(ctx context.Context) (context.Context, *Trace) {
	tr := &Trace{}
	return context.WithValue(ctx, traceKey{}, tr), tr
}

func traceFrom(ctx context.Context) *Trace {
	if ctx == nil {
		return nil
	}
	tr, _ := ctx.Value(traceKey{}).(*Trace)
	return tr
}

func (t *Trace) add(e TraceEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append(t.entries, e)
}

// Entries returns a copy of the recorded entries in completion order.
func (t *Trace) Entries() []TraceEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]TraceEntry, len(t.entries))
	copy(out, t.entries)
	return out
}
