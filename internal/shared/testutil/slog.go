// Package testutil provides shared testing utilities.
package testutil

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Record is a single captured log entry with its attributes flattened
// into a map for assertion convenience.
type Record struct {
	Time    time.Time
	Level   slog.Level
	Message string
	Attrs   map[string]any
}

// captureState is shared between a CaptureHandler and every handler
// derived from it through WithAttrs, so records logged through
// component loggers built with logger.With land in the same buffer.
type captureState struct {
	mu      sync.Mutex
	records []Record
}

// CaptureHandler is a slog.Handler that buffers records in memory for
// test assertions instead of writing them anywhere.
type CaptureHandler struct {
	state *captureState
	attrs []slog.Attr
}

// NewCaptureLogger returns a logger that records everything it is
// given and the handler to inspect afterwards.
func NewCaptureLogger() (*slog.Logger, *CaptureHandler) {
	h := &CaptureHandler{state: &captureState{}}
	return slog.New(h), h
}

// Enabled reports true for every level so tests see debug output too.
func (h *CaptureHandler) Enabled(context.Context, slog.Level) bool { return true }

// Handle buffers the record, merging attributes bound via With into
// the record's own. Record attributes win on key collisions.
func (h *CaptureHandler) Handle(_ context.Context, r slog.Record) error {
	attrs := make(map[string]any, r.NumAttrs()+len(h.attrs))
	for _, a := range h.attrs {
		attrs[a.Key] = a.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		attrs[a.Key] = a.Value.Any()
		return true
	})

	h.state.mu.Lock()
	defer h.state.mu.Unlock()
	h.state.records = append(h.state.records, Record{
		Time:    r.Time,
		Level:   r.Level,
		Message: r.Message,
		Attrs:   attrs,
	})
	return nil
}

// WithAttrs returns a handler that shares this handler's buffer.
func (h *CaptureHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &CaptureHandler{state: h.state, attrs: merged}
}

// WithGroup is accepted but not nested; grouped attributes keep their
// plain keys, which is enough for assertions.
func (h *CaptureHandler) WithGroup(string) slog.Handler { return h }

// Records returns a snapshot of everything captured so far.
func (h *CaptureHandler) Records() []Record {
	h.state.mu.Lock()
	defer h.state.mu.Unlock()
	out := make([]Record, len(h.state.records))
	copy(out, h.state.records)
	return out
}

// Find returns the first record with the given message.
func (h *CaptureHandler) Find(message string) (Record, bool) {
	for _, r := range h.Records() {
		if r.Message == message {
			return r, true
		}
	}
	return Record{}, false
}

// FindAll returns every record with the given message, in order.
func (h *CaptureHandler) FindAll(message string) []Record {
	var out []Record
	for _, r := range h.Records() {
		if r.Message == message {
			out = append(out, r)
		}
	}
	return out
}

// Has reports whether a record with the given level and message was
// captured.
func (h *CaptureHandler) Has(level slog.Level, message string) bool {
	for _, r := range h.Records() {
		if r.Level == level && r.Message == message {
			return true
		}
	}
	return false
}

// Reset discards everything captured so far.
func (h *CaptureHandler) Reset() {
	h.state.mu.Lock()
	defer h.state.mu.Unlock()
	h.state.records = nil
}
