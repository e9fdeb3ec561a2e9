// Package watcher polls a directory for newly arrived spreadsheet
// files and emits them exactly once, in discovery order, over a
// channel the pipeline consumes.
package watcher

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Watcher tracks every directory entry it has ever observed. A name
// enters the seen set the first time it appears, eligible or not, and
// is never emitted again, even if the file's content changes.
type Watcher struct {
	dir     string
	out     chan string
	limiter *rate.Limiter
	logger  *slog.Logger

	mu   sync.Mutex
	seen map[string]struct{}
}

// New creates a watcher over dir that completes one poll cycle per
// interval. Emission is unbuffered: discovery blocks until the consumer
// takes the file, keeping exactly one file in flight.
func New(dir string, interval time.Duration, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		dir:     dir,
		out:     make(chan string),
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		logger:  logger.With(slog.String("component", "watcher"), slog.String("dir", dir)),
		seen:    make(map[string]struct{}),
	}
}

// Files returns the channel of discovered candidate file paths. It is
// closed when Run returns.
func (w *Watcher) Files() <-chan string { return w.out }

// SeenCount returns how many directory entries have been observed so
// far, including ineligible ones.
func (w *Watcher) SeenCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.seen)
}

// Run polls until ctx is cancelled. The first cycle starts immediately;
// later cycles are paced by the configured interval. Always returns the
// context's error.
func (w *Watcher) Run(ctx context.Context) error {
	defer close(w.out)
	w.logger.Info("watcher_started")
	for {
		if err := w.limiter.Wait(ctx); err != nil {
			w.logger.Info("watcher_stopped")
			return ctx.Err()
		}
		if err := w.scan(ctx); err != nil {
			w.logger.Info("watcher_stopped")
			return err
		}
	}
}

func (w *Watcher) scan(ctx context.Context) error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		// The directory may not exist yet; keep polling.
		w.logger.Warn("watch_directory_unreadable", slog.String("error", err.Error()))
		return nil
	}
	for _, entry := range entries {
		name := entry.Name()
		if !w.markSeen(name) {
			continue
		}
		if !entry.Type().IsRegular() || !EligibleExtension(name) {
			continue
		}
		w.logger.Info("file_discovered", slog.String("file", name))
		select {
		case w.out <- filepath.Join(w.dir, name):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// markSeen records name in the seen set, reporting whether it is new.
func (w *Watcher) markSeen(name string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.seen[name]; ok {
		return false
	}
	w.seen[name] = struct{}{}
	return true
}

// EligibleExtension reports whether name carries a spreadsheet
// extension the pipeline accepts.
func EligibleExtension(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xls", ".xlsx":
		return true
	}
	return false
}
