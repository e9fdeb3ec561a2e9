package pipeline

import (
	"sync"
	"time"
)

// FileStatus is the lifecycle state of one discovered file.
type FileStatus string

const (
	StatusProcessing FileStatus = "processing"
	StatusCompleted  FileStatus = "completed"
	StatusFailed     FileStatus = "failed"
)

// FileRecord is the observable state of one pipeline run.
type FileRecord struct {
	RunID      string     `json:"run_id"`
	File       string     `json:"file"`
	Status     FileStatus `json:"status"`
	Output     string     `json:"output,omitempty"`
	Stage      string     `json:"stage,omitempty"`
	Reason     string     `json:"reason,omitempty"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Summary is the aggregate view served by the status API.
type Summary struct {
	FilesDiscovered int          `json:"files_discovered"`
	FilesCompleted  int          `json:"files_completed"`
	FilesFailed     int          `json:"files_failed"`
	InFlight        int          `json:"in_flight"`
	Recent          []FileRecord `json:"recent"`
}

// maxRecent bounds the record list kept for the API.
const maxRecent = 50

// StatusTracker keeps counters and recent run records in memory. There
// is no persisted record of which files failed beyond the log stream;
// the tracker only serves the live API. Safe for concurrent use.
type StatusTracker struct {
	mu         sync.RWMutex
	discovered int
	completed  int
	failed     int
	records    []*FileRecord
	byRun      map[string]*FileRecord
}

// NewStatusTracker returns an empty tracker.
func NewStatusTracker() *StatusTracker {
	return &StatusTracker{byRun: make(map[string]*FileRecord)}
}

// FileStarted records a new run entering the pipeline.
func (t *StatusTracker) FileStarted(runID, file string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec := &FileRecord{
		RunID:     runID,
		File:      file,
		Status:    StatusProcessing,
		StartedAt: time.Now().UTC(),
	}
	t.discovered++
	t.records = append(t.records, rec)
	t.byRun[runID] = rec

	if len(t.records) > maxRecent {
		evicted := t.records[0]
		t.records = t.records[1:]
		delete(t.byRun, evicted.RunID)
	}
}

// FileCompleted records a run that produced its final artifact.
func (t *StatusTracker) FileCompleted(runID, output string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.completed++
	if rec, ok := t.byRun[runID]; ok {
		now := time.Now().UTC()
		rec.Status = StatusCompleted
		rec.Output = output
		rec.FinishedAt = &now
	}
}

// FileFailed records a run stopped by the named stage.
func (t *StatusTracker) FileFailed(runID, stage string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.failed++
	if rec, ok := t.byRun[runID]; ok {
		now := time.Now().UTC()
		rec.Status = StatusFailed
		rec.Stage = stage
		rec.Reason = string(ReasonOf(err))
		if err != nil {
			rec.Error = err.Error()
		}
		rec.FinishedAt = &now
	}
}

// Snapshot returns a copy of the counters and records, newest first.
func (t *StatusTracker) Snapshot() Summary {
	t.mu.RLock()
	defer t.mu.RUnlock()

	recent := make([]FileRecord, 0, len(t.records))
	for i := len(t.records) - 1; i >= 0; i-- {
		recent = append(recent, *t.records[i])
	}

	return Summary{
		FilesDiscovered: t.discovered,
		FilesCompleted:  t.completed,
		FilesFailed:     t.failed,
		InFlight:        t.discovered - t.completed - t.failed,
		Recent:          recent,
	}
}
