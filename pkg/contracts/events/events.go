// Package events defines the wire contracts broadcast to WebSocket
// subscribers as files move through the ingestion pipeline.
package events

import "time"

// Event types emitted by the pipeline runner.
const (
	TypeFileDiscovered = "file_discovered"
	TypeStageStarted   = "stage_started"
	TypeStageCompleted = "stage_completed"
	TypeStageFailed    = "stage_failed"
	TypeFileCompleted  = "file_completed"
)

// PipelineEvent describes one observable step of a file's journey
// through the pipeline. Stage, Output and Reason are set only where
// they apply to the event type.
type PipelineEvent struct {
	Type      string    `json:"type"`
	RunID     string    `json:"run_id"`
	File      string    `json:"file"`
	Stage     string    `json:"stage,omitempty"`
	Output    string    `json:"output,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
