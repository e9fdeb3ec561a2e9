package pipeline

import (
	"context"
	"path/filepath"
	"strings"

	"sheetvault/pkg/contracts/events"
)

// Stage is one step of the ingestion pipeline. Process consumes the
// file at path and returns the path of the artifact it produced. A
// non-nil error is always a *StageError; it stops the run for this file
// and later stages never see it.
type Stage interface {
	ID() string
	Name() string
	Process(ctx context.Context, path string) (string, error)
}

// Broadcaster pushes pipeline events to subscribers. The websocket hub
// satisfies it; a nil Broadcaster disables publishing.
type Broadcaster interface {
	Publish(ev events.PipelineEvent)
}

// prefixedName builds the stage output path: the input base name gains
// the stage prefix, keeping the chain of earlier prefixes intact.
func prefixedName(dir, prefix, inputPath string) string {
	return filepath.Join(dir, prefix+"_"+filepath.Base(inputPath))
}

// artifactName is prefixedName with the spreadsheet extension swapped
// for ext.
func artifactName(dir, prefix, inputPath, ext string) string {
	base := filepath.Base(inputPath)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return filepath.Join(dir, prefix+"_"+base+ext)
}
