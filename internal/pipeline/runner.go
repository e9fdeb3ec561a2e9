package pipeline

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"sheetvault/internal/infrastructure"
	"sheetvault/pkg/contracts/events"
)

// Runner consumes discovered files and drives each through the stages
// in order, stopping at the first failure. One file is in flight at a
// time; the unbuffered watcher channel holds discovery back while a
// file is processed.
type Runner struct {
	in      <-chan string
	stages  []Stage
	status  *StatusTracker
	hub     Broadcaster
	metrics *infrastructure.PipelineMetrics
	tracer  *Tracer
	logger  *slog.Logger
}

// NewRunner assembles the pipeline. hub, metrics, and status may be
// nil.
func NewRunner(in <-chan string, stages []Stage, status *StatusTracker, hub Broadcaster, metrics *infrastructure.PipelineMetrics, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		in:      in,
		stages:  stages,
		status:  status,
		hub:     hub,
		metrics: metrics,
		tracer:  NewTracer(),
		logger:  logger.With(slog.String("component", "runner")),
	}
}

// Run processes files until the context is cancelled or the input
// channel closes.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "runner_started", slog.Int("stages", len(r.stages)))
	defer r.logger.Info("runner_stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case path, ok := <-r.in:
			if !ok {
				return nil
			}
			r.processFile(ctx, path)
		}
	}
}

func (r *Runner) processFile(ctx context.Context, path string) {
	runID := uuid.New().String()
	ctx = infrastructure.WithTraceID(ctx, runID)
	file := filepath.Base(path)

	ctx, fileSpan := r.tracer.TraceFile(ctx, runID, file)

	r.logger.InfoContext(ctx, "run_start",
		slog.String("run_id", runID),
		slog.String("file", file))

	if r.metrics != nil {
		r.metrics.FilesDiscovered.Add(ctx, 1)
	}
	if r.status != nil {
		r.status.FileStarted(runID, file)
	}
	r.publish(events.PipelineEvent{
		Type:      events.TypeFileDiscovered,
		RunID:     runID,
		File:      file,
		Timestamp: time.Now().UTC(),
	})

	current := path
	for _, stage := range r.stages {
		r.publish(events.PipelineEvent{
			Type:      events.TypeStageStarted,
			RunID:     runID,
			File:      file,
			Stage:     stage.ID(),
			Timestamp: time.Now().UTC(),
		})

		stageCtx, stageSpan := r.tracer.TraceStage(ctx, stage.ID())
		start := time.Now()
		out, err := stage.Process(stageCtx, current)
		duration := time.Since(start)

		infrastructure.RecordStageMetrics(ctx, r.metrics, stage.ID(), duration, err == nil)
		r.tracer.EndStage(stageSpan, duration, err)

		if err != nil {
			reason := ReasonOf(err)
			r.logger.ErrorContext(ctx, "stage_error",
				slog.String("run_id", runID),
				slog.String("file", file),
				slog.String("stage", stage.ID()),
				slog.String("reason", string(reason)),
				slog.String("error", err.Error()),
				slog.Duration("duration", duration))

			if r.status != nil {
				r.status.FileFailed(runID, stage.ID(), err)
			}
			infrastructure.RecordFileOutcome(ctx, r.metrics, false)
			r.publish(events.PipelineEvent{
				Type:      events.TypeStageFailed,
				RunID:     runID,
				File:      file,
				Stage:     stage.ID(),
				Reason:    string(reason),
				Timestamp: time.Now().UTC(),
			})
			r.tracer.EndFile(fileSpan, err)
			return
		}

		r.logger.InfoContext(ctx, "stage_complete",
			slog.String("run_id", runID),
			slog.String("file", file),
			slog.String("stage", stage.ID()),
			slog.Duration("duration", duration),
			slog.String("output", out))

		r.publish(events.PipelineEvent{
			Type:      events.TypeStageCompleted,
			RunID:     runID,
			File:      file,
			Stage:     stage.ID(),
			Output:    out,
			Timestamp: time.Now().UTC(),
		})

		current = out
	}

	if r.status != nil {
		r.status.FileCompleted(runID, current)
	}
	infrastructure.RecordFileOutcome(ctx, r.metrics, true)
	r.publish(events.PipelineEvent{
		Type:      events.TypeFileCompleted,
		RunID:     runID,
		File:      file,
		Output:    current,
		Timestamp: time.Now().UTC(),
	})

	r.logger.InfoContext(ctx, "run_complete",
		slog.String("run_id", runID),
		slog.String("file", file),
		slog.String("output", current))
	r.tracer.EndFile(fileSpan, nil)
}

func (r *Runner) publish(ev events.PipelineEvent) {
	if r.hub != nil {
		r.hub.Publish(ev)
	}
}
