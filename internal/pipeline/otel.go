package pipeline

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName identifies pipeline spans.
const TracerName = "sheetvault.pipeline"

// Tracer opens one span per file run and a child span per stage
// execution. It resolves the tracer from the global provider, so spans
// are no-ops until the application registers an exporter.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer builds the pipeline tracer.
func NewTracer() *Tracer {
	return &Tracer{tracer: otel.Tracer(TracerName)}
}

// TraceFile opens the span covering one file's pass through the stages.
func (t *Tracer) TraceFile(ctx context.Context, runID, file string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "pipeline.file",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.String("file.name", file),
		))
}

// TraceStage opens a child span for one stage execution.
func (t *Tracer) TraceStage(ctx context.Context, stageID string) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "pipeline.stage."+stageID,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("stage.id", stageID)))
}

// EndStage closes a stage span with its duration and outcome.
func (t *Tracer) EndStage(span trace.Span, duration time.Duration, err error) {
	span.SetAttributes(attribute.Float64("stage.duration_seconds", duration.Seconds()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// EndFile closes the file span with its outcome.
func (t *Tracer) EndFile(span trace.Span, err error) {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
