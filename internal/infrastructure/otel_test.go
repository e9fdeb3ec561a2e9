package infrastructure

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

func TestDefaultOTelConfig(t *testing.T) {
	cfg := DefaultOTelConfig()

	assert.Equal(t, ServiceName, cfg.ServiceName)
	assert.Equal(t, ServiceVersion, cfg.ServiceVersion)
	assert.Equal(t, "none", cfg.TraceExporter)
	assert.Equal(t, "prometheus", cfg.MetricExporter)
	assert.Equal(t, 1.0, cfg.SampleRatio)
	assert.NotEmpty(t, cfg.Environment)
}

func TestInitializeOTel_Disabled(t *testing.T) {
	cfg := &OTelConfig{
		ServiceName:    "sheetvault-test",
		ServiceVersion: "test",
		Environment:    "test",
		TraceExporter:  "none",
		MetricExporter: "none",
		SampleRatio:    1.0,
	}

	providers, err := InitializeOTel(cfg, slog.Default())
	require.NoError(t, err)
	require.NotNil(t, providers)

	assert.Nil(t, providers.TracerProvider)
	assert.Nil(t, providers.PrometheusHTTP)

	// The meter always exists so metric creation never needs a nil
	// check; without a reader it exports nothing.
	require.NotNil(t, providers.MeterProvider)
	require.NotNil(t, providers.Meter)

	metrics, err := CreatePipelineMetrics(providers.Meter)
	require.NoError(t, err)
	assert.NotNil(t, metrics.FilesDiscovered)

	require.NoError(t, providers.Shutdown(context.Background()))
}

func TestInitializeOTel_Prometheus(t *testing.T) {
	cfg := &OTelConfig{
		ServiceName:    "sheetvault-test",
		ServiceVersion: "test",
		Environment:    "test",
		TraceExporter:  "none",
		MetricExporter: "prometheus",
		SampleRatio:    1.0,
	}

	providers, err := InitializeOTel(cfg, slog.Default())
	require.NoError(t, err)
	require.NotNil(t, providers.MeterProvider)
	require.NotNil(t, providers.Meter)
	require.NotNil(t, providers.PrometheusHTTP)

	require.NoError(t, providers.Shutdown(context.Background()))
}

func TestInitializeOTel_UnsupportedExporters(t *testing.T) {
	_, err := InitializeOTel(&OTelConfig{
		TraceExporter:  "jaeger",
		MetricExporter: "none",
		SampleRatio:    1.0,
	}, slog.Default())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tracing")

	_, err = InitializeOTel(&OTelConfig{
		TraceExporter:  "none",
		MetricExporter: "statsd",
		SampleRatio:    1.0,
	}, slog.Default())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "metrics")
}

func TestCreatePipelineMetrics(t *testing.T) {
	mp := sdkmetric.NewMeterProvider()
	t.Cleanup(func() { mp.Shutdown(context.Background()) })

	metrics, err := CreatePipelineMetrics(mp.Meter("test"))
	require.NoError(t, err)

	assert.NotNil(t, metrics.HTTPRequestsTotal)
	assert.NotNil(t, metrics.HTTPRequestDuration)
	assert.NotNil(t, metrics.HTTPActiveRequests)
	assert.NotNil(t, metrics.FilesDiscovered)
	assert.NotNil(t, metrics.FilesCompleted)
	assert.NotNil(t, metrics.StageExecutions)
	assert.NotNil(t, metrics.StageDuration)
	assert.NotNil(t, metrics.ValuesEncrypted)
	assert.NotNil(t, metrics.DuplicatesRemoved)
	assert.NotNil(t, metrics.CellsImputed)
}

func TestRecordStageMetrics(t *testing.T) {
	mp := sdkmetric.NewMeterProvider()
	t.Cleanup(func() { mp.Shutdown(context.Background()) })

	metrics, err := CreatePipelineMetrics(mp.Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()
	RecordStageMetrics(ctx, metrics, "validate", 25*time.Millisecond, true)
	RecordStageMetrics(ctx, metrics, "encrypt", 250*time.Millisecond, false)
	RecordFileOutcome(ctx, metrics, true)
	RecordFileOutcome(ctx, metrics, false)
}

func TestRecordMetrics_NilSafe(t *testing.T) {
	ctx := context.Background()

	assert.NotPanics(t, func() {
		RecordStageMetrics(ctx, nil, "validate", time.Second, true)
		RecordFileOutcome(ctx, nil, false)
	})
}

func TestTraceIDFromContext_NoSpan(t *testing.T) {
	assert.Empty(t, TraceIDFromContext(context.Background()))
}
