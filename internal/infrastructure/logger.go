// Package infrastructure provides the shared observability plumbing for
// sheetvault: structured logging with trace correlation and the
// OpenTelemetry metric and trace providers.
package infrastructure

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"sheetvault/internal/config"
)

var (
	globalLogger *slog.Logger
	loggerOnce   sync.Once
	loggerMu     sync.RWMutex
	logFile      *os.File
)

type contextKey string

const traceIDKey contextKey = "trace_id"

// InitializeLogger sets up the global structured logger from configuration.
// It is safe to call multiple times; only the first call takes effect.
func InitializeLogger(cfg *config.LoggingConfig) error {
	var initErr error
	loggerOnce.Do(func() {
		logger, err := createLogger(cfg)
		if err != nil {
			initErr = err
			return
		}
		loggerMu.Lock()
		globalLogger = logger
		loggerMu.Unlock()
		slog.SetDefault(logger)
	})
	return initErr
}

// GetLogger returns the global logger, falling back to a plain stdout
// JSON logger when InitializeLogger has not been called.
func GetLogger() *slog.Logger {
	loggerMu.RLock()
	logger := globalLogger
	loggerMu.RUnlock()
	if logger != nil {
		return logger
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

func createLogger(cfg *config.LoggingConfig) (*slog.Logger, error) {
	level := parseLogLevel(cfg.Level)

	var output io.Writer
	switch cfg.Output {
	case "file":
		f, err := openLogFile(cfg.FilePath)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		logFile = f
		output = f
	case "both":
		f, err := openLogFile(cfg.FilePath)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		logFile = f
		output = io.MultiWriter(os.Stdout, f)
	default:
		output = os.Stdout
	}

	handler := slog.NewJSONHandler(output, &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	})

	return slog.New(&traceHandler{Handler: handler}), nil
}

func parseLogLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func openLogFile(path string) (*os.File, error) {
	if path == "" {
		return nil, fmt.Errorf("log file path is empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
	}
	return os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
}

// CloseLogFile closes the log file when output is "file" or "both".
func CloseLogFile() error {
	if logFile == nil {
		return nil
	}
	err := logFile.Close()
	logFile = nil
	return err
}

// traceHandler decorates every record with the trace ID carried by the
// context, so log lines from one request or pipeline run correlate.
type traceHandler struct {
	slog.Handler
}

func (h *traceHandler) Handle(ctx context.Context, r slog.Record) error {
	if traceID := GetTraceID(ctx); traceID != "" {
		r.AddAttrs(slog.String("trace_id", traceID))
	}
	return h.Handler.Handle(ctx, r)
}

func (h *traceHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &traceHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *traceHandler) WithGroup(name string) slog.Handler {
	return &traceHandler{Handler: h.Handler.WithGroup(name)}
}

// WithTraceID returns a context carrying the given trace ID.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// GetTraceID returns the trace ID stored in the context, or "".
func GetTraceID(ctx context.Context) string {
	if v, ok := ctx.Value(traceIDKey).(string); ok {
		return v
	}
	return ""
}

// GenerateTraceID creates a new unique trace ID.
func GenerateTraceID() string {
	return uuid.New().String()
}

// EnsureTraceID returns a context that is guaranteed to carry a trace ID,
// generating one when the incoming context has none.
func EnsureTraceID(ctx context.Context) context.Context {
	if GetTraceID(ctx) == "" {
		return WithTraceID(ctx, GenerateTraceID())
	}
	return ctx
}

// LoggerWithContext returns the global logger annotated with the trace ID
// from the context. Preferred entry point for request handlers.
func LoggerWithContext(ctx context.Context) *slog.Logger {
	logger := GetLogger()
	if traceID := GetTraceID(ctx); traceID != "" {
		logger = logger.With(slog.String("trace_id", traceID))
	}
	return logger
}

// ResetLoggerForTesting clears the global logger state so tests can
// exercise initialization repeatedly.
func ResetLoggerForTesting() {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	globalLogger = nil
	loggerOnce = sync.Once{}
	if logFile != nil {
		logFile.Close()
		logFile = nil
	}
}
