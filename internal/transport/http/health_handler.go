package http

import (
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"sheetvault/internal/infrastructure"
	"sheetvault/internal/middleware"
)

// HealthHandler serves the liveness and readiness probes plus a small
// version endpoint.
type HealthHandler struct {
	watchDir  string
	startedAt time.Time
	logger    *slog.Logger
}

// NewHealthHandler creates a health handler. watchDir is the directory
// the pipeline ingests from; readiness reports unavailable until it is
// reachable.
func NewHealthHandler(watchDir string, logger *slog.Logger) *HealthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthHandler{
		watchDir:  watchDir,
		startedAt: time.Now(),
		logger:    logger.With(slog.String("handler", "health")),
	}
}

// Routes returns the health endpoints as a mountable router.
func (h *HealthHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(render.SetContentType(render.ContentTypeJSON))
	r.Get("/", h.HealthCheck)
	r.Get("/live", h.LivenessCheck)
	r.Get("/ready", h.ReadinessCheck)
	r.Get("/version", h.Version)
	return r
}

// HealthCheck handles GET /api/health.
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]interface{}{
		"status":    "healthy",
		"version":   infrastructure.ServiceVersion,
		"uptime":    time.Since(h.startedAt).Round(time.Second).String(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// LivenessCheck handles GET /api/health/live. It succeeds whenever the
// process is able to serve requests at all.
func (h *HealthHandler) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]interface{}{"status": "alive"})
}

// ReadinessCheck handles GET /api/health/ready. The service is ready
// once the watched directory exists, since without it the pipeline
// cannot ingest anything.
func (h *HealthHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	if _, err := os.Stat(h.watchDir); err != nil {
		h.logger.WarnContext(r.Context(), "readiness_check_failed",
			slog.String("watch_dir", h.watchDir),
			slog.String("error", err.Error()))
		problem := middleware.ProblemFromStatus(http.StatusServiceUnavailable,
			"watch directory is not reachable", infrastructure.GetTraceID(r.Context()))
		problem.Render(w, r)
		return
	}
	render.JSON(w, r, map[string]interface{}{
		"status":    "ready",
		"watch_dir": h.watchDir,
	})
}

// Version handles GET /api/health/version.
func (h *HealthHandler) Version(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string]interface{}{
		"service": infrastructure.ServiceName,
		"version": infrastructure.ServiceVersion,
	})
}
