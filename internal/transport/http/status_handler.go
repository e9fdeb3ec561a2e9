package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"sheetvault/internal/pipeline"
)

// StatusSource yields the pipeline counters and recent file records.
type StatusSource interface {
	Snapshot() pipeline.Summary
}

// SubscriberCounter reports how many websocket clients are connected.
type SubscriberCounter interface {
	ClientCount() int
}

// SeenCounter reports how many directory entries the watcher has
// recorded so far.
type SeenCounter interface {
	SeenCount() int
}

// StatusHandler serves the pipeline status API.
type StatusHandler struct {
	source      StatusSource
	subscribers SubscriberCounter
	seen        SeenCounter
	logger      *slog.Logger
}

// NewStatusHandler creates a status handler. subscribers and seen are
// optional; when nil the corresponding fields report zero.
func NewStatusHandler(source StatusSource, subscribers SubscriberCounter, seen SeenCounter, logger *slog.Logger) *StatusHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StatusHandler{
		source:      source,
		subscribers: subscribers,
		seen:        seen,
		logger:      logger.With(slog.String("handler", "status")),
	}
}

// Routes returns the status endpoints as a mountable router.
func (h *StatusHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(render.SetContentType(render.ContentTypeJSON))
	r.Get("/", h.GetStatus)
	return r
}

// StatusResponse is the document returned by GET /api/status.
type StatusResponse struct {
	pipeline.Summary
	SeenFiles   int `json:"seen_files"`
	Subscribers int `json:"subscribers"`
}

// GetStatus handles GET /api/status. It returns the run counters, the
// recent file records newest first, and the watcher and websocket
// gauges.
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{Summary: h.source.Snapshot()}
	if h.seen != nil {
		resp.SeenFiles = h.seen.SeenCount()
	}
	if h.subscribers != nil {
		resp.Subscribers = h.subscribers.ClientCount()
	}
	render.JSON(w, r, resp)
}
