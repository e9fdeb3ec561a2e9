package http

import (
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"sheetvault/internal/artifact"
	"sheetvault/internal/infrastructure"
	"sheetvault/internal/middleware"
)

// ArtifactHandler lists and serves the encrypted artifacts produced by
// the pipeline.
type ArtifactHandler struct {
	dir    string
	codec  *artifact.Codec
	logger *slog.Logger
}

// NewArtifactHandler creates an artifact handler over the encrypted
// output directory.
func NewArtifactHandler(dir string, codec *artifact.Codec, logger *slog.Logger) *ArtifactHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ArtifactHandler{
		dir:    dir,
		codec:  codec,
		logger: logger.With(slog.String("handler", "artifacts")),
	}
}

// Routes returns the artifact endpoints as a mountable router.
func (h *ArtifactHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(render.SetContentType(render.ContentTypeJSON))
	r.Get("/", h.ListArtifacts)
	r.Get("/{name}", h.GetArtifact)
	r.Get("/{name}/download", h.DownloadArtifact)
	return r
}

// ArtifactInfo is one row of the artifact listing.
type ArtifactInfo struct {
	Name       string    `json:"name"`
	SizeBytes  int64     `json:"size_bytes"`
	ModifiedAt time.Time `json:"modified_at"`
}

// ColumnInfo describes one encrypted column without exposing any
// ciphertext material.
type ColumnInfo struct {
	Name   string `json:"name"`
	Kind   string `json:"kind"`
	Values int    `json:"values"`
}

// ArtifactDetail is the metadata document for a single artifact.
type ArtifactDetail struct {
	Name           string       `json:"name"`
	FormatVersion  int          `json:"format_version"`
	RunID          string       `json:"run_id"`
	SourceFile     string       `json:"source_file"`
	CreatedAt      time.Time    `json:"created_at"`
	RowCount       int          `json:"row_count"`
	KeyFingerprint string       `json:"key_fingerprint"`
	Columns        []ColumnInfo `json:"columns"`
}

// ListArtifacts handles GET /api/artifacts. A missing output directory
// is reported as an empty listing, not an error: the pipeline creates
// it lazily on the first successful run.
func (h *ArtifactHandler) ListArtifacts(w http.ResponseWriter, r *http.Request) {
	entries, err := os.ReadDir(h.dir)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		h.logger.ErrorContext(r.Context(), "artifact_list_failed",
			slog.String("dir", h.dir),
			slog.String("error", err.Error()))
		h.renderProblem(w, r, http.StatusInternalServerError, "failed to list artifacts")
		return
	}

	artifacts := make([]ArtifactInfo, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), artifact.Extension) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		artifacts = append(artifacts, ArtifactInfo{
			Name:       entry.Name(),
			SizeBytes:  info.Size(),
			ModifiedAt: info.ModTime().UTC(),
		})
	}
	sort.Slice(artifacts, func(i, j int) bool {
		return artifacts[i].ModifiedAt.After(artifacts[j].ModifiedAt)
	})

	render.JSON(w, r, map[string]interface{}{
		"artifacts": artifacts,
		"count":     len(artifacts),
	})
}

// GetArtifact handles GET /api/artifacts/{name}. It decodes the
// envelope and returns its metadata; ciphertext values stay on disk.
func (h *ArtifactHandler) GetArtifact(w http.ResponseWriter, r *http.Request) {
	name, ok := h.artifactName(w, r)
	if !ok {
		return
	}

	env, err := h.codec.ReadFile(filepath.Join(h.dir, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			h.renderProblem(w, r, http.StatusNotFound, "artifact not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "artifact_read_failed",
			slog.String("name", name),
			slog.String("error", err.Error()))
		h.renderProblem(w, r, http.StatusInternalServerError, "failed to read artifact")
		return
	}

	detail := ArtifactDetail{
		Name:           name,
		FormatVersion:  env.FormatVersion,
		RunID:          env.RunID,
		SourceFile:     env.SourceFile,
		CreatedAt:      env.CreatedAt,
		RowCount:       env.RowCount,
		KeyFingerprint: env.Key.Fingerprint,
		Columns:        make([]ColumnInfo, 0, len(env.Columns)),
	}
	for _, col := range env.Columns {
		detail.Columns = append(detail.Columns, ColumnInfo{
			Name:   col.Name,
			Kind:   col.Kind,
			Values: len(col.Values),
		})
	}
	render.JSON(w, r, detail)
}

// DownloadArtifact handles GET /api/artifacts/{name}/download and
// streams the raw CBOR document.
func (h *ArtifactHandler) DownloadArtifact(w http.ResponseWriter, r *http.Request) {
	name, ok := h.artifactName(w, r)
	if !ok {
		return
	}

	path := filepath.Join(h.dir, name)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			h.renderProblem(w, r, http.StatusNotFound, "artifact not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "artifact_stat_failed",
			slog.String("name", name),
			slog.String("error", err.Error()))
		h.renderProblem(w, r, http.StatusInternalServerError, "failed to read artifact")
		return
	}

	w.Header().Set("Content-Type", "application/cbor")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	http.ServeFile(w, r, path)
}

// artifactName extracts and validates the {name} parameter. Names must
// be bare artifact file names; anything resembling a path is rejected
// before it can escape the output directory.
func (h *ArtifactHandler) artifactName(w http.ResponseWriter, r *http.Request) (string, bool) {
	name := chi.URLParam(r, "name")
	if name == "" || name != filepath.Base(name) || !strings.HasSuffix(name, artifact.Extension) {
		h.renderProblem(w, r, http.StatusBadRequest, "invalid artifact name")
		return "", false
	}
	return name, true
}

func (h *ArtifactHandler) renderProblem(w http.ResponseWriter, r *http.Request, status int, detail string) {
	problem := middleware.ProblemFromStatus(status, detail, infrastructure.GetTraceID(r.Context()))
	problem.Render(w, r)
}
