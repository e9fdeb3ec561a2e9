package pipeline

import (
	"context"
	"log/slog"
	"path/filepath"

	"sheetvault/internal/infrastructure"
	"sheetvault/internal/sheet"
)

// StageClean identifies the cleaning stage.
const StageClean = "clean"

// CleanStage fills missing cells and removes duplicate rows, then
// writes the cleaned_ copy. Imputation runs first, so rows that become
// identical once their gaps are filled count as duplicates.
type CleanStage struct {
	outDir  string
	metrics *infrastructure.PipelineMetrics
	logger  *slog.Logger
}

// NewCleanStage builds the cleaning stage. metrics may be nil.
func NewCleanStage(outDir string, metrics *infrastructure.PipelineMetrics, logger *slog.Logger) *CleanStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &CleanStage{
		outDir:  outDir,
		metrics: metrics,
		logger:  logger.With(slog.String("component", "clean_stage")),
	}
}

func (s *CleanStage) ID() string   { return StageClean }
func (s *CleanStage) Name() string { return "Cleaning" }

// Process imputes missing values (median for numeric columns, mode for
// text columns) and drops duplicate rows, keeping first occurrences.
func (s *CleanStage) Process(ctx context.Context, path string) (string, error) {
	file := filepath.Base(path)

	tbl, err := sheet.Load(path)
	if err != nil {
		return s.fail(ctx, file, NewParseError(StageClean, file, err))
	}

	filled, err := tbl.ImputeMissing()
	if err != nil {
		return s.fail(ctx, file, NewTransformError(StageClean, file, err))
	}
	removed := tbl.DropDuplicateRows()

	out := prefixedName(s.outDir, "cleaned", path)
	if err := tbl.Write(out); err != nil {
		return s.fail(ctx, file, NewParseError(StageClean, file, err))
	}

	if s.metrics != nil {
		s.metrics.CellsImputed.Add(ctx, int64(filled))
		s.metrics.DuplicatesRemoved.Add(ctx, int64(removed))
	}

	s.logger.InfoContext(ctx, "cleaning_status",
		slog.String("file", file),
		slog.String("status", "passed"),
		slog.Int("cells_imputed", filled),
		slog.Int("duplicate_rows_removed", removed),
		slog.String("output", out))

	return out, nil
}

func (s *CleanStage) fail(ctx context.Context, file string, err *StageError) (string, error) {
	s.logger.WarnContext(ctx, "cleaning_status",
		slog.String("file", file),
		slog.String("status", "failed"),
		slog.String("reason", string(err.Reason)),
		slog.String("error", err.Message))
	return "", err
}
