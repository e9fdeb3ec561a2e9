package pipeline

import (
	"context"
	"log/slog"
	"path/filepath"

	"sheetvault/internal/sheet"
)

// StageValidate identifies the structural validation stage.
const StageValidate = "validate"

// ValidateStage rejects spreadsheets with too many missing values per
// column and republishes accepted files under the validated_ prefix.
type ValidateStage struct {
	outDir    string
	threshold float64
	logger    *slog.Logger
}

// NewValidateStage builds the validation stage. threshold is the
// missing-value fraction a column may reach before the file is
// rejected.
func NewValidateStage(outDir string, threshold float64, logger *slog.Logger) *ValidateStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &ValidateStage{
		outDir:    outDir,
		threshold: threshold,
		logger:    logger.With(slog.String("component", "validate_stage")),
	}
}

func (s *ValidateStage) ID() string   { return StageValidate }
func (s *ValidateStage) Name() string { return "Structural validation" }

// Process checks every column's missing-value fraction against the
// threshold. A column fails only when its fraction is strictly greater
// than the limit, so a column sitting exactly at the threshold passes.
// Files with no rows or no columns pass vacuously.
func (s *ValidateStage) Process(ctx context.Context, path string) (string, error) {
	file := filepath.Base(path)

	tbl, err := sheet.Load(path)
	if err != nil {
		return s.fail(ctx, file, NewParseError(StageValidate, file, err))
	}

	for col, name := range tbl.Header {
		if frac := tbl.MissingFraction(col); frac > s.threshold {
			return s.fail(ctx, file, NewThresholdError(StageValidate, file, name, frac, s.threshold))
		}
	}

	out := prefixedName(s.outDir, "validated", path)
	if err := tbl.Write(out); err != nil {
		return s.fail(ctx, file, NewParseError(StageValidate, file, err))
	}

	s.logger.InfoContext(ctx, "validation_status",
		slog.String("file", file),
		slog.String("status", "passed"),
		slog.Int("rows", tbl.NumRows()),
		slog.Int("columns", tbl.NumCols()),
		slog.String("output", out))

	return out, nil
}

func (s *ValidateStage) fail(ctx context.Context, file string, err *StageError) (string, error) {
	s.logger.WarnContext(ctx, "validation_status",
		slog.String("file", file),
		slog.String("status", "failed"),
		slog.String("reason", string(err.Reason)),
		slog.String("error", err.Message))
	return "", err
}
