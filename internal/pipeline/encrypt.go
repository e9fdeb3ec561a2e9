package pipeline

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"sheetvault/internal/artifact"
	"sheetvault/internal/infrastructure"
	"sheetvault/internal/paillier"
	"sheetvault/internal/sheet"
)

// StageEncrypt identifies the encryption stage.
const StageEncrypt = "encrypt"

// EncryptStage turns a cleaned spreadsheet into the encrypted CBOR
// artifact. Only numeric columns survive: every int and float cell is
// Paillier-encrypted under the configured public key, and string
// columns are dropped entirely.
type EncryptStage struct {
	outDir  string
	pub     *paillier.PublicKey
	codec   *artifact.Codec
	random  io.Reader
	metrics *infrastructure.PipelineMetrics
	logger  *slog.Logger
}

// NewEncryptStage builds the encryption stage. metrics may be nil.
func NewEncryptStage(outDir string, pub *paillier.PublicKey, codec *artifact.Codec, metrics *infrastructure.PipelineMetrics, logger *slog.Logger) *EncryptStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &EncryptStage{
		outDir:  outDir,
		pub:     pub,
		codec:   codec,
		random:  rand.Reader,
		metrics: metrics,
		logger:  logger.With(slog.String("component", "encrypt_stage")),
	}
}

func (s *EncryptStage) ID() string   { return StageEncrypt }
func (s *EncryptStage) Name() string { return "Encryption" }

// Process encrypts each numeric column cell by cell and writes the
// envelope. The run ID travels in on the context; the cleaning stage
// guarantees no missing cells remain, so one here is a transform
// failure.
func (s *EncryptStage) Process(ctx context.Context, path string) (string, error) {
	file := filepath.Base(path)

	tbl, err := sheet.Load(path)
	if err != nil {
		return s.fail(ctx, file, NewParseError(StageEncrypt, file, err))
	}

	env := &artifact.Envelope{
		FormatVersion: artifact.FormatVersion,
		RunID:         infrastructure.GetTraceID(ctx),
		SourceFile:    file,
		CreatedAt:     time.Now().UTC(),
		Key: artifact.KeyInfo{
			N:           s.pub.N,
			Fingerprint: s.pub.Fingerprint(),
		},
		RowCount: tbl.NumRows(),
	}

	encrypted := 0
	for col, name := range tbl.Header {
		kind := tbl.ColumnKind(col)
		if kind != sheet.KindInt && kind != sheet.KindFloat {
			continue
		}

		values := make([]paillier.EncryptedNumber, 0, tbl.NumRows())
		for _, row := range tbl.Rows {
			cell := row[col]
			if cell.IsMissing() {
				return s.fail(ctx, file, NewTransformError(StageEncrypt, file,
					fmt.Errorf("column %q still has missing values", name)))
			}

			var num *paillier.EncryptedNumber
			var encErr error
			if kind == sheet.KindInt {
				num, encErr = s.pub.EncryptInt64(s.random, cell.Int)
			} else {
				v, _ := cell.Number()
				num, encErr = s.pub.EncryptFloat64(s.random, v)
			}
			if encErr != nil {
				return s.fail(ctx, file, NewTransformError(StageEncrypt, file,
					fmt.Errorf("column %q: %w", name, encErr)))
			}
			values = append(values, *num)
		}

		env.Columns = append(env.Columns, artifact.Column{
			Name:   name,
			Kind:   kind.String(),
			Values: values,
		})
		encrypted += len(values)
	}

	out := artifactName(s.outDir, "encrypted", path, artifact.Extension)
	if err := s.codec.WriteFile(out, env); err != nil {
		return s.fail(ctx, file, NewParseError(StageEncrypt, file, err))
	}

	if s.metrics != nil {
		s.metrics.ValuesEncrypted.Add(ctx, int64(encrypted))
	}

	s.logger.InfoContext(ctx, "encryption_status",
		slog.String("file", file),
		slog.String("status", "passed"),
		slog.Int("columns_encrypted", len(env.Columns)),
		slog.Int("values_encrypted", encrypted),
		slog.String("key_fingerprint", s.pub.Fingerprint()),
		slog.String("output", out))

	return out, nil
}

func (s *EncryptStage) fail(ctx context.Context, file string, err *StageError) (string, error) {
	s.logger.WarnContext(ctx, "encryption_status",
		slog.String("file", file),
		slog.String("status", "failed"),
		slog.String("reason", string(err.Reason)),
		slog.String("error", err.Message))
	return "", err
}
