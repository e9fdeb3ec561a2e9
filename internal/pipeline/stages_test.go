package pipeline

import (
	"context"
	"crypto/rand"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sheetvault/internal/artifact"
	"sheetvault/internal/infrastructure"
	"sheetvault/internal/paillier"
	"sheetvault/internal/sheet"
)

// writeTable persists a table as name under its own temp dir and
// returns the full path.
func writeTable(t *testing.T, name string, tbl *sheet.Table) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, tbl.Write(path))
	return path
}

func TestValidateStage_Passes(t *testing.T) {
	in := writeTable(t, "a.xlsx", &sheet.Table{
		Header: []string{"name", "qty"},
		Rows: [][]sheet.Cell{
			{sheet.StringCell("x"), sheet.IntCell(1)},
			{sheet.StringCell("y"), sheet.EmptyCell()},
			{sheet.StringCell("z"), sheet.IntCell(3)},
		},
	})
	outDir := t.TempDir()

	stage := NewValidateStage(outDir, 0.5, nil)
	out, err := stage.Process(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(outDir, "validated_a.xlsx"), out)

	loaded, err := sheet.Load(out)
	require.NoError(t, err)
	assert.Equal(t, 3, loaded.NumRows())
	assert.Equal(t, []string{"name", "qty"}, loaded.Header)
}

func TestValidateStage_ExactlyAtThresholdPasses(t *testing.T) {
	in := writeTable(t, "edge.xlsx", &sheet.Table{
		Header: []string{"v"},
		Rows: [][]sheet.Cell{
			{sheet.IntCell(1)},
			{sheet.EmptyCell()},
		},
	})

	stage := NewValidateStage(t.TempDir(), 0.5, nil)
	_, err := stage.Process(context.Background(), in)
	assert.NoError(t, err, "a column at exactly the threshold must pass")
}

func TestValidateStage_RejectsOverThreshold(t *testing.T) {
	in := writeTable(t, "gappy.xlsx", &sheet.Table{
		Header: []string{"ok", "gappy"},
		Rows: [][]sheet.Cell{
			{sheet.IntCell(1), sheet.EmptyCell()},
			{sheet.IntCell(2), sheet.EmptyCell()},
			{sheet.IntCell(3), sheet.IntCell(9)},
		},
	})
	outDir := t.TempDir()

	stage := NewValidateStage(outDir, 0.5, nil)
	out, err := stage.Process(context.Background(), in)
	require.Error(t, err)

	assert.Empty(t, out)
	assert.Equal(t, ReasonThresholdExceeded, ReasonOf(err))

	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, StageValidate, se.Stage)
	assert.Equal(t, "gappy", se.Context["column"])

	entries, readErr := os.ReadDir(outDir)
	require.NoError(t, readErr)
	assert.Empty(t, entries, "rejected files must leave no output behind")
}

func TestValidateStage_HeaderOnlyPasses(t *testing.T) {
	in := writeTable(t, "empty.xlsx", &sheet.Table{Header: []string{"a", "b"}})

	stage := NewValidateStage(t.TempDir(), 0.7, nil)
	out, err := stage.Process(context.Background(), in)
	require.NoError(t, err)
	assert.NotEmpty(t, out)
}

func TestValidateStage_UnreadableFile(t *testing.T) {
	stage := NewValidateStage(t.TempDir(), 0.7, nil)
	_, err := stage.Process(context.Background(), filepath.Join(t.TempDir(), "missing.xlsx"))
	require.Error(t, err)
	assert.Equal(t, ReasonParse, ReasonOf(err))
}

func TestCleanStage_ImputesAndDeduplicates(t *testing.T) {
	in := writeTable(t, "validated_a.xlsx", &sheet.Table{
		Header: []string{"qty", "label"},
		Rows: [][]sheet.Cell{
			{sheet.IntCell(1), sheet.StringCell("x")},
			{sheet.IntCell(1), sheet.StringCell("x")},
			{sheet.IntCell(3), sheet.EmptyCell()},
			{sheet.EmptyCell(), sheet.StringCell("x")},
		},
	})
	outDir := t.TempDir()

	stage := NewCleanStage(outDir, nil, nil)
	out, err := stage.Process(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(outDir, "cleaned_validated_a.xlsx"), out)

	loaded, err := sheet.Load(out)
	require.NoError(t, err)
	assert.Equal(t, 3, loaded.NumRows(), "one duplicate row removed")
	for _, row := range loaded.Rows {
		for _, cell := range row {
			assert.False(t, cell.IsMissing())
		}
	}
}

func TestCleanStage_ImputedRowsBecomeDuplicates(t *testing.T) {
	// Both rows are identical except a gap; filling the gap with the
	// median makes them duplicates, and one must go.
	in := writeTable(t, "v.xlsx", &sheet.Table{
		Header: []string{"qty"},
		Rows: [][]sheet.Cell{
			{sheet.IntCell(5)},
			{sheet.EmptyCell()},
		},
	})

	stage := NewCleanStage(t.TempDir(), nil, nil)
	out, err := stage.Process(context.Background(), in)
	require.NoError(t, err)

	loaded, err := sheet.Load(out)
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.NumRows())
}

func TestCleanStage_AllEmptyColumnFails(t *testing.T) {
	in := writeTable(t, "hollow.xlsx", &sheet.Table{
		Header: []string{"v", "hollow"},
		Rows: [][]sheet.Cell{
			{sheet.IntCell(1), sheet.EmptyCell()},
			{sheet.IntCell(2), sheet.EmptyCell()},
		},
	})

	stage := NewCleanStage(t.TempDir(), nil, nil)
	_, err := stage.Process(context.Background(), in)
	require.Error(t, err)
	assert.Equal(t, ReasonTransform, ReasonOf(err))
}

func TestCleanStage_UnreadableFile(t *testing.T) {
	stage := NewCleanStage(t.TempDir(), nil, nil)
	_, err := stage.Process(context.Background(), filepath.Join(t.TempDir(), "nope.xlsx"))
	require.Error(t, err)
	assert.Equal(t, ReasonParse, ReasonOf(err))
}

func TestEncryptStage_ProducesDecryptableArtifact(t *testing.T) {
	key, err := paillier.GenerateKey(rand.Reader, 256)
	require.NoError(t, err)
	codec, err := artifact.NewCodec()
	require.NoError(t, err)

	in := writeTable(t, "cleaned_validated_a.xlsx", &sheet.Table{
		Header: []string{"qty", "price", "label"},
		Rows: [][]sheet.Cell{
			{sheet.IntCell(4), sheet.FloatCell(1.5), sheet.StringCell("x")},
			{sheet.IntCell(-2), sheet.FloatCell(-0.25), sheet.StringCell("y")},
		},
	})
	outDir := t.TempDir()

	stage := NewEncryptStage(outDir, &key.PublicKey, codec, nil, nil)
	ctx := infrastructure.WithTraceID(context.Background(), "run-42")
	out, err := stage.Process(ctx, in)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(outDir, "encrypted_cleaned_validated_a.cbor"), out)

	env, err := codec.ReadFile(out)
	require.NoError(t, err)

	assert.Equal(t, "run-42", env.RunID)
	assert.Equal(t, "cleaned_validated_a.xlsx", env.SourceFile)
	assert.Equal(t, 2, env.RowCount)
	assert.Equal(t, key.PublicKey.Fingerprint(), env.Key.Fingerprint)

	require.Len(t, env.Columns, 2, "the string column must be absent")
	_, hasLabel := env.Column("label")
	assert.False(t, hasLabel)

	qty, ok := env.Column("qty")
	require.True(t, ok)
	assert.Equal(t, "int", qty.Kind)
	require.Len(t, qty.Values, 2)
	v0, err := key.DecryptInt64(&qty.Values[0])
	require.NoError(t, err)
	assert.Equal(t, int64(4), v0)
	v1, err := key.DecryptInt64(&qty.Values[1])
	require.NoError(t, err)
	assert.Equal(t, int64(-2), v1)

	price, ok := env.Column("price")
	require.True(t, ok)
	assert.Equal(t, "float", price.Kind)
	f0, err := key.DecryptFloat64(&price.Values[0])
	require.NoError(t, err)
	assert.Equal(t, 1.5, f0)
	f1, err := key.DecryptFloat64(&price.Values[1])
	require.NoError(t, err)
	assert.Equal(t, -0.25, f1)
}

func TestEncryptStage_MixedNumericColumnEncryptsAsFloat(t *testing.T) {
	key, err := paillier.GenerateKey(rand.Reader, 256)
	require.NoError(t, err)
	codec, err := artifact.NewCodec()
	require.NoError(t, err)

	in := writeTable(t, "mixed.xlsx", &sheet.Table{
		Header: []string{"v"},
		Rows: [][]sheet.Cell{
			{sheet.IntCell(3)},
			{sheet.FloatCell(0.5)},
		},
	})

	stage := NewEncryptStage(t.TempDir(), &key.PublicKey, codec, nil, nil)
	out, err := stage.Process(context.Background(), in)
	require.NoError(t, err)

	env, err := codec.ReadFile(out)
	require.NoError(t, err)

	col, ok := env.Column("v")
	require.True(t, ok)
	assert.Equal(t, "float", col.Kind)

	f, err := key.DecryptFloat64(&col.Values[0])
	require.NoError(t, err)
	assert.Equal(t, 3.0, f)
}

func TestEncryptStage_MissingCellFails(t *testing.T) {
	key, err := paillier.GenerateKey(rand.Reader, 256)
	require.NoError(t, err)
	codec, err := artifact.NewCodec()
	require.NoError(t, err)

	in := writeTable(t, "gap.xlsx", &sheet.Table{
		Header: []string{"v"},
		Rows: [][]sheet.Cell{
			{sheet.IntCell(1)},
			{sheet.EmptyCell()},
		},
	})

	stage := NewEncryptStage(t.TempDir(), &key.PublicKey, codec, nil, nil)
	_, err = stage.Process(context.Background(), in)
	require.Error(t, err)
	assert.Equal(t, ReasonTransform, ReasonOf(err))
}

func TestEncryptStage_ValueBeyondKeyRangeFails(t *testing.T) {
	key, err := paillier.NewPrivateKey(big.NewInt(17), big.NewInt(19))
	require.NoError(t, err)
	codec, err := artifact.NewCodec()
	require.NoError(t, err)

	// n = 323, so the signed range tops out at 107.
	in := writeTable(t, "big.xlsx", &sheet.Table{
		Header: []string{"v"},
		Rows:   [][]sheet.Cell{{sheet.IntCell(200)}},
	})

	stage := NewEncryptStage(t.TempDir(), &key.PublicKey, codec, nil, nil)
	_, err = stage.Process(context.Background(), in)
	require.Error(t, err)
	assert.Equal(t, ReasonTransform, ReasonOf(err))
	assert.ErrorIs(t, err, paillier.ErrValueTooLarge)
}

func TestEncryptStage_NoNumericColumns(t *testing.T) {
	key, err := paillier.GenerateKey(rand.Reader, 256)
	require.NoError(t, err)
	codec, err := artifact.NewCodec()
	require.NoError(t, err)

	in := writeTable(t, "text.xlsx", &sheet.Table{
		Header: []string{"label"},
		Rows:   [][]sheet.Cell{{sheet.StringCell("x")}},
	})

	stage := NewEncryptStage(t.TempDir(), &key.PublicKey, codec, nil, nil)
	out, err := stage.Process(context.Background(), in)
	require.NoError(t, err)

	env, err := codec.ReadFile(out)
	require.NoError(t, err)
	assert.Empty(t, env.Columns)
	assert.Equal(t, 1, env.RowCount)
}
