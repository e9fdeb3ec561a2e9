package sheet

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

// writeWorkbook saves a workbook whose first row is the header, for
// feeding Load in tests.
func writeWorkbook(t *testing.T, path string, rows [][]interface{}) {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, row := range rows {
		ref, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", ref, &row))
	}
	require.NoError(t, f.SaveAs(path))
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "input.xlsx")
	writeWorkbook(t, path, [][]interface{}{
		{"id", "price", "name", "note"},
		{1, 10.5, "alpha", "x"},
		{2, nil, "beta", nil},
		{3, 12.25, nil},
	})

	tbl, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"id", "price", "name", "note"}, tbl.Header)
	require.Equal(t, 3, tbl.NumRows())

	assert.Equal(t, IntCell(1), tbl.Rows[0][0])
	assert.Equal(t, FloatCell(10.5), tbl.Rows[0][1])
	assert.Equal(t, StringCell("alpha"), tbl.Rows[0][2])

	assert.True(t, tbl.Rows[1][1].IsMissing())
	assert.True(t, tbl.Rows[1][3].IsMissing())
	assert.True(t, tbl.Rows[2][2].IsMissing(), "short rows are padded with empty cells")
	assert.True(t, tbl.Rows[2][3].IsMissing())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.xlsx"))
	assert.Error(t, err)
}

func TestLoad_NotASpreadsheet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk.xlsx")
	require.NoError(t, os.WriteFile(path, []byte("not a zip archive"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_HeaderOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "header.xlsx")
	writeWorkbook(t, path, [][]interface{}{{"a", "b"}})

	tbl, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, tbl.Header)
	assert.Zero(t, tbl.NumRows())
}

func TestWrite_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out", "table.xlsx")

	original := &Table{
		Header: []string{"id", "score", "label"},
		Rows: [][]Cell{
			{IntCell(1), FloatCell(1.5), StringCell("a")},
			{IntCell(2), FloatCell(-2.25), StringCell("b")},
			{IntCell(3), EmptyCell(), EmptyCell()},
		},
	}

	require.NoError(t, original.Write(path))

	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, original.Header, reloaded.Header)
	assert.Equal(t, original.Rows, reloaded.Rows)
}

func TestWrite_AtomicNoLeftovers(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "table.xlsx")

	tbl := &Table{Header: []string{"a"}, Rows: [][]Cell{{IntCell(1)}}}
	require.NoError(t, tbl.Write(path))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "table.xlsx", entries[0].Name())
}

func TestParseCell(t *testing.T) {
	tests := []struct {
		raw  string
		want Cell
	}{
		{raw: "", want: EmptyCell()},
		{raw: "42", want: IntCell(42)},
		{raw: "-7", want: IntCell(-7)},
		{raw: "3.25", want: FloatCell(3.25)},
		{raw: "1e3", want: FloatCell(1000)},
		{raw: "hello", want: StringCell("hello")},
		{raw: " 42", want: StringCell(" 42")},
		{raw: "NaN", want: StringCell("NaN")},
		{raw: "+Inf", want: StringCell("+Inf")},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseCell(tt.raw), "raw=%q", tt.raw)
	}
}
