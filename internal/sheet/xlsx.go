package sheet

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/xuri/excelize/v2"
)

const defaultSheet = "Sheet1"

// Load reads the first sheet of an Excel workbook into a Table. The
// first row is the header; every following row is parsed cell by cell.
// Rows shorter than the header are padded with empty cells, cells past
// the header width are dropped.
func Load(path string) (*Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook %s has no sheets", filepath.Base(path))
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("sheet %q has no header row", sheets[0])
	}

	t := &Table{Header: rows[0]}
	for _, raw := range rows[1:] {
		row := make([]Cell, len(t.Header))
		for col := range t.Header {
			if col < len(raw) {
				row[col] = parseCell(raw[col])
			} else {
				row[col] = EmptyCell()
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// parseCell types a raw cell value: integer, then float, then string.
// Only a truly empty cell counts as missing.
func parseCell(s string) Cell {
	if s == "" {
		return EmptyCell()
	}
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return IntCell(v)
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		// "NaN" and "Inf" parse as floats but carry no usable value;
		// keep them as text so they cannot poison column statistics.
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			return FloatCell(v)
		}
	}
	return StringCell(s)
}

// Write saves the table as an .xlsx workbook at path, creating the
// parent directory if needed. Content is written to a temporary file
// and renamed into place so an interrupted write never leaves a
// plausible-looking artifact behind.
func (t *Table) Write(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	header := make([]interface{}, len(t.Header))
	for i, name := range t.Header {
		header[i] = name
	}
	if err := f.SetSheetRow(defaultSheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for i, row := range t.Rows {
		values := make([]interface{}, len(row))
		for col, cell := range row {
			values[col] = cellValue(cell)
		}
		ref, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("failed to address row %d: %w", i+2, err)
		}
		if err := f.SetSheetRow(defaultSheet, ref, &values); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	tmp := path + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create temporary workbook: %w", err)
	}
	if _, err := f.WriteTo(out); err != nil {
		out.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to finalize workbook: %w", err)
	}
	return nil
}

func cellValue(c Cell) interface{} {
	switch c.Kind {
	case KindInt:
		return c.Int
	case KindFloat:
		return c.Float
	case KindString:
		return c.Str
	default:
		return nil
	}
}
