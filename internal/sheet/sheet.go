// Package sheet provides the in-memory table model used by the pipeline
// stages: loading and saving Excel workbooks, per-column type inference,
// missing-value statistics, imputation and duplicate removal.
//
// A Table is a header plus rows of typed cells. Cells are parsed
// individually (integer, float, string or empty) and a column's kind is
// the widest kind it contains: any string cell makes the column a string
// column, otherwise any float cell makes it a float column.
package sheet

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Kind classifies a cell or column.
type Kind uint8

const (
	KindEmpty Kind = iota
	KindInt
	KindFloat
	KindString
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	default:
		return "empty"
	}
}

// Cell is a single typed value. Exactly one of the value fields is
// meaningful, selected by Kind.
type Cell struct {
	Kind  Kind
	Int   int64
	Float float64
	Str   string
}

func IntCell(v int64) Cell      { return Cell{Kind: KindInt, Int: v} }
func FloatCell(v float64) Cell  { return Cell{Kind: KindFloat, Float: v} }
func StringCell(s string) Cell  { return Cell{Kind: KindString, Str: s} }
func EmptyCell() Cell           { return Cell{Kind: KindEmpty} }

// IsMissing reports whether the cell holds no value.
func (c Cell) IsMissing() bool { return c.Kind == KindEmpty }

// Number returns the cell's numeric value, widening integers to
// float64. The second return is false for string and empty cells.
func (c Cell) Number() (float64, bool) {
	switch c.Kind {
	case KindInt:
		return float64(c.Int), true
	case KindFloat:
		return c.Float, true
	default:
		return 0, false
	}
}

// String renders the cell's canonical text form. Empty cells render as
// the empty string.
func (c Cell) String() string {
	switch c.Kind {
	case KindInt:
		return strconv.FormatInt(c.Int, 10)
	case KindFloat:
		return strconv.FormatFloat(c.Float, 'g', -1, 64)
	case KindString:
		return c.Str
	default:
		return ""
	}
}

// Table is an ordered set of named columns over a shared row count. Rows
// always have exactly len(Header) cells.
type Table struct {
	Header []string
	Rows   [][]Cell
}

// NumRows returns the number of data rows (the header is not counted).
func (t *Table) NumRows() int { return len(t.Rows) }

// NumCols returns the number of columns.
func (t *Table) NumCols() int { return len(t.Header) }

// ColumnKind infers the widest kind present in a column. A column with
// no non-empty cells is KindEmpty.
func (t *Table) ColumnKind(col int) Kind {
	kind := KindEmpty
	for _, row := range t.Rows {
		switch row[col].Kind {
		case KindString:
			return KindString
		case KindFloat:
			kind = KindFloat
		case KindInt:
			if kind == KindEmpty {
				kind = KindInt
			}
		}
	}
	return kind
}

// MissingFraction returns the fraction of rows whose cell in col is
// empty. A table with no rows has no missing values.
func (t *Table) MissingFraction(col int) float64 {
	if len(t.Rows) == 0 {
		return 0
	}
	missing := 0
	for _, row := range t.Rows {
		if row[col].IsMissing() {
			missing++
		}
	}
	return float64(missing) / float64(len(t.Rows))
}

// Median computes the median of the column's non-missing numeric
// values. An even count averages the two middle values.
func (t *Table) Median(col int) (float64, error) {
	var values []float64
	for _, row := range t.Rows {
		if v, ok := row[col].Number(); ok {
			values = append(values, v)
		}
	}
	if len(values) == 0 {
		return 0, fmt.Errorf("column %q has no numeric values", t.Header[col])
	}
	sort.Float64s(values)
	mid := len(values) / 2
	if len(values)%2 == 1 {
		return values[mid], nil
	}
	return (values[mid-1] + values[mid]) / 2, nil
}

// Mode returns the most frequent non-missing value in the column,
// compared by canonical text form. Ties resolve to the smallest value
// in byte order; callers must not rely on a particular tie outcome.
func (t *Table) Mode(col int) (string, error) {
	counts := make(map[string]int)
	for _, row := range t.Rows {
		if !row[col].IsMissing() {
			counts[row[col].String()]++
		}
	}
	if len(counts) == 0 {
		return "", fmt.Errorf("column %q has no values", t.Header[col])
	}
	var best string
	bestCount := -1
	for v, n := range counts {
		if n > bestCount || (n == bestCount && v < best) {
			best, bestCount = v, n
		}
	}
	return best, nil
}

// ImputeMissing fills every empty cell: numeric columns receive the
// column median, string columns the column mode. An integer column
// whose median is fractional is promoted to float. A column with rows
// but no values at all cannot be imputed and is an error. It returns
// the number of cells filled.
func (t *Table) ImputeMissing() (int, error) {
	filled := 0
	for col, name := range t.Header {
		switch kind := t.ColumnKind(col); kind {
		case KindEmpty:
			if len(t.Rows) > 0 {
				return filled, fmt.Errorf("column %q has no values to impute from", name)
			}
		case KindInt, KindFloat:
			if !t.columnHasMissing(col) {
				continue
			}
			med, err := t.Median(col)
			if err != nil {
				return filled, err
			}
			fill := FloatCell(med)
			if kind == KindInt && med == math.Trunc(med) {
				fill = IntCell(int64(med))
			} else if kind == KindInt {
				t.promoteColumn(col)
			}
			filled += t.fillMissing(col, fill)
		case KindString:
			if !t.columnHasMissing(col) {
				continue
			}
			mode, err := t.Mode(col)
			if err != nil {
				return filled, err
			}
			filled += t.fillMissing(col, StringCell(mode))
		}
	}
	return filled, nil
}

func (t *Table) columnHasMissing(col int) bool {
	for _, row := range t.Rows {
		if row[col].IsMissing() {
			return true
		}
	}
	return false
}

func (t *Table) fillMissing(col int, fill Cell) int {
	filled := 0
	for _, row := range t.Rows {
		if row[col].IsMissing() {
			row[col] = fill
			filled++
		}
	}
	return filled
}

func (t *Table) promoteColumn(col int) {
	for _, row := range t.Rows {
		if row[col].Kind == KindInt {
			row[col] = FloatCell(float64(row[col].Int))
		}
	}
}

// DropDuplicateRows removes rows identical to an earlier row across all
// columns, keeping the first occurrence. It returns the number of rows
// removed. Integer and float cells holding the same numeric value
// compare equal within a numeric column.
func (t *Table) DropDuplicateRows() int {
	kinds := make([]Kind, len(t.Header))
	for col := range t.Header {
		kinds[col] = t.ColumnKind(col)
	}

	seen := make(map[string]struct{}, len(t.Rows))
	kept := t.Rows[:0]
	removed := 0
	for _, row := range t.Rows {
		key := rowKey(row, kinds)
		if _, dup := seen[key]; dup {
			removed++
			continue
		}
		seen[key] = struct{}{}
		kept = append(kept, row)
	}
	t.Rows = kept
	return removed
}

// rowKey builds a canonical encoding of a row. Cells in numeric columns
// are rendered through float64 so 3 and 3.0 collapse to one key.
func rowKey(row []Cell, kinds []Kind) string {
	var b strings.Builder
	for col, cell := range row {
		if cell.IsMissing() {
			b.WriteString("\x00\x1f")
			continue
		}
		switch kinds[col] {
		case KindInt, KindFloat:
			v, _ := cell.Number()
			b.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
		default:
			b.WriteByte(byte(cell.Kind))
			b.WriteString(cell.String())
		}
		b.WriteByte('\x1f')
	}
	return b.String()
}
