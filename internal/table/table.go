package table

import (
	"context"
	"strings"

	"golang.org/x/text/cases"
)

// Ref names one worksheet of one spreadsheet.
type Ref struct {
	Spreadsheet string // Spreadsheet id, or workbook path for xlsx
	Sheet       string // Worksheet title
}

func (r Ref) String() string {
	return r.Spreadsheet + "/" + r.Sheet
}

// Cell is a 1-based cell coordinate.
type Cell struct {
	Row int
	Col int
}

// Client reads and writes one worksheet. Lookups match the whole cell text
// after trimming surrounding whitespace; the first match is the top-left-most
// one in row-major order.
type Client interface {
	// FindRow returns the row of the first cell matching label.
	FindRow(ctx context.Context, label string) (row int, ok bool, err error)

	// FindColumn returns the column of the first cell matching label.
	FindColumn(ctx context.Context, label string) (col int, ok bool, err error)

	// FindCells returns every cell matching label in row-major order.
	FindCells(ctx context.Context, label string) ([]Cell, error)

	// ReadCell returns the displayed value of a cell; empty cells read as "".
	ReadCell(ctx context.Context, row, col int) (string, error)

	// WriteCell sets the value of a cell.
	WriteCell(ctx context.Context, row, col int, value string) error
}

// Opener opens worksheets.
type Opener interface {
	Open(ctx context.Context, ref Ref) (Client, error)
}

// Matches reports whether a cell value matches a lookup label.
func Matches(cell, label string) bool {
	return strings.TrimSpace(cell) == strings.TrimSpace(label)
}

// FindIn scans rows in row-major order and returns every cell matching label.
func FindIn(rows [][]string, label string) []Cell {
	var cells []Cell
	for r, row := range rows {
		for c, v := range row {
			if Matches(v, label) {
				cells = append(cells, Cell{Row: r + 1, Col: c + 1})
			}
		}
	}
	return cells
}

// FoldEqual compares two labels ignoring case and surrounding whitespace.
// Full Unicode folding is used so Cyrillic labels compare as expected.
func FoldEqual(a, b string) bool {
	fold := cases.Fold()
	return fold.String(strings.TrimSpace(a)) == fold.String(strings.TrimSpace(b))
}
