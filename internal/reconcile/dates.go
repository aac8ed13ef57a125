package reconcile

import (
	"context"
	"fmt"

	"github.com/rickgao/orderstats/internal/table"
)

// dateColumns holds the cells carrying the run's day label, read once per pass.
type dateColumns struct {
	label  string
	anchor string

	loaded     bool
	candidates []table.Cell // In row-major order
}

func (d *dateColumns) load(ctx context.Context, r *table.Retrier, tbl table.Client) error {
	if d.loaded {
		return nil
	}

	var cells []table.Cell
	err := r.Do(ctx, "find date label", func(ctx context.Context) error {
		var err error
		cells, err = tbl.FindCells(ctx, d.label)
		return err
	})
	if err != nil && table.KindOf(err) != table.KindNotFound {
		return err
	}

	if d.anchor != "" {
		var anchors []table.Cell
		err := r.Do(ctx, "find date anchor", func(ctx context.Context) error {
			var err error
			anchors, err = tbl.FindCells(ctx, d.anchor)
			return err
		})
		if err != nil && table.KindOf(err) != table.KindNotFound {
			return err
		}

		rows := make(map[int]bool, len(anchors))
		for _, a := range anchors {
			rows[a.Row] = true
		}
		filtered := cells[:0:0]
		for _, c := range cells {
			if rows[c.Row] {
				filtered = append(filtered, c)
			}
		}
		cells = filtered
	}

	d.candidates = cells
	d.loaded = true
	return nil
}

// column picks the date column for a record whose count and profit rows are
// given. Candidates on the record's own rows are ignored. The nearest
// candidate row above countRow wins, else the nearest below profitRow; two
// candidates in the chosen row are ambiguous. With an anchor only rows
// carrying it are candidates.
func (d *dateColumns) column(countRow, profitRow int) (int, error) {
	if len(d.candidates) == 0 {
		return 0, fmt.Errorf("%w: no cell labelled %q", ErrDateColumnNotFound, d.label)
	}

	best := 0
	for _, c := range d.candidates {
		if c.Row < countRow && c.Row > best {
			best = c.Row
		}
	}
	if best == 0 {
		for _, c := range d.candidates {
			if c.Row > profitRow && (best == 0 || c.Row < best) {
				best = c.Row
			}
		}
	}
	if best == 0 {
		if d.anchor != "" {
			return 0, fmt.Errorf("%w: no %q header row around rows %d-%d", ErrDateColumnNotFound, d.anchor, countRow, profitRow)
		}
		return 0, fmt.Errorf("%w: label %q only on rows %d-%d", ErrDateColumnNotFound, d.label, countRow, profitRow)
	}

	var cols []int
	for _, c := range d.candidates {
		if c.Row == best {
			cols = append(cols, c.Col)
		}
	}
	if len(cols) > 1 {
		return 0, fmt.Errorf("%w: label %q appears in columns %v of row %d", ErrAmbiguousDateColumn, d.label, cols, best)
	}
	return cols[0], nil
}
