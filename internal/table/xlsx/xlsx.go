// Package xlsx implements table.Client over local Excel workbooks. The
// spreadsheet of a table.Ref is the workbook path.
package xlsx

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/xuri/excelize/v2"

	"github.com/rickgao/orderstats/internal/table"
)

// Opener keeps each workbook open once and saves modified ones on Close.
type Opener struct {
	mu     sync.Mutex
	books  map[string]*book
	logger *slog.Logger
}

type book struct {
	mu    sync.Mutex
	f     *excelize.File
	dirty bool
}

// NewOpener creates an Opener.
func NewOpener(logger *slog.Logger) *Opener {
	if logger == nil {
		logger = slog.Default()
	}
	return &Opener{
		books:  make(map[string]*book),
		logger: logger,
	}
}

// Open opens the worksheet ref.Sheet of the workbook at ref.Spreadsheet.
func (o *Opener) Open(ctx context.Context, ref table.Ref) (table.Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b, err := o.book(ref.Spreadsheet)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	idx, err := b.f.GetSheetIndex(ref.Sheet)
	list := b.f.GetSheetList()
	b.mu.Unlock()
	if err != nil || idx < 0 {
		return nil, table.MissingSheetError(ref, list)
	}

	return &client{book: b, sheet: ref.Sheet}, nil
}

func (o *Opener) book(path string) (*book, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if b, ok := o.books[path]; ok {
		return b, nil
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, table.NewError(table.KindFatal, "open", fmt.Errorf("open workbook %s: %w", path, err))
	}

	b := &book{f: f}
	o.books[path] = b
	o.logger.Debug("workbook opened", "path", path)
	return b, nil
}

// Close saves modified workbooks and closes all of them.
func (o *Opener) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	var firstErr error
	for path, b := range o.books {
		b.mu.Lock()
		if b.dirty {
			if err := b.f.Save(); err != nil && firstErr == nil {
				firstErr = fmt.Errorf("save workbook %s: %w", path, err)
			} else if err == nil {
				o.logger.Info("workbook saved", "path", path)
			}
		}
		if err := b.f.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close workbook %s: %w", path, err)
		}
		b.mu.Unlock()
		delete(o.books, path)
	}
	return firstErr
}

// client is one worksheet of an open workbook.
type client struct {
	book  *book
	sheet string
}

func (c *client) FindRow(ctx context.Context, label string) (int, bool, error) {
	cells, err := c.FindCells(ctx, label)
	if err != nil || len(cells) == 0 {
		return 0, false, err
	}
	return cells[0].Row, true, nil
}

func (c *client) FindColumn(ctx context.Context, label string) (int, bool, error) {
	cells, err := c.FindCells(ctx, label)
	if err != nil || len(cells) == 0 {
		return 0, false, err
	}
	return cells[0].Col, true, nil
}

func (c *client) FindCells(ctx context.Context, label string) ([]table.Cell, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.book.mu.Lock()
	rows, err := c.book.f.GetRows(c.sheet)
	c.book.mu.Unlock()
	if err != nil {
		return nil, table.NewError(table.KindUnknown, "find", err)
	}
	return table.FindIn(rows, label), nil
}

func (c *client) ReadCell(ctx context.Context, row, col int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	axis, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return "", table.NewError(table.KindFatal, "read", err)
	}

	c.book.mu.Lock()
	defer c.book.mu.Unlock()

	v, err := c.book.f.GetCellValue(c.sheet, axis)
	if err != nil {
		return "", table.NewError(table.KindUnknown, "read", err)
	}
	return v, nil
}

func (c *client) WriteCell(ctx context.Context, row, col int, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	axis, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return table.NewError(table.KindFatal, "write", err)
	}

	c.book.mu.Lock()
	defer c.book.mu.Unlock()

	if err := c.book.f.SetCellValue(c.sheet, axis, value); err != nil {
		return table.NewError(table.KindUnknown, "write", err)
	}
	c.book.dirty = true
	return nil
}
