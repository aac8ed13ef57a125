package source

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/rickgao/orderstats/internal/model"
)

// XLSX reads an exported workbook.
type XLSX struct {
	Path    string // May contain {date}
	Sheet   string // Empty means the first sheet
	Columns Columns

	logger *slog.Logger
}

// FetchOrders implements RecordSource.
func (x *XLSX) FetchOrders(ctx context.Context, date time.Time) ([]model.OrderRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	logger := x.logger
	if logger == nil {
		logger = slog.Default()
	}

	path := ExpandPath(x.Path, date)
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open export %s: %w", path, err)
	}
	defer f.Close()

	sheet := x.Sheet
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read export sheet %q: %w", sheet, err)
	}

	records, err := extract(rows, x.Columns, date, logger)
	if err != nil {
		return nil, fmt.Errorf("export %s: %w", path, err)
	}
	logger.Info("export loaded", "path", path, "sheet", sheet, "records", len(records))
	return records, nil
}
