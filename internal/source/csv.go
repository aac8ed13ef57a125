package source

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/rickgao/orderstats/internal/model"
)

// CSV reads a delimited export.
type CSV struct {
	Path      string // May contain {date}
	Delimiter rune
	Columns   Columns

	logger *slog.Logger
}

// FetchOrders implements RecordSource.
func (c *CSV) FetchOrders(ctx context.Context, date time.Time) ([]model.OrderRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	logger := c.logger
	if logger == nil {
		logger = slog.Default()
	}

	path := ExpandPath(c.Path, date)
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open export %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = c.Delimiter
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read export %s: %w", path, err)
	}
	if len(rows) > 0 && len(rows[0]) > 0 {
		// Exports saved from spreadsheet tools may start with a BOM.
		rows[0][0] = trimBOM(rows[0][0])
	}

	records, err := extract(rows, c.Columns, date, logger)
	if err != nil {
		return nil, fmt.Errorf("export %s: %w", path, err)
	}
	logger.Info("export loaded", "path", path, "records", len(records))
	return records, nil
}

func trimBOM(s string) string {
	return strings.TrimPrefix(s, "\ufeff")
}
