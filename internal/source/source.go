// Package source loads the day's order records from an export file or from a
// previous run's archive.
package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/rickgao/orderstats/internal/aggregate"
	"github.com/rickgao/orderstats/internal/config"
	"github.com/rickgao/orderstats/internal/history"
	"github.com/rickgao/orderstats/internal/model"
	"github.com/rickgao/orderstats/internal/table"
)

// Source kinds accepted in configuration.
const (
	KindXLSX   = "xlsx"
	KindCSV    = "csv"
	KindReplay = "replay"
)

// ErrMissingColumn is returned when a required header is absent.
var ErrMissingColumn = errors.New("column not found in header")

// RecordSource yields the order records of one day.
type RecordSource interface {
	FetchOrders(ctx context.Context, date time.Time) ([]model.OrderRecord, error)
}

// Columns names the header cells of an export.
type Columns struct {
	Group       string
	Comment     string
	Date        string // Optional; empty disables date filtering
	DateLayouts []string
}

// New builds the source selected by cfg. historyDir is used by the replay
// source.
func New(cfg config.SourceConfig, historyDir string, logger *slog.Logger) (RecordSource, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cols := Columns{
		Group:       cfg.GroupColumn,
		Comment:     cfg.CommentColumn,
		Date:        cfg.DateColumn,
		DateLayouts: cfg.DateLayouts,
	}

	switch cfg.Kind {
	case KindXLSX:
		return &XLSX{Path: cfg.Path, Sheet: cfg.Sheet, Columns: cols, logger: logger}, nil
	case KindCSV:
		delim, err := delimiter(cfg.CSVDelimiter)
		if err != nil {
			return nil, err
		}
		return &CSV{Path: cfg.Path, Delimiter: delim, Columns: cols, logger: logger}, nil
	case KindReplay:
		return &Replay{Store: history.NewFileStore(historyDir)}, nil
	default:
		return nil, fmt.Errorf("unknown source kind %q", cfg.Kind)
	}
}

// ExpandPath substitutes {date} in path with the run date.
func ExpandPath(path string, date time.Time) string {
	return strings.ReplaceAll(path, "{date}", date.Format(time.DateOnly))
}

func delimiter(s string) (rune, error) {
	r := []rune(s)
	if len(r) != 1 {
		return 0, fmt.Errorf("csv delimiter must be a single character, got %q", s)
	}
	return r[0], nil
}

// extract converts export rows into order records. The first row is the
// header. Rows with an unreadable comment or group are kept with empty
// fields so that aggregation counts them as skipped.
func extract(rows [][]string, cols Columns, date time.Time, logger *slog.Logger) ([]model.OrderRecord, error) {
	if len(rows) == 0 {
		return nil, nil
	}

	header := rows[0]
	gi, err := headerIndex(header, cols.Group)
	if err != nil {
		return nil, err
	}
	ci, err := headerIndex(header, cols.Comment)
	if err != nil {
		return nil, err
	}
	di := -1
	if cols.Date != "" {
		if di, err = headerIndex(header, cols.Date); err != nil {
			return nil, err
		}
	}

	var (
		records   []model.OrderRecord
		otherDays int
	)
	for n, row := range rows[1:] {
		if blank(row) {
			continue
		}
		if di >= 0 {
			d, ok := parseDate(cell(row, di), cols.DateLayouts, date.Location())
			if !ok {
				logger.Debug("row date unreadable", "row", n+2, "value", cell(row, di))
				otherDays++
				continue
			}
			if !sameDay(d, date) {
				otherDays++
				continue
			}
		}
		records = append(records, model.OrderRecord{
			Group:   strings.TrimSpace(cell(row, gi)),
			OrderID: aggregate.ExtractOrderID(cell(row, ci)),
		})
	}

	if otherDays > 0 {
		logger.Info("rows outside run date excluded", "rows", otherDays, "date", date.Format(time.DateOnly))
	}
	return records, nil
}

func headerIndex(header []string, label string) (int, error) {
	for i, h := range header {
		if table.FoldEqual(h, label) {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w: %q", ErrMissingColumn, label)
}

func cell(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// parseDate accepts any of layouts, or an Excel date serial.
func parseDate(s string, layouts []string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range layouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		if t, err := excelize.ExcelDateToTime(f, false); err == nil {
			y, m, d := t.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, loc), true
		}
	}
	return time.Time{}, false
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.In(a.Location()).Date()
	return ay == by && am == bm && ad == bd
}
