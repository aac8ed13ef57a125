package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/rickgao/orderstats/internal/model"
	"github.com/rickgao/orderstats/internal/money"
	"github.com/rickgao/orderstats/internal/table"
)

// Errors
var (
	ErrLayout              = errors.New("statistics layout violated")
	ErrDateColumnNotFound  = errors.New("date column not found")
	ErrAmbiguousDateColumn = errors.New("ambiguous date column")
)

const markTimeout = 5 * time.Second

// Config holds statistics layout settings.
type Config struct {
	// DateAnchor marks date header rows. When set, only rows carrying it are
	// searched for the day label; either way the nearest labelled row above
	// the record decides the column.
	DateAnchor string

	// CountLabel, when set, must appear on the count row in the id's column.
	CountLabel string
}

// Outcome is the result of reconciling one record.
type Outcome string

const (
	OutcomeWritten    Outcome = "written"
	OutcomeResumed    Outcome = "resumed"
	OutcomeMissingRow Outcome = "missing_row"
	OutcomeFailed     Outcome = "failed"
)

// Writer reconciles profit records into a statistics table.
type Writer struct {
	cfg        Config
	retrier    *table.Retrier
	checkpoint Checkpoint
	logger     *slog.Logger
	onRecord   func(orderID string, out Outcome, err error)
}

// NewWriter creates a Writer. A nil checkpoint keeps markers in memory.
func NewWriter(cfg Config, retrier *table.Retrier, checkpoint Checkpoint, logger *slog.Logger) *Writer {
	if checkpoint == nil {
		checkpoint = NewMemoryCheckpoint()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{
		cfg:        cfg,
		retrier:    retrier,
		checkpoint: checkpoint,
		logger:     logger,
	}
}

// OnRecord registers a hook called with the outcome of every record.
func (w *Writer) OnRecord(fn func(orderID string, out Outcome, err error)) {
	w.onRecord = fn
}

func (w *Writer) notify(orderID string, out Outcome, err error) {
	if w.onRecord != nil {
		w.onRecord(orderID, out, err)
	}
}

// Write writes count and profit of every record into the run date's column.
// Records that cannot be written are reported and skipped; a fatal table error
// or cancellation stops the pass and returns the partial report.
func (w *Writer) Write(ctx context.Context, target table.Client, run model.RunContext, records []model.ProfitRecord) (model.WriteReport, error) {
	var report model.WriteReport
	dates := &dateColumns{label: run.DayLabel(), anchor: w.cfg.DateAnchor}

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		out, err := w.writeRecord(ctx, target, run, dates, rec)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return report, ctxErr
			}
			if table.IsFatal(err) {
				return report, err
			}
			w.logger.Warn("reconcile record failed",
				"order_id", rec.OrderID,
				"error", err,
			)
			report.Failed = append(report.Failed, model.RecordError{OrderID: rec.OrderID, Err: err})
			w.notify(rec.OrderID, OutcomeFailed, err)
			continue
		}

		switch out {
		case OutcomeWritten:
			report.Written++
		case OutcomeResumed:
			report.Resumed++
		case OutcomeMissingRow:
			report.MissingRow = append(report.MissingRow, rec.OrderID)
		}
		w.notify(rec.OrderID, out, nil)
	}

	return report, nil
}

func (w *Writer) writeRecord(ctx context.Context, tbl table.Client, run model.RunContext, dates *dateColumns, rec model.ProfitRecord) (Outcome, error) {
	profitMarker := model.Marker{RunDate: run.DateKey(), OrderID: rec.OrderID, Field: model.FieldProfit}
	countMarker := model.Marker{RunDate: run.DateKey(), OrderID: rec.OrderID, Field: model.FieldCount}

	profitDone, err := w.checkpoint.Done(ctx, profitMarker)
	if err != nil {
		return "", fmt.Errorf("read checkpoint: %w", err)
	}
	countDone, err := w.checkpoint.Done(ctx, countMarker)
	if err != nil {
		return "", fmt.Errorf("read checkpoint: %w", err)
	}
	if profitDone && countDone {
		return OutcomeResumed, nil
	}

	tgt, found, err := w.resolve(ctx, tbl, dates, rec.OrderID)
	if err != nil {
		return "", err
	}
	if !found {
		return OutcomeMissingRow, nil
	}

	if !profitDone {
		value := money.FormatAmount(rec.TotalProfit)
		if err := w.write(ctx, tbl, "write profit", tgt.ProfitRow, tgt.Column, value); err != nil {
			return "", err
		}
		w.mark(ctx, profitMarker)
	}

	if !countDone {
		value := strconv.Itoa(rec.Count)
		if err := w.write(ctx, tbl, "write count", tgt.CountRow, tgt.Column, value); err != nil {
			return "", err
		}
		w.mark(ctx, countMarker)
	}

	w.logger.Debug("record reconciled",
		"order_id", rec.OrderID,
		"profit_row", tgt.ProfitRow,
		"column", tgt.Column,
	)
	return OutcomeWritten, nil
}

// resolve finds the destination cells of one order id and checks the layout.
func (w *Writer) resolve(ctx context.Context, tbl table.Client, dates *dateColumns, id string) (model.Target, bool, error) {
	var cells []table.Cell
	err := w.retrier.Do(ctx, "find order row", func(ctx context.Context) error {
		var err error
		cells, err = tbl.FindCells(ctx, id)
		return err
	})
	if table.KindOf(err) == table.KindNotFound {
		return model.Target{}, false, nil
	}
	if err != nil {
		return model.Target{}, false, err
	}
	if len(cells) == 0 {
		return model.Target{}, false, nil
	}

	idCell := cells[0]
	if idCell.Row < 2 {
		return model.Target{}, false, fmt.Errorf("%w: %q is in row 1, no count row above it", ErrLayout, id)
	}

	if w.cfg.CountLabel != "" {
		var label string
		err := w.retrier.Do(ctx, "read count label", func(ctx context.Context) error {
			var err error
			label, err = tbl.ReadCell(ctx, idCell.Row-1, idCell.Col)
			return err
		})
		if err != nil {
			return model.Target{}, false, err
		}
		if !table.FoldEqual(label, w.cfg.CountLabel) {
			return model.Target{}, false, fmt.Errorf("%w: row %d above %q holds %q, want %q",
				ErrLayout, idCell.Row-1, id, label, w.cfg.CountLabel)
		}
	}

	if err := dates.load(ctx, w.retrier, tbl); err != nil {
		return model.Target{}, false, err
	}
	col, err := dates.column(idCell.Row-1, idCell.Row)
	if err != nil {
		return model.Target{}, false, fmt.Errorf("%q: %w", id, err)
	}

	return model.Target{
		OrderID:   id,
		CountRow:  idCell.Row - 1,
		ProfitRow: idCell.Row,
		Column:    col,
	}, true, nil
}

func (w *Writer) write(ctx context.Context, tbl table.Client, op string, row, col int, value string) error {
	return w.retrier.Do(ctx, op, func(ctx context.Context) error {
		return tbl.WriteCell(ctx, row, col, value)
	})
}

func (w *Writer) mark(ctx context.Context, m model.Marker) {
	// The cell is already written, so the marker outlives a cancelled run.
	mctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), markTimeout)
	defer cancel()

	// A lost marker only means the cell is written again on resume.
	if err := w.checkpoint.Mark(mctx, m); err != nil {
		w.logger.Warn("failed to save checkpoint marker",
			"order_id", m.OrderID,
			"field", m.Field,
			"error", err,
		)
	}
}
