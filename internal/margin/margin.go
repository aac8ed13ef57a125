// Package margin resolves per-unit margins of order ids from a group's
// reference table.
//
// Lookups run one id at a time against one table. Quota errors are absorbed
// by the table retrier; ids missing from the table are reported, not failed.
package margin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rickgao/orderstats/internal/model"
	"github.com/rickgao/orderstats/internal/money"
	"github.com/rickgao/orderstats/internal/table"
)

// DefaultColumnLabel is the header of the margin column.
const DefaultColumnLabel = "Маржа"

// ErrMarginColumnNotFound is returned when a group table has no margin column.
var ErrMarginColumnNotFound = errors.New("margin column not found")

// Result is the outcome of resolving one group.
type Result struct {
	Group    string
	Margins  map[string]model.MarginEntry
	NotFound []string            // Ids with no row in the table
	Failed   []model.RecordError // Ids whose lookup errored
}

// Resolver looks up margins through a table.Opener.
type Resolver struct {
	opener      table.Opener
	retrier     *table.Retrier
	columnLabel string
	logger      *slog.Logger
}

// NewResolver creates a Resolver. An empty columnLabel uses DefaultColumnLabel.
func NewResolver(opener table.Opener, retrier *table.Retrier, columnLabel string, logger *slog.Logger) *Resolver {
	if columnLabel == "" {
		columnLabel = DefaultColumnLabel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		opener:      opener,
		retrier:     retrier,
		columnLabel: columnLabel,
		logger:      logger,
	}
}

// ResolveMargins looks up every id in the group's table. The margin column is
// resolved once. A returned error means the group as a whole could not be
// resolved; the partial Result is still valid.
func (r *Resolver) ResolveMargins(ctx context.Context, group model.Group, ids []string) (Result, error) {
	res := Result{
		Group:   group.Label,
		Margins: make(map[string]model.MarginEntry, len(ids)),
	}
	ref := table.Ref{Spreadsheet: group.Spreadsheet, Sheet: group.Sheet}

	var tbl table.Client
	err := r.retrier.Do(ctx, "open", func(ctx context.Context) error {
		c, err := r.opener.Open(ctx, ref)
		tbl = c
		return err
	})
	if err != nil {
		return res, fmt.Errorf("open margin table %s: %w", ref, err)
	}

	var col int
	var ok bool
	err = r.retrier.Do(ctx, "find margin column", func(ctx context.Context) error {
		var err error
		col, ok, err = tbl.FindColumn(ctx, r.columnLabel)
		return err
	})
	if err != nil {
		return res, fmt.Errorf("find margin column in %s: %w", ref, err)
	}
	if !ok {
		return res, fmt.Errorf("%w: %q in %s", ErrMarginColumnNotFound, r.columnLabel, ref)
	}

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		entry, found, err := r.lookup(ctx, tbl, col, group.Label, id)
		switch {
		case err != nil:
			if ctxErr := ctx.Err(); ctxErr != nil {
				return res, ctxErr
			}
			if table.IsFatal(err) {
				return res, err
			}
			r.logger.Warn("margin lookup failed",
				"group", group.Label,
				"order_id", id,
				"error", err,
			)
			res.Failed = append(res.Failed, model.RecordError{OrderID: id, Err: err})
		case !found:
			res.NotFound = append(res.NotFound, id)
		default:
			res.Margins[id] = entry
		}
	}

	r.logger.Info("margins resolved",
		"group", group.Label,
		"found", len(res.Margins),
		"not_found", len(res.NotFound),
		"failed", len(res.Failed),
	)
	return res, nil
}

func (r *Resolver) lookup(ctx context.Context, tbl table.Client, col int, group, id string) (model.MarginEntry, bool, error) {
	var row int
	var ok bool
	err := r.retrier.Do(ctx, "find order row", func(ctx context.Context) error {
		var err error
		row, ok, err = tbl.FindRow(ctx, id)
		return err
	})
	if table.KindOf(err) == table.KindNotFound {
		return model.MarginEntry{}, false, nil
	}
	if err != nil {
		return model.MarginEntry{}, false, err
	}
	if !ok {
		return model.MarginEntry{}, false, nil
	}

	var raw string
	err = r.retrier.Do(ctx, "read margin", func(ctx context.Context) error {
		var err error
		raw, err = tbl.ReadCell(ctx, row, col)
		return err
	})
	if err != nil {
		return model.MarginEntry{}, false, err
	}

	unit, err := money.ParseAmount(raw)
	if err != nil {
		return model.MarginEntry{}, false, err
	}

	return model.MarginEntry{OrderID: id, UnitMargin: unit, Group: group}, true, nil
}
