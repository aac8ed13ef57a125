// Package history archives the intermediate artifacts of each run: the raw
// order records and the computed profits.
//
// The text format is shared with older tooling and must stay stable:
//
//	parser_result.txt   <group> - <orderId>
//	margin_orders.txt   <orderId> - <profit> - <count>
//
// Profits use a comma decimal separator.
package history

import (
	"context"
	"errors"

	"github.com/rickgao/orderstats/internal/model"
)

// Store persists run artifacts.
type Store interface {
	SaveRecords(ctx context.Context, run model.RunContext, records []model.OrderRecord) error
	SaveProfits(ctx context.Context, run model.RunContext, profits []model.ProfitRecord) error
}

// Multi saves to every store and joins their errors.
type Multi []Store

func (m Multi) SaveRecords(ctx context.Context, run model.RunContext, records []model.OrderRecord) error {
	var errs []error
	for _, s := range m {
		if err := s.SaveRecords(ctx, run, records); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) SaveProfits(ctx context.Context, run model.RunContext, profits []model.ProfitRecord) error {
	var errs []error
	for _, s := range m {
		if err := s.SaveProfits(ctx, run, profits); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
