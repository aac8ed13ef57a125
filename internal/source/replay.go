package source

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rickgao/orderstats/internal/aggregate"
	"github.com/rickgao/orderstats/internal/history"
	"github.com/rickgao/orderstats/internal/model"
)

// Replay re-reads the records archived by an earlier run of the same date.
type Replay struct {
	Store *history.FileStore
}

// FetchOrders implements RecordSource. Lines that do not parse are returned
// as records without an order id.
func (r *Replay) FetchOrders(ctx context.Context, date time.Time) ([]model.OrderRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key := date.Format(time.DateOnly)
	lines, err := r.Store.ReadRecordLines(key)
	if err != nil {
		return nil, fmt.Errorf("replay %s: %w", key, err)
	}

	records := make([]model.OrderRecord, 0, len(lines))
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		rec, err := aggregate.ParseLine(line)
		if err != nil {
			rec = model.OrderRecord{Group: strings.TrimSpace(line)}
		}
		records = append(records, rec)
	}
	return records, nil
}
