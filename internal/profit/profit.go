// Package profit joins order counts with unit margins.
package profit

import (
	"sort"

	"github.com/rickgao/orderstats/internal/model"
	"github.com/rickgao/orderstats/internal/money"
)

// ComputeProfit emits one record per id present in both freq and margins,
// sorted by id. TotalProfit is rounded to two places, half away from zero.
func ComputeProfit(freq model.FrequencyMap, margins map[string]model.MarginEntry) []model.ProfitRecord {
	out := make([]model.ProfitRecord, 0, len(margins))
	for id, count := range freq {
		m, ok := margins[id]
		if !ok || count <= 0 {
			continue
		}
		out = append(out, model.ProfitRecord{
			OrderID:     id,
			TotalProfit: money.Total(m.UnitMargin, count),
			Count:       count,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].OrderID < out[j].OrderID
	})
	return out
}

// Dropped returns the ids in freq that have no margin, sorted.
func Dropped(freq model.FrequencyMap, margins map[string]model.MarginEntry) []string {
	var ids []string
	for id := range freq {
		if _, ok := margins[id]; !ok {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}
