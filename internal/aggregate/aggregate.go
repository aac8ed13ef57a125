// Package aggregate turns parsed order records into per-id order counts.
//
// Aggregation is pure: no I/O, no package state, and the result does not
// depend on the order of the input.
package aggregate

import (
	"errors"
	"sort"
	"strings"

	"github.com/rickgao/orderstats/internal/model"
)

// Separator splits fields in the history text format.
const Separator = " - "

// ErrMalformedLine is returned by ParseLine for lines it cannot split.
var ErrMalformedLine = errors.New("malformed record line")

// Result is the output of one aggregation.
type Result struct {
	Freq    model.FrequencyMap
	ByGroup map[string][]string // Distinct ids per group, sorted
	Total   int                 // Well-formed records counted
	Skipped int                 // Malformed records ignored
}

// ParseLine parses a "<group> - <orderId>" line.
func ParseLine(line string) (model.OrderRecord, error) {
	group, id, ok := strings.Cut(line, Separator)
	if !ok {
		return model.OrderRecord{}, ErrMalformedLine
	}
	rec := model.OrderRecord{
		Group:   strings.TrimSpace(group),
		OrderID: strings.TrimSpace(id),
	}
	if rec.Group == "" || rec.OrderID == "" {
		return model.OrderRecord{}, ErrMalformedLine
	}
	return rec, nil
}

// ExtractOrderID returns the order id carried in an order comment: the text
// before the first comma.
func ExtractOrderID(comment string) string {
	id, _, _ := strings.Cut(comment, ",")
	return strings.TrimSpace(id)
}

// Aggregate counts well-formed records per order id.
func Aggregate(records []model.OrderRecord) Result {
	res := Result{
		Freq:    make(model.FrequencyMap),
		ByGroup: make(map[string][]string),
	}
	seen := make(map[string]map[string]struct{})

	for _, r := range records {
		group := strings.TrimSpace(r.Group)
		id := strings.TrimSpace(r.OrderID)
		if group == "" || id == "" {
			res.Skipped++
			continue
		}

		res.Freq[id]++
		res.Total++

		ids, ok := seen[group]
		if !ok {
			ids = make(map[string]struct{})
			seen[group] = ids
		}
		ids[id] = struct{}{}
	}

	for group, ids := range seen {
		list := make([]string, 0, len(ids))
		for id := range ids {
			list = append(list, id)
		}
		sort.Strings(list)
		res.ByGroup[group] = list
	}

	return res
}

// AggregateLines parses history lines and aggregates them. Lines that fail to
// parse count as skipped; blank lines are ignored entirely.
func AggregateLines(lines []string) Result {
	records := make([]model.OrderRecord, 0, len(lines))
	skipped := 0
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		rec, err := ParseLine(line)
		if err != nil {
			skipped++
			continue
		}
		records = append(records, rec)
	}

	res := Aggregate(records)
	res.Skipped += skipped
	return res
}
