package model

import (
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// -----------------------------------------------------------------------------
// Input Types
// -----------------------------------------------------------------------------

// OrderRecord is one parsed order line from a record source.
type OrderRecord struct {
	Group   string // Organization the order belongs to
	OrderID string // Join key; empty marks a malformed record
}

// FrequencyMap maps order id to the number of orders seen for it.
type FrequencyMap map[string]int

// Add merges counts from other into m.
func (m FrequencyMap) Add(other FrequencyMap) {
	for id, n := range other {
		m[id] += n
	}
}

// Count returns the total number of orders in the map.
func (m FrequencyMap) Count() int {
	total := 0
	for _, n := range m {
		total += n
	}
	return total
}

// IDs returns the order ids in ascending order.
func (m FrequencyMap) IDs() []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// -----------------------------------------------------------------------------
// Lookup and Result Types
// -----------------------------------------------------------------------------

// MarginEntry is the per-unit margin of an order id as read from a group table.
type MarginEntry struct {
	OrderID    string
	UnitMargin decimal.Decimal
	Group      string // Group whose table supplied the margin
}

// ProfitRecord is the daily profit of one order id.
type ProfitRecord struct {
	OrderID     string
	TotalProfit decimal.Decimal // round(UnitMargin * Count, 2)
	Count       int
}

// Target is the destination cell pair of a ProfitRecord in the statistics table.
// CountRow is always ProfitRow-1.
type Target struct {
	OrderID   string
	CountRow  int
	ProfitRow int
	Column    int
}

// Group is an organization and the table holding its margins.
type Group struct {
	Label       string   // Label as it appears in order records
	Spreadsheet string   // Spreadsheet id or workbook path
	Sheet       string   // Worksheet name
	Aliases     []string // Other spellings found in order records
}

// -----------------------------------------------------------------------------
// Run Types
// -----------------------------------------------------------------------------

// RunContext carries the per-run values every stage needs.
type RunContext struct {
	Date       time.Time
	RunID      uuid.UUID
	HistoryDir string
}

// NewRunContext builds a RunContext for the given day.
func NewRunContext(date time.Time, historyDir string) RunContext {
	y, m, d := date.Date()
	return RunContext{
		Date:       time.Date(y, m, d, 0, 0, 0, 0, date.Location()),
		RunID:      uuid.New(),
		HistoryDir: historyDir,
	}
}

// DayLabel is the day-of-month label used as the statistics column header.
func (r RunContext) DayLabel() string {
	return strconv.Itoa(r.Date.Day())
}

// DateKey returns the run date as YYYY-MM-DD.
func (r RunContext) DateKey() string {
	return r.Date.Format(time.DateOnly)
}

// Marker fields.
const (
	FieldCount  = "count"
	FieldProfit = "profit"
)

// Marker records that one half of a reconciliation write succeeded.
type Marker struct {
	RunDate string // YYYY-MM-DD
	OrderID string
	Field   string // FieldCount or FieldProfit
}

// RecordError ties a failure to the order id it belongs to.
type RecordError struct {
	OrderID string
	Err     error
}

func (e RecordError) Error() string {
	return e.OrderID + ": " + e.Err.Error()
}

// WriteReport summarizes one reconciliation pass.
type WriteReport struct {
	Written    int           // Records with both cells written in this pass
	Resumed    int           // Records already complete from an earlier pass
	MissingRow []string      // Ids with no row in the statistics table
	Failed     []RecordError // Records left incomplete
}

// State is a pipeline state.
type State string

const (
	StateIdle        State = "idle"
	StateAggregating State = "aggregating"
	StateLookingUp   State = "looking_up"
	StateComputing   State = "computing"
	StateReconciling State = "reconciling"
	StateDone        State = "done"
	StateFailed      State = "failed"
)

// Summary is the outcome of one run.
type Summary struct {
	RunID    uuid.UUID     `json:"run_id"`
	Date     string        `json:"date"`
	State    State         `json:"state"`
	Error    string        `json:"error,omitempty"`
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`

	// Aggregation
	Records       int `json:"records"`
	Skipped       int `json:"skipped"`
	UniqueIDs     int `json:"unique_ids"`
	Unconfigured  int `json:"unconfigured"`  // Ids whose group has no table
	GroupsFailed  int `json:"groups_failed"` // Groups whose lookup aborted
	LookupFailed  int `json:"lookup_failed"`
	MarginsFound  int `json:"margins_found"`
	DroppedMargin int `json:"dropped_no_margin"`

	// Reconciliation
	Profits      int `json:"profits"`
	Written      int `json:"written"`
	Resumed      int `json:"resumed"`
	MissingRow   int `json:"missing_row"`
	WriteFailed  int `json:"write_failed"`
	QuotaWaits   int `json:"quota_waits"`
	TransientRet int `json:"transient_retries"`
}

// Processed is the number of order ids that reached the statistics table.
func (s Summary) Processed() int {
	return s.Written + s.Resumed
}

// Failed is the number of order ids that could not be fully handled.
func (s Summary) Failed() int {
	return s.LookupFailed + s.WriteFailed
}
