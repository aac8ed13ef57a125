package reconcile

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rickgao/orderstats/internal/model"
	"github.com/rickgao/orderstats/internal/table"
	"github.com/rickgao/orderstats/internal/table/tabletest"
)

func runOn(day int) model.RunContext {
	return model.NewRunContext(time.Date(2024, 12, day, 0, 0, 0, 0, time.UTC), "")
}

func profitRecord(id, total string, count int) model.ProfitRecord {
	return model.ProfitRecord{OrderID: id, TotalProfit: decimal.RequireFromString(total), Count: count}
}

func noSleep(ctx context.Context, d time.Duration) error { return ctx.Err() }

func newWriter(cfg Config, cp Checkpoint) *Writer {
	return NewWriter(cfg, table.NewRetrier(table.DefaultPolicy(), table.WithSleeper(noSleep)), cp, nil)
}

// statsRows is a single-block statistics table for days 1-5.
func statsRows() [][]string {
	return [][]string{
		{"Товар", "1", "2", "3", "4", "5"},
		{"", "1", "", "", "", ""},
		{"X1", "5,00", "", "", "", ""},
		{"", "", "4", "", "", ""},
		{"X2", "", "8,00", "", "", ""},
	}
}

func TestWriter_Write(t *testing.T) {
	mem := tabletest.NewMemory(statsRows())
	w := newWriter(Config{}, nil)
	outcomes := map[string]Outcome{}
	w.OnRecord(func(id string, out Outcome, err error) { outcomes[id] = out })

	report, err := w.Write(context.Background(), mem, runOn(4), []model.ProfitRecord{
		profitRecord("X1", "10.00", 2),
		profitRecord("X2", "2", 1),
		profitRecord("X9", "1", 1),
	})
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	if report.Written != 2 {
		t.Errorf("Written = %d, want 2", report.Written)
	}
	if !reflect.DeepEqual(report.MissingRow, []string{"X9"}) {
		t.Errorf("MissingRow = %v, want [X9]", report.MissingRow)
	}

	want := []tabletest.Write{
		{Row: 3, Col: 5, Value: "10,00"},
		{Row: 2, Col: 5, Value: "2"},
		{Row: 5, Col: 5, Value: "2,00"},
		{Row: 4, Col: 5, Value: "1"},
	}
	if got := mem.Writes(); !reflect.DeepEqual(got, want) {
		t.Errorf("writes = %v, want %v", got, want)
	}

	wantOutcomes := map[string]Outcome{"X1": OutcomeWritten, "X2": OutcomeWritten, "X9": OutcomeMissingRow}
	if !reflect.DeepEqual(outcomes, wantOutcomes) {
		t.Errorf("outcomes = %v, want %v", outcomes, wantOutcomes)
	}
}

func TestWriter_LayoutViolations(t *testing.T) {
	t.Run("id in first row", func(t *testing.T) {
		mem := tabletest.NewMemory([][]string{{"X1", "4"}})
		w := newWriter(Config{}, nil)

		report, err := w.Write(context.Background(), mem, runOn(4), []model.ProfitRecord{profitRecord("X1", "1", 1)})
		if err != nil {
			t.Fatalf("Write failed: %v", err)
		}
		if len(report.Failed) != 1 || !errors.Is(report.Failed[0].Err, ErrLayout) {
			t.Errorf("Failed = %v, want layout error", report.Failed)
		}
		if len(mem.Writes()) != 0 {
			t.Errorf("writes = %v, want none", mem.Writes())
		}
	})

	t.Run("count label", func(t *testing.T) {
		rows := [][]string{
			{"Товар", "4"},
			{"кол-во", ""},
			{"X1", ""},
			{"Итого", ""},
			{"X2", ""},
		}
		mem := tabletest.NewMemory(rows)
		w := newWriter(Config{CountLabel: "Кол-во"}, nil)

		report, err := w.Write(context.Background(), mem, runOn(4), []model.ProfitRecord{
			profitRecord("X1", "1", 1),
			profitRecord("X2", "1", 1),
		})
		if err != nil {
			t.Fatalf("Write failed: %v", err)
		}
		if report.Written != 1 {
			t.Errorf("Written = %d, want 1", report.Written)
		}
		if len(report.Failed) != 1 || report.Failed[0].OrderID != "X2" || !errors.Is(report.Failed[0].Err, ErrLayout) {
			t.Errorf("Failed = %v, want X2 layout error", report.Failed)
		}
	})
}

// anchoredRows has two date blocks; the second is shifted one column right.
func anchoredRows() [][]string {
	return [][]string{
		{"Дата", "1", "2"},
		{"", "2", ""},
		{"A", "", ""},
		{"Дата", "", "1", "2"},
		{"", "", "", ""},
		{"B", "", "", ""},
	}
}

func TestWriter_DateColumnRule(t *testing.T) {
	t.Run("anchored uses nearest preceding header", func(t *testing.T) {
		mem := tabletest.NewMemory(anchoredRows())
		w := newWriter(Config{DateAnchor: "Дата"}, nil)

		_, err := w.Write(context.Background(), mem, runOn(2), []model.ProfitRecord{
			profitRecord("A", "1", 1),
			profitRecord("B", "2", 2),
		})
		if err != nil {
			t.Fatalf("Write failed: %v", err)
		}
		if got := mem.Cell(3, 3); got != "1,00" {
			t.Errorf("A profit at C3 = %q, want 1,00", got)
		}
		if got := mem.Cell(6, 4); got != "2,00" {
			t.Errorf("B profit at D6 = %q, want 2,00", got)
		}
		if got := mem.Cell(5, 4); got != "2" {
			t.Errorf("B count at D5 = %q, want 2", got)
		}
	})

	t.Run("unanchored uses nearest preceding label", func(t *testing.T) {
		mem := tabletest.NewMemory(anchoredRows())
		w := newWriter(Config{}, nil)

		_, err := w.Write(context.Background(), mem, runOn(2), []model.ProfitRecord{profitRecord("B", "2", 2)})
		if err != nil {
			t.Fatalf("Write failed: %v", err)
		}
		if got := mem.Cell(6, 4); got != "2,00" {
			t.Errorf("B profit at D6 = %q, want 2,00", got)
		}
		if got := mem.Cell(6, 3); got != "" {
			t.Errorf("C6 = %q, want it untouched", got)
		}
	})

	t.Run("unanchored ignores the record's own rows", func(t *testing.T) {
		mem := tabletest.NewMemory(anchoredRows())
		w := newWriter(Config{}, nil)

		// Row 2 carries "2" on A's count row; row 1 is the header.
		_, err := w.Write(context.Background(), mem, runOn(2), []model.ProfitRecord{profitRecord("A", "1", 1)})
		if err != nil {
			t.Fatalf("Write failed: %v", err)
		}
		if got := mem.Cell(3, 3); got != "1,00" {
			t.Errorf("A profit at C3 = %q, want 1,00", got)
		}
	})

	t.Run("unanchored ambiguous row", func(t *testing.T) {
		rows := [][]string{
			{"Товар", "2", "2"},
			{"", "", ""},
			{"A", "", ""},
		}
		mem := tabletest.NewMemory(rows)
		w := newWriter(Config{}, nil)

		report, err := w.Write(context.Background(), mem, runOn(2), []model.ProfitRecord{profitRecord("A", "3", 1)})
		if err != nil {
			t.Fatalf("Write failed: %v", err)
		}
		if len(report.Failed) != 1 || !errors.Is(report.Failed[0].Err, ErrAmbiguousDateColumn) {
			t.Errorf("Failed = %v, want ambiguous column", report.Failed)
		}
		if got := mem.Cell(3, 2); got != "" {
			t.Errorf("B3 = %q, want it untouched", got)
		}
	})

	t.Run("anchored falls back to following header", func(t *testing.T) {
		rows := [][]string{
			{"", ""},
			{"A", ""},
			{"Дата", "7"},
		}
		mem := tabletest.NewMemory(rows)
		w := newWriter(Config{DateAnchor: "Дата"}, nil)

		_, err := w.Write(context.Background(), mem, runOn(7), []model.ProfitRecord{profitRecord("A", "3", 1)})
		if err != nil {
			t.Fatalf("Write failed: %v", err)
		}
		if got := mem.Cell(2, 2); got != "3,00" {
			t.Errorf("A profit at B2 = %q, want 3,00", got)
		}
	})

	t.Run("ambiguous header row", func(t *testing.T) {
		rows := [][]string{
			{"Дата", "2", "2"},
			{"", "", ""},
			{"A", "", ""},
		}
		mem := tabletest.NewMemory(rows)
		w := newWriter(Config{DateAnchor: "Дата"}, nil)

		report, err := w.Write(context.Background(), mem, runOn(2), []model.ProfitRecord{profitRecord("A", "3", 1)})
		if err != nil {
			t.Fatalf("Write failed: %v", err)
		}
		if len(report.Failed) != 1 || !errors.Is(report.Failed[0].Err, ErrAmbiguousDateColumn) {
			t.Errorf("Failed = %v, want ambiguous column", report.Failed)
		}
	})

	t.Run("missing day", func(t *testing.T) {
		mem := tabletest.NewMemory(statsRows())
		w := newWriter(Config{}, nil)

		report, err := w.Write(context.Background(), mem, runOn(9), []model.ProfitRecord{profitRecord("X1", "3", 1)})
		if err != nil {
			t.Fatalf("Write failed: %v", err)
		}
		if len(report.Failed) != 1 || !errors.Is(report.Failed[0].Err, ErrDateColumnNotFound) {
			t.Errorf("Failed = %v, want date column not found", report.Failed)
		}
	})
}

func TestWriter_ResumesPartialRecord(t *testing.T) {
	mem := tabletest.NewMemory(statsRows())
	boom := errors.New("connection reset")
	flaky := tabletest.NewFlaky(mem).FailOn(tabletest.OpWriteCell, "2,5", 1, boom)
	cp := NewMemoryCheckpoint()
	w := newWriter(Config{}, cp)
	records := []model.ProfitRecord{profitRecord("X1", "10", 2)}

	first, err := w.Write(context.Background(), flaky, runOn(4), records)
	if err != nil {
		t.Fatalf("first Write failed: %v", err)
	}
	if len(first.Failed) != 1 {
		t.Fatalf("first Failed = %v, want 1", first.Failed)
	}
	if got := mem.Cell(3, 5); got != "10,00" {
		t.Errorf("profit after first pass = %q, want 10,00", got)
	}

	second, err := w.Write(context.Background(), flaky, runOn(4), records)
	if err != nil {
		t.Fatalf("second Write failed: %v", err)
	}
	if second.Written != 1 {
		t.Errorf("second Written = %d, want 1", second.Written)
	}
	if got := mem.Cell(2, 5); got != "2" {
		t.Errorf("count after second pass = %q, want 2", got)
	}
	profitWrites := 0
	for _, wr := range mem.Writes() {
		if wr.Row == 3 && wr.Col == 5 {
			profitWrites++
		}
	}
	if profitWrites != 1 {
		t.Errorf("profit written %d times, want 1", profitWrites)
	}

	third, err := w.Write(context.Background(), flaky, runOn(4), records)
	if err != nil {
		t.Fatalf("third Write failed: %v", err)
	}
	if third.Resumed != 1 || third.Written != 0 {
		t.Errorf("third report = %+v, want 1 resumed", third)
	}
}

func TestWriter_QuotaOnWrite(t *testing.T) {
	mem := tabletest.NewMemory(statsRows())
	quota := table.NewError(table.KindQuota, "write", errors.New("429"))
	flaky := tabletest.NewFlaky(mem).FailOn(tabletest.OpWriteCell, "3,5", 2, quota)

	var waits int
	retrier := table.NewRetrier(table.DefaultPolicy(),
		table.WithSleeper(noSleep),
		table.WithOnRetry(func(table.RetryEvent) { waits++ }),
	)
	w := NewWriter(Config{}, retrier, nil, nil)

	report, err := w.Write(context.Background(), flaky, runOn(4), []model.ProfitRecord{profitRecord("X1", "10", 2)})
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if report.Written != 1 || waits != 2 {
		t.Errorf("Written = %d waits = %d, want 1 and 2", report.Written, waits)
	}
	if got := mem.Cell(3, 5); got != "10,00" {
		t.Errorf("profit = %q, want 10,00", got)
	}
}

func TestWriter_FatalStops(t *testing.T) {
	mem := tabletest.NewMemory(statsRows())
	fatal := table.NewError(table.KindFatal, "write", errors.New("403"))
	flaky := tabletest.NewFlaky(mem).Fail(tabletest.OpWriteCell, -1, fatal)
	w := newWriter(Config{}, nil)

	_, err := w.Write(context.Background(), flaky, runOn(4), []model.ProfitRecord{
		profitRecord("X1", "10", 2),
		profitRecord("X2", "2", 1),
	})
	if !table.IsFatal(err) {
		t.Fatalf("error = %v, want fatal", err)
	}
	if n := flaky.Calls(tabletest.OpWriteCell); n != 1 {
		t.Errorf("WriteCell calls = %d, want 1", n)
	}
}

func TestWriter_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	mem := tabletest.NewMemory(statsRows())
	w := newWriter(Config{}, nil)

	_, err := w.Write(ctx, mem, runOn(4), []model.ProfitRecord{profitRecord("X1", "10", 2)})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
	if len(mem.Writes()) != 0 {
		t.Errorf("writes = %v, want none", mem.Writes())
	}
}

// cancelAfterWrite cancels the run once the first cell has been written.
type cancelAfterWrite struct {
	table.Client
	cancel context.CancelFunc
}

func (c *cancelAfterWrite) WriteCell(ctx context.Context, row, col int, value string) error {
	err := c.Client.WriteCell(ctx, row, col, value)
	if err == nil {
		c.cancel()
	}
	return err
}

// ctxCheckpoint refuses markers saved under a finished context, like a
// database-backed store would.
type ctxCheckpoint struct {
	*MemoryCheckpoint
}

func (c ctxCheckpoint) Mark(ctx context.Context, m model.Marker) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.MemoryCheckpoint.Mark(ctx, m)
}

func TestWriter_MarkSurvivesCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mem := tabletest.NewMemory(statsRows())
	cp := ctxCheckpoint{NewMemoryCheckpoint()}
	w := newWriter(Config{}, cp)

	_, err := w.Write(ctx, &cancelAfterWrite{Client: mem, cancel: cancel}, runOn(4), []model.ProfitRecord{
		profitRecord("X1", "10.00", 2),
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Write error = %v, want context.Canceled", err)
	}
	if got := mem.Cell(3, 5); got != "10,00" {
		t.Fatalf("X1 profit at E3 = %q, want 10,00", got)
	}

	run := runOn(4)
	done, err := cp.Done(context.Background(), model.Marker{RunDate: run.DateKey(), OrderID: "X1", Field: model.FieldProfit})
	if err != nil {
		t.Fatal(err)
	}
	if !done {
		t.Error("profit marker lost after cancellation")
	}
	done, _ = cp.Done(context.Background(), model.Marker{RunDate: run.DateKey(), OrderID: "X1", Field: model.FieldCount})
	if done {
		t.Error("count marker saved for an unwritten cell")
	}
}
