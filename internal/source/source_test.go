package source

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/rickgao/orderstats/internal/aggregate"
	"github.com/rickgao/orderstats/internal/config"
	"github.com/rickgao/orderstats/internal/history"
	"github.com/rickgao/orderstats/internal/model"
)

var runDate = time.Date(2024, 12, 4, 0, 0, 0, 0, time.UTC)

func testColumns() Columns {
	return Columns{
		Group:       "Организация",
		Comment:     "Комментарий",
		DateLayouts: config.DefaultDateLayouts,
	}
}

func writeXLSX(t *testing.T, path string, rows [][]any) {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for r, row := range rows {
		for c, v := range row {
			name, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				t.Fatal(err)
			}
			if err := f.SetCellValue("Sheet1", name, v); err != nil {
				t.Fatal(err)
			}
		}
	}
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("save fixture: %v", err)
	}
}

func TestXLSX_FetchOrders(t *testing.T) {
	dir := t.TempDir()
	writeXLSX(t, filepath.Join(dir, "orders-2024-12-04.xlsx"), [][]any{
		{"Дата", "организация", "Сумма", "Комментарий"},
		{"04.12.2024", "OrgA", 100, "X1, доставка"},
		{"04.12.2024", " OrgB ", 50, "X2"},
		{},
		{"04.12.2024", "OrgA", 10, ""},
	})

	src := &XLSX{Path: filepath.Join(dir, "orders-{date}.xlsx"), Columns: testColumns()}
	got, err := src.FetchOrders(context.Background(), runDate)
	if err != nil {
		t.Fatalf("FetchOrders failed: %v", err)
	}

	want := []model.OrderRecord{
		{Group: "OrgA", OrderID: "X1"},
		{Group: "OrgB", OrderID: "X2"},
		{Group: "OrgA", OrderID: ""},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("records = %+v, want %+v", got, want)
	}
}

func TestXLSX_MissingFile(t *testing.T) {
	src := &XLSX{Path: filepath.Join(t.TempDir(), "none.xlsx"), Columns: testColumns()}
	if _, err := src.FetchOrders(context.Background(), runDate); err == nil {
		t.Error("expected error for missing export")
	}
}

func TestCSV_DateFilter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orders.csv")
	content := "\ufeffДата;Организация;Комментарий\n" +
		"04.12.2024 10:15;OrgA;X1\n" +
		"03.12.2024 23:59;OrgA;X9\n" +
		"2024-12-04;OrgB;\"X2, срочно\"\n" +
		"вчера;OrgB;X3\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cols := testColumns()
	cols.Date = "Дата"
	src := &CSV{Path: path, Delimiter: ';', Columns: cols}
	got, err := src.FetchOrders(context.Background(), runDate)
	if err != nil {
		t.Fatalf("FetchOrders failed: %v", err)
	}

	want := []model.OrderRecord{
		{Group: "OrgA", OrderID: "X1"},
		{Group: "OrgB", OrderID: "X2"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("records = %+v, want %+v", got, want)
	}
}

func TestCSV_MissingColumn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orders.csv")
	if err := os.WriteFile(path, []byte("Организация;Сумма\nOrgA;1\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	src := &CSV{Path: path, Delimiter: ';', Columns: testColumns()}
	_, err := src.FetchOrders(context.Background(), runDate)
	if !errors.Is(err, ErrMissingColumn) {
		t.Errorf("error = %v, want ErrMissingColumn", err)
	}
}

func TestReplay(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "2024-12-04")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	lines := "OrgA - X1\nOrgA - X1\n\nbroken line\nOrgB - X2\n"
	if err := os.WriteFile(filepath.Join(dir, history.RecordsFile), []byte(lines), 0o644); err != nil {
		t.Fatal(err)
	}

	src := &Replay{Store: history.NewFileStore(root)}
	got, err := src.FetchOrders(context.Background(), runDate)
	if err != nil {
		t.Fatalf("FetchOrders failed: %v", err)
	}
	want := []model.OrderRecord{
		{Group: "OrgA", OrderID: "X1"},
		{Group: "OrgA", OrderID: "X1"},
		{Group: "broken line"},
		{Group: "OrgB", OrderID: "X2"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("records = %+v, want %+v", got, want)
	}
}

func TestReplay_AfterRerun(t *testing.T) {
	store := history.NewFileStore(t.TempDir())
	ctx := context.Background()
	run := model.NewRunContext(runDate, "")
	records := []model.OrderRecord{
		{Group: "OrgA", OrderID: "X1"},
		{Group: "OrgA", OrderID: "X1"},
		{Group: "OrgA", OrderID: "X2"},
	}

	// The same date saved by two runs.
	for i := 0; i < 2; i++ {
		if err := store.SaveRecords(ctx, run, records); err != nil {
			t.Fatalf("SaveRecords failed: %v", err)
		}
	}

	got, err := (&Replay{Store: store}).FetchOrders(ctx, runDate)
	if err != nil {
		t.Fatalf("FetchOrders failed: %v", err)
	}
	res := aggregate.Aggregate(got)
	want := model.FrequencyMap{"X1": 2, "X2": 1}
	if !reflect.DeepEqual(res.Freq, want) {
		t.Errorf("replayed freq = %v, want %v", res.Freq, want)
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		kind    string
		delim   string
		want    any
		wantErr bool
	}{
		{kind: KindXLSX, want: &XLSX{}},
		{kind: KindCSV, delim: ";", want: &CSV{}},
		{kind: KindReplay, want: &Replay{}},
		{kind: KindCSV, delim: ";;", wantErr: true},
		{kind: "ftp", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.kind+tt.delim, func(t *testing.T) {
			src, err := New(config.SourceConfig{Kind: tt.kind, CSVDelimiter: tt.delim}, t.TempDir(), nil)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("New failed: %v", err)
			}
			if reflect.TypeOf(src) != reflect.TypeOf(tt.want) {
				t.Errorf("New returned %T, want %T", src, tt.want)
			}
		})
	}
}

func TestParseDate_Serial(t *testing.T) {
	// 45630 is 2024-12-04 in the 1900 date system.
	d, ok := parseDate("45630", nil, time.UTC)
	if !ok || !sameDay(d, runDate) {
		t.Errorf("parseDate(45630) = %v, %v", d, ok)
	}
}
