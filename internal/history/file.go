package history

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rickgao/orderstats/internal/aggregate"
	"github.com/rickgao/orderstats/internal/model"
	"github.com/rickgao/orderstats/internal/money"
)

// File names inside a run directory.
const (
	RecordsFile = "parser_result.txt"
	ProfitsFile = "margin_orders.txt"
)

// FileStore writes artifacts under <root>/<YYYY-MM-DD>/.
type FileStore struct {
	Root string
}

// NewFileStore creates a FileStore rooted at root.
func NewFileStore(root string) *FileStore {
	return &FileStore{Root: root}
}

// Dir returns the directory of a run date.
func (s *FileStore) Dir(dateKey string) string {
	return filepath.Join(s.Root, dateKey)
}

// SaveRecords replaces the run's record file with the full record set, so a
// rerun for the same date never leaves stale copies behind for a replay.
func (s *FileStore) SaveRecords(ctx context.Context, run model.RunContext, records []model.OrderRecord) error {
	var b strings.Builder
	for _, r := range records {
		b.WriteString(FormatRecord(r))
		b.WriteByte('\n')
	}
	return s.write(run.DateKey(), RecordsFile, b.String(), os.O_TRUNC)
}

// SaveProfits replaces the run's profit file.
func (s *FileStore) SaveProfits(ctx context.Context, run model.RunContext, profits []model.ProfitRecord) error {
	var b strings.Builder
	for _, p := range profits {
		b.WriteString(FormatProfit(p))
		b.WriteByte('\n')
	}
	return s.write(run.DateKey(), ProfitsFile, b.String(), os.O_TRUNC)
}

func (s *FileStore) write(dateKey, name, content string, mode int) error {
	dir := s.Dir(dateKey)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create history dir: %w", err)
	}

	path := filepath.Join(dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|mode, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	if _, err := f.WriteString(content); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

// ReadRecordLines returns the raw lines of a run's record file.
func (s *FileStore) ReadRecordLines(dateKey string) ([]string, error) {
	return readLines(filepath.Join(s.Dir(dateKey), RecordsFile))
}

// ReadProfits parses a run's profit file. Older files pad fields with extra
// spaces; those are accepted.
func (s *FileStore) ReadProfits(dateKey string) ([]model.ProfitRecord, error) {
	lines, err := readLines(filepath.Join(s.Dir(dateKey), ProfitsFile))
	if err != nil {
		return nil, err
	}

	var out []model.ProfitRecord
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		p, err := ParseProfit(line)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", ProfitsFile, i+1, err)
		}
		out = append(out, p)
	}
	return out, nil
}

// FormatRecord renders a record line.
func FormatRecord(r model.OrderRecord) string {
	return r.Group + aggregate.Separator + r.OrderID
}

// FormatProfit renders a profit line.
func FormatProfit(p model.ProfitRecord) string {
	return p.OrderID + aggregate.Separator + money.FormatAmount(p.TotalProfit) + aggregate.Separator + strconv.Itoa(p.Count)
}

// ParseProfit parses a profit line in either the current or the legacy
// dot-decimal form.
func ParseProfit(line string) (model.ProfitRecord, error) {
	parts := strings.Split(line, aggregate.Separator)
	if len(parts) != 3 {
		return model.ProfitRecord{}, fmt.Errorf("want 3 fields, got %d in %q", len(parts), line)
	}

	id := strings.TrimSpace(parts[0])
	total, err := money.ParseAmount(parts[1])
	if err != nil {
		return model.ProfitRecord{}, err
	}
	count, err := strconv.Atoi(strings.TrimSpace(parts[2]))
	if err != nil {
		return model.ProfitRecord{}, fmt.Errorf("count: %w", err)
	}
	if id == "" {
		return model.ProfitRecord{}, fmt.Errorf("empty order id in %q", line)
	}

	return model.ProfitRecord{OrderID: id, TotalProfit: total, Count: count}, nil
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return lines, nil
}
