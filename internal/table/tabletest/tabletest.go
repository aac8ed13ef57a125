// Package tabletest provides in-memory table clients for tests.
package tabletest

import (
	"context"
	"fmt"
	"sync"

	"github.com/rickgao/orderstats/internal/table"
)

// Write is one recorded WriteCell call.
type Write struct {
	Row   int
	Col   int
	Value string
}

// Memory is a table.Client over an in-memory grid.
type Memory struct {
	mu     sync.Mutex
	rows   [][]string
	writes []Write
}

// NewMemory creates a Memory holding a copy of rows.
func NewMemory(rows [][]string) *Memory {
	m := &Memory{rows: make([][]string, len(rows))}
	for i, row := range rows {
		m.rows[i] = append([]string(nil), row...)
	}
	return m
}

func (m *Memory) FindRow(ctx context.Context, label string) (int, bool, error) {
	cells, err := m.FindCells(ctx, label)
	if err != nil || len(cells) == 0 {
		return 0, false, err
	}
	return cells[0].Row, true, nil
}

func (m *Memory) FindColumn(ctx context.Context, label string) (int, bool, error) {
	cells, err := m.FindCells(ctx, label)
	if err != nil || len(cells) == 0 {
		return 0, false, err
	}
	return cells[0].Col, true, nil
}

func (m *Memory) FindCells(ctx context.Context, label string) ([]table.Cell, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return table.FindIn(m.rows, label), nil
}

func (m *Memory) ReadCell(ctx context.Context, row, col int) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return m.Cell(row, col), nil
}

func (m *Memory) WriteCell(ctx context.Context, row, col int, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if row < 1 || col < 1 {
		return table.NewError(table.KindFatal, "write", fmt.Errorf("invalid cell %d,%d", row, col))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for len(m.rows) < row {
		m.rows = append(m.rows, nil)
	}
	for len(m.rows[row-1]) < col {
		m.rows[row-1] = append(m.rows[row-1], "")
	}
	m.rows[row-1][col-1] = value
	m.writes = append(m.writes, Write{Row: row, Col: col, Value: value})
	return nil
}

// Cell returns the value at row, col, or "" outside the grid.
func (m *Memory) Cell(row, col int) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if row < 1 || row > len(m.rows) || col < 1 || col > len(m.rows[row-1]) {
		return ""
	}
	return m.rows[row-1][col-1]
}

// Writes returns the recorded writes in call order.
func (m *Memory) Writes() []Write {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Write(nil), m.writes...)
}

// Operation names used by Flaky.
const (
	OpFindRow    = "FindRow"
	OpFindColumn = "FindColumn"
	OpFindCells  = "FindCells"
	OpReadCell   = "ReadCell"
	OpWriteCell  = "WriteCell"
)

type fault struct {
	op    string
	key   string // Label or "row,col"; empty matches any call
	times int
	err   error
}

// Flaky wraps a Client and fails scripted calls.
type Flaky struct {
	table.Client

	mu     sync.Mutex
	faults []*fault
	calls  map[string]int
}

// NewFlaky wraps c.
func NewFlaky(c table.Client) *Flaky {
	return &Flaky{Client: c, calls: make(map[string]int)}
}

// Fail makes the next times calls of op fail with err.
func (f *Flaky) Fail(op string, times int, err error) *Flaky {
	return f.FailOn(op, "", times, err)
}

// FailOn makes the next times calls of op with the given key fail with err.
// Find keys are labels; cell keys are "row,col".
func (f *Flaky) FailOn(op, key string, times int, err error) *Flaky {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.faults = append(f.faults, &fault{op: op, key: key, times: times, err: err})
	return f
}

// Calls returns how many times op was called, failed calls included.
func (f *Flaky) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *Flaky) take(op, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls[op]++
	for _, ft := range f.faults {
		if ft.op != op || ft.times == 0 {
			continue
		}
		if ft.key != "" && ft.key != key {
			continue
		}
		if ft.times > 0 {
			ft.times--
		}
		return ft.err
	}
	return nil
}

func cellKey(row, col int) string {
	return fmt.Sprintf("%d,%d", row, col)
}

func (f *Flaky) FindRow(ctx context.Context, label string) (int, bool, error) {
	if err := f.take(OpFindRow, label); err != nil {
		return 0, false, err
	}
	return f.Client.FindRow(ctx, label)
}

func (f *Flaky) FindColumn(ctx context.Context, label string) (int, bool, error) {
	if err := f.take(OpFindColumn, label); err != nil {
		return 0, false, err
	}
	return f.Client.FindColumn(ctx, label)
}

func (f *Flaky) FindCells(ctx context.Context, label string) ([]table.Cell, error) {
	if err := f.take(OpFindCells, label); err != nil {
		return nil, err
	}
	return f.Client.FindCells(ctx, label)
}

func (f *Flaky) ReadCell(ctx context.Context, row, col int) (string, error) {
	if err := f.take(OpReadCell, cellKey(row, col)); err != nil {
		return "", err
	}
	return f.Client.ReadCell(ctx, row, col)
}

func (f *Flaky) WriteCell(ctx context.Context, row, col int, value string) error {
	if err := f.take(OpWriteCell, cellKey(row, col)); err != nil {
		return err
	}
	return f.Client.WriteCell(ctx, row, col, value)
}

// Opener serves registered clients by Ref.
type Opener struct {
	mu     sync.Mutex
	tables map[table.Ref]table.Client
	opened []table.Ref
}

// NewOpener creates an empty Opener.
func NewOpener() *Opener {
	return &Opener{tables: make(map[table.Ref]table.Client)}
}

// Add registers c under ref.
func (o *Opener) Add(ref table.Ref, c table.Client) *Opener {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.tables[ref] = c
	return o
}

// Open returns the client registered under ref, or a fatal error.
func (o *Opener) Open(ctx context.Context, ref table.Ref) (table.Client, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.opened = append(o.opened, ref)
	c, ok := o.tables[ref]
	if !ok {
		return nil, table.NewError(table.KindFatal, "open", fmt.Errorf("worksheet %q not found", ref.String()))
	}
	return c, nil
}

// Opened returns the refs passed to Open in call order.
func (o *Opener) Opened() []table.Ref {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]table.Ref(nil), o.opened...)
}
