package history

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rickgao/orderstats/internal/model"
)

// DB is the subset of pgxpool.Pool used by PGStore.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

const pgSchema = `
CREATE TABLE IF NOT EXISTS order_records (
	run_id    UUID        NOT NULL,
	run_date  DATE        NOT NULL,
	seq       INTEGER     NOT NULL,
	grp       TEXT        NOT NULL,
	order_id  TEXT        NOT NULL,
	PRIMARY KEY (run_id, seq)
);
CREATE TABLE IF NOT EXISTS profit_records (
	run_id    UUID          NOT NULL,
	run_date  DATE          NOT NULL,
	order_id  TEXT          NOT NULL,
	profit    NUMERIC(14,2) NOT NULL,
	count     INTEGER       NOT NULL,
	PRIMARY KEY (run_id, order_id)
);
CREATE INDEX IF NOT EXISTS idx_profit_records_date ON profit_records (run_date);
`

// PGStore archives run artifacts in PostgreSQL. Inserts are append-only and
// keyed by run id, so saving the same run twice is a no-op.
type PGStore struct {
	db     DB
	logger *slog.Logger
}

// NewPGStore creates a PGStore.
func NewPGStore(db DB, logger *slog.Logger) *PGStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &PGStore{db: db, logger: logger}
}

// EnsureSchema creates the archive tables if they are missing.
func (s *PGStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, pgSchema); err != nil {
		return fmt.Errorf("create history schema: %w", err)
	}
	return nil
}

// SaveRecords inserts the run's raw records.
func (s *PGStore) SaveRecords(ctx context.Context, run model.RunContext, records []model.OrderRecord) error {
	if len(records) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for i, r := range records {
		batch.Queue(`
			INSERT INTO order_records (run_id, run_date, seq, grp, order_id)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (run_id, seq) DO NOTHING
		`, run.RunID, run.Date, i, r.Group, r.OrderID)
	}

	conflicts, err := s.send(ctx, batch)
	if err != nil {
		return fmt.Errorf("insert order records: %w", err)
	}
	s.logger.Debug("order records archived",
		"run_id", run.RunID,
		"rows", len(records),
		"conflicts", conflicts,
	)
	return nil
}

// SaveProfits inserts the run's profit records.
func (s *PGStore) SaveProfits(ctx context.Context, run model.RunContext, profits []model.ProfitRecord) error {
	if len(profits) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, p := range profits {
		batch.Queue(`
			INSERT INTO profit_records (run_id, run_date, order_id, profit, count)
			VALUES ($1, $2, $3, $4::numeric, $5)
			ON CONFLICT (run_id, order_id) DO NOTHING
		`, run.RunID, run.Date, p.OrderID, p.TotalProfit.StringFixed(2), p.Count)
	}

	conflicts, err := s.send(ctx, batch)
	if err != nil {
		return fmt.Errorf("insert profit records: %w", err)
	}
	s.logger.Debug("profit records archived",
		"run_id", run.RunID,
		"rows", len(profits),
		"conflicts", conflicts,
	)
	return nil
}

// send executes a batch and counts rows skipped by ON CONFLICT.
func (s *PGStore) send(ctx context.Context, batch *pgx.Batch) (conflicts int, err error) {
	results := s.db.SendBatch(ctx, batch)
	defer results.Close()

	for i := 0; i < batch.Len(); i++ {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}
	return conflicts, nil
}
