package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/orderstats/internal/checkpoint"
	"github.com/rickgao/orderstats/internal/config"
	"github.com/rickgao/orderstats/internal/connection"
	"github.com/rickgao/orderstats/internal/database"
	"github.com/rickgao/orderstats/internal/events"
	"github.com/rickgao/orderstats/internal/history"
	"github.com/rickgao/orderstats/internal/model"
	"github.com/rickgao/orderstats/internal/pipeline"
	"github.com/rickgao/orderstats/internal/reconcile"
	"github.com/rickgao/orderstats/internal/source"
	"github.com/rickgao/orderstats/internal/status"
	"github.com/rickgao/orderstats/internal/table"
	"github.com/rickgao/orderstats/internal/table/sheets"
	"github.com/rickgao/orderstats/internal/table/xlsx"
	"github.com/rickgao/orderstats/internal/version"
)

var (
	runDate  string
	runForce bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Reconcile one day",
	Args:  cobra.NoArgs,
	RunE:  runReconcile,
}

func init() {
	runCmd.Flags().StringVar(&runDate, "date", "", "day to reconcile (YYYY-MM-DD); defaults to yesterday")
	runCmd.Flags().BoolVar(&runForce, "force", false, "clear checkpoint markers of the day and write every cell again")
}

func runReconcile(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadAndValidate(configPath)
	if err != nil {
		return err
	}
	if runDate != "" {
		cfg.Run.Date = runDate
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	logger.Info("starting reconciler",
		"version", version.Version,
		"commit", version.Commit,
		"config", configPath,
	)

	date, err := cfg.RunDate(time.Now())
	if err != nil {
		return fmt.Errorf("resolve run date: %w", err)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	// Tables
	opener, closeOpener, err := newOpener(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeOpener(); err != nil {
			logger.Error("failed to save workbooks", "error", err)
		}
	}()

	counter := pipeline.NewRetryCounter()
	retrier := table.NewRetrier(table.Policy{
		QuotaBackoff:     cfg.Retry.QuotaBackoff,
		MaxQuotaRetries:  cfg.Retry.MaxQuotaRetries,
		TransientRetries: cfg.Retry.TransientRetries,
		TransientBackoff: cfg.Retry.TransientBackoff,
		CallTimeout:      cfg.Retry.CallTimeout,
	},
		table.WithLogger(logger),
		table.WithOnRetry(counter.Observe),
	)

	// Checkpoint
	cp, closeCheckpoint, err := newCheckpoint(ctx, cfg, date, logger)
	if err != nil {
		return err
	}
	defer closeCheckpoint()

	// History
	store, closeStore, err := newHistory(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	src, err := source.New(cfg.Source, cfg.History.Dir, logger)
	if err != nil {
		return err
	}

	// Events
	tracker := status.NewTracker()
	sinks := events.Multi{events.NewLogSink(logger), tracker}
	if cfg.Events.Console {
		sinks = append(sinks, events.NewConsole(os.Stderr))
	}
	if url := cfg.Events.WebSocketURL; url != "" {
		pub := connection.NewPublisher(connection.DefaultPublisherConfig(url), logger)
		pub.Start(ctx)
		defer func() {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer stopCancel()
			if err := pub.Stop(stopCtx); err != nil {
				logger.Warn("event stream not flushed", "error", err)
			}
			s := pub.Stats()
			logger.Debug("event stream closed", "sent", s.Sent, "dropped", s.Dropped, "reconnects", s.Reconnects)
		}()
		sinks = append(sinks, events.NewWSSink(pub, logger))
	}

	orch := pipeline.New(pipeline.Config{
		Groups:       cfg.ModelGroups(),
		Statistics:   table.Ref{Spreadsheet: cfg.Statistics.Spreadsheet, Sheet: cfg.Statistics.Sheet},
		MarginColumn: cfg.Margins.ColumnLabel,
		Layout: reconcile.Config{
			DateAnchor: cfg.Statistics.DateAnchor,
			CountLabel: cfg.Statistics.CountLabel,
		},
		GroupPause:     cfg.Pacing.GroupPause,
		ReconcilePause: cfg.Pacing.ReconcilePause,
	}, src, store, opener, retrier, cp,
		pipeline.WithSink(sinks),
		pipeline.WithLogger(logger),
		pipeline.WithRetryCounter(counter),
	)

	run := model.NewRunContext(date, cfg.History.Dir)

	g, gctx := errgroup.WithContext(ctx)
	auxCtx, stopAux := context.WithCancel(gctx)
	defer stopAux()

	if addr := cfg.Status.Addr; addr != "" {
		srv := status.NewServer(addr, tracker, logger)
		g.Go(func() error {
			return srv.Run(auxCtx)
		})
	}

	var sum model.Summary
	g.Go(func() error {
		defer stopAux()
		var err error
		sum, err = orch.Run(gctx, run)
		return err
	})

	err = g.Wait()
	logger.Info("run summary",
		"run_id", sum.RunID,
		"date", sum.Date,
		"state", sum.State,
		"records", sum.Records,
		"skipped", sum.Skipped,
		"unique_ids", sum.UniqueIDs,
		"margins_found", sum.MarginsFound,
		"written", sum.Written,
		"resumed", sum.Resumed,
		"missing_row", sum.MissingRow,
		"failed", sum.Failed(),
		"quota_waits", sum.QuotaWaits,
		"duration", sum.Duration,
	)
	return err
}

func newOpener(ctx context.Context, cfg *config.Config, logger *slog.Logger) (table.Opener, func() error, error) {
	switch cfg.Tables.Backend {
	case "xlsx":
		o := xlsx.NewOpener(logger)
		return o, o.Close, nil
	default:
		o, err := sheets.New(ctx, sheets.Config{
			CredentialsFile:   cfg.Tables.CredentialsFile,
			RequestsPerMinute: cfg.Tables.RequestsPerMinute,
		}, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("create sheets client: %w", err)
		}
		return o, func() error { return nil }, nil
	}
}

func newCheckpoint(ctx context.Context, cfg *config.Config, date time.Time, logger *slog.Logger) (reconcile.Checkpoint, func(), error) {
	if cfg.Checkpoint.Path == "" {
		return reconcile.NewMemoryCheckpoint(), func() {}, nil
	}

	store, err := checkpoint.Open(ctx, cfg.Checkpoint.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("open checkpoint: %w", err)
	}
	if runForce {
		n, err := store.Clear(ctx, date.Format(time.DateOnly))
		if err != nil {
			store.Close()
			return nil, nil, fmt.Errorf("clear checkpoint: %w", err)
		}
		logger.Info("checkpoint cleared", "date", date.Format(time.DateOnly), "markers", n)
	}
	return store, func() { store.Close() }, nil
}

func newHistory(ctx context.Context, cfg *config.Config, logger *slog.Logger) (history.Store, func(), error) {
	files := history.NewFileStore(cfg.History.Dir)
	pg := cfg.History.Postgres
	if !pg.Enabled {
		return files, func() {}, nil
	}

	logger.Info("connecting to database",
		"host", pg.Host,
		"port", pg.Port,
		"database", pg.Name,
	)
	pool, err := database.Connect(ctx, pg)
	if err != nil {
		return nil, nil, fmt.Errorf("connect history database: %w", err)
	}
	archive := history.NewPGStore(pool, logger)
	if err := archive.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	logger.Info("database connected")
	return history.Multi{files, archive}, pool.Close, nil
}
