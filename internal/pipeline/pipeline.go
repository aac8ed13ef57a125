package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/rickgao/orderstats/internal/aggregate"
	"github.com/rickgao/orderstats/internal/events"
	"github.com/rickgao/orderstats/internal/history"
	"github.com/rickgao/orderstats/internal/margin"
	"github.com/rickgao/orderstats/internal/model"
	"github.com/rickgao/orderstats/internal/profit"
	"github.com/rickgao/orderstats/internal/reconcile"
	"github.com/rickgao/orderstats/internal/source"
	"github.com/rickgao/orderstats/internal/table"
)

// ErrAllMalformed is returned when the source yields records but none of
// them carries a group and an order id.
var ErrAllMalformed = errors.New("all order records are malformed")

// Config holds the run layout.
type Config struct {
	Groups         []model.Group // Lookup order; the first group to resolve an id wins
	Statistics     table.Ref
	MarginColumn   string
	Layout         reconcile.Config
	GroupPause     time.Duration
	ReconcilePause time.Duration
}

// Orchestrator runs the pipeline. One Orchestrator runs one day at a time.
type Orchestrator struct {
	cfg      Config
	source   source.RecordSource
	history  history.Store
	opener   table.Opener
	retrier  *table.Retrier
	resolver *margin.Resolver
	writer   *reconcile.Writer

	sink    events.Sink
	retries *RetryCounter
	sleep   table.Sleeper
	logger  *slog.Logger

	mu    sync.RWMutex
	state model.State
	runID string
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithSink sets the event sink.
func WithSink(s events.Sink) Option {
	return func(o *Orchestrator) {
		o.sink = s
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithSleeper replaces the real-time sleeper used for pacing pauses.
func WithSleeper(s table.Sleeper) Option {
	return func(o *Orchestrator) {
		o.sleep = s
	}
}

// WithRetryCounter reports the counter's waits in run summaries.
func WithRetryCounter(c *RetryCounter) Option {
	return func(o *Orchestrator) {
		o.retries = c
	}
}

// New creates an Orchestrator. A nil checkpoint keeps markers in memory and
// a nil store disables archiving.
func New(cfg Config, src source.RecordSource, store history.Store, opener table.Opener, retrier *table.Retrier, checkpoint reconcile.Checkpoint, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:     cfg,
		source:  src,
		history: store,
		opener:  opener,
		retrier: retrier,
		sink:    events.Discard,
		retries: NewRetryCounter(),
		sleep:   table.Sleep,
		logger:  slog.Default(),
		state:   model.StateIdle,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.history == nil {
		o.history = history.Multi{}
	}

	o.resolver = margin.NewResolver(opener, retrier, cfg.MarginColumn, o.logger)
	o.writer = reconcile.NewWriter(cfg.Layout, retrier, checkpoint, o.logger)
	o.writer.OnRecord(o.recordOutcome)
	return o
}

// State returns the current pipeline state.
func (o *Orchestrator) State() model.State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

// Run reconciles one day. The summary is returned even when the run fails.
func (o *Orchestrator) Run(ctx context.Context, run model.RunContext) (model.Summary, error) {
	sum := model.Summary{
		RunID:   run.RunID,
		Date:    run.DateKey(),
		Started: time.Now(),
	}
	o.mu.Lock()
	o.runID = run.RunID.String()
	o.mu.Unlock()
	o.retries.attach(o.sink, o.runID)
	quota0, transient0 := o.retries.Counts()

	logger := o.logger.With("run_id", o.runID, "date", sum.Date)
	logger.Info("run started")

	err := o.run(ctx, run, &sum, logger)

	quota1, transient1 := o.retries.Counts()
	sum.QuotaWaits = quota1 - quota0
	sum.TransientRet = transient1 - transient0
	sum.Duration = time.Since(sum.Started)

	if err != nil {
		sum.State = model.StateFailed
		sum.Error = err.Error()
		o.transition(model.StateFailed, "", err.Error())
		logger.Error("run failed", "error", err, "duration", sum.Duration)
	} else {
		sum.State = model.StateDone
		o.transition(model.StateDone, "", fmt.Sprintf("%d written, %d resumed", sum.Written, sum.Resumed))
		logger.Info("run finished",
			"written", sum.Written,
			"resumed", sum.Resumed,
			"failed", sum.Failed(),
			"duration", sum.Duration,
		)
	}

	o.emit(events.Event{
		Kind:    events.KindSummary,
		Stage:   sum.State,
		Message: summaryLine(sum),
		Attrs:   map[string]any{"summary": sum},
	})
	return sum, err
}

func (o *Orchestrator) run(ctx context.Context, run model.RunContext, sum *model.Summary, logger *slog.Logger) error {
	// Aggregate
	o.transition(model.StateAggregating, "", "fetching orders")
	records, err := o.source.FetchOrders(ctx, run.Date)
	if err != nil {
		return fmt.Errorf("fetch orders: %w", err)
	}

	agg := aggregate.Aggregate(records)
	sum.Records = len(records)
	sum.Skipped = agg.Skipped
	sum.UniqueIDs = len(agg.Freq)
	if agg.Skipped > 0 {
		o.warn("", fmt.Sprintf("%d malformed records skipped", agg.Skipped))
	}
	if agg.Total == 0 && agg.Skipped > 0 {
		return ErrAllMalformed
	}
	logger.Info("orders aggregated",
		"records", len(records),
		"skipped", agg.Skipped,
		"unique_ids", sum.UniqueIDs,
	)

	if _, replay := o.source.(*source.Replay); !replay {
		if err := o.history.SaveRecords(ctx, run, records); err != nil {
			logger.Warn("failed to archive order records", "error", err)
		}
	}

	// Look up margins
	margins, err := o.lookup(ctx, agg, sum)
	if err != nil {
		return err
	}

	// Compute
	o.transition(model.StateComputing, "", fmt.Sprintf("%d margins", len(margins)))
	profits := profit.ComputeProfit(agg.Freq, margins)
	dropped := profit.Dropped(agg.Freq, margins)
	sum.Profits = len(profits)
	sum.DroppedMargin = len(dropped)
	if len(dropped) > 0 {
		logger.Info("orders without margin dropped", "count", len(dropped), "order_ids", dropped)
	}
	if err := o.history.SaveProfits(ctx, run, profits); err != nil {
		logger.Warn("failed to archive profits", "error", err)
	}

	if len(profits) == 0 {
		logger.Info("nothing to reconcile")
		return ctx.Err()
	}

	// Reconcile
	o.transition(model.StateReconciling, "", fmt.Sprintf("%d records", len(profits)))
	if err := o.pause(ctx, o.cfg.ReconcilePause); err != nil {
		return err
	}

	var stats table.Client
	err = o.retrier.Do(ctx, "open statistics", func(ctx context.Context) error {
		c, err := o.opener.Open(ctx, o.cfg.Statistics)
		stats = c
		return err
	})
	if err != nil {
		return fmt.Errorf("open statistics table %s: %w", o.cfg.Statistics, err)
	}

	report, err := o.writer.Write(ctx, stats, run, profits)
	sum.Written = report.Written
	sum.Resumed = report.Resumed
	sum.MissingRow = len(report.MissingRow)
	sum.WriteFailed = len(report.Failed)
	if err != nil {
		return fmt.Errorf("reconcile: %w", err)
	}
	if len(report.MissingRow) > 0 {
		o.warn("", fmt.Sprintf("%d order ids have no row in the statistics table", len(report.MissingRow)))
	}
	return nil
}

// lookup resolves margins group by group in configured order.
func (o *Orchestrator) lookup(ctx context.Context, agg aggregate.Result, sum *model.Summary) (map[string]model.MarginEntry, error) {
	o.transition(model.StateLookingUp, "", fmt.Sprintf("%d groups", len(o.cfg.Groups)))

	idsByGroup, unconfigured := o.partition(agg.ByGroup)
	sum.Unconfigured = len(unconfigured)
	if len(unconfigured) > 0 {
		o.warn("", fmt.Sprintf("%d order ids belong to unconfigured groups", len(unconfigured)))
		o.logger.Info("unconfigured groups skipped", "order_ids", unconfigured)
	}

	margins := make(map[string]model.MarginEntry)
	failed := make(map[string]bool)
	queried := 0

	for i, g := range o.cfg.Groups {
		var ids []string
		for _, id := range idsByGroup[i] {
			if _, ok := margins[id]; !ok {
				ids = append(ids, id)
			}
		}
		if len(ids) == 0 {
			continue
		}

		if queried > 0 {
			if err := o.pause(ctx, o.cfg.GroupPause); err != nil {
				return nil, err
			}
		}
		queried++

		o.transition(model.StateLookingUp, g.Label, fmt.Sprintf("%d ids", len(ids)))
		res, err := o.resolver.ResolveMargins(ctx, g, ids)

		for id, m := range res.Margins {
			if _, ok := margins[id]; !ok {
				margins[id] = m
			}
		}
		for _, f := range res.Failed {
			failed[f.OrderID] = true
		}

		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			if table.IsFatal(err) {
				return nil, fmt.Errorf("group %s: %w", g.Label, err)
			}
			sum.GroupsFailed++
			o.warn(g.Label, fmt.Sprintf("group skipped: %v", err))
			continue
		}

		for _, id := range res.NotFound {
			o.emit(events.Event{Kind: events.KindRecord, Group: g.Label, OrderID: id, Attrs: map[string]any{"outcome": "no_margin"}})
		}
		o.emit(events.Event{
			Kind:    events.KindGroup,
			Group:   g.Label,
			Message: fmt.Sprintf("%d found, %d not found, %d failed", len(res.Margins), len(res.NotFound), len(res.Failed)),
			Attrs: map[string]any{
				"found":     len(res.Margins),
				"not_found": len(res.NotFound),
				"failed":    len(res.Failed),
			},
		})
	}

	for id := range failed {
		if _, ok := margins[id]; !ok {
			sum.LookupFailed++
		}
	}
	sum.MarginsFound = len(margins)
	return margins, nil
}

// partition maps record groups onto configured groups by label or alias,
// compared case-insensitively. It returns the ids per configured group index
// and the ids that only appear under unconfigured groups.
func (o *Orchestrator) partition(byGroup map[string][]string) (map[int][]string, []string) {
	out := make(map[int][]string)
	configured := make(map[string]bool)
	var stray []string

	for name, ids := range byGroup {
		idx := o.groupIndex(name)
		if idx < 0 {
			stray = append(stray, ids...)
			continue
		}
		out[idx] = append(out[idx], ids...)
		for _, id := range ids {
			configured[id] = true
		}
	}

	for idx := range out {
		out[idx] = dedupSorted(out[idx])
	}

	var unconfigured []string
	for _, id := range dedupSorted(stray) {
		if !configured[id] {
			unconfigured = append(unconfigured, id)
		}
	}
	return out, unconfigured
}

func (o *Orchestrator) groupIndex(name string) int {
	for i, g := range o.cfg.Groups {
		if table.FoldEqual(name, g.Label) {
			return i
		}
		for _, alias := range g.Aliases {
			if table.FoldEqual(name, alias) {
				return i
			}
		}
	}
	return -1
}

func dedupSorted(ids []string) []string {
	sort.Strings(ids)
	out := ids[:0]
	for i, id := range ids {
		if i == 0 || id != ids[i-1] {
			out = append(out, id)
		}
	}
	return out
}

func (o *Orchestrator) pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	o.logger.Debug("pacing pause", "duration", d)
	return o.sleep(ctx, d)
}

func (o *Orchestrator) recordOutcome(orderID string, out reconcile.Outcome, err error) {
	e := events.Event{
		Kind:    events.KindRecord,
		OrderID: orderID,
		Attrs:   map[string]any{"outcome": string(out)},
	}
	if err != nil {
		e.Message = err.Error()
	}
	o.emit(e)
}

func (o *Orchestrator) transition(s model.State, group, msg string) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
	o.emit(events.Event{Kind: events.KindStage, Stage: s, Group: group, Message: msg})
}

func (o *Orchestrator) warn(group, msg string) {
	o.emit(events.Event{Kind: events.KindWarning, Group: group, Message: msg})
}

func (o *Orchestrator) emit(e events.Event) {
	o.mu.RLock()
	e.RunID = o.runID
	o.mu.RUnlock()
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	o.sink.Emit(e)
}

func summaryLine(s model.Summary) string {
	return fmt.Sprintf("%s: %d records, %d ids, %d margins, %d written, %d resumed, %d without row, %d failed, %d quota waits",
		s.Date, s.Records, s.UniqueIDs, s.MarginsFound, s.Written, s.Resumed, s.MissingRow, s.Failed(), s.QuotaWaits)
}
