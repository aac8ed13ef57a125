package pipeline

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rickgao/orderstats/internal/events"
	"github.com/rickgao/orderstats/internal/table"
)

// RetryCounter counts retrier waits and forwards them as events. Register
// Observe with table.WithOnRetry when building the retrier, then pass the
// counter to the orchestrator with WithRetryCounter.
type RetryCounter struct {
	quota     atomic.Int64
	transient atomic.Int64

	mu    sync.RWMutex
	sink  events.Sink
	runID string
}

// NewRetryCounter creates a RetryCounter.
func NewRetryCounter() *RetryCounter {
	return &RetryCounter{}
}

// Observe records one retry. It matches the table.WithOnRetry hook.
func (c *RetryCounter) Observe(ev table.RetryEvent) {
	switch ev.Kind {
	case table.KindQuota:
		c.quota.Add(1)
	case table.KindTransient:
		c.transient.Add(1)
	}

	c.mu.RLock()
	sink, runID := c.sink, c.runID
	c.mu.RUnlock()
	if sink == nil {
		return
	}
	sink.Emit(events.Event{
		Time:    time.Now(),
		RunID:   runID,
		Kind:    events.KindRetry,
		Message: ev.Op,
		Attrs: map[string]any{
			"error_kind": ev.Kind.String(),
			"attempt":    ev.Attempt,
			"wait":       ev.Wait.String(),
		},
	})
}

// Counts returns quota waits and transient retries so far.
func (c *RetryCounter) Counts() (quota, transient int) {
	return int(c.quota.Load()), int(c.transient.Load())
}

func (c *RetryCounter) attach(sink events.Sink, runID string) {
	c.mu.Lock()
	c.sink, c.runID = sink, runID
	c.mu.Unlock()
}
