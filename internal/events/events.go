// Package events carries run progress from the pipeline to observers: the
// log, the terminal, the status server and an optional WebSocket stream.
// Sinks must not block and must not fail a run.
package events

import (
	"sync"
	"time"

	"github.com/rickgao/orderstats/internal/model"
)

// Kind classifies an event.
type Kind string

const (
	KindStage   Kind = "stage"   // State transition
	KindGroup   Kind = "group"   // Margin lookup of one group finished
	KindRecord  Kind = "record"  // Per-order outcome
	KindRetry   Kind = "retry"   // Table call is being retried
	KindWarning Kind = "warning" // Something was skipped
	KindSummary Kind = "summary" // Run finished; Attrs["summary"] holds model.Summary
)

// Event is one progress notification.
type Event struct {
	Time    time.Time      `json:"time"`
	RunID   string         `json:"run_id"`
	Kind    Kind           `json:"kind"`
	Stage   model.State    `json:"stage,omitempty"`
	Group   string         `json:"group,omitempty"`
	OrderID string         `json:"order_id,omitempty"`
	Message string         `json:"message,omitempty"`
	Attrs   map[string]any `json:"attrs,omitempty"`
}

// Sink receives events.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

func (f SinkFunc) Emit(e Event) { f(e) }

// Multi fans an event out to every sink in order.
type Multi []Sink

func (m Multi) Emit(e Event) {
	for _, s := range m {
		if s != nil {
			s.Emit(e)
		}
	}
}

// Discard drops every event.
var Discard Sink = SinkFunc(func(Event) {})

// Recorder keeps every event it receives. It is safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// OfKind returns the recorded events of kind k.
func (r *Recorder) OfKind(k Kind) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Kind == k {
			out = append(out, e)
		}
	}
	return out
}
