// Package status exposes the progress of the current run and the outcome of
// the last one over HTTP.
package status

import (
	"sync"
	"time"

	"github.com/rickgao/orderstats/internal/events"
	"github.com/rickgao/orderstats/internal/model"
)

// Snapshot is the live view of a run.
type Snapshot struct {
	RunID      string      `json:"run_id"`
	Stage      model.State `json:"stage"`
	Group      string      `json:"group,omitempty"`
	Started    time.Time   `json:"started,omitempty"`
	Updated    time.Time   `json:"updated,omitempty"`
	GroupsDone int         `json:"groups_done"`
	Written    int         `json:"written"`
	Retries    int         `json:"retries"`
	Warnings   int         `json:"warnings"`
}

// Tracker is an events.Sink that keeps the current snapshot and the last
// summary. It is safe for concurrent use.
type Tracker struct {
	mu      sync.RWMutex
	current Snapshot
	last    *model.Summary
}

// NewTracker creates an idle Tracker.
func NewTracker() *Tracker {
	return &Tracker{current: Snapshot{Stage: model.StateIdle}}
}

func (t *Tracker) Emit(e events.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if e.RunID != "" && e.RunID != t.current.RunID {
		t.current = Snapshot{RunID: e.RunID, Stage: model.StateIdle, Started: e.Time}
	}
	t.current.Updated = e.Time

	switch e.Kind {
	case events.KindStage:
		t.current.Stage = e.Stage
		t.current.Group = e.Group
	case events.KindGroup:
		t.current.GroupsDone++
		t.current.Group = ""
	case events.KindRecord:
		if e.Attrs["outcome"] == "written" {
			t.current.Written++
		}
	case events.KindRetry:
		t.current.Retries++
	case events.KindWarning:
		t.current.Warnings++
	case events.KindSummary:
		if s, ok := e.Attrs["summary"].(model.Summary); ok {
			t.last = &s
		}
	}
}

// Current returns the live snapshot.
func (t *Tracker) Current() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.current
}

// Last returns the summary of the most recent finished run.
func (t *Tracker) Last() (model.Summary, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.last == nil {
		return model.Summary{}, false
	}
	return *t.last, true
}
