package events

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/rickgao/orderstats/internal/model"
)

func TestMulti(t *testing.T) {
	var a, b Recorder
	m := Multi{&a, nil, &b}

	m.Emit(Event{Kind: KindStage, Stage: model.StateAggregating})
	m.Emit(Event{Kind: KindWarning, Message: "x"})

	if len(a.Events()) != 2 || len(b.Events()) != 2 {
		t.Errorf("events = %d/%d, want 2/2", len(a.Events()), len(b.Events()))
	}
	if got := a.OfKind(KindWarning); len(got) != 1 || got[0].Message != "x" {
		t.Errorf("OfKind(warning) = %+v", got)
	}
}

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	s := NewLogSink(logger)

	s.Emit(Event{Kind: KindRecord, OrderID: "X1", Message: "written"})
	if buf.Len() != 0 {
		t.Errorf("record event logged at info level: %q", buf.String())
	}

	s.Emit(Event{
		Kind:    KindGroup,
		RunID:   "r1",
		Group:   "OrgA",
		Message: "margins resolved",
		Attrs:   map[string]any{"found": 2},
	})
	out := buf.String()
	for _, want := range []string{"margins resolved", "group=OrgA", "found=2", "run_id=r1"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output %q missing %q", out, want)
		}
	}

	buf.Reset()
	s.Emit(Event{Kind: KindWarning, Message: "no margin"})
	if !strings.Contains(buf.String(), "level=WARN") {
		t.Errorf("warning logged as %q", buf.String())
	}
}

func TestConsole(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf)
	at := time.Date(2024, 12, 5, 9, 30, 0, 0, time.UTC)

	c.Emit(Event{Time: at, Kind: KindStage, Stage: model.StateLookingUp, Message: "3 groups"})
	c.Emit(Event{Time: at, Kind: KindGroup, Group: "OrgA", Message: "2 margins"})
	c.Emit(Event{Time: at, Kind: KindRecord, OrderID: "X1"})
	c.Emit(Event{Time: at, Kind: KindStage, Stage: model.StateDone, Message: "finished"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("printed %d lines, want 3: %q", len(lines), buf.String())
	}
	for i, want := range []string{"looking_up", "OrgA", "done"} {
		if !strings.Contains(lines[i], want) || !strings.Contains(lines[i], "09:30:00") {
			t.Errorf("line %d = %q, want %q and timestamp", i, lines[i], want)
		}
	}
}

type fakePublisher struct {
	frames [][]byte
	err    error
}

func (f *fakePublisher) Publish(data []byte) error {
	if f.err != nil {
		return f.err
	}
	f.frames = append(f.frames, data)
	return nil
}

func TestWSSink(t *testing.T) {
	pub := &fakePublisher{}
	s := NewWSSink(pub, nil)

	s.Emit(Event{Kind: KindRecord, OrderID: "X1"})
	s.Emit(Event{Kind: KindStage, RunID: "r1", Stage: model.StateComputing})

	if len(pub.frames) != 1 {
		t.Fatalf("frames = %d, want 1", len(pub.frames))
	}
	var got map[string]any
	if err := json.Unmarshal(pub.frames[0], &got); err != nil {
		t.Fatalf("frame is not JSON: %v", err)
	}
	if got["kind"] != "stage" || got["stage"] != "computing" || got["run_id"] != "r1" {
		t.Errorf("frame = %v", got)
	}

	s.Verbose = true
	s.Emit(Event{Kind: KindRecord, OrderID: "X1"})
	if len(pub.frames) != 2 {
		t.Errorf("verbose sink skipped record event")
	}

	// Publish errors are swallowed.
	pub.err = errors.New("queue full")
	s.Emit(Event{Kind: KindWarning})
}
