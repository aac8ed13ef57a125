package events

import (
	"context"
	"log/slog"
)

// LogSink writes events to a slog.Logger. Record events are logged at
// debug level.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Emit(e Event) {
	level := slog.LevelInfo
	switch e.Kind {
	case KindRecord, KindRetry:
		level = slog.LevelDebug
	case KindWarning:
		level = slog.LevelWarn
	}
	if !s.logger.Enabled(context.Background(), level) {
		return
	}

	attrs := []any{"kind", string(e.Kind), "run_id", e.RunID}
	if e.Stage != "" {
		attrs = append(attrs, "stage", string(e.Stage))
	}
	if e.Group != "" {
		attrs = append(attrs, "group", e.Group)
	}
	if e.OrderID != "" {
		attrs = append(attrs, "order_id", e.OrderID)
	}
	for k, v := range e.Attrs {
		attrs = append(attrs, k, v)
	}

	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	s.logger.Log(context.Background(), level, msg, attrs...)
}
