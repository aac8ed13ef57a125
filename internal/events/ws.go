package events

import (
	"encoding/json"
	"log/slog"
)

// Publisher queues frames for delivery. connection.Publisher implements it.
type Publisher interface {
	Publish(data []byte) error
}

// WSSink publishes events as JSON frames. Record events are skipped unless
// Verbose is set. Delivery failures are logged and dropped.
type WSSink struct {
	pub     Publisher
	logger  *slog.Logger
	Verbose bool
}

// NewWSSink creates a WSSink.
func NewWSSink(pub Publisher, logger *slog.Logger) *WSSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSSink{pub: pub, logger: logger}
}

func (s *WSSink) Emit(e Event) {
	if e.Kind == KindRecord && !s.Verbose {
		return
	}
	data, err := json.Marshal(e)
	if err != nil {
		s.logger.Warn("event not encodable", "kind", e.Kind, "error", err)
		return
	}
	if err := s.pub.Publish(data); err != nil {
		s.logger.Debug("event dropped", "kind", e.Kind, "error", err)
	}
}
