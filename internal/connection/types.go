package connection

import (
	"errors"
	"time"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrStaleConnection = errors.New("connection stale (no ping)")
	ErrAlreadyClosed   = errors.New("already closed")
	ErrQueueFull       = errors.New("publish queue full")
)

// ClientConfig configures a WebSocket client.
type ClientConfig struct {
	URL               string        // WebSocket URL (e.g., wss://ops.example.com/ws/runs)
	Token             string        // Bearer token (empty = no auth header)
	PingTimeout       time.Duration // Max time without ping/pong before considering connection stale
	WriteTimeout      time.Duration // Write deadline for sends
	HeartbeatInterval time.Duration // Interval between keepalive pings
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		PingTimeout:       60 * time.Second,
		WriteTimeout:      5 * time.Second,
		HeartbeatInterval: 30 * time.Second,
	}
}

// PublisherConfig configures a Publisher.
type PublisherConfig struct {
	Client            ClientConfig
	ReconnectBaseWait time.Duration // Base wait time for reconnection
	ReconnectMaxWait  time.Duration // Max wait time for reconnection
	QueueSize         int           // Frames buffered while disconnected
}

// DefaultPublisherConfig returns sensible defaults for url.
func DefaultPublisherConfig(url string) PublisherConfig {
	cc := DefaultClientConfig()
	cc.URL = url
	return PublisherConfig{
		Client:            cc,
		ReconnectBaseWait: 1 * time.Second,
		ReconnectMaxWait:  60 * time.Second,
		QueueSize:         1024,
	}
}

// PublisherStats counts frames handled by a Publisher.
type PublisherStats struct {
	Sent       int64
	Dropped    int64
	Reconnects int64
}
