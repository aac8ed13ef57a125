package connection

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Publisher delivers frames over a reconnecting Client. Publish never
// blocks: frames are queued and dropped when the queue is full.
type Publisher struct {
	cfg       PublisherConfig
	logger    *slog.Logger
	newClient func(ClientConfig, *slog.Logger) Client

	queue chan []byte

	mu      sync.Mutex
	stopped bool
	cancel  context.CancelFunc
	done    chan struct{}

	sent       atomic.Int64
	dropped    atomic.Int64
	reconnects atomic.Int64
}

// NewPublisher creates a Publisher. Call Start before publishing.
func NewPublisher(cfg PublisherConfig, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultPublisherConfig("").QueueSize
	}
	if cfg.ReconnectBaseWait <= 0 {
		cfg.ReconnectBaseWait = time.Second
	}
	if cfg.ReconnectMaxWait < cfg.ReconnectBaseWait {
		cfg.ReconnectMaxWait = cfg.ReconnectBaseWait
	}
	return &Publisher{
		cfg:       cfg,
		logger:    logger,
		newClient: NewClient,
		queue:     make(chan []byte, cfg.QueueSize),
		done:      make(chan struct{}),
	}
}

// Start launches the delivery loop. The first connection attempt happens in
// the background; an unreachable endpoint only delays delivery.
func (p *Publisher) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.cancel = cancel
	p.mu.Unlock()
	go p.run(ctx)
}

// Publish queues data for delivery.
func (p *Publisher) Publish(data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return ErrAlreadyClosed
	}
	select {
	case p.queue <- data:
		return nil
	default:
		p.dropped.Add(1)
		return ErrQueueFull
	}
}

// Stop flushes queued frames until ctx expires, then closes the connection.
func (p *Publisher) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	close(p.queue)
	cancel := p.cancel
	p.mu.Unlock()

	if cancel == nil {
		return nil
	}
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		cancel()
		<-p.done
		return ctx.Err()
	}
}

// Stats returns delivery counters.
func (p *Publisher) Stats() PublisherStats {
	return PublisherStats{
		Sent:       p.sent.Load(),
		Dropped:    p.dropped.Load(),
		Reconnects: p.reconnects.Load(),
	}
}

func (p *Publisher) run(ctx context.Context) {
	defer close(p.done)

	var c Client
	defer func() {
		if c != nil {
			c.Close()
		}
	}()

	wait := p.cfg.ReconnectBaseWait
	for {
		if c == nil {
			nc := p.newClient(p.cfg.Client, p.logger)
			if err := nc.Connect(ctx); err != nil {
				p.logger.Warn("event stream connect failed",
					"url", p.cfg.Client.URL,
					"retry_in", wait,
					"error", err,
				)
				select {
				case <-ctx.Done():
					p.dropQueued()
					return
				case <-time.After(wait):
				}
				wait *= 2
				if wait > p.cfg.ReconnectMaxWait {
					wait = p.cfg.ReconnectMaxWait
				}
				continue
			}
			c = nc
			wait = p.cfg.ReconnectBaseWait
		}

		select {
		case <-ctx.Done():
			p.dropQueued()
			return

		case data, ok := <-p.queue:
			if !ok {
				return
			}
			if err := c.Send(data); err != nil {
				p.logger.Debug("event frame not delivered", "error", err)
				p.dropped.Add(1)
				p.reset(&c)
			} else {
				p.sent.Add(1)
			}

		case err := <-c.Errors():
			p.logger.Info("event stream disconnected", "error", err)
			p.reset(&c)
		}
	}
}

func (p *Publisher) reset(c *Client) {
	(*c).Close()
	*c = nil
	p.reconnects.Add(1)
}

// dropQueued counts frames left undelivered at shutdown.
func (p *Publisher) dropQueued() {
	for {
		select {
		case _, ok := <-p.queue:
			if !ok {
				return
			}
			p.dropped.Add(1)
		default:
			return
		}
	}
}
