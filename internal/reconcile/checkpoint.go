package reconcile

import (
	"context"
	"sync"

	"github.com/rickgao/orderstats/internal/model"
)

// Checkpoint stores markers for completed writes.
type Checkpoint interface {
	Done(ctx context.Context, m model.Marker) (bool, error)
	Mark(ctx context.Context, m model.Marker) error
}

// MemoryCheckpoint keeps markers for the life of the process.
type MemoryCheckpoint struct {
	mu      sync.Mutex
	markers map[model.Marker]struct{}
}

// NewMemoryCheckpoint creates an empty MemoryCheckpoint.
func NewMemoryCheckpoint() *MemoryCheckpoint {
	return &MemoryCheckpoint{markers: make(map[model.Marker]struct{})}
}

func (c *MemoryCheckpoint) Done(ctx context.Context, m model.Marker) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.markers[m]
	return ok, nil
}

func (c *MemoryCheckpoint) Mark(ctx context.Context, m model.Marker) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.markers[m] = struct{}{}
	return nil
}
