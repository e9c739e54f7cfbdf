package indexer

import (
	"context"
	"sync"
)

// Control pauses, resumes or cancels runs from another goroutine.
// One Control may be shared by several runs. A cancelled Control stays
// cancelled.
type Control struct {
	mu        sync.Mutex
	resume    chan struct{}
	cancelled bool
	cancels   map[int]context.CancelFunc
	next      int
}

// NewControl returns a Control in the running state.
func NewControl() *Control {
	return &Control{cancels: make(map[int]context.CancelFunc)}
}

// Pause holds dispatch of further batches. In-flight batches finish.
func (c *Control) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.resume == nil {
		c.resume = make(chan struct{})
	}
}

// Resume releases a paused Control.
func (c *Control) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.resume != nil {
		close(c.resume)
		c.resume = nil
	}
}

// Paused reports whether dispatch is held.
func (c *Control) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resume != nil
}

// Cancel stops every attached run at its next batch boundary.
func (c *Control) Cancel() {
	c.mu.Lock()
	c.cancelled = true
	cancels := make([]context.CancelFunc, 0, len(c.cancels))
	for _, fn := range c.cancels {
		cancels = append(cancels, fn)
	}
	c.mu.Unlock()

	for _, fn := range cancels {
		fn()
	}
}

// Cancelled reports whether Cancel was called.
func (c *Control) Cancelled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancelled
}

func (c *Control) attach(cancel context.CancelFunc) (detach func()) {
	c.mu.Lock()
	if c.cancelled {
		c.mu.Unlock()
		cancel()
		return func() {}
	}
	id := c.next
	c.next++
	c.cancels[id] = cancel
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.cancels, id)
		c.mu.Unlock()
	}
}

// wait blocks while paused. It returns ctx.Err() if ctx ends first.
func (c *Control) wait(ctx context.Context) error {
	for {
		c.mu.Lock()
		ch := c.resume
		c.mu.Unlock()
		if ch == nil {
			return ctx.Err()
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
