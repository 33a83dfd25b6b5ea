package sink

import (
	"sync"
	"sync/atomic"

	"github.com/smazurov/framegrab/internal/acquisition"
	"github.com/smazurov/framegrab/internal/metrics"
)

// Channel hands copies of frames to a consumer goroutine. A full channel
// drops the frame.
type Channel struct {
	name string
	ch   chan acquisition.Frame

	mu     sync.RWMutex
	closed bool

	sent    atomic.Uint64
	dropped atomic.Uint64
}

// ChannelStats counts delivered and dropped frames.
type ChannelStats struct {
	Sent    uint64 `json:"sent"`
	Dropped uint64 `json:"dropped"`
}

// NewChannel returns a channel sink holding up to depth frames. name labels
// its metrics.
func NewChannel(name string, depth int) *Channel {
	if depth < 1 {
		depth = 1
	}
	return &Channel{name: name, ch: make(chan acquisition.Frame, depth)}
}

// Frames is closed by Close.
func (c *Channel) Frames() <-chan acquisition.Frame { return c.ch }

// OnFrame never blocks and never ends the run.
func (c *Channel) OnFrame(f acquisition.Frame) bool {
	switch c.push(f, false) {
	case pushOK:
		c.sent.Add(1)
		metrics.SinkFrame(c.name)
	case pushFull:
		c.dropped.Add(1)
		metrics.SinkDropped(c.name)
	}
	return true
}

type pushResult int

const (
	pushOK pushResult = iota
	pushFull
	pushClosed
)

// push queues a copy of f. With wait set it blocks for room instead of
// reporting full.
func (c *Channel) push(f acquisition.Frame, wait bool) pushResult {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return pushClosed
	}
	if !wait && len(c.ch) == cap(c.ch) {
		return pushFull
	}
	f = f.Clone()
	if wait {
		c.ch <- f
		return pushOK
	}
	select {
	case c.ch <- f:
		return pushOK
	default:
		return pushFull
	}
}

// Stats returns the counters so far.
func (c *Channel) Stats() ChannelStats {
	return ChannelStats{Sent: c.sent.Load(), Dropped: c.dropped.Load()}
}

// Close stops delivery and closes Frames. Further frames are ignored.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.ch)
	}
}
