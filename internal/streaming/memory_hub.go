package streaming

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

const defaultBuffer = 64

type subscription struct {
	ch      chan ChangeEvent
	filter  Filter
	dropped atomic.Int64
	once    sync.Once
}

func (s *subscription) close() {
	s.once.Do(func() { close(s.ch) })
}

// MemoryHub is an in-process Hub. Publishing never blocks: events for a
// subscriber whose buffer is full are dropped and counted.
type MemoryHub struct {
	mu     sync.RWMutex
	subs   map[uint64]*subscription
	seq    atomic.Uint64
	buffer int
	closed bool
}

// NewMemoryHub creates a MemoryHub with the default per-subscriber buffer.
func NewMemoryHub() *MemoryHub {
	return NewMemoryHubSize(defaultBuffer)
}

// NewMemoryHubSize creates a MemoryHub buffering up to size events per
// subscriber.
func NewMemoryHubSize(size int) *MemoryHub {
	if size < 1 {
		size = 1
	}
	return &MemoryHub{subs: make(map[uint64]*subscription), buffer: size}
}

func (h *MemoryHub) Publish(ctx context.Context, event ChangeEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs {
		if !sub.filter.matches(event) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			sub.dropped.Add(1)
		}
	}
	return nil
}

// Subscribe registers a subscriber. The returned cancel func removes it and
// closes its channel; calling it more than once is safe. The subscription
// also ends when ctx is done.
func (h *MemoryHub) Subscribe(ctx context.Context, filter Filter) (<-chan ChangeEvent, func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	sub := &subscription{ch: make(chan ChangeEvent, h.buffer), filter: filter}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, nil, context.Canceled
	}
	id := h.seq.Add(1)
	h.subs[id] = sub
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
		sub.close()
	}
	context.AfterFunc(ctx, cancel)
	return sub.ch, cancel, nil
}

// Subscribers reports how many subscriptions are open.
func (h *MemoryHub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped reports the events dropped across open subscriptions.
func (h *MemoryHub) Dropped() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var n int64
	for _, sub := range h.subs {
		n += sub.dropped.Load()
	}
	return n
}

// Close ends every subscription. Later subscriptions fail.
func (h *MemoryHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, sub := range h.subs {
		delete(h.subs, id)
		sub.close()
	}
}

func (f Filter) matches(e ChangeEvent) bool {
	if f.WorkflowID != "" && f.WorkflowID != e.WorkflowID {
		return false
	}
	return len(f.Types) == 0 || slices.Contains(f.Types, e.Type)
}

var _ Hub = (*MemoryHub)(nil)
