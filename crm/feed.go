package crm

import "sync"

// OrderFeed delivers orders as they are created. The channel is closed when
// the feed shuts down.
type OrderFeed interface {
	Orders() <-chan Order
}

// Feed is an in-process OrderFeed. Publish never blocks: when the buffer is
// full the order is dropped and counted.
type Feed struct {
	mu      sync.Mutex
	ch      chan Order
	closed  bool
	dropped int
}

// NewFeed creates a feed with the given buffer size.
func NewFeed(buffer int) *Feed {
	if buffer <= 0 {
		buffer = 64
	}
	return &Feed{ch: make(chan Order, buffer)}
}

// Publish enqueues an order. It reports false when the order was dropped.
func (f *Feed) Publish(o Order) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return false
	}
	select {
	case f.ch <- o:
		return true
	default:
		f.dropped++
		return false
	}
}

// Dropped returns the number of orders dropped because of a full buffer.
func (f *Feed) Dropped() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dropped
}

// Orders implements OrderFeed.
func (f *Feed) Orders() <-chan Order { return f.ch }

// Close closes the feed channel. It is safe to call more than once.
func (f *Feed) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.ch)
	}
	return nil
}

var _ OrderFeed = (*Feed)(nil)
