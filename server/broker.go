package server

import (
	"context"
	"sync"

	"github.com/hupe1980/supportdesk/crm"
	"github.com/hupe1980/supportdesk/logging"
)

// Broker fans orders from an OrderFeed out to per-workspace subscribers.
// Slow subscribers lose events instead of stalling the feed.
type Broker struct {
	mu     sync.RWMutex
	subs   map[*subscriber]struct{}
	buffer int
	closed bool
	logger logging.Logger
}

type subscriber struct {
	workspaceID string
	ch          chan crm.Order
}

// NewBroker creates a broker whose subscriber channels hold buffer orders.
func NewBroker(buffer int, logger logging.Logger) *Broker {
	if buffer <= 0 {
		buffer = 16
	}
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &Broker{subs: map[*subscriber]struct{}{}, buffer: buffer, logger: logger}
}

// Subscribe registers interest in the orders of one workspace. The returned
// cancel func unsubscribes and closes the channel; it is idempotent.
func (b *Broker) Subscribe(workspaceID string) (<-chan crm.Order, func()) {
	s := &subscriber{workspaceID: workspaceID, ch: make(chan crm.Order, b.buffer)}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(s.ch)
		return s.ch, func() {}
	}
	b.subs[s] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	return s.ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if _, ok := b.subs[s]; ok {
				delete(b.subs, s)
				close(s.ch)
			}
		})
	}
}

// Subscribers returns the number of active subscriptions.
func (b *Broker) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Publish delivers o to every subscriber of its workspace without blocking.
func (b *Broker) Publish(o crm.Order) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for s := range b.subs {
		if s.workspaceID != o.WorkspaceID {
			continue
		}
		select {
		case s.ch <- o:
		default:
			b.logger.Warn("events.subscriber.dropped", "workspace_id", o.WorkspaceID, "order_id", o.ID)
		}
	}
}

// Run pumps feed into the broker until ctx is done or the feed closes.
// All subscriptions are closed on return.
func (b *Broker) Run(ctx context.Context, feed crm.OrderFeed) error {
	defer b.Close()
	orders := feed.Orders()
	for {
		select {
		case <-ctx.Done():
			return nil
		case o, ok := <-orders:
			if !ok {
				b.logger.Info("events.feed.closed")
				return nil
			}
			b.Publish(o)
		}
	}
}

// Close ends every subscription. Later subscriptions are closed immediately.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for s := range b.subs {
		delete(b.subs, s)
		close(s.ch)
	}
}
