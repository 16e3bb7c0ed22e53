package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hupe1980/supportdesk/crm"
	"github.com/hupe1980/supportdesk/logging"
)

// Listener turns NOTIFY payloads on OrdersChannel into crm.Order values by
// loading each announced order. It holds a dedicated pool connection and
// reconnects after connection errors.
type Listener struct {
	pool    *pgxpool.Pool
	store   *Store
	logger  logging.Logger
	backoff time.Duration

	orders chan crm.Order
	done   chan struct{}
	wg     sync.WaitGroup

	mu      sync.Mutex
	started bool
	closed  bool
}

// ListenerOptions configure a Listener.
type ListenerOptions struct {
	Logger  logging.Logger
	Buffer  int
	Backoff time.Duration
}

// NewListener creates a Listener using the provided connection pool.
func NewListener(pool *pgxpool.Pool, optFns ...func(o *ListenerOptions)) *Listener {
	opts := ListenerOptions{Logger: logging.NoOpLogger{}, Buffer: 100, Backoff: time.Second}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Listener{
		pool:    pool,
		store:   NewStore(pool),
		logger:  opts.Logger,
		backoff: opts.Backoff,
		orders:  make(chan crm.Order, opts.Buffer),
		done:    make(chan struct{}),
	}
}

// Listen subscribes to OrdersChannel and starts delivering orders until ctx
// is cancelled or Close is called. The first subscription happens
// synchronously so connection problems surface to the caller.
func (l *Listener) Listen(ctx context.Context) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return errors.New("listener closed")
	}
	if l.started {
		l.mu.Unlock()
		return errors.New("listener already started")
	}
	l.started = true
	l.mu.Unlock()

	conn, err := l.subscribe(ctx)
	if err != nil {
		l.mu.Lock()
		l.started = false
		l.mu.Unlock()
		return err
	}

	l.wg.Add(1)
	go l.listenLoop(ctx, conn)
	return nil
}

func (l *Listener) subscribe(ctx context.Context) (*pgxpool.Conn, error) {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{OrdersChannel}.Sanitize()); err != nil {
		conn.Release()
		return nil, err
	}
	return conn, nil
}

func (l *Listener) listenLoop(ctx context.Context, conn *pgxpool.Conn) {
	defer l.wg.Done()
	defer close(l.orders)
	defer func() {
		if conn != nil {
			// The session still LISTENs; drop it instead of returning it to the pool.
			_ = conn.Conn().Close(context.Background())
			conn.Release()
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-l.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		if conn == nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(l.backoff):
			}
			c, err := l.subscribe(ctx)
			if err != nil {
				l.logger.Warn("orders.listener.reconnect_failed", "error", err.Error())
				continue
			}
			l.logger.Info("orders.listener.reconnected")
			conn = c
		}

		notification, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			l.logger.Warn("orders.listener.connection_lost", "error", err.Error())
			_ = conn.Conn().Close(context.Background())
			conn.Release()
			conn = nil
			continue
		}

		var n orderNotification
		if err := json.Unmarshal([]byte(notification.Payload), &n); err != nil || n.ID == "" || n.WorkspaceID == "" {
			l.logger.Warn("orders.listener.bad_payload", "payload", notification.Payload)
			continue
		}

		o, err := l.store.GetOrder(ctx, n.WorkspaceID, n.ID)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			l.logger.Warn("orders.listener.load_failed", "order_id", n.ID, "error", err.Error())
			continue
		}

		select {
		case l.orders <- *o:
		case <-ctx.Done():
			return
		}
	}
}

// Orders implements crm.OrderFeed. The channel is closed when listening stops.
func (l *Listener) Orders() <-chan crm.Order { return l.orders }

// Close stops listening and waits for the loop to exit.
func (l *Listener) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	started := l.started
	close(l.done)
	l.mu.Unlock()

	if started {
		l.wg.Wait()
	} else {
		close(l.orders)
	}
	return nil
}

var _ crm.OrderFeed = (*Listener)(nil)
