// Package cache keeps the row cache consistent with the database.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/asakaida/polyload/internal/repositories"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

// TableInvalidator drops cached rows
type TableInvalidator interface {
	InvalidateTable(ctx context.Context, table string) (int, error)
	InvalidateAll(ctx context.Context) error
}

// Invalidator drops cached rows when the database announces a change.
// It uses PostgreSQL LISTEN/NOTIFY; the notification payload is the changed table.
// An empty payload, or a lost connection, clears the whole cache. The cache TTL
// bounds staleness when notifications are missed entirely.
type Invalidator struct {
	mu       sync.Mutex
	target   TableInvalidator
	connStr  string
	channel  string
	logger   *zap.Logger
	listener *pq.Listener
	stopCh   chan struct{}
	stopped  bool
}

// NewInvalidator creates a new Invalidator.
// connStr is the PostgreSQL connection string used for LISTEN.
func NewInvalidator(target TableInvalidator, connStr, channel string, logger *zap.Logger) *Invalidator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Invalidator{
		target:  target,
		connStr: connStr,
		channel: channel,
		logger:  logger.With(zap.String("channel", channel)),
		stopCh:  make(chan struct{}),
	}
}

// Start begins listening on the channel. Listening ends on Stop or when ctx is done.
func (i *Invalidator) Start(ctx context.Context) error {
	if i.channel == "" {
		return fmt.Errorf("notify channel is required")
	}

	i.listener = pq.NewListener(i.connStr, 10*time.Second, time.Minute, i.reportEvent)
	if err := i.listener.Listen(i.channel); err != nil {
		i.listener.Close()
		return fmt.Errorf("failed to listen on %s: %w", i.channel, err)
	}

	go i.handleNotifications(ctx, i.listener.Notify)
	i.logger.Info("row cache invalidation started")
	return nil
}

// Stop stops listening. It is safe to call more than once.
func (i *Invalidator) Stop() error {
	i.mu.Lock()
	if i.stopped {
		i.mu.Unlock()
		return nil
	}
	i.stopped = true
	close(i.stopCh)
	i.mu.Unlock()

	if i.listener != nil {
		return i.listener.Close()
	}
	return nil
}

func (i *Invalidator) reportEvent(ev pq.ListenerEventType, err error) {
	if err != nil {
		// TTL covers the gap until the listener reconnects
		i.logger.Warn("listener error", zap.Error(err))
	}
	if ev == pq.ListenerEventReconnected {
		i.invalidateAll(context.Background())
	}
}

func (i *Invalidator) handleNotifications(ctx context.Context, notify <-chan *pq.Notification) {
	for {
		select {
		case <-i.stopCh:
			return
		case <-ctx.Done():
			if err := i.Stop(); err != nil {
				i.logger.Warn("failed to close listener", zap.Error(err))
			}
			return
		case n := <-notify:
			i.handle(ctx, n)
		case <-time.After(90 * time.Second):
			// Periodic ping to keep connection alive
			go i.ping()
		}
	}
}

func (i *Invalidator) ping() {
	if i.listener == nil {
		return
	}
	if err := i.listener.Ping(); err != nil {
		i.logger.Warn("listener ping failed", zap.Error(err))
	}
}

// handle applies one notification. nil means the connection was lost.
func (i *Invalidator) handle(ctx context.Context, n *pq.Notification) {
	if n == nil || n.Extra == "" {
		i.invalidateAll(ctx)
		return
	}

	if err := repositories.ValidateIdentifier(n.Extra); err != nil {
		i.logger.Warn("ignoring notification with invalid table name", zap.String("payload", n.Extra))
		return
	}

	dropped, err := i.target.InvalidateTable(ctx, n.Extra)
	if err != nil {
		i.logger.Error("failed to invalidate table", zap.String("table", n.Extra), zap.Error(err))
		return
	}
	i.logger.Debug("invalidated table", zap.String("table", n.Extra), zap.Int("entries", dropped))
}

func (i *Invalidator) invalidateAll(ctx context.Context) {
	if err := i.target.InvalidateAll(ctx); err != nil {
		i.logger.Error("failed to clear row cache", zap.Error(err))
		return
	}
	i.logger.Debug("cleared row cache")
}
