package presence

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nfrund/roomchat/internal/domain"
	"github.com/nfrund/roomchat/internal/pubsub"
)

// DefaultTouchInterval bounds how often one connection's row is refreshed.
const DefaultTouchInterval = 30 * time.Second

// ActivityTracker keeps online-user rows fresh while connections are
// alive. It listens for activity on the bus and refreshes last-active at
// most once per interval per connection.
type ActivityTracker struct {
	store    domain.OnlineUserRepository
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time

	mu        sync.Mutex
	lastTouch map[string]time.Time // connectionID -> last refresh
	lastPrune time.Time
}

// NewActivityTracker creates an ActivityTracker. A non-positive interval
// selects DefaultTouchInterval.
func NewActivityTracker(store domain.OnlineUserRepository, interval time.Duration) *ActivityTracker {
	if interval <= 0 {
		interval = DefaultTouchInterval
	}
	return &ActivityTracker{
		store:     store,
		interval:  interval,
		logger:    slog.Default().With("service", "presence-activity"),
		now:       time.Now,
		lastTouch: make(map[string]time.Time),
	}
}

// Subscribe wires the tracker to activity and disconnect events.
func (t *ActivityTracker) Subscribe(ctx context.Context, sub pubsub.Subscriber) error {
	if err := pubsub.Subscribe(ctx, sub, pubsub.TopicActivity, func(ctx context.Context, a pubsub.Activity) error {
		return t.Touch(ctx, a.ConnectionID)
	}); err != nil {
		return err
	}
	return pubsub.Subscribe(ctx, sub, pubsub.TopicClientDisconnected, func(_ context.Context, c pubsub.ClientLifecycle) error {
		t.Forget(c.ConnectionID)
		return nil
	})
}

// Touch refreshes the connection's row unless it was refreshed within the
// interval.
func (t *ActivityTracker) Touch(ctx context.Context, connectionID string) error {
	if connectionID == "" {
		return nil
	}

	now := t.now()
	t.mu.Lock()
	t.prune(now)
	last, seen := t.lastTouch[connectionID]
	if seen && now.Sub(last) < t.interval {
		t.mu.Unlock()
		return nil
	}
	t.lastTouch[connectionID] = now
	t.mu.Unlock()

	if err := t.store.TouchOnlineUser(ctx, connectionID); err != nil {
		t.logger.Warn("failed to refresh online user", "conn_id", connectionID, "error", err)
		t.mu.Lock()
		delete(t.lastTouch, connectionID)
		t.mu.Unlock()
		return err
	}
	return nil
}

// prune drops entries that no longer throttle anything. Activity for a
// connection can be delivered after its disconnect, so Forget alone does not
// bound the map. Callers hold t.mu.
func (t *ActivityTracker) prune(now time.Time) {
	if now.Sub(t.lastPrune) < t.interval {
		return
	}
	t.lastPrune = now
	for id, last := range t.lastTouch {
		if now.Sub(last) >= t.interval {
			delete(t.lastTouch, id)
		}
	}
}

// Forget drops throttling state for a closed connection.
func (t *ActivityTracker) Forget(connectionID string) {
	t.mu.Lock()
	delete(t.lastTouch, connectionID)
	t.mu.Unlock()
}
