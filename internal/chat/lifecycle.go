package chat

import (
	"context"

	"github.com/nfrund/roomchat/internal/pubsub"
)

// SubscribeLifecycle records transport connect and disconnect events in the
// log.
func (c *Coordinator) SubscribeLifecycle(ctx context.Context, sub pubsub.Subscriber) error {
	if err := pubsub.Subscribe(ctx, sub, pubsub.TopicClientConnected, func(_ context.Context, e pubsub.ClientLifecycle) error {
		c.logger.Debug("transport connected",
			"conn_id", e.ConnectionID, "user_id", e.UserID, "remote_addr", e.RemoteAddr, "user_agent", e.UserAgent)
		return nil
	}); err != nil {
		return err
	}
	return pubsub.Subscribe(ctx, sub, pubsub.TopicClientDisconnected, func(_ context.Context, e pubsub.ClientLifecycle) error {
		c.logger.Debug("transport disconnected", "conn_id", e.ConnectionID, "user_id", e.UserID)
		return nil
	})
}
