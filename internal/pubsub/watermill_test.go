package pubsub

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatermillBridge_PublishSubscribe(t *testing.T) {
	bridge := NewWatermillBridge()
	defer bridge.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan Message, 1)
	require.NoError(t, bridge.Subscribe(ctx, "test.topic", func(_ context.Context, msg Message) error {
		received <- msg
		return nil
	}))

	require.NoError(t, bridge.Publish(ctx, Message{
		Topic:    "test.topic",
		UserID:   "u1",
		Payload:  []byte(`{"x":1}`),
		Metadata: map[string]string{"source": "test"},
	}))

	select {
	case msg := <-received:
		assert.Equal(t, "test.topic", msg.Topic)
		assert.Equal(t, "u1", msg.UserID)
		assert.JSONEq(t, `{"x":1}`, string(msg.Payload))
		assert.Equal(t, "test", msg.Metadata["source"])
		assert.NotContains(t, msg.Metadata, metaKeyTopic)
	case <-time.After(time.Second):
		t.Fatal("message not delivered")
	}
}

func TestTypedEvents(t *testing.T) {
	bridge := NewWatermillBridge()
	defer bridge.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan Activity, 1)
	require.NoError(t, Subscribe(ctx, bridge, TopicActivity, func(_ context.Context, a Activity) error {
		got <- a
		return nil
	}))

	now := time.Now().UTC().Truncate(time.Millisecond)
	require.NoError(t, Publish(ctx, bridge, TopicActivity, "u1", Activity{ConnectionID: "c1", UserID: "u1", At: now}))

	select {
	case a := <-got:
		assert.Equal(t, "c1", a.ConnectionID)
		assert.True(t, now.Equal(a.At))
	case <-time.After(time.Second):
		t.Fatal("activity not delivered")
	}
}

func TestSubscribe_HandlerErrorDoesNotStopDelivery(t *testing.T) {
	bridge := NewWatermillBridge()
	defer bridge.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := make(chan struct{}, 2)
	require.NoError(t, bridge.Subscribe(ctx, "flaky", func(context.Context, Message) error {
		calls <- struct{}{}
		return errors.New("boom")
	}))

	require.NoError(t, bridge.Publish(ctx, Message{Topic: "flaky"}))
	require.NoError(t, bridge.Publish(ctx, Message{Topic: "flaky"}))

	for i := 0; i < 2; i++ {
		select {
		case <-calls:
		case <-time.After(time.Second):
			t.Fatalf("delivery %d missing", i+1)
		}
	}
}
