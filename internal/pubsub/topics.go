package pubsub

import "time"

// Activity is published whenever a connection shows signs of life.
type Activity struct {
	ConnectionID string    `json:"connection_id"`
	UserID       string    `json:"user_id"`
	At           time.Time `json:"at"`
}

// ClientLifecycle describes a transport connection opening or closing.
type ClientLifecycle struct {
	ConnectionID string    `json:"connection_id"`
	UserID       string    `json:"user_id"`
	RemoteAddr   string    `json:"remote_addr,omitempty"`
	UserAgent    string    `json:"user_agent,omitempty"`
	At           time.Time `json:"at"`
}

var (
	// TopicActivity carries inbound events and heartbeats.
	TopicActivity = NewEvent[Activity]("presence.activity")

	// TopicClientConnected is published after a connection is accepted.
	TopicClientConnected = NewEvent[ClientLifecycle]("ws.client.connected")

	// TopicClientDisconnected is published after a connection is torn down.
	TopicClientDisconnected = NewEvent[ClientLifecycle]("ws.client.disconnected")
)
