package domain

import (
	"context"
	"time"
)

// OnlineUser is the durable liveness row kept for each live connection.
type OnlineUser struct {
	ConnectionID string    `json:"connection_id"`
	UserID       string    `json:"user_id"`
	RoomID       string    `json:"room_id"`
	IPAddress    string    `json:"ip_address,omitempty"`
	DeviceInfo   string    `json:"device_info,omitempty"`
	ConnectedAt  time.Time `json:"connected_at"`
	LastActive   time.Time `json:"last_active"`
}

// RoomUser is an entry of the online user snapshot sent to clients.
type RoomUser struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	Nickname    string    `json:"nickname,omitempty"`
	AvatarURL   string    `json:"avatar_url,omitempty"`
	LastActive  time.Time `json:"last_active"`
	ConnectedAt time.Time `json:"connected_at"`
}

// OnlineUserRepository persists liveness rows so presence survives restarts
// and can be computed independently of in-memory state.
type OnlineUserRepository interface {
	// UpsertOnlineUser writes the row keyed by ConnectionID, refreshing
	// LastActive and keeping the original ConnectedAt.
	UpsertOnlineUser(ctx context.Context, row *OnlineUser) error

	// RemoveOnlineUserByConnection deletes the row; deleting a missing row is not an error.
	RemoveOnlineUserByConnection(ctx context.Context, connectionID string) error

	// TouchOnlineUser refreshes LastActive for a live connection.
	TouchOnlineUser(ctx context.Context, connectionID string) error

	// ListOnlineUsersInRoom returns distinct users with a row in the room
	// active within window, most recently connected first.
	ListOnlineUsersInRoom(ctx context.Context, roomID string, window time.Duration) ([]RoomUser, error)

	// PurgeStaleOnlineUsers deletes rows idle for longer than staleness and
	// returns how many were removed.
	PurgeStaleOnlineUsers(ctx context.Context, staleness time.Duration) (int, error)
}
