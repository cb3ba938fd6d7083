package database

import (
	"context"
	"time"

	"github.com/nfrund/roomchat/internal/config"
	"github.com/nfrund/roomchat/internal/domain"
	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

const onlineUserTable = "online_user"

// var _ ensures that OnlineUserStore implements the domain.OnlineUserRepository interface at compile time.
var _ domain.OnlineUserRepository = (*OnlineUserStore)(nil)

type roomUserRow struct {
	UserID      string                        `json:"user_id"`
	Username    string                        `json:"username"`
	Nickname    string                        `json:"nickname,omitempty"`
	AvatarURL   string                        `json:"avatar_url,omitempty"`
	LastActive  *surrealmodels.CustomDateTime `json:"last_active,omitempty"`
	ConnectedAt *surrealmodels.CustomDateTime `json:"connected_at,omitempty"`
}

// OnlineUserStore keeps one liveness row per connection, keyed by the
// connection id so a reconnect never collides with a stale row.
type OnlineUserStore struct {
	base
}

// NewOnlineUserStore creates a new OnlineUserStore.
func NewOnlineUserStore(db *surrealdb.DB, cfg config.Provider) *OnlineUserStore {
	return &OnlineUserStore{base: newBase(db, cfg)}
}

// UpsertOnlineUser writes the liveness row for a connection.
func (s *OnlineUserStore) UpsertOnlineUser(ctx context.Context, row *domain.OnlineUser) error {
	if row == nil || row.ConnectionID == "" || row.UserID == "" {
		return NewDBError(ErrInvalidInput, "connection and user are required")
	}

	ctx, cancel := s.writeCtx(ctx)
	defer cancel()

	query := `UPSERT type::thing($tb, $conn) SET
		user_id = $user_id,
		user = type::thing("user", $user_id),
		room_id = $room_id,
		ip_address = $ip,
		device_info = $device,
		last_active = $now,
		connected_at = connected_at ?? $now`
	params := map[string]any{
		"tb":      onlineUserTable,
		"conn":    row.ConnectionID,
		"user_id": row.UserID,
		"room_id": row.RoomID,
		"ip":      row.IPAddress,
		"device":  row.DeviceInfo,
		"now":     &surrealmodels.CustomDateTime{Time: time.Now().UTC()},
	}
	if err := Execute(ctx, s.db, query, params); err != nil {
		return WrapError(err, "failed to upsert online user")
	}
	return nil
}

// RemoveOnlineUserByConnection deletes the connection's row, if any.
func (s *OnlineUserStore) RemoveOnlineUserByConnection(ctx context.Context, connectionID string) error {
	ctx, cancel := s.writeCtx(ctx)
	defer cancel()

	err := Execute(ctx, s.db, "DELETE type::thing($tb, $conn)",
		map[string]any{"tb": onlineUserTable, "conn": connectionID})
	if err != nil {
		return WrapError(err, "failed to remove online user")
	}
	return nil
}

// TouchOnlineUser refreshes last_active for an existing row only.
func (s *OnlineUserStore) TouchOnlineUser(ctx context.Context, connectionID string) error {
	ctx, cancel := s.writeCtx(ctx)
	defer cancel()

	err := Execute(ctx, s.db, "UPDATE type::thing($tb, $conn) SET last_active = $now",
		map[string]any{
			"tb":   onlineUserTable,
			"conn": connectionID,
			"now":  &surrealmodels.CustomDateTime{Time: time.Now().UTC()},
		})
	if err != nil {
		return WrapError(err, "failed to touch online user")
	}
	return nil
}

// ListOnlineUsersInRoom returns each user with a recent row in the room
// once, most recently connected first.
func (s *OnlineUserStore) ListOnlineUsersInRoom(ctx context.Context, roomID string, window time.Duration) ([]domain.RoomUser, error) {
	ctx, cancel := s.readCtx(ctx)
	defer cancel()

	query := `SELECT
			user_id,
			user.username AS username,
			user.nickname AS nickname,
			user.avatar_url AS avatar_url,
			last_active,
			connected_at
		FROM online_user
		WHERE room_id = $room AND last_active > $cutoff
		ORDER BY connected_at DESC`
	params := map[string]any{
		"room":   roomID,
		"cutoff": &surrealmodels.CustomDateTime{Time: time.Now().UTC().Add(-window)},
	}

	rows, err := Query[roomUserRow](ctx, s.db, query, params)
	if err != nil {
		return nil, WrapError(err, "failed to list online users")
	}
	return dedupeRoomUsers(rows), nil
}

// dedupeRoomUsers keeps the first row per user. Rows arrive newest
// connection first, so that is the one reported.
func dedupeRoomUsers(rows []roomUserRow) []domain.RoomUser {
	seen := make(map[string]struct{}, len(rows))
	out := make([]domain.RoomUser, 0, len(rows))
	for _, r := range rows {
		if _, dup := seen[r.UserID]; dup {
			continue
		}
		seen[r.UserID] = struct{}{}
		out = append(out, domain.RoomUser{
			ID:          r.UserID,
			Username:    r.Username,
			Nickname:    r.Nickname,
			AvatarURL:   r.AvatarURL,
			LastActive:  customTime(r.LastActive),
			ConnectedAt: customTime(r.ConnectedAt),
		})
	}
	return out
}

// PurgeStaleOnlineUsers removes rows idle for longer than staleness.
func (s *OnlineUserStore) PurgeStaleOnlineUsers(ctx context.Context, staleness time.Duration) (int, error) {
	ctx, cancel := s.writeCtx(ctx)
	defer cancel()

	type deleted struct {
		ID *surrealmodels.RecordID `json:"id,omitempty"`
	}
	rows, err := Query[deleted](ctx, s.db, "DELETE online_user WHERE last_active < $cutoff RETURN BEFORE",
		map[string]any{"cutoff": &surrealmodels.CustomDateTime{Time: time.Now().UTC().Add(-staleness)}})
	if err != nil {
		return 0, WrapError(err, "failed to purge stale online users")
	}
	return len(rows), nil
}
