package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nfrund/roomchat/internal/config"
	"github.com/nfrund/roomchat/internal/domain"
	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

const messageTable = "message"

// var _ ensures that MessageStore implements the domain.MessageRepository interface at compile time.
var _ domain.MessageRepository = (*MessageStore)(nil)

// messageSelect joins the author's display fields onto every message read.
const messageSelect = `SELECT *,
	author.username AS username,
	author.nickname AS nickname,
	author.avatar_url AS avatar_url`

// messageRow is the stored shape of a message.
type messageRow struct {
	ID            *surrealmodels.RecordID       `json:"id,omitempty"`
	RoomID        string                        `json:"room_id"`
	UserID        string                        `json:"user_id"`
	Content       string                        `json:"content"`
	MessageType   string                        `json:"message_type"`
	FileURL       string                        `json:"file_url,omitempty"`
	FileSize      *int64                        `json:"file_size,omitempty"`
	FileName      string                        `json:"file_name,omitempty"`
	ThumbnailURL  string                        `json:"thumbnail_url,omitempty"`
	AudioDuration *float64                      `json:"audio_duration,omitempty"`
	ReplyToID     string                        `json:"reply_to_id,omitempty"`
	Seen          bool                          `json:"seen"`
	Deleted       bool                          `json:"deleted"`
	CreatedAt     *surrealmodels.CustomDateTime `json:"created_at,omitempty"`
	UpdatedAt     *surrealmodels.CustomDateTime `json:"updated_at,omitempty"`

	Username  string `json:"username,omitempty"`
	Nickname  string `json:"nickname,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

func (r *messageRow) toDomain() *domain.Message {
	m := &domain.Message{
		ID:      recordKey(r.ID),
		RoomID:  r.RoomID,
		UserID:  r.UserID,
		Content: r.Content,
		Type:    domain.MessageType(r.MessageType),
		File: domain.FileMeta{
			URL:           r.FileURL,
			Size:          r.FileSize,
			Name:          r.FileName,
			ThumbnailURL:  r.ThumbnailURL,
			AudioDuration: r.AudioDuration,
		},
		ReplyToID: r.ReplyToID,
		Seen:      r.Seen,
		Deleted:   r.Deleted,
		CreatedAt: customTime(r.CreatedAt),
		UpdatedAt: customTime(r.UpdatedAt),
		Username:  r.Username,
		Nickname:  r.Nickname,
		AvatarURL: r.AvatarURL,
	}
	m.Redact()
	return m
}

// MessageStore persists chat messages in SurrealDB.
type MessageStore struct {
	base
}

// NewMessageStore creates a new MessageStore.
func NewMessageStore(db *surrealdb.DB, cfg config.Provider) *MessageStore {
	return &MessageStore{base: newBase(db, cfg)}
}

// CreateMessage inserts a new message and returns its generated id.
func (s *MessageStore) CreateMessage(ctx context.Context, msg *domain.NewMessage) (string, error) {
	if msg == nil || msg.RoomID == "" || msg.UserID == "" {
		return "", NewDBError(ErrInvalidInput, "room and user are required to create a message")
	}

	ctx, cancel := s.writeCtx(ctx)
	defer cancel()

	id := uuid.NewString()
	now := &surrealmodels.CustomDateTime{Time: time.Now().UTC()}
	msgType := msg.Type
	if msgType == "" {
		msgType = domain.MessageText
	}

	data := map[string]any{
		"room_id":      msg.RoomID,
		"user_id":      msg.UserID,
		"author":       surrealmodels.NewRecordID("user", msg.UserID),
		"content":      msg.Content,
		"message_type": string(msgType),
		"seen":         false,
		"deleted":      false,
		"created_at":   now,
		"updated_at":   now,
	}
	if msg.File.URL != "" {
		data["file_url"] = msg.File.URL
	}
	if msg.File.Size != nil {
		data["file_size"] = *msg.File.Size
	}
	if msg.File.Name != "" {
		data["file_name"] = msg.File.Name
	}
	if msg.File.ThumbnailURL != "" {
		data["thumbnail_url"] = msg.File.ThumbnailURL
	}
	if msg.File.AudioDuration != nil {
		data["audio_duration"] = *msg.File.AudioDuration
	}
	if msg.ReplyToID != "" {
		data["reply_to_id"] = msg.ReplyToID
	}

	query := "CREATE type::thing($tb, $id) CONTENT $data"
	params := map[string]any{
		"tb":   messageTable,
		"id":   id,
		"data": data,
	}
	if err := Execute(ctx, s.db, query, params); err != nil {
		return "", WrapError(err, "failed to create message")
	}
	return id, nil
}

// GetMessage returns a single message with author fields, redacted if deleted.
func (s *MessageStore) GetMessage(ctx context.Context, id string) (*domain.Message, error) {
	ctx, cancel := s.readCtx(ctx)
	defer cancel()

	row, err := QueryOne[messageRow](ctx, s.db, messageSelect+` FROM type::thing($tb, $id)`,
		map[string]any{"tb": messageTable, "id": id})
	if err != nil {
		return nil, WrapError(err, "failed to load message")
	}
	if row == nil || row.ID == nil {
		return nil, domain.ErrNotFound
	}
	return row.toDomain(), nil
}

// UpdateMessage applies patch to a live message within scope, in one
// conditional statement.
func (s *MessageStore) UpdateMessage(ctx context.Context, id string, scope domain.MessageScope, patch domain.MessagePatch) error {
	if patch.Empty() {
		return domain.ErrNothingToUpdate
	}

	sets := make([]string, 0, 4)
	params := map[string]any{"tb": messageTable, "id": id}
	if patch.Content != nil {
		sets = append(sets, "content = $content")
		params["content"] = *patch.Content
	}
	if patch.Type != nil {
		sets = append(sets, "message_type = $message_type")
		params["message_type"] = string(*patch.Type)
	}
	if patch.FileURL != nil {
		sets = append(sets, "file_url = $file_url")
		params["file_url"] = *patch.FileURL
	}
	sets = append(sets, "updated_at = time::now()")

	return s.conditionalUpdate(ctx, id, scope, true, strings.Join(sets, ", "), params)
}

// SoftDeleteMessage marks the message deleted. The stored content is kept.
func (s *MessageStore) SoftDeleteMessage(ctx context.Context, id string, scope domain.MessageScope) error {
	params := map[string]any{"tb": messageTable, "id": id}
	return s.conditionalUpdate(ctx, id, scope, true, "deleted = true, updated_at = time::now()", params)
}

// MarkMessageRead sets the seen flag regardless of author.
func (s *MessageStore) MarkMessageRead(ctx context.Context, id, roomID string) error {
	params := map[string]any{"tb": messageTable, "id": id}
	return s.conditionalUpdate(ctx, id, domain.MessageScope{RoomID: roomID}, false, "seen = true", params)
}

// scopeClause builds the WHERE clause for a conditional write and adds its
// parameters.
func scopeClause(scope domain.MessageScope, liveOnly bool, params map[string]any) string {
	var conds []string
	if liveOnly {
		conds = append(conds, "deleted = false")
	}
	if scope.AuthorID != "" {
		conds = append(conds, "user_id = $author")
		params["author"] = scope.AuthorID
	}
	if scope.RoomID != "" {
		conds = append(conds, "room_id = $room")
		params["room"] = scope.RoomID
	}
	if len(conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(conds, " AND ")
}

func (s *MessageStore) conditionalUpdate(ctx context.Context, id string, scope domain.MessageScope, liveOnly bool, set string, params map[string]any) error {
	ctx, cancel := s.writeCtx(ctx)
	defer cancel()

	query := fmt.Sprintf("UPDATE type::thing($tb, $id) SET %s", set) + scopeClause(scope, liveOnly, params) + " RETURN AFTER"

	rows, err := Query[messageRow](ctx, s.db, query, params)
	if err != nil {
		return WrapError(err, "failed to update message")
	}
	if len(rows) > 0 {
		return nil
	}

	row, err := s.lookup(ctx, id)
	if err != nil {
		return err
	}
	return missReason(row, scope)
}

// missReason explains why a conditional write matched nothing. A message in
// another room is reported as absent.
func missReason(row *messageRow, scope domain.MessageScope) error {
	switch {
	case row == nil || row.ID == nil:
		return domain.ErrNotFound
	case scope.RoomID != "" && row.RoomID != scope.RoomID:
		return domain.ErrNotFound
	case scope.AuthorID != "" && row.UserID != scope.AuthorID:
		return domain.ErrNotOwner
	}
	// Already deleted.
	return domain.ErrNotFound
}

func (s *MessageStore) lookup(ctx context.Context, id string) (*messageRow, error) {
	row, err := QueryOne[messageRow](ctx, s.db, "SELECT id, user_id, room_id, deleted FROM type::thing($tb, $id)",
		map[string]any{"tb": messageTable, "id": id})
	if err != nil {
		return nil, WrapError(err, "failed to check message")
	}
	return row, nil
}

// IsMessageOwner reports whether userID authored the message.
func (s *MessageStore) IsMessageOwner(ctx context.Context, id, userID string) (bool, error) {
	ctx, cancel := s.readCtx(ctx)
	defer cancel()

	row, err := QueryOne[messageRow](ctx, s.db, "SELECT id, user_id FROM type::thing($tb, $id)",
		map[string]any{"tb": messageTable, "id": id})
	if err != nil {
		return false, WrapError(err, "failed to check message owner")
	}
	if row == nil {
		return false, nil
	}
	return row.UserID == userID, nil
}

// ListRoomMessages returns one page of a room's history. Page 1 holds the
// newest messages; each page is returned oldest first.
func (s *MessageStore) ListRoomMessages(ctx context.Context, roomID string, page, pageSize int) ([]*domain.Message, error) {
	if page < 1 {
		page = domain.DefaultPage
	}
	if pageSize < 1 || pageSize > domain.MaxPageSize {
		pageSize = domain.DefaultPageSize
	}

	ctx, cancel := s.readCtx(ctx)
	defer cancel()

	query := messageSelect + ` FROM message
		WHERE room_id = $room AND deleted = false
		ORDER BY created_at DESC
		LIMIT $limit START $start`
	params := map[string]any{
		"room":  roomID,
		"limit": pageSize,
		"start": (page - 1) * pageSize,
	}

	rows, err := Query[messageRow](ctx, s.db, query, params)
	if err != nil {
		return nil, WrapError(err, "failed to list room messages")
	}

	out := make([]*domain.Message, len(rows))
	for i := range rows {
		out[len(rows)-1-i] = rows[i].toDomain()
	}
	return out, nil
}

// recordKey returns the id part of a record id, or "" for nil.
func recordKey(id *surrealmodels.RecordID) string {
	if id == nil {
		return ""
	}
	return fmt.Sprint(id.ID)
}

func customTime(t *surrealmodels.CustomDateTime) time.Time {
	if t == nil {
		return time.Time{}
	}
	return t.Time
}
