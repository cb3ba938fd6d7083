package domain

import (
	"context"
	"time"
)

// MessageType is the kind of content a message carries.
type MessageType string

const (
	MessageText    MessageType = "text"
	MessageImage   MessageType = "image"
	MessageAudio   MessageType = "audio"
	MessageFile    MessageType = "file"
	MessageSticker MessageType = "sticker"
)

// Valid reports whether t is one of the recognized message types.
func (t MessageType) Valid() bool {
	switch t {
	case MessageText, MessageImage, MessageAudio, MessageFile, MessageSticker:
		return true
	}
	return false
}

// FileMeta describes an attachment that was uploaded out of band.
type FileMeta struct {
	URL           string   `json:"file_url,omitempty"`
	Size          *int64   `json:"file_size,omitempty"`
	Name          string   `json:"file_name,omitempty"`
	ThumbnailURL  string   `json:"thumbnail_url,omitempty"`
	AudioDuration *float64 `json:"audio_duration,omitempty"`
}

// Message is a persisted chat message joined with its author's display fields.
type Message struct {
	ID        string      `json:"id"`
	RoomID    string      `json:"room_id"`
	UserID    string      `json:"user_id"`
	Content   string      `json:"content"`
	Type      MessageType `json:"message_type"`
	File      FileMeta    `json:"file"`
	ReplyToID string      `json:"reply_to_id,omitempty"`
	Seen      bool        `json:"seen"`
	Deleted   bool        `json:"deleted"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`

	// Author display fields, filled in on read.
	Username  string `json:"username,omitempty"`
	Nickname  string `json:"nickname,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// AuthorName returns the author's nickname when set, otherwise the username.
func (m *Message) AuthorName() string {
	if m.Nickname != "" {
		return m.Nickname
	}
	return m.Username
}

// Redact blanks the content of a soft deleted message. Storage keeps the
// original text; readers only ever see the redacted copy.
func (m *Message) Redact() {
	if !m.Deleted {
		return
	}
	m.Content = ""
	m.File = FileMeta{}
}

// NewMessage is the input to CreateMessage.
type NewMessage struct {
	RoomID    string
	UserID    string
	Content   string
	Type      MessageType
	File      FileMeta
	ReplyToID string
}

// MessagePatch lists the fields an edit may change. Nil means "leave as is".
type MessagePatch struct {
	Content *string
	Type    *MessageType
	FileURL *string
}

// Empty reports whether the patch changes nothing.
func (p MessagePatch) Empty() bool {
	return p.Content == nil && p.Type == nil && p.FileURL == nil
}

// MessageScope restricts a message mutation. Empty fields are not checked.
type MessageScope struct {
	// AuthorID must match the stored author.
	AuthorID string
	// RoomID must match the room the message was posted in.
	RoomID string
}

// MessageRepository is the durable message store consumed by the chat core.
type MessageRepository interface {
	// CreateMessage persists a message and returns its generated identifier.
	CreateMessage(ctx context.Context, msg *NewMessage) (string, error)

	// GetMessage returns the message joined with author display fields, or
	// ErrNotFound. Deleted messages come back redacted.
	GetMessage(ctx context.Context, id string) (*Message, error)

	// UpdateMessage applies patch to a message that is not deleted. The write
	// is conditional on scope: an author mismatch returns ErrNotOwner, while
	// a message that is absent, deleted or in another room returns
	// ErrNotFound.
	UpdateMessage(ctx context.Context, id string, scope MessageScope, patch MessagePatch) error

	// SoftDeleteMessage flags the message deleted with the same scope
	// semantics as UpdateMessage. Deleting twice returns ErrNotFound.
	SoftDeleteMessage(ctx context.Context, id string, scope MessageScope) error

	// IsMessageOwner reports whether userID authored the message. A missing
	// message is reported as false without an error.
	IsMessageOwner(ctx context.Context, id, userID string) (bool, error)

	// MarkMessageRead sets the seen flag on a message posted in roomID.
	// ErrNotFound is returned when no such message exists there.
	MarkMessageRead(ctx context.Context, id, roomID string) error

	// ListRoomMessages returns one page of non-deleted messages, oldest first
	// within the page, where page 1 is the most recent.
	ListRoomMessages(ctx context.Context, roomID string, page, pageSize int) ([]*Message, error)
}

// Pagination constants
const (
	DefaultPage     = 1
	DefaultPageSize = 50
	MaxPageSize     = 100
)
