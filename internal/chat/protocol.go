package chat

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/nfrund/roomchat/internal/domain"
)

// Inbound event names.
const (
	EventJoinRoom      = "join-room"
	EventLeaveRoom     = "leave-room"
	EventSendMessage   = "send-message"
	EventTyping        = "typing"
	EventEditMessage   = "edit-message"
	EventDeleteMessage = "delete-message"
	EventMarkAsRead    = "mark-as-read"
)

// Outbound event names.
const (
	EventRoomJoined     = "room-joined"
	EventRoomLeft       = "room-left"
	EventUserOnline     = "user-online"
	EventUserOffline    = "user-offline"
	EventNewMessage     = "new-message"
	EventMessageEdited  = "message-edited"
	EventMessageDeleted = "message-deleted"
	EventMessageRead    = "message-read"
	EventUserTyping     = "user-typing"
	EventUserStopTyping = "user-stop-typing"
	EventSystemMessage  = "system-message"
	EventError          = "error"
)

// Frame is the envelope of every message on the wire, in both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Encode builds an outbound frame.
func Encode(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", event, err)
	}
	return json.Marshal(Frame{Event: event, Data: raw})
}

// ID is an identifier that clients may send either as a JSON string or a
// JSON number.
type ID string

// UnmarshalJSON implements json.Unmarshaler.
func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("identifier must be a string or number: %w", err)
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string { return string(id) }

// Inbound payloads.

type JoinRoomPayload struct {
	RoomID ID `json:"roomId"`
}

type LeaveRoomPayload struct {
	RoomID ID `json:"roomId"`
}

type SendMessagePayload struct {
	RoomID        ID       `json:"roomId"`
	Content       string   `json:"content" validate:"required_without=FileURL,max=10000"`
	MessageType   string   `json:"messageType" validate:"omitempty,messagetype"`
	FileURL       string   `json:"fileUrl"`
	FileSize      *int64   `json:"fileSize" validate:"omitempty,min=0"`
	FileName      string   `json:"fileName"`
	ThumbnailURL  string   `json:"thumbnailUrl"`
	AudioDuration *float64 `json:"audioDuration" validate:"omitempty,min=0"`
	ReplyToID     ID       `json:"replyToId"`
}

type TypingPayload struct {
	RoomID   ID   `json:"roomId"`
	IsTyping bool `json:"isTyping"`
}

type EditMessagePayload struct {
	MessageID ID     `json:"messageId" validate:"required"`
	Content   string `json:"content" validate:"required,max=10000"`
	RoomID    ID     `json:"roomId"`
}

type DeleteMessagePayload struct {
	MessageID ID `json:"messageId" validate:"required"`
	RoomID    ID `json:"roomId"`
}

type MarkAsReadPayload struct {
	MessageID ID `json:"messageId" validate:"required"`
	RoomID    ID `json:"roomId"`
}

// Outbound payloads.

type RoomJoined struct {
	RoomID      string            `json:"roomId"`
	OnlineUsers []domain.RoomUser `json:"onlineUsers"`
	Message     string            `json:"message"`
}

type RoomLeft struct {
	RoomID  string `json:"roomId"`
	Message string `json:"message"`
}

type UserOnline struct {
	UserID      string            `json:"userId"`
	Username    string            `json:"username"`
	Avatar      string            `json:"avatar"`
	Timestamp   string            `json:"timestamp"`
	OnlineUsers []domain.RoomUser `json:"onlineUsers"`
}

type UserOffline struct {
	UserID      string            `json:"userId"`
	Username    string            `json:"username"`
	Timestamp   string            `json:"timestamp"`
	OnlineUsers []domain.RoomUser `json:"onlineUsers"`
}

// FilePayload describes an attachment of a new-message.
type FilePayload struct {
	Name     string   `json:"name"`
	Size     int64    `json:"size"`
	Type     string   `json:"type"`
	URL      string   `json:"url"`
	Audio    bool     `json:"audio"`
	Duration *float64 `json:"duration"`
	Preview  *string  `json:"preview"`
}

// ReplyPreview is the quoted message shown above a reply.
type ReplyPreview struct {
	ID       string `json:"_id"`
	Content  string `json:"content"`
	SenderID string `json:"senderId"`
	Username string `json:"username"`
	Deleted  bool   `json:"deleted"`
}

type NewMessage struct {
	ID           string        `json:"_id"`
	RoomID       string        `json:"roomId"`
	Content      string        `json:"content"`
	SenderID     string        `json:"senderId"`
	Username     string        `json:"username"`
	Avatar       string        `json:"avatar"`
	Timestamp    string        `json:"timestamp"`
	Date         string        `json:"date"`
	MessageType  string        `json:"messageType"`
	Files        []FilePayload `json:"files"`
	Saved        bool          `json:"saved"`
	Distributed  bool          `json:"distributed"`
	Seen         bool          `json:"seen"`
	Deleted      bool          `json:"deleted"`
	ReplyMessage *ReplyPreview `json:"replyMessage"`
}

type MessageEdited struct {
	MessageID string    `json:"messageId"`
	Content   string    `json:"content"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type MessageDeleted struct {
	MessageID string `json:"messageId"`
}

type MessageRead struct {
	MessageID string `json:"messageId"`
	ReadBy    string `json:"readBy"`
}

type UserTyping struct {
	UserID      string   `json:"userId"`
	Username    string   `json:"username"`
	TypingUsers []string `json:"typingUsers"`
}

type SystemMessage struct {
	ID        string `json:"_id"`
	SenderID  string `json:"senderId"`
	Content   string `json:"content"`
	System    bool   `json:"system"`
	Timestamp string `json:"timestamp"`
}

type ErrorPayload struct {
	Event   string `json:"event"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

// systemSenderID marks messages generated by the server.
const systemSenderID = "0"

func newSystemMessage(content string, now time.Time) SystemMessage {
	return SystemMessage{
		ID:        fmt.Sprintf("system_%d", now.UnixMilli()),
		SenderID:  systemSenderID,
		Content:   content,
		System:    true,
		Timestamp: now.UTC().Format(time.RFC3339Nano),
	}
}

// newMessagePayload flattens a stored message into the new-message shape.
func newMessagePayload(m *domain.Message, reply *ReplyPreview) NewMessage {
	return NewMessage{
		ID:           m.ID,
		RoomID:       m.RoomID,
		Content:      m.Content,
		SenderID:     m.UserID,
		Username:     m.AuthorName(),
		Avatar:       m.AvatarURL,
		Timestamp:    m.CreatedAt.UTC().Format(time.RFC3339),
		Date:         m.CreatedAt.UTC().Format(time.DateOnly),
		MessageType:  string(m.Type),
		Files:        filesOf(m),
		Saved:        true,
		Distributed:  true,
		Seen:         m.Seen,
		Deleted:      m.Deleted,
		ReplyMessage: reply,
	}
}

func replyPreview(m *domain.Message) *ReplyPreview {
	if m == nil {
		return nil
	}
	return &ReplyPreview{
		ID:       m.ID,
		Content:  m.Content,
		SenderID: m.UserID,
		Username: m.AuthorName(),
		Deleted:  m.Deleted,
	}
}

// filesOf returns the attachment list of a message; empty when it has none.
func filesOf(m *domain.Message) []FilePayload {
	f := m.File
	if f.URL == "" {
		return []FilePayload{}
	}

	name := f.Name
	if name == "" {
		name = "file"
	}
	var size int64
	if f.Size != nil {
		size = *f.Size
	}

	var preview *string
	switch {
	case f.ThumbnailURL != "":
		preview = &f.ThumbnailURL
	case m.Type == domain.MessageImage:
		preview = &f.URL
	}

	return []FilePayload{{
		Name:     name,
		Size:     size,
		Type:     fileType(m.Type, f.URL),
		URL:      f.URL,
		Audio:    m.Type == domain.MessageAudio,
		Duration: f.AudioDuration,
		Preview:  preview,
	}}
}

func fileType(t domain.MessageType, url string) string {
	switch t {
	case domain.MessageImage:
		return "png"
	case domain.MessageAudio:
		return "mp3"
	}
	if ext := strings.TrimPrefix(strings.ToLower(path.Ext(url)), "."); ext != "" {
		return ext
	}
	return "file"
}
