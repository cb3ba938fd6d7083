package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/nfrund/roomchat/internal/auth"
	"github.com/nfrund/roomchat/internal/domain"
	"github.com/nfrund/roomchat/internal/presence"
	"github.com/nfrund/roomchat/internal/pubsub"
	"github.com/nfrund/roomchat/internal/rooms"
	"github.com/nfrund/roomchat/internal/typing"
)

const (
	// DefaultRoom is joined when join-room names no room.
	DefaultRoom = "1"
	// DefaultOnlineWindow is the liveness window of the online user snapshot.
	DefaultOnlineWindow = 2 * time.Minute
)

// Errors reported to the triggering connection.
var (
	ErrUnknownEvent = errors.New("unknown event")
	ErrNotInRoom    = errors.New("not in room")
)

// Deps are the collaborators of a Coordinator. Registries left nil are
// created empty.
type Deps struct {
	Messages    domain.MessageRepository
	OnlineUsers domain.OnlineUserRepository
	Presence    *presence.Registry
	Rooms       *rooms.Index
	Typing      *typing.Tracker
	Publisher   pubsub.Publisher
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithDefaultRoom sets the room joined when none is named.
func WithDefaultRoom(roomID string) Option {
	return func(c *Coordinator) {
		if roomID != "" {
			c.defaultRoom = roomID
		}
	}
}

// WithOnlineWindow sets the liveness window used for online user snapshots.
func WithOnlineWindow(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.onlineWindow = d
		}
	}
}

// WithClock replaces the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		c.now = now
	}
}

// Coordinator routes inbound events, keeps the presence registry, room
// index and typing tracker in step with each other and with the durable
// store, and fans out the resulting events.
//
// Every room-affecting transition mutates the in-memory registries first,
// then the durable store, and only then computes the recipients and the
// online user snapshot.
type Coordinator struct {
	messages    domain.MessageRepository
	onlineUsers domain.OnlineUserRepository
	presence    *presence.Registry
	rooms       *rooms.Index
	typing      *typing.Tracker
	publisher   pubsub.Publisher

	defaultRoom  string
	onlineWindow time.Duration
	now          func() time.Time
	logger       *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewCoordinator creates a Coordinator. The typing tracker's expiry
// callback is taken over to broadcast user-stop-typing.
func NewCoordinator(deps Deps, opts ...Option) *Coordinator {
	c := &Coordinator{
		messages:     deps.Messages,
		onlineUsers:  deps.OnlineUsers,
		presence:     deps.Presence,
		rooms:        deps.Rooms,
		typing:       deps.Typing,
		publisher:    deps.Publisher,
		defaultRoom:  DefaultRoom,
		onlineWindow: DefaultOnlineWindow,
		now:          time.Now,
		logger:       slog.Default().With("service", "chat"),
		sessions:     make(map[string]*Session),
	}
	if c.presence == nil {
		c.presence = presence.NewRegistry()
	}
	if c.rooms == nil {
		c.rooms = rooms.NewIndex()
	}
	if c.typing == nil {
		c.typing = typing.NewTracker()
	}
	for _, opt := range opts {
		opt(c)
	}
	c.typing.SetOnExpire(c.typingExpired)
	return c
}

// Connect registers an authenticated connection. The returned session is
// in the Connected state, in no room.
func (c *Coordinator) Connect(conn Conn, id auth.Identity, meta ConnMeta) *Session {
	s := &Session{conn: conn, identity: id, meta: meta, state: stateConnected{}}

	c.presence.Register(presence.Entry{
		ConnectionID: conn.ID(),
		UserID:       id.UserID,
		Username:     id.Username,
		Avatar:       id.Avatar,
	})

	c.mu.Lock()
	c.sessions[conn.ID()] = s
	c.mu.Unlock()

	c.logger.Info("client connected", "conn_id", conn.ID(), "user_id", id.UserID)
	return s
}

// Session returns the live session of a connection.
func (c *Coordinator) Session(connectionID string) (*Session, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.sessions[connectionID]
	return s, ok
}

// Len returns the number of live sessions.
func (c *Coordinator) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.sessions)
}

// HandleFrame decodes and dispatches one raw inbound frame.
func (c *Coordinator) HandleFrame(ctx context.Context, s *Session, raw []byte) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil || f.Event == "" {
		c.sendError(s, "", "malformed frame", err)
		return
	}
	c.Handle(ctx, s, f.Event, f.Data)
}

// Handle dispatches one inbound event. Failures are reported to s only; a
// panicking handler is recovered so other sessions are unaffected.
func (c *Coordinator) Handle(ctx context.Context, s *Session, event string, data json.RawMessage) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("event handler panicked",
				"event", event, "conn_id", s.ID(), "panic", r, "stack", string(debug.Stack()))
			c.sendError(s, event, "internal error", nil)
		}
	}()

	c.publishActivity(ctx, s)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, closed := s.state.(stateClosed); closed {
		return
	}

	var err error
	switch event {
	case EventJoinRoom:
		err = c.handleJoin(ctx, s, data)
	case EventLeaveRoom:
		err = c.handleLeave(ctx, s, data)
	case EventSendMessage:
		err = c.handleSend(ctx, s, data)
	case EventTyping:
		err = c.handleTyping(s, data)
	case EventEditMessage:
		err = c.handleEdit(ctx, s, data)
	case EventDeleteMessage:
		err = c.handleDelete(ctx, s, data)
	case EventMarkAsRead:
		err = c.handleMarkAsRead(ctx, s, data)
	default:
		err = ErrUnknownEvent
	}

	if err != nil {
		c.reportError(s, event, err)
	}
}

// Disconnect tears down the session. Cleanup is best effort: every step
// runs even when an earlier one fails. Calling it twice is a no-op.
func (c *Coordinator) Disconnect(ctx context.Context, s *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, closed := s.state.(stateClosed); closed {
		return
	}
	s.state = stateClosed{}

	c.mu.Lock()
	delete(c.sessions, s.ID())
	c.mu.Unlock()

	entry, ok := c.presence.Unregister(s.ID())
	if !ok || entry.RoomID == "" {
		c.logger.Info("client disconnected", "conn_id", s.ID(), "user_id", s.UserID())
		return
	}

	roomID := entry.RoomID
	c.rooms.Leave(roomID, s.ID())
	c.stopTyping(roomID, s, false)

	if err := c.onlineUsers.RemoveOnlineUserByConnection(ctx, s.ID()); err != nil {
		c.logger.Error("failed to remove online user row", "conn_id", s.ID(), "room_id", roomID, "error", err)
	}

	c.announceDeparture(ctx, roomID, s)
	c.logger.Info("client disconnected", "conn_id", s.ID(), "user_id", s.UserID(), "room_id", roomID)
}

// Shutdown cancels pending typing timers.
func (c *Coordinator) Shutdown() {
	c.typing.Close()
}

func (c *Coordinator) handleJoin(ctx context.Context, s *Session, data json.RawMessage) error {
	var p JoinRoomPayload
	if err := decode(data, &p); err != nil {
		return err
	}
	target := p.RoomID.String()
	if target == "" {
		target = c.defaultRoom
	}

	switch st := s.state.(type) {
	case stateInRoom:
		if st.roomID == target {
			return c.rejoin(ctx, s, target)
		}
		if err := c.leaveRoom(ctx, s, st.roomID); err != nil {
			c.reportError(s, EventJoinRoom, storeFailure("failed to clear presence", err))
		}
		c.broadcast(st.roomID, EventUserOffline, c.userOffline(ctx, st.roomID, s))
	}

	c.rooms.Join(target, s.conn)
	c.presence.SetRoom(s.ID(), target)
	s.state = stateInRoom{roomID: target}

	storeErr := c.onlineUsers.UpsertOnlineUser(ctx, c.onlineRow(s, target))
	if storeErr != nil {
		c.logger.Error("failed to write online user row", "conn_id", s.ID(), "room_id", target, "error", storeErr)
	}

	users := c.snapshot(ctx, target)
	c.broadcast(target, EventUserOnline, UserOnline{
		UserID:      s.UserID(),
		Username:    s.identity.Username,
		Avatar:      s.identity.Avatar,
		Timestamp:   c.timestamp(),
		OnlineUsers: users,
	})
	c.sendTo(s, EventRoomJoined, RoomJoined{
		RoomID:      target,
		OnlineUsers: users,
		Message:     fmt.Sprintf("joined room %s", target),
	})
	c.broadcast(target, EventSystemMessage, newSystemMessage(s.identity.Username+" joined the chat", c.now()))

	c.logger.Info("joined room", "conn_id", s.ID(), "user_id", s.UserID(), "room_id", target, "online", len(users))
	if storeErr != nil {
		return storeFailure("failed to record presence", storeErr)
	}
	return nil
}

// rejoin answers a join for the room the session already occupies.
func (c *Coordinator) rejoin(ctx context.Context, s *Session, roomID string) error {
	storeErr := c.onlineUsers.UpsertOnlineUser(ctx, c.onlineRow(s, roomID))
	c.sendTo(s, EventRoomJoined, RoomJoined{
		RoomID:      roomID,
		OnlineUsers: c.snapshot(ctx, roomID),
		Message:     fmt.Sprintf("joined room %s", roomID),
	})
	if storeErr != nil {
		return storeFailure("failed to record presence", storeErr)
	}
	return nil
}

func (c *Coordinator) handleLeave(ctx context.Context, s *Session, data json.RawMessage) error {
	var p LeaveRoomPayload
	if err := decode(data, &p); err != nil {
		return err
	}
	roomID, err := c.requireRoom(s, p.RoomID)
	if err != nil {
		return err
	}

	storeErr := c.leaveRoom(ctx, s, roomID)
	c.announceDeparture(ctx, roomID, s)
	c.sendTo(s, EventRoomLeft, RoomLeft{RoomID: roomID, Message: fmt.Sprintf("left room %s", roomID)})

	c.logger.Info("left room", "conn_id", s.ID(), "user_id", s.UserID(), "room_id", roomID)
	if storeErr != nil {
		return storeFailure("failed to clear presence", storeErr)
	}
	return nil
}

// leaveRoom moves the session from roomID back to Connected and deletes
// its online-user row. Store failures are logged and returned; the
// in-memory transition is not rolled back.
func (c *Coordinator) leaveRoom(ctx context.Context, s *Session, roomID string) error {
	c.rooms.Leave(roomID, s.ID())
	c.presence.SetRoom(s.ID(), "")
	s.state = stateConnected{}
	c.stopTyping(roomID, s, false)

	if err := c.onlineUsers.RemoveOnlineUserByConnection(ctx, s.ID()); err != nil {
		c.logger.Error("failed to remove online user row", "conn_id", s.ID(), "room_id", roomID, "error", err)
		return err
	}
	return nil
}

// announceDeparture tells the room that s left.
func (c *Coordinator) announceDeparture(ctx context.Context, roomID string, s *Session) {
	c.broadcast(roomID, EventUserOffline, c.userOffline(ctx, roomID, s))
	c.broadcast(roomID, EventSystemMessage, newSystemMessage(s.identity.Username+" left the chat", c.now()))
}

func (c *Coordinator) userOffline(ctx context.Context, roomID string, s *Session) UserOffline {
	return UserOffline{
		UserID:      s.UserID(),
		Username:    s.identity.Username,
		Timestamp:   c.timestamp(),
		OnlineUsers: c.snapshot(ctx, roomID),
	}
}

func (c *Coordinator) handleSend(ctx context.Context, s *Session, data json.RawMessage) error {
	var p SendMessagePayload
	if err := decode(data, &p); err != nil {
		return err
	}
	roomID, err := c.requireRoom(s, p.RoomID)
	if err != nil {
		return err
	}
	if err := domain.Validate(p); err != nil {
		return err
	}

	msgType := domain.MessageType(p.MessageType)
	if msgType == "" {
		msgType = domain.MessageText
	}

	id, err := c.messages.CreateMessage(ctx, &domain.NewMessage{
		RoomID:  roomID,
		UserID:  s.UserID(),
		Content: p.Content,
		Type:    msgType,
		File: domain.FileMeta{
			URL:           p.FileURL,
			Size:          p.FileSize,
			Name:          p.FileName,
			ThumbnailURL:  p.ThumbnailURL,
			AudioDuration: p.AudioDuration,
		},
		ReplyToID: p.ReplyToID.String(),
	})
	if err != nil {
		return storeFailure("failed to send message", err)
	}

	stored, err := c.messages.GetMessage(ctx, id)
	if err != nil {
		return storeFailure("failed to send message", err)
	}

	var reply *ReplyPreview
	if stored.ReplyToID != "" {
		quoted, err := c.messages.GetMessage(ctx, stored.ReplyToID)
		switch {
		case err == nil:
			reply = replyPreview(quoted)
		case !errors.Is(err, domain.ErrNotFound):
			c.logger.Warn("failed to load replied message", "message_id", stored.ReplyToID, "error", err)
		}
	}

	c.broadcast(roomID, EventNewMessage, newMessagePayload(stored, reply))
	c.stopTyping(roomID, s, true)
	return nil
}

func (c *Coordinator) handleTyping(s *Session, data json.RawMessage) error {
	var p TypingPayload
	if err := decode(data, &p); err != nil {
		return err
	}
	roomID, err := c.requireRoom(s, p.RoomID)
	if err != nil {
		return err
	}

	if p.IsTyping {
		c.typing.Start(roomID, s.UserID(), s.identity.Username)
		c.broadcastExcept(roomID, EventUserTyping, UserTyping{
			UserID:      s.UserID(),
			Username:    s.identity.Username,
			TypingUsers: c.typing.Current(roomID),
		}, s.ID())
		return nil
	}

	c.typing.Stop(roomID, s.UserID())
	c.broadcastExcept(roomID, EventUserStopTyping, UserTyping{
		UserID:      s.UserID(),
		Username:    s.identity.Username,
		TypingUsers: c.typing.Current(roomID),
	}, s.ID())
	return nil
}

// stopTyping clears the user's indicator. With always set the room is told
// even if no indicator was active.
func (c *Coordinator) stopTyping(roomID string, s *Session, always bool) {
	wasTyping := c.typing.Stop(roomID, s.UserID())
	if !wasTyping && !always {
		return
	}
	c.broadcast(roomID, EventUserStopTyping, UserTyping{
		UserID:      s.UserID(),
		Username:    s.identity.Username,
		TypingUsers: c.typing.Current(roomID),
	})
}

func (c *Coordinator) typingExpired(roomID, userID, username string) {
	c.broadcast(roomID, EventUserStopTyping, UserTyping{
		UserID:      userID,
		Username:    username,
		TypingUsers: c.typing.Current(roomID),
	})
}

func (c *Coordinator) handleEdit(ctx context.Context, s *Session, data json.RawMessage) error {
	var p EditMessagePayload
	if err := decode(data, &p); err != nil {
		return err
	}
	roomID, err := c.requireRoom(s, p.RoomID)
	if err != nil {
		return err
	}
	if err := domain.Validate(p); err != nil {
		return err
	}

	id := p.MessageID.String()
	if err := c.checkOwner(ctx, id, s.UserID()); err != nil {
		return err
	}

	content := p.Content
	scope := domain.MessageScope{AuthorID: s.UserID(), RoomID: roomID}
	if err := c.messages.UpdateMessage(ctx, id, scope, domain.MessagePatch{Content: &content}); err != nil {
		return mutationFailure("failed to edit message", err)
	}

	updated, err := c.messages.GetMessage(ctx, id)
	if err != nil {
		return storeFailure("failed to edit message", err)
	}

	c.broadcast(roomID, EventMessageEdited, MessageEdited{
		MessageID: updated.ID,
		Content:   updated.Content,
		UpdatedAt: updated.UpdatedAt,
	})
	return nil
}

func (c *Coordinator) handleDelete(ctx context.Context, s *Session, data json.RawMessage) error {
	var p DeleteMessagePayload
	if err := decode(data, &p); err != nil {
		return err
	}
	roomID, err := c.requireRoom(s, p.RoomID)
	if err != nil {
		return err
	}
	if err := domain.Validate(p); err != nil {
		return err
	}

	id := p.MessageID.String()
	if err := c.checkOwner(ctx, id, s.UserID()); err != nil {
		return err
	}
	scope := domain.MessageScope{AuthorID: s.UserID(), RoomID: roomID}
	if err := c.messages.SoftDeleteMessage(ctx, id, scope); err != nil {
		return mutationFailure("failed to delete message", err)
	}

	c.broadcast(roomID, EventMessageDeleted, MessageDeleted{MessageID: id})
	return nil
}

// checkOwner rejects early when the durable store says userID is not the
// author. The conditional write that follows re-checks atomically.
func (c *Coordinator) checkOwner(ctx context.Context, messageID, userID string) error {
	owner, err := c.messages.IsMessageOwner(ctx, messageID, userID)
	if err != nil {
		return storeFailure("failed to verify message owner", err)
	}
	if !owner {
		return domain.ErrNotOwner
	}
	return nil
}

func (c *Coordinator) handleMarkAsRead(ctx context.Context, s *Session, data json.RawMessage) error {
	var p MarkAsReadPayload
	if err := decode(data, &p); err != nil {
		return err
	}
	roomID, err := c.requireRoom(s, p.RoomID)
	if err != nil {
		return err
	}
	if err := domain.Validate(p); err != nil {
		return err
	}

	id := p.MessageID.String()
	if err := c.messages.MarkMessageRead(ctx, id, roomID); err != nil {
		return mutationFailure("failed to mark message read", err)
	}

	c.broadcastExcept(roomID, EventMessageRead, MessageRead{MessageID: id, ReadBy: s.UserID()}, s.ID())
	return nil
}

// requireRoom resolves the room an InRoom event refers to. An empty room
// means the session's current room.
func (c *Coordinator) requireRoom(s *Session, requested ID) (string, error) {
	st, ok := s.state.(stateInRoom)
	if !ok {
		return "", ErrNotInRoom
	}
	if requested != "" && requested.String() != st.roomID {
		return "", fmt.Errorf("%w %s", ErrNotInRoom, requested)
	}
	return st.roomID, nil
}

// snapshot returns the users online in the room. The durable listing is
// preferred; when it fails the in-memory registries answer instead.
func (c *Coordinator) snapshot(ctx context.Context, roomID string) []domain.RoomUser {
	users, err := c.onlineUsers.ListOnlineUsersInRoom(ctx, roomID, c.onlineWindow)
	if err == nil {
		if users == nil {
			users = []domain.RoomUser{}
		}
		return users
	}

	c.logger.Warn("falling back to in-memory online users", "room_id", roomID, "error", err)
	return c.memberSnapshot(roomID)
}

func (c *Coordinator) memberSnapshot(roomID string) []domain.RoomUser {
	seen := make(map[string]struct{})
	users := []domain.RoomUser{}
	for _, connID := range c.rooms.Members(roomID) {
		e, ok := c.presence.Lookup(connID)
		if !ok {
			continue
		}
		if _, dup := seen[e.UserID]; dup {
			continue
		}
		seen[e.UserID] = struct{}{}
		users = append(users, domain.RoomUser{ID: e.UserID, Username: e.Username, AvatarURL: e.Avatar})
	}
	return users
}

func (c *Coordinator) onlineRow(s *Session, roomID string) *domain.OnlineUser {
	return &domain.OnlineUser{
		ConnectionID: s.ID(),
		UserID:       s.UserID(),
		RoomID:       roomID,
		IPAddress:    s.meta.RemoteAddr,
		DeviceInfo:   s.meta.UserAgent,
	}
}

func (c *Coordinator) publishActivity(ctx context.Context, s *Session) {
	if c.publisher == nil {
		return
	}
	err := pubsub.Publish(ctx, c.publisher, pubsub.TopicActivity, s.UserID(), pubsub.Activity{
		ConnectionID: s.ID(),
		UserID:       s.UserID(),
		At:           c.now().UTC(),
	})
	if err != nil {
		c.logger.Debug("failed to publish activity", "conn_id", s.ID(), "error", err)
	}
}

func (c *Coordinator) broadcast(roomID, event string, payload any) {
	c.broadcastExcept(roomID, event, payload)
}

func (c *Coordinator) broadcastExcept(roomID, event string, payload any, exclude ...string) {
	frame, err := Encode(event, payload)
	if err != nil {
		c.logger.Error("failed to encode broadcast", "event", event, "error", err)
		return
	}
	c.rooms.Broadcast(roomID, frame, exclude...)
}

func (c *Coordinator) sendTo(s *Session, event string, payload any) {
	frame, err := Encode(event, payload)
	if err != nil {
		c.logger.Error("failed to encode frame", "event", event, "error", err)
		return
	}
	s.send(frame)
}

func (c *Coordinator) timestamp() string {
	return c.now().UTC().Format(time.RFC3339Nano)
}
