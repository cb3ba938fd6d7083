package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/nfrund/roomchat/internal/domain"
	"github.com/stretchr/testify/require"
)

// fakeConn records every frame sent to it.
type fakeConn struct {
	id     string
	mu     sync.Mutex
	frames []Frame
}

func (f *fakeConn) ID() string { return f.id }

func (f *fakeConn) Send(raw []byte) bool {
	var fr Frame
	if err := json.Unmarshal(raw, &fr); err != nil {
		panic(err)
	}
	f.mu.Lock()
	f.frames = append(f.frames, fr)
	f.mu.Unlock()
	return true
}

// events returns the names of the frames received so far.
func (f *fakeConn) events() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.frames))
	for i, fr := range f.frames {
		out[i] = fr.Event
	}
	return out
}

// last decodes the payload of the most recent frame with the given event.
func (f *fakeConn) last(t *testing.T, event string, v any) {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.frames) - 1; i >= 0; i-- {
		if f.frames[i].Event == event {
			require.NoError(t, json.Unmarshal(f.frames[i].Data, v))
			return
		}
	}
	t.Fatalf("connection %s never received %q (got %v)", f.id, event, f.eventsLocked())
}

func (f *fakeConn) count(event string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, fr := range f.frames {
		if fr.Event == event {
			n++
		}
	}
	return n
}

func (f *fakeConn) eventsLocked() []string {
	out := make([]string, len(f.frames))
	for i, fr := range f.frames {
		out[i] = fr.Event
	}
	return out
}

func (f *fakeConn) reset() {
	f.mu.Lock()
	f.frames = nil
	f.mu.Unlock()
}

// fakeMessages is an in-memory domain.MessageRepository.
type fakeMessages struct {
	mu        sync.Mutex
	seq       int
	messages  map[string]*domain.Message
	users     map[string]string
	creates   int
	createErr error
	panicOn   string
}

func newFakeMessages() *fakeMessages {
	return &fakeMessages{messages: make(map[string]*domain.Message), users: make(map[string]string)}
}

func (f *fakeMessages) CreateMessage(_ context.Context, msg *domain.NewMessage) (string, error) {
	if f.panicOn == "create" {
		panic("boom")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	if f.createErr != nil {
		return "", f.createErr
	}
	f.seq++
	id := fmt.Sprintf("m%d", f.seq)
	now := time.Now().UTC()
	f.messages[id] = &domain.Message{
		ID:        id,
		RoomID:    msg.RoomID,
		UserID:    msg.UserID,
		Content:   msg.Content,
		Type:      msg.Type,
		File:      msg.File,
		ReplyToID: msg.ReplyToID,
		CreatedAt: now,
		UpdatedAt: now,
		Username:  f.users[msg.UserID],
	}
	return id, nil
}

// stored returns a copy of the raw stored message, without redaction.
func (f *fakeMessages) stored(id string) (domain.Message, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.messages[id]
	if !ok {
		return domain.Message{}, false
	}
	return *m, true
}

func (f *fakeMessages) createCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.creates
}

func (f *fakeMessages) GetMessage(_ context.Context, id string) (*domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.messages[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *m
	cp.Redact()
	return &cp, nil
}

func (f *fakeMessages) mutate(id string, scope domain.MessageScope, liveOnly bool, fn func(*domain.Message)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.messages[id]
	if !ok || (scope.RoomID != "" && m.RoomID != scope.RoomID) {
		return domain.ErrNotFound
	}
	if scope.AuthorID != "" && m.UserID != scope.AuthorID {
		return domain.ErrNotOwner
	}
	if liveOnly && m.Deleted {
		return domain.ErrNotFound
	}
	fn(m)
	m.UpdatedAt = time.Now().UTC()
	return nil
}

func (f *fakeMessages) UpdateMessage(_ context.Context, id string, scope domain.MessageScope, patch domain.MessagePatch) error {
	if patch.Empty() {
		return domain.ErrNothingToUpdate
	}
	return f.mutate(id, scope, true, func(m *domain.Message) {
		if patch.Content != nil {
			m.Content = *patch.Content
		}
	})
}

func (f *fakeMessages) SoftDeleteMessage(_ context.Context, id string, scope domain.MessageScope) error {
	return f.mutate(id, scope, true, func(m *domain.Message) { m.Deleted = true })
}

func (f *fakeMessages) IsMessageOwner(_ context.Context, id, userID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.messages[id]
	return ok && m.UserID == userID, nil
}

func (f *fakeMessages) MarkMessageRead(_ context.Context, id, roomID string) error {
	return f.mutate(id, domain.MessageScope{RoomID: roomID}, false, func(m *domain.Message) { m.Seen = true })
}

func (f *fakeMessages) ListRoomMessages(context.Context, string, int, int) ([]*domain.Message, error) {
	return nil, nil
}

// fakeOnline is an in-memory domain.OnlineUserRepository that counts calls.
type fakeOnline struct {
	mu        sync.Mutex
	rows      map[string]domain.OnlineUser
	users     map[string]string
	calls     int
	upsertErr error
	removeErr error
	listErr   error
}

func newFakeOnline() *fakeOnline {
	return &fakeOnline{rows: make(map[string]domain.OnlineUser), users: make(map[string]string)}
}

func (f *fakeOnline) UpsertOnlineUser(_ context.Context, row *domain.OnlineUser) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.rows[row.ConnectionID] = *row
	return nil
}

func (f *fakeOnline) RemoveOnlineUserByConnection(_ context.Context, connID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.removeErr != nil {
		return f.removeErr
	}
	delete(f.rows, connID)
	return nil
}

func (f *fakeOnline) TouchOnlineUser(context.Context, string) error { return nil }

func (f *fakeOnline) ListOnlineUsersInRoom(_ context.Context, roomID string, _ time.Duration) ([]domain.RoomUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.listErr != nil {
		return nil, f.listErr
	}
	seen := map[string]bool{}
	var out []domain.RoomUser
	for _, r := range f.rows {
		if r.RoomID != roomID || seen[r.UserID] {
			continue
		}
		seen[r.UserID] = true
		out = append(out, domain.RoomUser{ID: r.UserID, Username: f.users[r.UserID]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeOnline) PurgeStaleOnlineUsers(context.Context, time.Duration) (int, error) { return 0, nil }

func (f *fakeOnline) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeOnline) hasRow(connID string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.rows[connID]
	return ok
}
