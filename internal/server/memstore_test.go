package server_test

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/nfrund/roomchat/internal/domain"
)

// memStore is an in-memory stand-in for the SurrealDB stores.
type memStore struct {
	mu       sync.Mutex
	users    map[string]*domain.User
	messages map[string]*domain.Message
	online   map[string]*domain.OnlineUser
	seq      int
}

func newMemStore(users ...*domain.User) *memStore {
	m := &memStore{
		users:    make(map[string]*domain.User),
		messages: make(map[string]*domain.Message),
		online:   make(map[string]*domain.OnlineUser),
	}
	for _, u := range users {
		m.users[u.ID] = u
	}
	return m
}

func (m *memStore) FindUserByID(_ context.Context, id string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memStore) CreateMessage(_ context.Context, in *domain.NewMessage) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	id := strconv.Itoa(m.seq)
	now := time.Now().UTC().Add(time.Duration(m.seq) * time.Millisecond)
	m.messages[id] = &domain.Message{
		ID: id, RoomID: in.RoomID, UserID: in.UserID, Content: in.Content,
		Type: in.Type, File: in.File, ReplyToID: in.ReplyToID,
		CreatedAt: now, UpdatedAt: now,
	}
	return id, nil
}

func (m *memStore) view(msg *domain.Message) *domain.Message {
	cp := *msg
	if u, ok := m.users[cp.UserID]; ok {
		cp.Username, cp.Nickname, cp.AvatarURL = u.Username, u.Nickname, u.AvatarURL
	}
	cp.Redact()
	return &cp
}

func (m *memStore) GetMessage(_ context.Context, id string) (*domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return m.view(msg), nil
}

func (m *memStore) scoped(id string, scope domain.MessageScope, liveOnly bool) (*domain.Message, error) {
	msg, ok := m.messages[id]
	if !ok || (scope.RoomID != "" && msg.RoomID != scope.RoomID) {
		return nil, domain.ErrNotFound
	}
	if scope.AuthorID != "" && msg.UserID != scope.AuthorID {
		return nil, domain.ErrNotOwner
	}
	if liveOnly && msg.Deleted {
		return nil, domain.ErrNotFound
	}
	return msg, nil
}

func (m *memStore) UpdateMessage(_ context.Context, id string, scope domain.MessageScope, patch domain.MessagePatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, err := m.scoped(id, scope, true)
	if err != nil {
		return err
	}
	if patch.Content != nil {
		msg.Content = *patch.Content
	}
	if patch.Type != nil {
		msg.Type = *patch.Type
	}
	if patch.FileURL != nil {
		msg.File.URL = *patch.FileURL
	}
	msg.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *memStore) SoftDeleteMessage(_ context.Context, id string, scope domain.MessageScope) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, err := m.scoped(id, scope, true)
	if err != nil {
		return err
	}
	msg.Deleted = true
	return nil
}

func (m *memStore) IsMessageOwner(_ context.Context, id, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.messages[id]
	return ok && msg.UserID == userID, nil
}

func (m *memStore) MarkMessageRead(_ context.Context, id, roomID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, err := m.scoped(id, domain.MessageScope{RoomID: roomID}, false)
	if err != nil {
		return err
	}
	msg.Seen = true
	return nil
}

func (m *memStore) ListRoomMessages(_ context.Context, roomID string, page, pageSize int) ([]*domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []*domain.Message
	for _, msg := range m.messages {
		if msg.RoomID == roomID && !msg.Deleted {
			all = append(all, m.view(msg))
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })

	start := (page - 1) * pageSize
	if start >= len(all) {
		return nil, nil
	}
	end := min(start+pageSize, len(all))
	out := all[start:end]
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *memStore) UpsertOnlineUser(_ context.Context, row *domain.OnlineUser) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	cp := *row
	cp.LastActive = now
	if prev, ok := m.online[row.ConnectionID]; ok {
		cp.ConnectedAt = prev.ConnectedAt
	} else {
		cp.ConnectedAt = now
	}
	m.online[row.ConnectionID] = &cp
	return nil
}

func (m *memStore) RemoveOnlineUserByConnection(_ context.Context, connectionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.online, connectionID)
	return nil
}

func (m *memStore) TouchOnlineUser(_ context.Context, connectionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if row, ok := m.online[connectionID]; ok {
		row.LastActive = time.Now()
	}
	return nil
}

func (m *memStore) ListOnlineUsersInRoom(_ context.Context, roomID string, window time.Duration) ([]domain.RoomUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := time.Now().Add(-window)
	seen := make(map[string]bool)
	var out []domain.RoomUser
	for _, row := range m.online {
		if row.RoomID != roomID || row.LastActive.Before(cutoff) || seen[row.UserID] {
			continue
		}
		seen[row.UserID] = true
		u := m.users[row.UserID]
		out = append(out, domain.RoomUser{
			ID: row.UserID, Username: u.Username, Nickname: u.Nickname, AvatarURL: u.AvatarURL,
			LastActive: row.LastActive, ConnectedAt: row.ConnectedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ConnectedAt.After(out[j].ConnectedAt) })
	return out, nil
}

func (m *memStore) PurgeStaleOnlineUsers(_ context.Context, staleness time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := time.Now().Add(-staleness)
	n := 0
	for id, row := range m.online {
		if row.LastActive.Before(cutoff) {
			delete(m.online, id)
			n++
		}
	}
	return n, nil
}

func (m *memStore) onlineRows() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.online)
}
