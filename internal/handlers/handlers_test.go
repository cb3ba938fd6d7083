package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfrund/roomchat/internal/domain"
)

type listCall struct {
	roomID         string
	page, pageSize int
}

type fakeMessages struct {
	calls []listCall
	out   []*domain.Message
	err   error
}

func (f *fakeMessages) ListRoomMessages(_ context.Context, roomID string, page, pageSize int) ([]*domain.Message, error) {
	f.calls = append(f.calls, listCall{roomID, page, pageSize})
	return f.out, f.err
}

type fakeOnline struct {
	roomID string
	window time.Duration
	out    []domain.RoomUser
	err    error
}

func (f *fakeOnline) ListOnlineUsersInRoom(_ context.Context, roomID string, window time.Duration) ([]domain.RoomUser, error) {
	f.roomID, f.window = roomID, window
	return f.out, f.err
}

func newTestEcho(h *ChatHandler) *echo.Echo {
	e := echo.New()
	e.Validator = NewValidator()
	e.GET("/api/messages", h.ListMessages)
	e.GET("/api/rooms/:roomId/online", h.RoomOnlineUsers)
	return e
}

func get(e *echo.Echo, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestListMessages(t *testing.T) {
	t.Run("applies defaults", func(t *testing.T) {
		msgs := &fakeMessages{out: []*domain.Message{{ID: "m1", RoomID: "1", Content: "hi"}}}
		e := newTestEcho(NewChatHandler(msgs, &fakeOnline{}, "1", time.Minute))

		rec := get(e, "/api/messages")

		require.Equal(t, http.StatusOK, rec.Code)
		require.Len(t, msgs.calls, 1)
		assert.Equal(t, listCall{"1", domain.DefaultPage, domain.DefaultPageSize}, msgs.calls[0])

		var body MessagesResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.True(t, body.Success)
		require.Len(t, body.Messages, 1)
		assert.Equal(t, "m1", body.Messages[0].ID)
		assert.Equal(t, Pagination{Page: 1, PageSize: 50, Total: 1}, body.Pagination)
	})

	t.Run("passes explicit paging", func(t *testing.T) {
		msgs := &fakeMessages{}
		e := newTestEcho(NewChatHandler(msgs, &fakeOnline{}, "1", time.Minute))

		rec := get(e, "/api/messages?roomId=7&page=3&pageSize=100")

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []listCall{{"7", 3, 100}}, msgs.calls)
		assert.JSONEq(t, `[]`, mustField(t, rec, "messages"))
	})

	for _, target := range []string{
		"/api/messages?page=0",
		"/api/messages?pageSize=0",
		"/api/messages?pageSize=101",
		"/api/messages?page=abc",
	} {
		t.Run("rejects "+target, func(t *testing.T) {
			msgs := &fakeMessages{}
			e := newTestEcho(NewChatHandler(msgs, &fakeOnline{}, "1", time.Minute))

			rec := get(e, target)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Empty(t, msgs.calls, "no store call on invalid input")
		})
	}

	t.Run("store failure", func(t *testing.T) {
		msgs := &fakeMessages{err: errors.New("boom")}
		e := newTestEcho(NewChatHandler(msgs, &fakeOnline{}, "1", time.Minute))

		rec := get(e, "/api/messages")

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Contains(t, rec.Body.String(), "boom")
	})
}

func TestRoomOnlineUsers(t *testing.T) {
	t.Run("lists users within the window", func(t *testing.T) {
		online := &fakeOnline{out: []domain.RoomUser{{ID: "u1", Username: "alice"}}}
		e := newTestEcho(NewChatHandler(&fakeMessages{}, online, "1", 2*time.Minute))

		rec := get(e, "/api/rooms/42/online")

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "42", online.roomID)
		assert.Equal(t, 2*time.Minute, online.window)

		var body OnlineUsersResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, 1, body.Count)
		assert.Equal(t, "alice", body.Users[0].Username)
	})

	t.Run("store failure", func(t *testing.T) {
		online := &fakeOnline{err: errors.New("down")}
		e := newTestEcho(NewChatHandler(&fakeMessages{}, online, "1", time.Minute))

		rec := get(e, "/api/rooms/1/online")

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func TestHealth(t *testing.T) {
	tests := []struct {
		name   string
		db     Pinger
		status int
		state  string
	}{
		{"no database", nil, http.StatusOK, "ok"},
		{"database up", fakePinger{}, http.StatusOK, "ok"},
		{"database down", fakePinger{err: errors.New("refused")}, http.StatusServiceUnavailable, "degraded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			e.GET("/healthz", NewHealthHandler(tt.db).Check)

			rec := get(e, "/healthz")

			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, rec.Body.String(), `"status":"`+tt.state+`"`)
		})
	}
}

func mustField(t *testing.T, rec *httptest.ResponseRecorder, field string) string {
	t.Helper()
	var body map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return string(body[field])
}
