package server_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/nfrund/roomchat/internal/auth"
	"github.com/nfrund/roomchat/internal/chat"
	"github.com/nfrund/roomchat/internal/config"
	"github.com/nfrund/roomchat/internal/domain"
	"github.com/nfrund/roomchat/internal/pubsub"
	"github.com/nfrund/roomchat/internal/server"
)

func testConfig() *config.Config {
	return &config.Config{
		ServerAddr:            "127.0.0.1:0",
		JWTSecret:             "integration-secret",
		JWTIssuer:             "roomchat-test",
		JWTTTL:                time.Hour,
		DefaultRoom:           "1",
		TypingTimeout:         200 * time.Millisecond,
		PresenceSweepInterval: time.Minute,
		PresenceStaleAfter:    time.Minute,
		OnlineWindow:          2 * time.Minute,
	}
}

type harness struct {
	srv    *server.Server
	http   *httptest.Server
	store  *memStore
	tokens *auth.TokenManager
}

// setupIntegrationTest boots the full module stack over in-memory stores.
func setupIntegrationTest(t *testing.T) *harness {
	t.Helper()

	cfg := testConfig()
	store := newMemStore(
		&domain.User{ID: "alice", Username: "alice", Status: domain.UserActive},
		&domain.User{ID: "bob", Username: "bob", Nickname: "Bobby", Status: domain.UserActive},
		&domain.User{ID: "mallory", Username: "mallory", Status: domain.UserDisabled},
	)
	bus := pubsub.NewWatermillBridge()

	s, err := server.New(server.Dependencies{
		Config:      cfg,
		Messages:    store,
		OnlineUsers: store,
		Users:       store,
		Bus:         bus,
		Closers: []func(context.Context) error{
			func(context.Context) error { return bus.Close() },
		},
	})
	require.NoError(t, err)
	require.NoError(t, s.Boot(context.Background()))

	ts := httptest.NewServer(s.E)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
		ts.Close()
	})

	return &harness{srv: s, http: ts, store: store, tokens: auth.NewTokenManager(cfg)}
}

func (h *harness) token(t *testing.T, userID string) string {
	t.Helper()
	tok, err := h.tokens.Generate(userID, userID)
	require.NoError(t, err)
	return tok
}

func (h *harness) wsURL() string {
	return "ws" + strings.TrimPrefix(h.http.URL, "http") + "/ws"
}

func (h *harness) dial(t *testing.T, userID string) *websocket.Conn {
	t.Helper()
	header := http.Header{}
	header.Set("Authorization", "Bearer "+h.token(t, userID))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, h.wsURL(), header)
	require.NoError(t, err, "failed to connect as %s", userID)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, event string, data any) {
	t.Helper()
	frame, err := chat.Encode(event, data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame))
}

// readUntil reads frames until one named event arrives and decodes its data
// into v. Other frames are skipped.
func readUntil(t *testing.T, conn *websocket.Conn, event string, v any) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	var seen []string
	for {
		require.NoError(t, conn.SetReadDeadline(deadline))
		_, raw, err := conn.ReadMessage()
		require.NoError(t, err, "waiting for %q, saw %v", event, seen)

		var f chat.Frame
		require.NoError(t, json.Unmarshal(raw, &f))
		if f.Event == event {
			if v != nil {
				require.NoError(t, json.Unmarshal(f.Data, v))
			}
			return
		}
		seen = append(seen, f.Event)
	}
}
