package websocket

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/labstack/echo/v4"

	"github.com/nfrund/roomchat/internal/auth"
	"github.com/nfrund/roomchat/internal/chat"
	"github.com/nfrund/roomchat/internal/pubsub"
)

// disconnectTimeout bounds the durable cleanup run after a connection ends.
const disconnectTimeout = 10 * time.Second

// Authenticator resolves the credential presented on the upgrade request.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*auth.Identity, error)
}

// Coordinator is the session core the transport feeds.
type Coordinator interface {
	Connect(conn chat.Conn, id auth.Identity, meta chat.ConnMeta) *chat.Session
	HandleFrame(ctx context.Context, s *chat.Session, raw []byte)
	Disconnect(ctx context.Context, s *chat.Session)
}

// Dependencies holds everything the Handler needs.
type Dependencies struct {
	Authenticator Authenticator
	Coordinator   Coordinator
	Publisher     pubsub.Publisher

	// OriginPatterns are host patterns allowed to connect cross-origin.
	// Empty means same-origin only.
	OriginPatterns []string
}

// Option configures a Handler.
type Option func(*Handler)

// WithPingPeriod overrides the heartbeat interval.
func WithPingPeriod(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.pingPeriod = d
		}
	}
}

// Handler upgrades authenticated requests and runs one Client per connection.
type Handler struct {
	auth           Authenticator
	coord          Coordinator
	publisher      pubsub.Publisher
	originPatterns []string
	pingPeriod     time.Duration
	logger         *slog.Logger

	mu      sync.Mutex
	clients map[string]*Client
	closing bool
	wg      sync.WaitGroup
}

// NewHandler creates a new Handler.
func NewHandler(deps Dependencies, opts ...Option) *Handler {
	h := &Handler{
		auth:           deps.Authenticator,
		coord:          deps.Coordinator,
		publisher:      deps.Publisher,
		originPatterns: deps.OriginPatterns,
		pingPeriod:     pingPeriod,
		logger:         slog.Default().With("service", "websocket"),
		clients:        make(map[string]*Client),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Serve is the echo handler for the websocket endpoint. Authentication
// happens before the upgrade so a refused client gets a plain HTTP status.
// The call returns when the connection has been torn down.
func (h *Handler) Serve(c echo.Context) error {
	r := c.Request()

	identity, err := h.auth.Authenticate(r.Context(), auth.TokenFromRequest(r))
	if err != nil {
		status := auth.StatusCode(err)
		reason := err.Error()
		if status == http.StatusInternalServerError {
			reason = "authentication failed"
		}
		h.logger.Warn("WebSocket handshake refused", "remote_addr", c.RealIP(), "status", status, "error", err)
		return c.String(status, reason)
	}

	opts := &websocket.AcceptOptions{OriginPatterns: h.originPatterns}
	if auth.UsesBearerProtocol(r) {
		opts.Subprotocols = []string{auth.BearerProtocol}
	}

	h.mu.Lock()
	if h.closing {
		h.mu.Unlock()
		return c.String(http.StatusServiceUnavailable, "server is shutting down")
	}
	h.wg.Add(1)
	h.mu.Unlock()
	defer h.wg.Done()

	conn, err := websocket.Accept(c.Response(), r, opts)
	if err != nil {
		// Accept has already written the error response.
		h.logger.Error("Failed to upgrade connection to WebSocket", "error", err)
		return nil
	}
	conn.SetReadLimit(maxMessageSize)

	client := newClient(conn, identity.UserID)
	if !h.track(client) {
		conn.Close(websocket.StatusGoingAway, "server is shutting down")
		return nil
	}
	defer h.untrack(client)

	meta := chat.ConnMeta{RemoteAddr: c.RealIP(), UserAgent: r.UserAgent()}
	session := h.coord.Connect(client, *identity, meta)
	h.publishLifecycle(pubsub.TopicClientConnected, client, meta)

	go client.writePump()
	go client.heartbeat(h.pingPeriod, func() { h.publishActivity(client) })

	client.readPump(func(frame []byte) {
		h.coord.HandleFrame(client.ctx, session, frame)
	})
	client.Close(websocket.StatusNormalClosure, "connection closed")

	ctx, cancel := context.WithTimeout(context.Background(), disconnectTimeout)
	defer cancel()
	h.coord.Disconnect(ctx, session)
	h.publishLifecycle(pubsub.TopicClientDisconnected, client, meta)
	return nil
}

// Len returns the number of live connections.
func (h *Handler) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Shutdown refuses new connections, closes the live ones and waits until
// each has run its disconnect cleanup or ctx expires.
func (h *Handler) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closing = true
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.Close(websocket.StatusGoingAway, "server is shutting down")
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.logger.Info("WebSocket connections drained", "closed", len(clients))
		return nil
	case <-ctx.Done():
		return errors.Join(errors.New("websocket connections did not drain"), ctx.Err())
	}
}

func (h *Handler) track(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closing {
		return false
	}
	h.clients[c.id] = c
	return true
}

func (h *Handler) untrack(c *Client) {
	h.mu.Lock()
	delete(h.clients, c.id)
	h.mu.Unlock()
}

func (h *Handler) publishActivity(c *Client) {
	err := pubsub.Publish(c.ctx, h.publisher, pubsub.TopicActivity, c.userID, pubsub.Activity{
		ConnectionID: c.id,
		UserID:       c.userID,
		At:           time.Now().UTC(),
	})
	if err != nil && c.ctx.Err() == nil {
		h.logger.Warn("Failed to publish heartbeat activity", "conn_id", c.id, "error", err)
	}
}

func (h *Handler) publishLifecycle(event pubsub.Event[pubsub.ClientLifecycle], c *Client, meta chat.ConnMeta) {
	err := pubsub.Publish(context.Background(), h.publisher, event, c.userID, pubsub.ClientLifecycle{
		ConnectionID: c.id,
		UserID:       c.userID,
		RemoteAddr:   meta.RemoteAddr,
		UserAgent:    meta.UserAgent,
		At:           time.Now().UTC(),
	})
	if err != nil {
		h.logger.Error("Failed to publish websocket lifecycle event", "topic", event.Name(), "conn_id", c.id, "error", err)
	}
}
