package chatroom

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/labstack/echo/v4"

	"github.com/nfrund/roomchat/internal/auth"
	"github.com/nfrund/roomchat/internal/chat"
	"github.com/nfrund/roomchat/internal/handlers"
	"github.com/nfrund/roomchat/internal/middleware"
	"github.com/nfrund/roomchat/internal/module"
	"github.com/nfrund/roomchat/internal/presence"
	"github.com/nfrund/roomchat/internal/registry"
	"github.com/nfrund/roomchat/internal/typing"
	"github.com/nfrund/roomchat/internal/websocket"
)

// Service keys published by this module.
const (
	CoordinatorKey   registry.Key[*chat.Coordinator]   = "chat.coordinator"
	AuthenticatorKey registry.Key[*auth.Authenticator] = "chat.authenticator"
)

// ChatModule wires the session coordinator, its websocket transport, the
// presence background workers and the REST endpoints.
type ChatModule struct {
	module.BaseModule

	coord    *chat.Coordinator
	auth     *auth.Authenticator
	ws       *websocket.Handler
	sweeper  *presence.Sweeper
	activity *presence.ActivityTracker
	api      *handlers.ChatHandler
}

// New creates a new ChatModule. Its services are built in Register.
func New() *ChatModule {
	return &ChatModule{}
}

// Name returns the module name.
func (m *ChatModule) Name() string {
	return "chat"
}

// Register builds the module's services from the core services in reg.
func (m *ChatModule) Register(reg *registry.Registry) error {
	cfg := reg.Config()

	messages, ok := registry.Get(reg, registry.MessagesKey)
	if !ok {
		return errors.New("chat: message store not registered")
	}
	online, ok := registry.Get(reg, registry.OnlineUsersKey)
	if !ok {
		return errors.New("chat: online user store not registered")
	}
	users, ok := registry.Get(reg, registry.UsersKey)
	if !ok {
		return errors.New("chat: user store not registered")
	}
	publisher, ok := registry.Get(reg, registry.PublisherKey)
	if !ok {
		return errors.New("chat: publisher not registered")
	}

	m.auth = auth.NewAuthenticator(auth.NewTokenManager(cfg), users)
	m.coord = chat.NewCoordinator(chat.Deps{
		Messages:    messages,
		OnlineUsers: online,
		Typing:      typing.NewTracker(typing.WithTimeout(cfg.GetTypingTimeout())),
		Publisher:   publisher,
	},
		chat.WithDefaultRoom(cfg.GetDefaultRoom()),
		chat.WithOnlineWindow(cfg.GetOnlineWindow()),
	)
	m.ws = websocket.NewHandler(websocket.Dependencies{
		Authenticator:  m.auth,
		Coordinator:    m.coord,
		Publisher:      publisher,
		OriginPatterns: cfg.GetAllowedOrigins(),
	})
	m.sweeper = presence.NewSweeper(online,
		presence.WithInterval(cfg.GetPresenceSweepInterval()),
		presence.WithStaleAfter(cfg.GetPresenceStaleAfter()),
	)
	m.activity = presence.NewActivityTracker(online, 0)
	m.api = handlers.NewChatHandler(messages, online, cfg.GetDefaultRoom(), cfg.GetOnlineWindow())

	registry.Set(reg, CoordinatorKey, m.coord)
	registry.Set(reg, AuthenticatorKey, m.auth)
	return nil
}

// Boot subscribes the background workers to the bus, starts the sweeper
// and mounts the routes.
func (m *ChatModule) Boot(ctx context.Context, g *echo.Group, reg *registry.Registry) error {
	subscriber, ok := registry.Get(reg, registry.SubscriberKey)
	if !ok {
		return errors.New("chat: subscriber not registered")
	}
	if err := m.activity.Subscribe(ctx, subscriber); err != nil {
		return fmt.Errorf("chat: subscribe activity tracker: %w", err)
	}
	if err := m.coord.SubscribeLifecycle(ctx, subscriber); err != nil {
		return fmt.Errorf("chat: subscribe lifecycle log: %w", err)
	}

	// Reclaim rows left behind by a previous process before accepting clients.
	if n, err := m.sweeper.SweepOnce(ctx); err != nil {
		slog.Warn("Initial presence sweep failed", "error", err)
	} else if n > 0 {
		slog.Info("Initial presence sweep removed stale rows", "count", n)
	}
	m.sweeper.Start()

	slog.Info("Booting ChatModule: Setting up routes...")
	g.GET("/ws", m.ws.Serve)

	api := g.Group("/api", middleware.RateLimiter(middleware.DefaultRequestsPerMinute), middleware.Auth(m.auth))
	api.GET("/messages", m.api.ListMessages)
	api.GET("/rooms/:roomId/online", m.api.RoomOnlineUsers)
	return nil
}

// Shutdown closes live connections, letting each run its disconnect
// cleanup, then stops the background workers.
func (m *ChatModule) Shutdown(ctx context.Context) error {
	slog.Info("Shutting down ChatModule...")
	var errs []error
	if m.ws != nil {
		if err := m.ws.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if m.sweeper != nil {
		m.sweeper.Stop()
	}
	if m.coord != nil {
		m.coord.Shutdown()
	}
	return errors.Join(errs...)
}
