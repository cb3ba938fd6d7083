package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/nfrund/roomchat/internal/config"
	"github.com/nfrund/roomchat/internal/domain"
	"github.com/nfrund/roomchat/internal/handlers"
	"github.com/nfrund/roomchat/internal/middleware"
	"github.com/nfrund/roomchat/internal/module"
	"github.com/nfrund/roomchat/internal/pubsub"
	"github.com/nfrund/roomchat/internal/registry"
)

// Bus is the in-process event bus shared by the modules.
type Bus interface {
	pubsub.Publisher
	pubsub.Subscriber
}

// Dependencies are the core services the server hands to its modules.
type Dependencies struct {
	Config      config.Provider
	Messages    domain.MessageRepository
	OnlineUsers domain.OnlineUserRepository
	Users       domain.UserRepository
	Bus         Bus

	// Health is checked by /healthz. Optional.
	Health handlers.Pinger

	// Modules to register and boot, in order. Defaults to AppModules().
	Modules []module.Module

	// Closers run last during shutdown, in order.
	Closers []func(ctx context.Context) error
}

// Server holds the dependencies for the HTTP server.
type Server struct {
	E        *echo.Echo
	Cfg      config.Provider
	Registry *registry.Registry
	PubSub   Bus

	modules []module.Module
	closers []func(ctx context.Context) error
	booted  []module.Module
	logger  *slog.Logger
}

// New creates the echo instance, publishes the core services in a registry
// and lets every module register its own.
func New(deps Dependencies) (*Server, error) {
	if deps.Config == nil {
		return nil, errors.New("server: config is required")
	}
	if deps.Bus == nil {
		return nil, errors.New("server: event bus is required")
	}
	mods := deps.Modules
	if mods == nil {
		mods = AppModules()
	}

	reg := registry.New(deps.Config)
	registry.Set(reg, registry.MessagesKey, deps.Messages)
	registry.Set(reg, registry.OnlineUsersKey, deps.OnlineUsers)
	registry.Set(reg, registry.UsersKey, deps.Users)
	registry.Set[pubsub.Publisher](reg, registry.PublisherKey, deps.Bus)
	registry.Set[pubsub.Subscriber](reg, registry.SubscriberKey, deps.Bus)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = handlers.NewValidator()
	e.Use(echomw.RequestID())
	e.Use(middleware.Logger)
	e.Use(echomw.Recover())

	s := &Server{
		E:        e,
		Cfg:      deps.Config,
		Registry: reg,
		PubSub:   deps.Bus,
		modules:  mods,
		closers:  deps.Closers,
		logger:   slog.Default().With("service", "server"),
	}
	s.registerRoutes(deps.Health)

	for _, m := range mods {
		if err := m.Register(reg); err != nil {
			return nil, fmt.Errorf("register module %s: %w", m.Name(), err)
		}
		s.logger.Debug("Module registered", "module", m.Name())
	}
	return s, nil
}

// Boot boots every module in order. Modules mount their routes on the root
// group.
func (s *Server) Boot(ctx context.Context) error {
	root := s.E.Group("")
	for _, m := range s.modules {
		if err := m.Boot(ctx, root, s.Registry); err != nil {
			return fmt.Errorf("boot module %s: %w", m.Name(), err)
		}
		s.booted = append(s.booted, m)
		s.logger.Info("Module booted", "module", m.Name())
	}
	return nil
}
