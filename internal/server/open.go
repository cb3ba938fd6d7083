package server

import (
	"context"
	"fmt"

	"github.com/nfrund/roomchat/internal/config"
	"github.com/nfrund/roomchat/internal/database"
	"github.com/nfrund/roomchat/internal/pubsub"
)

// Open connects to SurrealDB, builds the stores and the event bus, and
// returns a server ready to Boot. The database and bus are closed by
// Shutdown.
func Open(ctx context.Context, cfg config.Provider) (*Server, error) {
	db, err := database.NewDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	bus := pubsub.NewWatermillBridge()

	s, err := New(Dependencies{
		Config:      cfg,
		Messages:    database.NewMessageStore(db, cfg),
		OnlineUsers: database.NewOnlineUserStore(db, cfg),
		Users:       database.NewUserStore(db, cfg),
		Bus:         bus,
		Health:      database.NewPinger(db),
		Closers: []func(context.Context) error{
			func(context.Context) error { return bus.Close() },
			func(ctx context.Context) error { return db.Close(ctx) },
		},
	})
	if err != nil {
		_ = bus.Close()
		_ = db.Close(ctx)
		return nil, fmt.Errorf("assemble server: %w", err)
	}
	return s, nil
}
