// Package app holds the entrypoints shared by the binaries.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nfrund/roomchat/internal/auth"
	"github.com/nfrund/roomchat/internal/config"
	"github.com/nfrund/roomchat/internal/database"
	"github.com/nfrund/roomchat/internal/presence"
	"github.com/nfrund/roomchat/internal/server"
)

// Serve connects to the database, boots every module and serves HTTP until
// ctx is cancelled.
func Serve(ctx context.Context, cfg config.Provider) error {
	s, err := server.Open(ctx, cfg)
	if err != nil {
		return err
	}

	if err := s.Boot(ctx); err != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if serr := s.Shutdown(shutdownCtx); serr != nil {
			slog.Error("Shutdown after failed boot", "error", serr)
		}
		return err
	}

	return s.Run(ctx, cfg.GetServerAddr())
}

// Sweep runs one stale presence purge and returns the number of rows removed.
func Sweep(ctx context.Context, cfg config.Provider) (int, error) {
	db, err := database.NewDB(ctx, cfg)
	if err != nil {
		return 0, err
	}
	defer db.Close(context.Background())

	sweeper := presence.NewSweeper(database.NewOnlineUserStore(db, cfg),
		presence.WithStaleAfter(cfg.GetPresenceStaleAfter()),
	)
	return sweeper.SweepOnce(ctx)
}

// IssueToken signs a credential for userID. The user must exist and be
// active, so the token is one the server will accept.
func IssueToken(ctx context.Context, cfg config.Provider, userID string) (string, error) {
	db, err := database.NewDB(ctx, cfg)
	if err != nil {
		return "", err
	}
	defer db.Close(context.Background())

	user, err := database.NewUserStore(db, cfg).FindUserByID(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("look up user %s: %w", userID, err)
	}
	if user.Disabled() {
		return "", auth.ErrUserDisabled
	}

	return auth.NewTokenManager(cfg).Generate(user.ID, user.Username)
}
