package database

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nfrund/roomchat/internal/config"
	"github.com/surrealdb/surrealdb.go"
)

// NewDB creates and configures a new SurrealDB connection. Transient dial
// failures are retried with exponential backoff before giving up.
func NewDB(ctx context.Context, cfg config.Provider) (*surrealdb.DB, error) {
	var db *surrealdb.DB

	err := NewExponentialBackoffRetryer().Retry(ctx, func() error {
		conn, err := surrealdb.FromEndpointURLString(ctx, cfg.GetDBURL())
		if err != nil {
			return fmt.Errorf("failed to connect to surrealdb at %s: %w", redactDBURL(cfg.GetDBURL()), err)
		}
		db = conn
		return nil
	})
	if err != nil {
		return nil, err
	}

	if cfg.GetDBUser() != "" {
		authData := &surrealdb.Auth{
			Username: cfg.GetDBUser(),
			Password: cfg.GetDBPass(),
		}
		if _, err = db.SignIn(ctx, authData); err != nil {
			db.Close(ctx)
			return nil, fmt.Errorf("failed to sign in: %w", err)
		}
	}

	if err = db.Use(ctx, cfg.GetDBNs(), cfg.GetDBDb()); err != nil {
		db.Close(ctx)
		return nil, fmt.Errorf("failed to use namespace/db: %w", err)
	}

	slog.Info("Successfully connected to SurrealDB", "db_url", redactDBURL(cfg.GetDBURL()), "ns", cfg.GetDBNs(), "db", cfg.GetDBDb())
	return db, nil
}

// Pinger checks that the database answers queries.
type Pinger struct {
	db *surrealdb.DB
}

// NewPinger creates a new Pinger.
func NewPinger(db *surrealdb.DB) *Pinger {
	return &Pinger{db: db}
}

// Ping runs a trivial query.
func (p *Pinger) Ping(ctx context.Context) error {
	return Execute(ctx, p.db, "RETURN 1", nil)
}
