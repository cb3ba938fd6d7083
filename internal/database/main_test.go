package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/surrealdb/surrealdb.go"

	"github.com/nfrund/roomchat/internal/config"
	"github.com/nfrund/roomchat/internal/domain"
	"github.com/nfrund/roomchat/internal/testutils"
)

// setupTestDB creates a test database connection and returns a cleanup function.
func setupTestDB(t *testing.T) (*surrealdb.DB, *config.Config, func()) {
	t.Helper()
	cfg := testutils.ConfigForTests(t)

	ctx := context.Background()
	db, err := NewDB(ctx, cfg)
	require.NoError(t, err, "failed to connect to test database")

	return db, cfg, func() {
		for _, table := range []string{"message", "online_user", "user"} {
			_, _ = surrealdb.Query[any](context.Background(), db, "DELETE "+table, nil)
		}
		db.Close(context.Background())
	}
}

func createTestUser(t *testing.T, db *surrealdb.DB, id, username string, status int) {
	t.Helper()
	testutils.CreateUser(t, db, testutils.TestUser{
		User: domain.User{ID: id, Username: username, Status: domain.UserStatus(status)},
	})
}
