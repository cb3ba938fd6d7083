package testutils

import (
	"context"
	"testing"

	"github.com/surrealdb/surrealdb.go"

	"github.com/nfrund/roomchat/internal/domain"
)

// TestUser is a user row as written by integration tests. It includes the
// password column the real schema requires but domain.User never carries.
type TestUser struct {
	domain.User
	Password string `json:"password"`
}

// CreateUser writes u to the user table under its ID.
func CreateUser(t *testing.T, db *surrealdb.DB, u TestUser) {
	t.Helper()
	if u.Password == "" {
		u.Password = "secret"
	}
	_, err := surrealdb.Query[any](context.Background(), db,
		`CREATE type::thing("user", $id) SET username = $username, nickname = $nickname, avatar_url = $avatar, password = $password, status = $status`,
		map[string]any{
			"id":       u.ID,
			"username": u.Username,
			"nickname": u.Nickname,
			"avatar":   u.AvatarURL,
			"password": u.Password,
			"status":   int(u.Status),
		})
	if err != nil {
		t.Fatalf("failed to create test user %s: %v", u.ID, err)
	}
}
