package database

import (
	"context"

	"github.com/nfrund/roomchat/internal/config"
	"github.com/nfrund/roomchat/internal/domain"
	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// var _ ensures that UserStore implements the domain.UserRepository interface at compile time.
var _ domain.UserRepository = (*UserStore)(nil)

type userRow struct {
	ID        *surrealmodels.RecordID `json:"id,omitempty"`
	Username  string                  `json:"username"`
	Nickname  string                  `json:"nickname,omitempty"`
	AvatarURL string                  `json:"avatar_url,omitempty"`
	Status    int                     `json:"status"`
}

// UserStore reads user accounts. Credential fields are never selected.
type UserStore struct {
	base
}

// NewUserStore creates a new UserStore.
func NewUserStore(db *surrealdb.DB, cfg config.Provider) *UserStore {
	return &UserStore{base: newBase(db, cfg)}
}

// FindUserByID looks up a user by the id part of its record id.
func (s *UserStore) FindUserByID(ctx context.Context, id string) (*domain.User, error) {
	if id == "" {
		return nil, domain.ErrNotFound
	}

	ctx, cancel := s.readCtx(ctx)
	defer cancel()

	query := `SELECT id, username, nickname, avatar_url, status ?? 1 AS status
		FROM type::thing("user", $id)`
	row, err := QueryOne[userRow](ctx, s.db, query, map[string]any{"id": id})
	if err != nil {
		return nil, WrapError(err, "failed to find user")
	}
	if row == nil || row.ID == nil {
		return nil, domain.ErrNotFound
	}

	return &domain.User{
		ID:        recordKey(row.ID),
		Username:  row.Username,
		Nickname:  row.Nickname,
		AvatarURL: row.AvatarURL,
		Status:    domain.UserStatus(row.Status),
	}, nil
}
