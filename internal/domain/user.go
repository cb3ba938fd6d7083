package domain

import "context"

// UserStatus mirrors the account flag stored on the user record.
type UserStatus int

const (
	UserDisabled UserStatus = 0
	UserActive   UserStatus = 1
)

// User is the public view of an account. It never carries credential
// material; the store is responsible for leaving password hashes out.
type User struct {
	ID        string     `json:"id"`
	Username  string     `json:"username"`
	Nickname  string     `json:"nickname,omitempty"`
	AvatarURL string     `json:"avatar_url,omitempty"`
	Status    UserStatus `json:"status"`
}

// DisplayName returns the nickname when set, otherwise the username.
func (u *User) DisplayName() string {
	if u.Nickname != "" {
		return u.Nickname
	}
	return u.Username
}

// Disabled reports whether the account has been switched off.
func (u *User) Disabled() bool {
	return u.Status == UserDisabled
}

// UserRepository defines the contract for user lookups.
// It lives in the domain because it's a requirement OF the domain, not
// of the database implementation.
type UserRepository interface {
	// FindUserByID returns ErrNotFound when no such user exists.
	FindUserByID(ctx context.Context, id string) (*User, error)
}
