package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/nfrund/roomchat/internal/domain"
)

var (
	// ErrMissingToken is returned when no credential was supplied.
	ErrMissingToken = errors.New("authentication token is required")
	// ErrInvalidToken is returned when the token is malformed or its signature does not verify.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken is returned when the token has expired.
	ErrExpiredToken = errors.New("token has expired")
	// ErrUnknownUser is returned when the token names a user that does not exist.
	ErrUnknownUser = errors.New("user not found")
	// ErrUserDisabled is returned when the account has been disabled.
	ErrUserDisabled = errors.New("account is disabled")
)

// Identity is what an authenticated connection is tagged with.
type Identity struct {
	UserID   string
	Username string
	Avatar   string
}

// Authenticator resolves a credential to an Identity.
type Authenticator struct {
	tokens *TokenManager
	users  domain.UserRepository
	logger *slog.Logger
}

// NewAuthenticator creates a new Authenticator.
func NewAuthenticator(tokens *TokenManager, users domain.UserRepository) *Authenticator {
	return &Authenticator{
		tokens: tokens,
		users:  users,
		logger: slog.Default().With("service", "authenticator"),
	}
}

// Authenticate validates token and loads the user it names. The returned
// error is one of the package sentinels, or a wrapped store failure.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (*Identity, error) {
	claims, err := a.tokens.Validate(token)
	if err != nil {
		return nil, err
	}

	user, err := a.users.FindUserByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, ErrUnknownUser
		}
		a.logger.Error("user lookup failed", "user_id", claims.UserID, "error", err)
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if user == nil {
		return nil, ErrUnknownUser
	}
	if user.Disabled() {
		return nil, ErrUserDisabled
	}

	return &Identity{
		UserID:   user.ID,
		Username: user.DisplayName(),
		Avatar:   user.AvatarURL,
	}, nil
}

// StatusCode maps an authentication error to the HTTP status used to
// refuse the handshake.
func StatusCode(err error) int {
	switch {
	case errors.Is(err, ErrMissingToken), errors.Is(err, ErrInvalidToken),
		errors.Is(err, ErrExpiredToken), errors.Is(err, ErrUnknownUser):
		return http.StatusUnauthorized
	case errors.Is(err, ErrUserDisabled):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// BearerProtocol is the Sec-WebSocket-Protocol marker preceding a token.
// The server selects it on upgrade when the client offered it.
const BearerProtocol = "bearer"

// TokenFromRequest extracts a credential from the `token` query parameter,
// an `Authorization: Bearer` header, or a `Sec-WebSocket-Protocol: bearer, <token>`
// header, in that order.
func TokenFromRequest(r *http.Request) string {
	if t := r.URL.Query().Get("token"); t != "" {
		return t
	}

	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "bearer") {
			return strings.TrimSpace(token)
		}
	}

	protocols := websocketProtocols(r)
	for i, p := range protocols {
		if strings.EqualFold(p, BearerProtocol) && i+1 < len(protocols) {
			return protocols[i+1]
		}
	}
	return ""
}

// UsesBearerProtocol reports whether the client offered the bearer subprotocol,
// in which case the server must echo it on upgrade.
func UsesBearerProtocol(r *http.Request) bool {
	for _, p := range websocketProtocols(r) {
		if strings.EqualFold(p, BearerProtocol) {
			return true
		}
	}
	return false
}

func websocketProtocols(r *http.Request) []string {
	var out []string
	for _, h := range r.Header.Values("Sec-WebSocket-Protocol") {
		for _, p := range strings.Split(h, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}
