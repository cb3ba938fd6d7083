package middleware

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/nfrund/roomchat/internal/auth"
)

const IdentityContextKey = "identity"

// Authenticator resolves a bearer credential to an identity.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*auth.Identity, error)
}

// Auth creates a middleware that protects API routes. The credential is read
// the same way the websocket handshake reads it; a refused request gets a
// JSON error with the status auth.StatusCode chooses.
func Auth(authenticator Authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			identity, err := authenticator.Authenticate(c.Request().Context(), auth.TokenFromRequest(c.Request()))
			if err != nil {
				status := auth.StatusCode(err)
				message := err.Error()
				if status == http.StatusInternalServerError {
					FromContext(c.Request().Context()).Error("authentication failed", "error", err)
					message = "authentication failed"
				}
				return c.JSON(status, map[string]string{"error": message})
			}

			c.Set(IdentityContextKey, identity)
			return next(c)
		}
	}
}

// IdentityFrom returns the identity stored by Auth.
func IdentityFrom(c echo.Context) (*auth.Identity, bool) {
	id, ok := c.Get(IdentityContextKey).(*auth.Identity)
	return id, ok && id != nil
}
