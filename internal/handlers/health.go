package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports process and database health.
type HealthHandler struct {
	db      Pinger
	started time.Time
}

// NewHealthHandler creates a new HealthHandler. db may be nil.
func NewHealthHandler(db Pinger) *HealthHandler {
	return &HealthHandler{db: db, started: time.Now()}
}

// Check handles GET /healthz.
func (h *HealthHandler) Check(c echo.Context) error {
	body := map[string]any{
		"status": "ok",
		"uptime": time.Since(h.started).Round(time.Second).String(),
	}

	if h.db != nil {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			body["status"] = "degraded"
			body["database"] = err.Error()
			return c.JSON(http.StatusServiceUnavailable, body)
		}
		body["database"] = "ok"
	}

	return c.JSON(http.StatusOK, body)
}
