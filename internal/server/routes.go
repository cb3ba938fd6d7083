package server

import (
	"github.com/nfrund/roomchat/internal/handlers"
)

// registerRoutes sets up the routes owned by the server itself. Feature
// routes are mounted by the modules during Boot.
func (s *Server) registerRoutes(health handlers.Pinger) {
	healthHandler := handlers.NewHealthHandler(health)
	s.E.GET("/healthz", healthHandler.Check)
}
