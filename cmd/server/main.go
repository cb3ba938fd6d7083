package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nfrund/roomchat/internal/app"
	"github.com/nfrund/roomchat/internal/config"
	"github.com/nfrund/roomchat/internal/logging"
)

func main() {
	logging.New()

	cfg, err := config.New()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Serve(ctx, cfg); err != nil {
		slog.Error("Server stopped with error", "error", err)
		os.Exit(1)
	}
}
