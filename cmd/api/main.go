package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"wealthledger/internal/infrastructure"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, cleanup, err := infrastructure.Bootstrap(ctx)
	if err != nil {
		slog.Error("bootstrap failed", "error", err)
		if cleanup != nil {
			cleanup()
		}
		os.Exit(1)
	}
	defer cleanup()

	slog.Info("wealth ledger service is running")

	if err := app.Run(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, context.Canceled) {
		slog.Error("service stopped with error", "error", err)
		os.Exit(1)
	}

	slog.Info("shutdown complete")
}
