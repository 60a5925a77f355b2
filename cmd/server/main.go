package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"

	gfshutdown "github.com/gelmium/graceful-shutdown"

	"github.com/Tyrowin/roomrelay/internal/relay"
	"github.com/Tyrowin/roomrelay/internal/server"
)

func main() {
	config := server.NewConfigFromEnv()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: config.LogLevel}))
	slog.SetDefault(logger)
	logger.Info("Starting room relay...")

	rooms, err := relay.New(relay.WithLogger(logger))
	if err != nil {
		logger.Error("Failed to create relay", "error", err)
		os.Exit(1)
	}

	hub := server.NewHub(rooms, *config, logger)
	go hub.Run()

	httpServer := server.CreateServer(config.Port, server.SetupRoutes(hub))
	go func() {
		if err := server.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", "error", err)
			os.Exit(1)
		}
	}()

	// HTTP first so no new connections arrive while the hub drains.
	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		config.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"relay": func(ctx context.Context) error {
				httpErr := server.ShutdownServer(ctx, httpServer)
				hubErr := hub.Shutdown(ctx)
				return errors.Join(httpErr, hubErr)
			},
		},
	)

	exitCode := <-wait
	logger.Info("Room relay exited", "code", exitCode)
	os.Exit(exitCode)
}
