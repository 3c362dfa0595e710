package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/eks-observability/access-relay/internal/pkg/config"
	"github.com/eks-observability/access-relay/pkg/relay"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	// Initialize structured logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	users := newUserDirectory(cfg.Users)

	r, err := relay.New(
		relay.WithConfig(cfg),
		relay.WithLogger(logger),
		relay.WithIdentityResolver(users.identify),
	)
	if err != nil {
		log.Fatalf("Failed to create relay: %v", err)
	}

	newSite(r, users, logger).routes()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := r.Start(ctx); err != nil {
		log.Fatalf("Failed to start relay: %v", err)
	}

	logger.Info("Access relay demo started",
		slog.Int("port", cfg.Server.Port),
		slog.String("collector", cfg.Collector.URL),
		slog.Bool("journal_sqlite", cfg.Journal.Path != ""),
		slog.Bool("metrics", cfg.Telemetry.Metrics),
		slog.Bool("tracing", cfg.Telemetry.Tracing))

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutdown signal received, stopping relay...")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := r.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Access relay shutdown complete")
}
