package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"resumetailor/internal/cli"
	"resumetailor/internal/config"
	"resumetailor/internal/errors"

	"github.com/joho/godotenv"
)

func main() {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := errors.New(cfg.App.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	logger.Debug("Starting resumetailor",
		"version", cli.Version,
		"log_level", cfg.App.LogLevel,
		"ai_provider", cfg.AI.Provider)

	if err := cli.Execute(ctx, cfg, logger); err != nil {
		logger.LogError(err, "Application execution failed")
		os.Exit(1)
	}
}
