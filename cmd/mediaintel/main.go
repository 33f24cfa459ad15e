package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"mediaintel/internal/app"
	"mediaintel/internal/config"
	"mediaintel/internal/logging"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the settings document")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.New("info").Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Logging.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, config.NewStore(*configPath, cfg), logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}

	if err := application.Run(ctx); err != nil {
		logger.Error("application stopped", "error", err)
		os.Exit(1)
	}
}
