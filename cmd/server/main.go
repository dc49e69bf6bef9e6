package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"aquadetect/internal/app"
	"aquadetect/internal/config"
	"aquadetect/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	appLogger, err := logger.NewLogger(cfg)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer appLogger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.NewApp(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Error("Failed to initialize: %v", err)
		os.Exit(1)
	}

	if err := application.Run(ctx); err != nil {
		appLogger.Error("Server stopped: %v", err)
		os.Exit(1)
	}
}
