package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"growth-engine/handler"
	"growth-engine/internal/app"
	"growth-engine/internal/config"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "err", err)
		os.Exit(1)
	}
	logger := cfg.NewLogger(os.Stdout)
	slog.SetDefault(logger)

	a, err := app.Bootstrap(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize growth engine", "err", err)
		os.Exit(1)
	}

	h, err := handler.NewHandler(a.Runner, logger)
	if err != nil {
		logger.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	lambda.Start(h.Handle)
}
