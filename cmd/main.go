package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/nagiyu/niconico-mylist-assistant/internal/shared"
)

func main() {
	logger := shared.NewLogger(nil)

	configPath := "config.toml"
	if p := os.Getenv("NMA_CONFIG"); p != "" {
		configPath = p
	}

	runner := NewRunner(RunnerOpts{
		ConfigPath: configPath,
		Logger:     logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp(runner).Run(ctx, os.Args); err != nil {
		logger.Fatalf("application error: %v", err)
	}
}
