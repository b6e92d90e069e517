// Command director runs the automatic viewpoint selection service: it ticks the
// controller at a fixed rate, records capture segments and exposes the HTTP,
// websocket and gRPC health surfaces.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	configpkg "capturerig/director/internal/config"
	"capturerig/director/internal/logging"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "director: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	//1.- Resolve configuration before anything touches the filesystem.
	cfg, err := configpkg.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	logging.ReplaceGlobals(logger)
	defer func() { _ = logger.Sync() }()

	//2.- Stop cleanly on SIGINT and SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cfg, logger)
	if err != nil {
		logger.Error("director setup failed", logging.Error(err))
		return err
	}
	return a.Run(ctx)
}
