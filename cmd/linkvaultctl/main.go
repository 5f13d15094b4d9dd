// Command linkvaultctl is the operator CLI for a LinkVault deployment. It reads
// the same environment (and .env file) as the server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"linkvault-server/internal/bootstrap"
	"linkvault-server/internal/cli"
	"linkvault-server/pkg/config"
	"linkvault-server/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	open := func(ctx context.Context) (*bootstrap.App, error) {
		cfg := config.Load()
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
		// operator output goes to the terminal; only problems are logged
		appLogger, err := logger.New(logger.ModeBalanced, "warn", false, "")
		if err != nil {
			return nil, err
		}
		return bootstrap.New(cfg, appLogger, bootstrap.Options{})
	}

	if err := cli.NewRootCommand(open, os.Stdout).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
