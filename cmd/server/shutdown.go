package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"linkvault-server/internal/handlers"
	"linkvault-server/pkg/config"

	"go.uber.org/zap"
)

// stoppable is satisfied by both *http.Server and *echo.Echo
type stoppable interface {
	Shutdown(ctx context.Context) error
	Close() error
}

// waitForShutdown blocks until a signal or a serve failure. The first
// SIGINT/SIGTERM drains in-flight requests for up to SHUTDOWN_TIMEOUT; a
// second signal during the drain closes all connections immediately.
func waitForShutdown(srv stoppable, cfg *config.Config, appLogger *zap.Logger, shutdownHandler *handlers.ShutdownHandler, serveErr <-chan error) {
	quit := make(chan os.Signal, 2)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-serveErr:
		appLogger.Error("Server failed", zap.Error(err))
		return
	case sig := <-quit:
		appLogger.Info("Shutdown signal received", zap.String("signal", sig.String()))
	}

	shutdownHandler.InitiateShutdown()
	fmt.Println()
	fmt.Println("🚫 Shutting down: new requests are refused, waiting for transfers to finish")

	startTime := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- srv.Shutdown(ctx) }()

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case err := <-done:
			elapsed := time.Since(startTime)
			if err != nil {
				appLogger.Error("Server shutdown failed", zap.Error(err), zap.Duration("duration", elapsed))
				fmt.Printf("Server shutdown - FAILED (%v) [%v]\n", err, elapsed)
				return
			}
			appLogger.Info("Server shutdown completed", zap.Duration("duration", elapsed))
			fmt.Printf("Server shutdown - SUCCESS [%v]\n", elapsed)
			return

		case <-quit:
			appLogger.Warn("Second signal received, closing connections")
			if err := srv.Close(); err != nil {
				appLogger.Error("Forced close failed", zap.Error(err))
			}
			return

		case <-ticker.C:
			elapsed := time.Since(startTime)
			fmt.Printf("Server shutdown - WAITING [%v] | remaining [%v]\n", elapsed.Round(time.Second), (cfg.ShutdownTimeout - elapsed).Round(time.Second))
		}
	}
}
