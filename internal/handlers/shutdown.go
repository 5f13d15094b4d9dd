package handlers

import (
	"net/http"
	"sync/atomic"

	"linkvault-server/pkg/models"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// ShutdownHandler refuses new requests once shutdown has begun, so in-flight
// downloads can finish while nothing new starts
type ShutdownHandler struct {
	shuttingDown atomic.Bool
	logger       *zap.Logger
}

// NewShutdownHandler creates a new shutdown handler
func NewShutdownHandler(logger *zap.Logger) *ShutdownHandler {
	return &ShutdownHandler{logger: logger}
}

// InitiateShutdown flips the handler into refusing mode; later calls are no-ops
func (sh *ShutdownHandler) InitiateShutdown() {
	if sh.shuttingDown.CompareAndSwap(false, true) {
		sh.logger.Info("Shutdown state activated, new requests will be refused with HTTP 503")
	}
}

// IsShuttingDown returns true if shutdown has been initiated
func (sh *ShutdownHandler) IsShuttingDown() bool {
	return sh.shuttingDown.Load()
}

// Middleware must be installed first so refused requests skip all other work
func (sh *ShutdownHandler) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if sh.IsShuttingDown() {
				c.Response().Header().Set("Connection", "close")
				c.Response().Header().Set("Retry-After", "30")
				return c.JSON(http.StatusServiceUnavailable, models.StorageResponse{
					Success: false,
					Message: "Server is shutting down",
				})
			}
			return next(c)
		}
	}
}
