package handlers

import (
	"net/http"
	"time"

	"linkvault-server/pkg/config"
	"linkvault-server/pkg/models"
	"linkvault-server/pkg/storage"
	"linkvault-server/pkg/sweeper"
	"linkvault-server/pkg/tls"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// HealthHandler handles health check endpoints
type HealthHandler struct {
	records   storage.RecordStore
	sweeper   *sweeper.Sweeper
	cfg       *config.Config
	startTime time.Time
	logger    *zap.Logger
}

// NewHealthHandler creates a new health handler. sw may be nil.
func NewHealthHandler(records storage.RecordStore, sw *sweeper.Sweeper, cfg *config.Config, appLogger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		records:   records,
		sweeper:   sw,
		cfg:       cfg,
		startTime: time.Now(),
		logger:    appLogger,
	}
}

// HealthCheck handles GET /health. It fails only when the record store
// cannot answer a count.
func (h *HealthHandler) HealthCheck(c echo.Context) error {
	response := models.HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Uptime:    time.Since(h.startTime),
	}

	count, err := h.records.Count(c.Request().Context())
	if err != nil {
		h.logger.Error("Health check failed", zap.Error(err))
		response.Status = "unhealthy"
		return c.JSON(http.StatusServiceUnavailable, response)
	}
	response.Metrics = map[string]interface{}{"record_count": count}

	return c.JSON(http.StatusOK, response)
}

// DetailedHealthCheck handles GET /health/detailed.
// 200 when healthy, 206 when degraded, 503 when unhealthy.
func (h *HealthHandler) DetailedHealthCheck(c echo.Context) error {
	response := models.HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Uptime:    time.Since(h.startTime),
		Metrics:   make(map[string]interface{}),
	}

	count, err := h.records.Count(c.Request().Context())
	if err != nil {
		response.Status = "unhealthy"
		response.Metrics["record_store_error"] = err.Error()
	} else {
		response.Metrics["record_count"] = count
	}

	switch store := h.records.(type) {
	case *storage.BadgerStorage:
		response.Metrics["storage"] = store.GetHealthStatus()
		response.Metrics["gc"] = store.GetGCStats()
		if backupStats, err := store.GetBackupStats(); err == nil {
			response.Metrics["backups"] = backupStats
		}
		if response.Status == "healthy" {
			switch store.GetOverallHealth() {
			case storage.HealthStatusUnhealthy:
				response.Status = "unhealthy"
			case storage.HealthStatusDegraded:
				response.Status = "degraded"
			}
		}
	case storage.Maintainer:
		response.Metrics["storage"] = store.GetResourceStats()
		if !store.IsHealthy() {
			response.Status = "unhealthy"
		}
	}

	if h.sweeper != nil {
		sweepStats := h.sweeper.GetStats()
		response.Metrics["sweeper"] = sweepStats
		if running, _ := sweepStats["running"].(bool); !running && response.Status == "healthy" {
			response.Status = "degraded"
		}
	}

	if h.cfg != nil && h.cfg.EnableTLS {
		response.Metrics["tls"] = tls.GetAutoTLSStatus(h.cfg)
	}

	statusCode := http.StatusOK
	switch response.Status {
	case "unhealthy":
		statusCode = http.StatusServiceUnavailable
	case "degraded":
		statusCode = http.StatusPartialContent
	}
	return c.JSON(statusCode, response)
}
