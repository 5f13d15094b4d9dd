package handlers

import (
	"fmt"

	"linkvault-server/pkg/config"
	custommiddleware "linkvault-server/pkg/middleware"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

// multipart framing allowance on top of the file and text limits
const uploadOverheadKB = 256

// RegisterRoutes mounts the public content routes, the health routes and,
// when an API key is configured, the admin API. admin may be nil.
func RegisterRoutes(e *echo.Echo, cfg *config.Config, content *ContentHandler, health *HealthHandler, admin *AdminHandler, appLogger *zap.Logger) {
	if e.Renderer == nil {
		e.Renderer = NewPageRenderer()
	}

	e.GET("/health", health.HealthCheck)
	e.GET("/health/detailed", health.DetailedHealthCheck)

	bodyLimit := fmt.Sprintf("%dK", (cfg.MaxFileSize+int64(cfg.MaxTextSize))/1024+uploadOverheadKB)
	e.POST("/content/upload", content.Upload, middleware.BodyLimit(bodyLimit))
	e.GET(custommiddleware.ContentRoute, content.Access)
	e.GET(custommiddleware.DownloadRoute, content.Access)
	e.POST("/content/verify/:id", content.Verify)

	if admin == nil || !cfg.AdminEnabled() {
		appLogger.Info("Admin API disabled (API_KEY not set)")
		return
	}

	securityLogger := appLogger
	if !cfg.EnableSecurityLogging {
		securityLogger = zap.NewNop()
	}
	api := e.Group("/api/v1", custommiddleware.APIKeyAuth(cfg.APIKey, securityLogger))
	api.GET("/records", admin.ListRecords)
	api.GET("/records/:id", admin.GetRecord)
	api.POST("/sweep", admin.TriggerSweep)
	api.POST("/gc", admin.TriggerGC)
	api.POST("/backup", admin.CreateBackup)
}
