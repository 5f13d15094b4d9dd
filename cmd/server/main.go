// Command server runs the LinkVault HTTP server: uploads, shareable links with
// expiry, passwords and view/download limits, and a once-a-minute sweep of
// expired content.
package main

import (
	"errors"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"path/filepath"
	"runtime"

	"linkvault-server/internal/bootstrap"
	"linkvault-server/internal/handlers"
	"linkvault-server/pkg/config"
	"linkvault-server/pkg/logger"
	"linkvault-server/pkg/metrics"
	custommiddleware "linkvault-server/pkg/middleware"
	"linkvault-server/pkg/sweeper"
	"linkvault-server/pkg/tls"

	"github.com/dustin/go-humanize"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

func main() {
	printStartupBanner()

	cfg := config.Load()

	appLogger, err := logger.New(cfg.LogMode, cfg.LogLevel, cfg.LogToFile, cfg.LogDir)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	if err := cfg.Validate(); err != nil {
		appLogger.Fatal("Invalid configuration", zap.Error(err))
	}
	if cfg.EnableTLS {
		if err := tls.ValidateAutoTLSConfig(cfg); err != nil {
			appLogger.Fatal("Invalid TLS configuration", zap.Error(err))
		}
	}

	createDirectories(cfg)
	cfg.DisplayConfiguration()
	logStartupInfo(appLogger, cfg)

	var collector *metrics.Collector
	if cfg.EnableMetrics {
		collector = metrics.NewCollector(nil)
	}

	app, err := bootstrap.New(cfg, appLogger, bootstrap.Options{
		StartMaintenance: true,
		Collector:        collector,
	})
	if err != nil {
		appLogger.Fatal("Failed to initialize storage", zap.Error(err))
	}
	defer app.Close()

	sw := sweeper.New(app.Engine, sweeper.Options{
		Interval: cfg.SweepInterval,
		Logger:   appLogger,
	})
	sw.Start()
	defer sw.Stop()

	shutdownHandler := handlers.NewShutdownHandler(appLogger)
	router := setupRouter(cfg, app, sw, collector, shutdownHandler, appLogger)

	displayServerInfo(cfg)

	if cfg.EnableTLS {
		serveErr := tls.Start(router, cfg, appLogger)
		waitForShutdown(router, cfg, appLogger, shutdownHandler, serveErr)
		return
	}

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	serveErr := make(chan error, 1)
	go func() {
		appLogger.Info("Starting HTTP server", zap.String("address", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()
	waitForShutdown(server, cfg, appLogger, shutdownHandler, serveErr)
}

// setupRouter builds the echo instance. The shutdown middleware goes first so
// refused requests skip everything else.
func setupRouter(cfg *config.Config, app *bootstrap.App, sw *sweeper.Sweeper, collector *metrics.Collector, shutdownHandler *handlers.ShutdownHandler, appLogger *zap.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(shutdownHandler.Middleware())
	custommiddleware.SetupMiddleware(e, cfg, appLogger, collector)

	contentHandler := handlers.NewContentHandler(app.Engine, app.Tokens, appLogger, cfg)
	healthHandler := handlers.NewHealthHandler(app.Records, sw, cfg, appLogger)
	adminHandler := handlers.NewAdminHandler(app.Engine, app.Records, sw, cfg, appLogger)
	handlers.RegisterRoutes(e, cfg, contentHandler, healthHandler, adminHandler, appLogger)

	if collector != nil {
		e.GET("/metrics", echo.WrapHandler(collector.Handler()))
	}

	if cfg.EnableProfiler {
		e.GET("/debug/pprof/*", echo.WrapHandler(http.DefaultServeMux))
		appLogger.Warn("Profiler endpoints enabled at /debug/pprof/ - disable in production")
	}

	return e
}

// logStartupInfo logs the runtime environment and the settings that shape
// request handling
func logStartupInfo(appLogger *zap.Logger, cfg *config.Config) {
	hostname, _ := os.Hostname()

	appLogger.Info("System Environment",
		zap.String("go_version", runtime.Version()),
		zap.String("go_os", runtime.GOOS),
		zap.String("go_arch", runtime.GOARCH),
		zap.String("hostname", hostname),
		zap.Int("process_id", os.Getpid()),
		zap.Int("cpu_count", runtime.NumCPU()),
	)

	appLogger.Info("HTTP Server Configuration",
		zap.String("host", cfg.Host),
		zap.String("port", cfg.Port),
		zap.String("base_url", cfg.BaseURL),
		zap.Duration("read_timeout", cfg.ReadTimeout),
		zap.Duration("write_timeout", cfg.WriteTimeout),
		zap.Duration("request_timeout", cfg.RequestTimeout),
		zap.Duration("shutdown_timeout", cfg.ShutdownTimeout),
		zap.Bool("tls_enabled", cfg.EnableTLS),
	)

	appLogger.Info("Content Configuration",
		zap.Duration("default_expiry", cfg.DefaultExpiry),
		zap.String("max_file_size", humanize.IBytes(uint64(cfg.MaxFileSize))),
		zap.String("max_text_size", humanize.IBytes(uint64(cfg.MaxTextSize))),
		zap.Strings("allowed_extensions", cfg.AllowedExtensions),
		zap.Duration("sweep_interval", cfg.SweepInterval),
		zap.Int("sweep_batch_size", cfg.SweepBatchSize),
	)

	appLogger.Info("Storage Configuration",
		zap.String("record_backend", cfg.RecordBackend),
		zap.String("blob_backend", cfg.BlobBackend),
		zap.String("data_directory", cfg.DataDir),
		zap.String("upload_directory", cfg.UploadDir),
		zap.String("backup_directory", cfg.BackupDir),
		zap.Duration("backup_interval", cfg.BackupInterval),
		zap.Duration("gc_interval", cfg.GCInterval),
	)

	appLogger.Info("Security Configuration",
		zap.Bool("admin_api_enabled", cfg.AdminEnabled()),
		zap.Bool("token_secret_configured", cfg.TokenSecret != ""),
		zap.Duration("token_ttl", cfg.TokenTTL),
		zap.Strings("allowed_origins", cfg.AllowedOrigins),
		zap.Bool("ip_restrictions", len(cfg.AllowedIPs) > 0),
		zap.Float64("echo_rate_limit", cfg.EchoRateLimit),
		zap.Int("throttle_limit", cfg.ThrottleLimit),
	)
}

func printStartupBanner() {
	fmt.Println("🚀 Starting LinkVault Server...")
}

// createDirectories creates the local directories the configured backends need
func createDirectories(cfg *config.Config) {
	fmt.Println("📁 Creating data directories...")

	directories := []string{cfg.BackupDir}
	switch cfg.RecordBackend {
	case config.BackendSQLite:
		directories = append(directories, filepath.Dir(cfg.SQLitePath))
	default:
		directories = append(directories, cfg.DataDir)
	}
	if cfg.BlobBackend != config.BlobS3 {
		directories = append(directories, cfg.UploadDir)
	}
	if cfg.LogToFile {
		directories = append(directories, cfg.LogDir)
	}
	if cfg.EnableTLS {
		directories = append(directories, cfg.TLSCacheDir)
	}

	for _, dir := range directories {
		if err := os.MkdirAll(dir, 0755); err != nil {
			fmt.Printf("Warning: Failed to create directory %s: %v\n", dir, err)
		}
	}
}

func displayServerInfo(cfg *config.Config) {
	scheme, port := "http", cfg.Port
	if cfg.EnableTLS {
		scheme, port = "https", cfg.TLSPort
	}
	base := cfg.BaseURL
	if base == "" {
		base = fmt.Sprintf("%s://localhost:%s", scheme, port)
	}

	fmt.Printf("✅ Listening on %s:%s (%s)\n", cfg.Host, port, scheme)
	fmt.Printf("📤 Upload:       POST %s/content/upload\n", base)
	fmt.Printf("🔗 Share links:  %s/content/{id}\n", base)
	fmt.Printf("📊 Health check: %s/health\n", base)
	if cfg.EnableMetrics {
		fmt.Printf("📈 Metrics:      %s/metrics\n", base)
	}
	if cfg.AdminEnabled() {
		fmt.Printf("🛠️  Admin API:    %s/api/v1 (X-API-Key)\n", base)
	}
	fmt.Println()
	fmt.Println("Press Ctrl+C to stop (twice to force)")
}
