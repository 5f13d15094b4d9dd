// Package tls serves the router over HTTPS with Let's Encrypt certificates
// managed by autocert.
package tls

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"linkvault-server/pkg/config"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
	"golang.org/x/crypto/acme/autocert"
)

// SetupAutoTLS configures the autocert manager on e. Certificates are cached
// in TLS_CACHE_DIR to stay under Let's Encrypt rate limits.
func SetupAutoTLS(e *echo.Echo, cfg *config.Config, appLogger *zap.Logger) {
	e.AutoTLSManager.Prompt = autocert.AcceptTOS
	e.AutoTLSManager.Cache = autocert.DirCache(cfg.TLSCacheDir)

	if len(cfg.TLSHosts) > 0 {
		e.AutoTLSManager.HostPolicy = autocert.HostWhitelist(cfg.TLSHosts...)
		appLogger.Info("AutoTLS configured with host whitelist",
			zap.Strings("hosts", cfg.TLSHosts),
			zap.String("cache_dir", cfg.TLSCacheDir))
	} else {
		appLogger.Warn("AutoTLS configured without host restrictions - suitable for development only",
			zap.String("cache_dir", cfg.TLSCacheDir),
			zap.String("security_note", "Use TLS_HOSTS in production"))
	}

	if cfg.EnableHTTPSOnly {
		e.Pre(middleware.HTTPSRedirect())
		appLogger.Info("HTTPS redirect enabled - all HTTP traffic will be redirected to HTTPS")
	}

	e.TLSServer.ReadTimeout = cfg.ReadTimeout
	e.TLSServer.WriteTimeout = cfg.WriteTimeout
	e.TLSServer.IdleTimeout = cfg.IdleTimeout
}

// Start configures AutoTLS and serves HTTPS in the background. The returned
// channel receives the serve error, or nothing after a clean shutdown; stop
// the server with e.Shutdown.
func Start(e *echo.Echo, cfg *config.Config, appLogger *zap.Logger) <-chan error {
	SetupAutoTLS(e, cfg, appLogger)

	appLogger.Info("Starting HTTPS server with AutoTLS",
		zap.String("port", cfg.TLSPort),
		zap.String("cache_dir", cfg.TLSCacheDir),
		zap.Bool("https_only", cfg.EnableHTTPSOnly))

	errCh := make(chan error, 1)
	go func() {
		e.HideBanner = true
		err := e.StartAutoTLS(fmt.Sprintf("%s:%s", cfg.Host, cfg.TLSPort))
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	return errCh
}

// ValidateAutoTLSConfig catches configuration problems before the listener starts
func ValidateAutoTLSConfig(cfg *config.Config) error {
	if cfg.TLSPort == "" {
		return fmt.Errorf("TLS_PORT cannot be empty when TLS is enabled")
	}
	if cfg.TLSCacheDir == "" {
		return fmt.Errorf("TLS_CACHE_DIR cannot be empty when TLS is enabled")
	}
	for _, host := range cfg.TLSHosts {
		if strings.TrimSpace(host) == "" {
			return fmt.Errorf("empty hostname in TLS_HOSTS list")
		}
		if strings.Contains(host, "://") || strings.Contains(host, "/") {
			return fmt.Errorf("TLS_HOSTS entry %q must be a bare hostname", host)
		}
	}
	return nil
}

// GetAutoTLSStatus summarizes the TLS setup for the detailed health endpoint
func GetAutoTLSStatus(cfg *config.Config) map[string]interface{} {
	status := map[string]interface{}{
		"enabled":               cfg.EnableTLS,
		"port":                  cfg.TLSPort,
		"cache_directory":       cfg.TLSCacheDir,
		"https_only":            cfg.EnableHTTPSOnly,
		"host_count":            len(cfg.TLSHosts),
		"certificate_authority": "Let's Encrypt",
	}

	if len(cfg.TLSHosts) == 0 {
		status["host_policy"] = "unrestricted"
	} else {
		status["host_policy"] = "whitelist"
	}
	return status
}
