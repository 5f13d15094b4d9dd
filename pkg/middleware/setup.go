package middleware

import (
	"net/http"

	"linkvault-server/pkg/config"
	"linkvault-server/pkg/metrics"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
)

// SetupMiddleware applies the global middleware stack.
//
// Order matters: cheap rejections (rate limits, throttling, IP allowlist)
// run before recovery, headers, compression and CORS. Admin authentication
// is not global; it is attached to the /api/v1 group with APIKeyAuth.
//
// Both content routes may stream a file for up to WRITE_TIMEOUT, so they skip
// compression and the request timeout; the handler bounds its store lookup
// itself.
func SetupMiddleware(e *echo.Echo, cfg *config.Config, appLogger *zap.Logger, collector *metrics.Collector) {
	e.Use(middleware.RequestID())

	if collector != nil {
		e.Use(collector.Middleware())
	}

	if cfg.EnableRequestLogging {
		e.Use(RequestLogger(appLogger))
	}

	if cfg.EchoRateLimit > 0 {
		e.Use(SetupEchoRateLimiter(cfg))
	}

	throttle := NewThrottle(cfg.ThrottleLimit, cfg.ThrottleBacklogLimit, cfg.ThrottleBacklogTimeout)
	e.Use(throttle.Middleware())

	if len(cfg.AllowedIPs) > 0 {
		securityLogger := appLogger
		if !cfg.EnableSecurityLogging {
			securityLogger = zap.NewNop()
		}
		e.Use(NewIPAllowlist(cfg.AllowedIPs, securityLogger).Middleware())
	}

	e.Use(middleware.Recover())
	e.Use(middleware.Secure())
	if len(cfg.SecurityHeaders) > 0 {
		e.Use(SecurityHeaders(cfg.SecurityHeaders))
	}

	if cfg.EnableCompression {
		e.Use(middleware.GzipWithConfig(middleware.GzipConfig{
			Level: cfg.CompressionLevel,
			Skipper: func(c echo.Context) bool {
				return StreamsContent(c) || c.Request().URL.Path == "/metrics"
			},
		}))
	}

	if cfg.RequestTimeout > 0 {
		e.Use(middleware.ContextTimeoutWithConfig(middleware.ContextTimeoutConfig{
			Timeout: cfg.RequestTimeout,
			Skipper: StreamsContent,
		}))
	}

	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{echo.GET, echo.POST, echo.OPTIONS},
		AllowHeaders:     []string{"Accept", "Content-Type", "X-API-Key", AccessTokenHeader},
		ExposeHeaders:    []string{"Content-Disposition", echo.HeaderXRequestID},
		AllowCredentials: false,
		MaxAge:           300,
	}))
}

// Route patterns that can stream a stored file
const (
	ContentRoute  = "/content/:id"
	DownloadRoute = "/content/download/:id"
)

// StreamsContent reports whether the matched route may deliver a file. It
// matches on the route pattern, which echo sets before middleware runs.
func StreamsContent(c echo.Context) bool {
	if c.Request().Method != http.MethodGet {
		return false
	}
	switch c.Path() {
	case ContentRoute, DownloadRoute:
		return true
	}
	return false
}

// AccessTokenHeader carries a password proof
const AccessTokenHeader = "X-Access-Token"

// SecurityHeaders sets fixed response headers on every response
func SecurityHeaders(headers map[string]string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			for k, v := range headers {
				h.Set(k, v)
			}
			return next(c)
		}
	}
}

// RequestLogger logs one line per request. Query strings are omitted since
// they may carry access tokens.
func RequestLogger(appLogger *zap.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURIPath:   true,
		LogStatus:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("path", v.URIPath),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
				zap.String("ip", v.RemoteIP),
				zap.String("request_id", v.RequestID),
			}
			if v.Error != nil {
				appLogger.Warn("Request failed", append(fields, zap.Error(v.Error))...)
				return nil
			}
			appLogger.Info("Request", fields...)
			return nil
		},
	})
}
