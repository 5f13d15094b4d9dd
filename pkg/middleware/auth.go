package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// APIKeyAuth guards the admin API. The key is read from the X-API-Key header
// or the api_key query parameter and compared in constant time.
func APIKeyAuth(expectedAPIKey string, appLogger *zap.Logger) echo.MiddlewareFunc {
	expected := []byte(expectedAPIKey)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			apiKey := c.Request().Header.Get("X-API-Key")
			if apiKey == "" {
				apiKey = c.QueryParam("api_key")
			}

			if len(expected) == 0 || subtle.ConstantTimeCompare([]byte(apiKey), expected) != 1 {
				appLogger.Warn("Unauthorized API access attempt",
					zap.String("ip", c.RealIP()),
					zap.String("path", c.Request().URL.Path),
					zap.String("user_agent", c.Request().UserAgent()),
					zap.String("method", c.Request().Method))
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid API key")
			}

			return next(c)
		}
	}
}
