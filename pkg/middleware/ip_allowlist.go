package middleware

import (
	"net/http"
	"net/netip"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const ipDecisionCacheSize = 1000

// IPAllowlist rejects clients whose address is outside the configured IPs and
// CIDR blocks. Decisions are cached per client address in an LRU.
type IPAllowlist struct {
	exact    map[netip.Addr]struct{}
	prefixes []netip.Prefix // most specific first
	cache    *lru.Cache[string, bool]
	logger   *zap.Logger
}

// NewIPAllowlist parses entries such as "10.0.0.5" and "192.168.1.0/24".
// Unparseable entries are logged and skipped.
func NewIPAllowlist(entries []string, appLogger *zap.Logger) *IPAllowlist {
	cache, _ := lru.New[string, bool](ipDecisionCacheSize)
	al := &IPAllowlist{
		exact:  make(map[netip.Addr]struct{}),
		cache:  cache,
		logger: appLogger,
	}

	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			prefix, err := netip.ParsePrefix(entry)
			if err != nil {
				appLogger.Warn("Ignoring invalid CIDR in allowlist", zap.String("entry", entry), zap.Error(err))
				continue
			}
			al.prefixes = append(al.prefixes, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			appLogger.Warn("Ignoring invalid IP in allowlist", zap.String("entry", entry), zap.Error(err))
			continue
		}
		al.exact[addr.Unmap()] = struct{}{}
	}

	sort.Slice(al.prefixes, func(i, j int) bool {
		return al.prefixes[i].Bits() > al.prefixes[j].Bits()
	})
	return al
}

// Allowed reports whether ip may access the server
func (al *IPAllowlist) Allowed(ip string) bool {
	if len(al.exact) == 0 && len(al.prefixes) == 0 {
		return true
	}
	if allowed, ok := al.cache.Get(ip); ok {
		return allowed
	}

	allowed := false
	if addr, err := netip.ParseAddr(ip); err == nil {
		addr = addr.Unmap()
		if _, ok := al.exact[addr]; ok {
			allowed = true
		} else {
			for _, prefix := range al.prefixes {
				if prefix.Contains(addr) {
					allowed = true
					break
				}
			}
		}
	}

	al.cache.Add(ip, allowed)
	return allowed
}

// Middleware enforces the allowlist. /health stays reachable for probes.
func (al *IPAllowlist) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Request().URL.Path == "/health" {
				return next(c)
			}

			clientIP := c.RealIP()
			if !al.Allowed(clientIP) {
				al.logger.Warn("IP access denied - not in allowlist",
					zap.String("client_ip", clientIP),
					zap.String("path", c.Request().URL.Path))
				return echo.NewHTTPError(http.StatusForbidden, "Access denied: IP not allowed")
			}
			return next(c)
		}
	}
}

// GetCacheStats returns cache occupancy for the detailed health endpoint
func (al *IPAllowlist) GetCacheStats() map[string]interface{} {
	return map[string]interface{}{
		"cache_size":     al.cache.Len(),
		"cache_max_size": ipDecisionCacheSize,
	}
}
