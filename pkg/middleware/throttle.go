package middleware

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"
)

// Throttle bounds the number of requests in flight. Requests beyond the
// limit wait in a bounded backlog for up to timeout, then get 429.
type Throttle struct {
	maxConcurrent int
	maxBacklog    int
	timeout       time.Duration
	backlog       chan struct{} // tokens for queued requests
	slots         chan struct{} // tokens for running requests

	rejected atomic.Int64
	timedOut atomic.Int64
}

// NewThrottle creates a throttle for maxConcurrent running requests and
// maxBacklog queued ones
func NewThrottle(maxConcurrent, maxBacklog int, timeout time.Duration) *Throttle {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	if maxBacklog < 0 {
		maxBacklog = 0
	}
	t := &Throttle{
		maxConcurrent: maxConcurrent,
		maxBacklog:    maxBacklog,
		timeout:       timeout,
		backlog:       make(chan struct{}, maxBacklog),
		slots:         make(chan struct{}, maxConcurrent),
	}
	for i := 0; i < maxConcurrent; i++ {
		t.slots <- struct{}{}
	}
	return t
}

func (t *Throttle) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			// fast path
			select {
			case <-t.slots:
				defer func() { t.slots <- struct{}{} }()
				return next(c)
			default:
			}

			select {
			case t.backlog <- struct{}{}:
			default:
				t.rejected.Add(1)
				return echo.NewHTTPError(http.StatusTooManyRequests, "Too many requests")
			}
			defer func() { <-t.backlog }()

			ctx, cancel := context.WithTimeout(c.Request().Context(), t.timeout)
			defer cancel()

			select {
			case <-t.slots:
				defer func() { t.slots <- struct{}{} }()
				return next(c)
			case <-ctx.Done():
				t.timedOut.Add(1)
				return echo.NewHTTPError(http.StatusTooManyRequests, "Request timeout in backlog")
			}
		}
	}
}

// GetStats reports current occupancy and rejection counters
func (t *Throttle) GetStats() map[string]interface{} {
	available := len(t.slots)
	return map[string]interface{}{
		"max_concurrent":   t.maxConcurrent,
		"max_backlog":      t.maxBacklog,
		"current_requests": t.maxConcurrent - available,
		"available_slots":  available,
		"backlog_length":   len(t.backlog),
		"rejected":         t.rejected.Load(),
		"timed_out":        t.timedOut.Load(),
		"timeout_duration": t.timeout.String(),
	}
}
