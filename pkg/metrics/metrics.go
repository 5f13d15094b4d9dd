// Package metrics exposes Prometheus collectors for the content lifecycle and
// the HTTP layer.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"linkvault-server/pkg/lifecycle"
	"linkvault-server/pkg/models"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "linkvault"

// Collector holds every metric the server exports. It implements
// lifecycle.Observer.
type Collector struct {
	gatherer prometheus.Gatherer

	outcomesTotal   *prometheus.CounterVec
	createdTotal    *prometheus.CounterVec
	sweepRunsTotal  *prometheus.CounterVec
	sweptTotal      prometheus.Counter
	sweepDuration   prometheus.Histogram
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// NewCollector registers all metrics on reg. A nil reg gets a fresh registry
// with the Go and process collectors.
func NewCollector(reg *prometheus.Registry) *Collector {
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	factory := promauto.With(reg)

	return &Collector{
		gatherer: reg,
		outcomesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "access_outcomes_total",
			Help:      "Access resolution and password verification outcomes",
		}, []string{"operation", "outcome"}),
		createdTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "content_created_total",
			Help:      "Records created by kind and access policy",
		}, []string{"kind", "policy"}),
		sweepRunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_runs_total",
			Help:      "Expiry sweep passes by result",
		}, []string{"result"}),
		sweptTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_purged_total",
			Help:      "Records removed by the expiry sweep",
		}),
		sweepDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sweep_duration_seconds",
			Help:      "Duration of expiry sweep passes",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		}),
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status",
		}, []string{"method", "route", "status"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

var _ lifecycle.Observer = (*Collector)(nil)

func (c *Collector) ObserveOutcome(operation string, kind lifecycle.OutcomeKind) {
	c.outcomesTotal.WithLabelValues(operation, kind.String()).Inc()
}

func (c *Collector) ObserveCreate(kind models.Kind, policy models.PolicyMode) {
	c.createdTotal.WithLabelValues(string(kind), string(policy)).Inc()
}

func (c *Collector) ObserveSweep(purged int, elapsed time.Duration, err error) {
	result := "success"
	if err != nil {
		result = "error"
	}
	c.sweepRunsTotal.WithLabelValues(result).Inc()
	c.sweptTotal.Add(float64(purged))
	c.sweepDuration.Observe(elapsed.Seconds())
}

// Middleware records request counts and latency. Routes are labelled by
// their registered pattern so content IDs never become label values.
func (c *Collector) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			start := time.Now()
			err := next(ctx)

			route := ctx.Path()
			if route == "" {
				route = "unmatched"
			}

			status := ctx.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				} else if !ctx.Response().Committed {
					status = http.StatusInternalServerError
				}
			}

			method := ctx.Request().Method
			c.requestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
			c.requestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// Handler serves the Prometheus exposition format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}
