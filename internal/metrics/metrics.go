package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "climate",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests processed",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "climate",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"method", "path"})

	// SourceAttempts counts every attempt against a tier of the fallback chain.
	// outcome is "success" or a short failure reason.
	SourceAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "climate",
		Subsystem: "source",
		Name:      "attempts_total",
		Help:      "Total attempts per data source and outcome",
	}, []string{"source", "outcome"})

	SourceDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "climate",
		Subsystem: "source",
		Name:      "fetch_duration_seconds",
		Help:      "Duration of a single data source fetch",
		Buckets:   []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 300},
	}, []string{"source"})

	SeriesProduced = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "climate",
		Subsystem: "pipeline",
		Name:      "series_produced_total",
		Help:      "Total series produced, by the source that served them",
	}, []string{"source"})

	RunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "climate",
		Subsystem: "pipeline",
		Name:      "run_duration_seconds",
		Help:      "Duration of a full generation run",
		Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
	})

	RunErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "climate",
		Subsystem: "pipeline",
		Name:      "run_errors_total",
		Help:      "Total generation runs that failed to write their output",
	})
)

// Middleware records request metrics.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Response().StatusCode())
		path := c.Route().Path
		if path == "" {
			path = c.Path()
		}
		method := c.Method()

		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpRequestDuration.WithLabelValues(method, path).Observe(duration)

		return err
	}
}

// Handler returns a Fiber handler serving the Prometheus /metrics endpoint.
func Handler() fiber.Handler {
	handler := fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
	return func(c *fiber.Ctx) error {
		handler(c.Context())
		return nil
	}
}
