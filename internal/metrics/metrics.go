package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Workflow metrics
var (
	WorkflowsStartedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "openwake_workflows_started_total",
			Help: "Total lifecycle workflows started",
		},
		[]string{"target", "action"},
	)

	WorkflowDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "openwake_workflow_duration_seconds",
			Help:    "Time for a lifecycle workflow to finish",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"target", "action", "outcome"},
	)

	ProbeAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "openwake_probe_attempts_total",
			Help: "Total HTTP readiness probe attempts",
		},
		[]string{"target", "result"},
	)
)

// Ambient metrics
var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "openwake_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "openwake_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	IdleTriggersTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "openwake_idle_triggers_total",
			Help: "Times the idle monitor requested a shelve",
		},
	)

	EventWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "openwake_event_writes_total",
			Help: "Total audit event sink writes",
		},
		[]string{"sink", "result"},
	)
)

func init() {
	prometheus.MustRegister(
		WorkflowsStartedTotal,
		WorkflowDuration,
		ProbeAttemptsTotal,
		HTTPRequestsTotal,
		HTTPRequestDuration,
		IdleTriggersTotal,
		EventWritesTotal,
	)
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// EchoMiddleware returns Echo middleware that instruments HTTP requests.
func EchoMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				}
			}

			HTTPRequestsTotal.WithLabelValues(
				c.Request().Method,
				c.Path(),
				strconv.Itoa(status),
			).Inc()
			HTTPRequestDuration.WithLabelValues(
				c.Request().Method,
				c.Path(),
			).Observe(duration.Seconds())

			return err
		}
	}
}
