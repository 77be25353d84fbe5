package observability

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for tracebase. Record methods are no-ops on a nil *Metrics.
type Metrics struct {
	gatherer prometheus.Gatherer

	// HTTP metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	// Preset metrics
	presetResolutionsTotal   *prometheus.CounterVec
	presetResolutionDuration *prometheus.HistogramVec

	// Orchestrator metrics
	cyclesTotal     *prometheus.CounterVec
	cyclesScheduled prometheus.Counter
	asyncInFlight   prometheus.Gauge

	// Remote data service metrics
	remoteRequestsTotal   *prometheus.CounterVec
	remoteRequestDuration *prometheus.HistogramVec

	// ID set cache metrics
	cacheRequestsTotal *prometheus.CounterVec

	// System metrics
	systemUptime prometheus.Gauge
}

// NewMetrics creates and registers all metrics on the default registry
func NewMetrics() *Metrics {
	return NewMetricsWithRegistry(prometheus.DefaultRegisterer, prometheus.DefaultGatherer)
}

// NewMetricsWithRegistry creates metrics registered on reg and exposed from gatherer
func NewMetricsWithRegistry(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		gatherer: gatherer,

		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracebase_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tracebase_http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path", "status"},
		),
		httpRequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "tracebase_http_requests_in_flight",
				Help: "Current number of HTTP requests being processed",
			},
		),

		presetResolutionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracebase_preset_resolutions_total",
				Help: "Total number of preset resolutions",
			},
			[]string{"preset", "kind", "status"},
		),
		presetResolutionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tracebase_preset_resolution_duration_seconds",
				Help:    "Preset resolution latency in seconds, including async ID resolution",
				Buckets: []float64{.0005, .001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"preset", "kind"},
		),

		cyclesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracebase_orchestrator_cycles_total",
				Help: "Total number of completed apply cycles by outcome",
			},
			[]string{"outcome"},
		),
		cyclesScheduled: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "tracebase_orchestrator_cycles_scheduled_total",
				Help: "Total number of scheduled apply cycles, including superseded ones",
			},
		),
		asyncInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "tracebase_orchestrator_async_in_flight",
				Help: "Current number of async preset resolutions running",
			},
		),

		remoteRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracebase_remote_requests_total",
				Help: "Total number of requests to the remote data service",
			},
			[]string{"operation", "status"},
		),
		remoteRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tracebase_remote_request_duration_seconds",
				Help:    "Remote data service latency in seconds",
				Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"operation"},
		),

		cacheRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracebase_idset_cache_requests_total",
				Help: "Total number of ID set cache lookups by result",
			},
			[]string{"result"},
		),

		systemUptime: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "tracebase_system_uptime_seconds",
				Help: "System uptime in seconds",
			},
		),
	}
}

// MetricsMiddleware returns a Fiber middleware that collects HTTP metrics
func (m *Metrics) MetricsMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		m.httpRequestsInFlight.Inc()
		defer m.httpRequestsInFlight.Dec()

		method := c.Method()

		err := c.Next()

		// route pattern keeps preset ids out of the label set
		path := c.Path()
		if route := c.Route(); route != nil && route.Path != "" {
			path = route.Path
		}
		path = normalizePath(path)

		duration := time.Since(start).Seconds()
		status := statusClass(c.Response().StatusCode())

		m.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		m.httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)

		return err
	}
}

// RecordPresetResolution records one preset resolution. kind is sync, async or clear.
func (m *Metrics) RecordPresetResolution(preset, kind string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.presetResolutionsTotal.WithLabelValues(preset, kind, resultStatus(err)).Inc()
	m.presetResolutionDuration.WithLabelValues(preset, kind).Observe(duration.Seconds())
}

// RecordCycleScheduled counts a scheduled apply cycle
func (m *Metrics) RecordCycleScheduled() {
	if m == nil {
		return
	}
	m.cyclesScheduled.Inc()
}

// RecordCycle records the outcome of an apply cycle: applied, cleared, unknown, failed, stale or aborted
func (m *Metrics) RecordCycle(outcome string) {
	if m == nil {
		return
	}
	m.cyclesTotal.WithLabelValues(outcome).Inc()
}

// AsyncStarted marks an async resolution as running
func (m *Metrics) AsyncStarted() {
	if m == nil {
		return
	}
	m.asyncInFlight.Inc()
}

// AsyncFinished marks an async resolution as done
func (m *Metrics) AsyncFinished() {
	if m == nil {
		return
	}
	m.asyncInFlight.Dec()
}

// RecordRemoteRequest records a request to the remote data service
func (m *Metrics) RecordRemoteRequest(operation string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.remoteRequestsTotal.WithLabelValues(operation, resultStatus(err)).Inc()
	m.remoteRequestDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordCacheLookup records an ID set cache lookup: hit, miss or error
func (m *Metrics) RecordCacheLookup(result string) {
	if m == nil {
		return
	}
	m.cacheRequestsTotal.WithLabelValues(result).Inc()
}

// UpdateUptime updates the system uptime metric
func (m *Metrics) UpdateUptime(startTime time.Time) {
	m.systemUptime.Set(time.Since(startTime).Seconds())
}

// Handler returns a Fiber handler that exposes Prometheus metrics
func (m *Metrics) Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{}))
}

// normalizePath caps path label cardinality
func normalizePath(path string) string {
	if len(path) > 50 {
		return "long_path"
	}
	return path
}

// statusClass returns the HTTP status class (2xx, 3xx, 4xx, 5xx)
func statusClass(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 300 && status < 400:
		return "3xx"
	case status >= 400 && status < 500:
		return "4xx"
	case status >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}

func resultStatus(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
