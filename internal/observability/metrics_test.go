package observability

import (
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	return NewMetricsWithRegistry(reg, reg)
}

func TestStatusClass(t *testing.T) {
	testCases := []struct {
		status   int
		expected string
	}{
		{200, "2xx"},
		{204, "2xx"},
		{301, "3xx"},
		{400, "4xx"},
		{404, "4xx"},
		{500, "5xx"},
		{502, "5xx"},
		{100, "unknown"},
		{0, "unknown"},
	}

	for _, tc := range testCases {
		t.Run(fmt.Sprintf("status_%d", tc.status), func(t *testing.T) {
			assert.Equal(t, tc.expected, statusClass(tc.status))
		})
	}
}

func TestNormalizePath(t *testing.T) {
	assert.Equal(t, "/api/v1/presets", normalizePath("/api/v1/presets"))
	assert.Equal(t, "long_path", normalizePath("/api/v1/very/long/path/that/exceeds/fifty/characters/limit/here"))
}

func TestMetrics_Record(t *testing.T) {
	m := newTestMetrics()

	m.RecordPresetResolution("CASES_DECEASED", "sync", time.Millisecond, nil)
	m.RecordPresetResolution("CONTACTS_NOT_SEEN", "async", time.Second, errors.New("upstream"))
	m.RecordCycleScheduled()
	m.RecordCycleScheduled()
	m.RecordCycle("applied")
	m.RecordCycle("stale")
	m.AsyncStarted()
	m.RecordRemoteRequest("metric", 10*time.Millisecond, nil)
	m.RecordCacheLookup("hit")
	m.RecordCacheLookup("miss")
	m.UpdateUptime(time.Now().Add(-time.Minute))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.presetResolutionsTotal.WithLabelValues("CASES_DECEASED", "sync", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.presetResolutionsTotal.WithLabelValues("CONTACTS_NOT_SEEN", "async", "error")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.cyclesScheduled))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cyclesTotal.WithLabelValues("stale")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.asyncInFlight))
	m.AsyncFinished()
	assert.Equal(t, 0.0, testutil.ToFloat64(m.asyncInFlight))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.remoteRequestsTotal.WithLabelValues("metric", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheRequestsTotal.WithLabelValues("miss")))
	assert.Greater(t, testutil.ToFloat64(m.systemUptime), 59.0)
}

func TestMetrics_NilReceiver(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordPresetResolution("X", "sync", 0, nil)
		m.RecordCycleScheduled()
		m.RecordCycle("applied")
		m.AsyncStarted()
		m.AsyncFinished()
		m.RecordRemoteRequest("list", 0, nil)
		m.RecordCacheLookup("hit")
	})
}

func TestMetrics_MiddlewareAndHandler(t *testing.T) {
	m := newTestMetrics()

	app := fiber.New()
	app.Use(m.MetricsMiddleware())
	app.Get("/api/v1/presets/:preset", func(c *fiber.Ctx) error {
		return c.SendString("ok")
	})
	app.Get("/metrics", m.Handler())

	resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/presets/CASES_DECEASED", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("GET", "/api/v1/presets/:preset", "2xx")))

	resp, err = app.Test(httptest.NewRequest("GET", "/metrics", nil))
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "tracebase_http_requests_total")
}
