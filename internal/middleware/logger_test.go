package middleware

import (
	"bytes"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLoggedApp(buf *bytes.Buffer, cfg RequestLoggerConfig) *fiber.App {
	logger := zerolog.New(buf)
	cfg.Logger = &logger

	app := fiber.New()
	app.Use(RequestLogger(cfg))
	return app
}

func TestDefaultRequestLoggerConfig(t *testing.T) {
	cfg := DefaultRequestLoggerConfig()
	assert.ElementsMatch(t, []string{"/health", "/metrics"}, cfg.SkipPaths)
	assert.Nil(t, cfg.Logger)
	assert.Equal(t, time.Second, cfg.SlowRequestThreshold)
}

func TestRedactQueryString(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expected    []string
		notExpected []string
	}{
		{name: "empty", input: "", expected: []string{""}},
		{name: "no sensitive params", input: "x=3&locationId=L1", expected: []string{"x=3", "locationId=L1"}},
		{
			name:        "redacts token",
			input:       "token=secret123&x=1",
			expected:    []string{"token=%5Bredacted%5D", "x=1"},
			notExpected: []string{"secret123"},
		},
		{
			name:        "case insensitive",
			input:       "API_KEY=abc",
			expected:    []string{"%5Bredacted%5D"},
			notExpected: []string{"abc"},
		},
		{name: "unparsable", input: "%zz", expected: []string{"[redacted]"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := redactQueryString(tt.input)
			for _, want := range tt.expected {
				assert.Contains(t, got, want)
			}
			for _, bad := range tt.notExpected {
				assert.NotContains(t, got, bad)
			}
		})
	}
}

func TestRequestLogger_SkipPaths(t *testing.T) {
	var buf bytes.Buffer
	app := newLoggedApp(&buf, DefaultRequestLoggerConfig())
	app.Get("/health", func(c *fiber.Ctx) error { return c.SendString("OK") })

	resp, err := app.Test(httptest.NewRequest("GET", "/health", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, 200, resp.StatusCode)
	assert.Empty(t, buf.String())
}

func TestRequestLogger_Fields(t *testing.T) {
	var buf bytes.Buffer
	app := newLoggedApp(&buf, DefaultRequestLoggerConfig())
	app.Get("/api/v1/presets/:preset/resolve", func(c *fiber.Ctx) error {
		c.Locals(LocalPresetID, c.Params("preset"))
		return c.SendString("resolved")
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/presets/CASES_BY_LOCATION/resolve?x=L1&token=abc", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	out := buf.String()
	assert.Contains(t, out, `"message":"HTTP request"`)
	assert.Contains(t, out, `"level":"info"`)
	assert.Contains(t, out, `"preset":"CASES_BY_LOCATION"`)
	assert.Contains(t, out, `"status":200`)
	assert.Contains(t, out, "x=L1")
	assert.NotContains(t, out, "token=abc")
}

func TestRequestLogger_Levels(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantLevel string
	}{
		{"success", 200, "info"},
		{"client error", 404, "warn"},
		{"server error", 502, "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			app := newLoggedApp(&buf, DefaultRequestLoggerConfig())
			app.Get("/status", func(c *fiber.Ctx) error {
				return c.SendStatus(tt.status)
			})

			resp, err := app.Test(httptest.NewRequest("GET", "/status", nil))
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Contains(t, buf.String(), `"level":"`+tt.wantLevel+`"`)
		})
	}
}

func TestRequestLogger_SlowRequest(t *testing.T) {
	var buf bytes.Buffer
	app := newLoggedApp(&buf, RequestLoggerConfig{SlowRequestThreshold: time.Millisecond})
	app.Get("/slow", func(c *fiber.Ctx) error {
		time.Sleep(10 * time.Millisecond)
		return c.SendString("done")
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/slow", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	out := buf.String()
	assert.True(t, strings.Contains(out, `"slow_request":true`), out)
	assert.Contains(t, out, `"level":"warn"`)
}

func TestRequestLogger_HandlerError(t *testing.T) {
	var buf bytes.Buffer
	app := newLoggedApp(&buf, DefaultRequestLoggerConfig())
	app.Get("/fail", func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusBadGateway, "remote down")
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/fail", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, fiber.StatusBadGateway, resp.StatusCode)
	assert.Contains(t, buf.String(), `"level":"error"`)
	assert.Contains(t, buf.String(), "remote down")
}

func TestRequestLogger_TraceID(t *testing.T) {
	withRecorder(t)

	t.Run("traced request carries trace id", func(t *testing.T) {
		var buf bytes.Buffer
		logger := zerolog.New(&buf)

		app := fiber.New()
		app.Use(Tracing(DefaultTracingConfig()))
		app.Use(RequestLogger(RequestLoggerConfig{Logger: &logger}))
		app.Get("/api/v1/presets", func(c *fiber.Ctx) error { return c.SendString("ok") })

		resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/presets", nil))
		require.NoError(t, err)
		defer resp.Body.Close()

		traceID := resp.Header.Get("X-Trace-ID")
		require.NotEmpty(t, traceID)
		assert.Contains(t, buf.String(), `"trace_id":"`+traceID+`"`)
	})

	t.Run("untraced request omits trace id", func(t *testing.T) {
		var buf bytes.Buffer
		app := newLoggedApp(&buf, RequestLoggerConfig{})
		app.Get("/api/v1/presets", func(c *fiber.Ctx) error { return c.SendString("ok") })

		resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/presets", nil))
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.NotContains(t, buf.String(), "trace_id")
	})
}
