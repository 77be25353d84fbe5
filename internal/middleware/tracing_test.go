package middleware

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func withRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(prev)
		_ = tp.Shutdown(context.Background())
	})
	return recorder
}

func TestTracing_Disabled(t *testing.T) {
	recorder := withRecorder(t)

	app := fiber.New()
	app.Use(Tracing(TracingConfig{Enabled: false}))
	app.Get("/api/v1/presets", func(c *fiber.Ctx) error { return c.SendString("ok") })

	resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/presets", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, 200, resp.StatusCode)
	assert.Empty(t, recorder.Ended())
}

func TestTracing_SkipPaths(t *testing.T) {
	recorder := withRecorder(t)

	app := fiber.New()
	app.Use(Tracing(DefaultTracingConfig()))
	app.Get("/health", func(c *fiber.Ctx) error { return c.SendString("ok") })

	resp, err := app.Test(httptest.NewRequest("GET", "/health", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Empty(t, recorder.Ended())
	assert.Empty(t, resp.Header.Get("X-Trace-ID"))
}

func TestTracing_RequestSpan(t *testing.T) {
	recorder := withRecorder(t)

	var handlerSpan trace.SpanContext
	var traceID string

	app := fiber.New()
	app.Use(Tracing(DefaultTracingConfig()))
	app.Get("/api/v1/presets/:preset/resolve", func(c *fiber.Ctx) error {
		handlerSpan = trace.SpanContextFromContext(c.UserContext())
		traceID = TraceID(c)
		c.Locals(LocalPresetID, c.Params("preset"))
		return c.SendString("ok")
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/api/v1/presets/CASES_DECEASED/resolve", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "GET /api/v1/presets/:preset/resolve", spans[0].Name())
	assert.Equal(t, trace.SpanKindServer, spans[0].SpanKind())

	assert.True(t, handlerSpan.IsValid())
	assert.Equal(t, spans[0].SpanContext().TraceID().String(), traceID)
	assert.Equal(t, traceID, resp.Header.Get("X-Trace-ID"))

	var gotPreset string
	for _, kv := range spans[0].Attributes() {
		if kv.Key == "preset.id" {
			gotPreset = kv.Value.AsString()
		}
	}
	assert.Equal(t, "CASES_DECEASED", gotPreset)
}

func TestTraceID_Untraced(t *testing.T) {
	app := fiber.New()
	var got string
	app.Get("/", func(c *fiber.Ctx) error {
		got = TraceID(c)
		return nil
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Empty(t, got)
}
