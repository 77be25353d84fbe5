package middleware

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
)

const localTraceSpan = "trace_span"

// TracingConfig configures the tracing middleware
type TracingConfig struct {
	Enabled   bool
	SkipPaths []string
}

// DefaultTracingConfig returns the default tracing configuration
func DefaultTracingConfig() TracingConfig {
	return TracingConfig{
		Enabled:   true,
		SkipPaths: []string{"/health", "/metrics"},
	}
}

// Tracing starts a server span per request. The span context is installed as
// the request's user context so handlers propagate it with c.UserContext().
func Tracing(cfg TracingConfig) fiber.Handler {
	if !cfg.Enabled {
		return func(c *fiber.Ctx) error {
			return c.Next()
		}
	}

	tracer := otel.Tracer("tracebase-http")

	skip := make(map[string]bool, len(cfg.SkipPaths))
	for _, p := range cfg.SkipPaths {
		skip[p] = true
	}

	return func(c *fiber.Ctx) error {
		path := c.Path()
		if skip[path] {
			return c.Next()
		}

		ctx := otel.GetTextMapPropagator().Extract(
			c.UserContext(),
			propagation.HeaderCarrier(c.GetReqHeaders()),
		)

		ctx, span := tracer.Start(ctx, fmt.Sprintf("%s %s", c.Method(), path),
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				semconv.HTTPMethod(c.Method()),
				attribute.String("http.request_id", toString(c.Locals("requestid"))),
			),
		)
		defer span.End()

		c.SetUserContext(ctx)
		c.Locals(localTraceSpan, span)

		if span.SpanContext().HasTraceID() {
			c.Set("X-Trace-ID", span.SpanContext().TraceID().String())
		}

		err := c.Next()

		// the matched handler route is only known once the chain has run
		if route := c.Route().Path; route != "" && route != "/" {
			span.SetName(fmt.Sprintf("%s %s", c.Method(), route))
			span.SetAttributes(semconv.HTTPRoute(route))
		}

		status := c.Response().StatusCode()
		span.SetAttributes(semconv.HTTPStatusCode(status))
		if id := toString(c.Locals(LocalPresetID)); id != "" {
			span.SetAttributes(attribute.String("preset.id", id))
		}

		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else if status >= 500 {
			span.SetStatus(codes.Error, fmt.Sprintf("HTTP %d", status))
		}
		return err
	}
}

// TraceID returns the trace ID of the request span, empty when untraced
func TraceID(c *fiber.Ctx) string {
	if span, ok := c.Locals(localTraceSpan).(trace.Span); ok && span.SpanContext().HasTraceID() {
		return span.SpanContext().TraceID().String()
	}
	return ""
}
