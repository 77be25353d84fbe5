// Package middleware holds the Fiber middleware of the preset API
package middleware

import (
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tracebase-eu/tracebase/internal/observability"
)

// LocalPresetID is the fiber.Ctx local holding the preset a request resolved
const LocalPresetID = "preset_id"

// sensitiveQueryParams are redacted from logged query strings
var sensitiveQueryParams = []string{"token", "access_token", "api_key", "apikey", "secret", "password"}

// RequestLoggerConfig configures RequestLogger
type RequestLoggerConfig struct {
	// SkipPaths are not logged
	SkipPaths []string
	// Logger defaults to the global logger
	Logger *zerolog.Logger
	// SlowRequestThreshold logs slower requests at WARN (0 = disabled)
	SlowRequestThreshold time.Duration
}

// DefaultRequestLoggerConfig returns default configuration
func DefaultRequestLoggerConfig() RequestLoggerConfig {
	return RequestLoggerConfig{
		SkipPaths:            []string{"/health", "/metrics"},
		SlowRequestThreshold: time.Second,
	}
}

// redactQueryString replaces sensitive query parameter values
func redactQueryString(queryString string) string {
	if queryString == "" {
		return ""
	}

	values, err := url.ParseQuery(queryString)
	if err != nil {
		return "[redacted]"
	}

	for key := range values {
		for _, param := range sensitiveQueryParams {
			if strings.EqualFold(key, param) {
				values.Set(key, "[redacted]")
			}
		}
	}
	return values.Encode()
}

// RequestLogger logs one structured entry per request
func RequestLogger(config ...RequestLoggerConfig) fiber.Handler {
	cfg := DefaultRequestLoggerConfig()
	if len(config) > 0 {
		cfg = config[0]
	}

	logger := log.Logger
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	skip := make(map[string]bool, len(cfg.SkipPaths))
	for _, p := range cfg.SkipPaths {
		skip[p] = true
	}

	return func(c *fiber.Ctx) error {
		path := c.Path()
		if skip[path] {
			return c.Next()
		}

		start := time.Now()
		err := c.Next()
		duration := time.Since(start)
		status := c.Response().StatusCode()

		var event *zerolog.Event
		switch {
		case err != nil || status >= 500:
			event = logger.Error().Err(err)
		case status >= 400:
			event = logger.Warn()
		case cfg.SlowRequestThreshold > 0 && duration > cfg.SlowRequestThreshold:
			event = logger.Warn().Bool("slow_request", true)
		default:
			event = logger.Info()
		}

		event = event.
			Str("request_id", toString(c.Locals("requestid"))).
			Str("method", c.Method()).
			Str("path", path).
			Str("ip", c.IP()).
			Int("status", status).
			Int64("duration_ms", duration.Milliseconds()).
			Int("response_bytes", len(c.Response().Body()))

		if qs := string(c.Request().URI().QueryString()); qs != "" {
			event = event.Str("query", redactQueryString(qs))
		}
		if id := toString(c.Locals(LocalPresetID)); id != "" {
			event = event.Str("preset", id)
		}
		if id := observability.ExtractTraceID(c.UserContext()); id != "" {
			event = event.Str("trace_id", id)
		}

		event.Msg("HTTP request")
		return err
	}
}

func toString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
