// Package api exposes the preset registry over HTTP
package api

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/rs/zerolog/log"

	"github.com/tracebase-eu/tracebase/internal/config"
	"github.com/tracebase-eu/tracebase/internal/middleware"
	"github.com/tracebase-eu/tracebase/internal/observability"
	"github.com/tracebase-eu/tracebase/internal/preset"
	"github.com/tracebase-eu/tracebase/internal/query"
	"github.com/tracebase-eu/tracebase/internal/ratelimit"
)

// Executor runs composed queries against the remote data service
type Executor interface {
	List(ctx context.Context, entity preset.Entity, qb *query.QueryBuilder) ([]map[string]interface{}, error)
	Count(ctx context.Context, entity preset.Entity, qb *query.QueryBuilder) (int, error)
}

// Server is the HTTP server
type Server struct {
	app       *fiber.App
	config    *config.Config
	tracer    *observability.Tracer
	metrics   *observability.Metrics
	limiter   ratelimit.Counter
	startTime time.Time

	presetHandler *PresetHandler
}

// Option configures a Server
type Option func(*Server)

// WithMetrics enables the Prometheus middleware and scrape endpoint
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithTracer shuts tracer down together with the server
func WithTracer(t *observability.Tracer) Option {
	return func(s *Server) {
		s.tracer = t
	}
}

// WithRateLimiter limits /api/v1 requests per client IP when rate limiting is enabled
func WithRateLimiter(counter ratelimit.Counter) Option {
	return func(s *Server) {
		s.limiter = counter
	}
}

// NewServer creates a new HTTP server. executor may be nil, in which case
// resolve requests asking for execution are rejected.
func NewServer(cfg *config.Config, registry *preset.Registry, executor Executor, opts ...Option) *Server {
	app := fiber.New(fiber.Config{
		ServerHeader:          "Tracebase",
		AppName:               "Tracebase v1.0.0",
		BodyLimit:             cfg.Server.BodyLimit,
		ReadTimeout:           cfg.Server.ReadTimeout,
		WriteTimeout:          cfg.Server.WriteTimeout,
		IdleTimeout:           cfg.Server.IdleTimeout,
		DisableStartupMessage: !cfg.Debug,
		ErrorHandler:          customErrorHandler,
	})

	s := &Server{
		app:       app,
		config:    cfg,
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.presetHandler = NewPresetHandler(registry, executor, query.NewParser(&cfg.Query))

	s.setupMiddlewares()
	s.setupRoutes()

	return s
}

// setupMiddlewares sets up global middlewares
func (s *Server) setupMiddlewares() {
	s.app.Use(requestid.New())

	if s.config.Tracing.Enabled && s.tracer != nil && s.tracer.IsEnabled() {
		log.Debug().Msg("Adding OpenTelemetry tracing middleware")
		s.app.Use(middleware.Tracing(middleware.DefaultTracingConfig()))
	}

	if s.metrics != nil {
		s.app.Use(s.metrics.MetricsMiddleware())
	}

	s.app.Use(middleware.RequestLogger(middleware.RequestLoggerConfig{
		SkipPaths:            []string{"/health", s.config.Metrics.Path},
		SlowRequestThreshold: time.Second,
	}))

	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: s.config.Debug,
	}))
}

// setupRoutes sets up all routes
func (s *Server) setupRoutes() {
	s.app.Get("/health", s.handleHealth)

	if s.metrics != nil && s.config.Metrics.Enabled {
		s.app.Get(s.config.Metrics.Path, s.metrics.Handler())
	}

	v1 := s.app.Group("/api/v1")
	if s.limiter != nil && s.config.RateLimit.Enabled {
		v1.Use(ratelimit.Middleware(ratelimit.MiddlewareConfig{
			Counter: s.limiter,
			Limit:   int64(s.config.RateLimit.Requests),
			Window:  s.config.RateLimit.Window,
		}))
	}
	s.presetHandler.RegisterRoutes(v1)
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	if s.metrics != nil {
		s.metrics.UpdateUptime(s.startTime)
	}
	return c.JSON(fiber.Map{
		"status":    "ok",
		"presets":   len(s.presetHandler.registry.Describe()),
		"execute":   s.presetHandler.executor != nil,
		"timestamp": time.Now().UTC(),
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	return s.app.Listen(s.config.Server.Address)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.tracer != nil {
		if err := s.tracer.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("Failed to shutdown OpenTelemetry tracer")
		}
	}

	log.Info().Msg("Shutting down HTTP server")
	return s.app.ShutdownWithContext(ctx)
}

// App returns the underlying Fiber app instance for testing
func (s *Server) App() *fiber.App {
	return s.app
}
