package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tracebase-eu/tracebase/internal/api"
	"github.com/tracebase-eu/tracebase/internal/cache"
	"github.com/tracebase-eu/tracebase/internal/config"
	"github.com/tracebase-eu/tracebase/internal/observability"
	"github.com/tracebase-eu/tracebase/internal/preset"
	"github.com/tracebase-eu/tracebase/internal/ratelimit"
	"github.com/tracebase-eu/tracebase/internal/remote"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"

	// CLI flags
	showVersion = flag.Bool("version", false, "Show version information")
)

func main() {
	flag.Parse()

	// Show version and exit
	if *showVersion {
		fmt.Printf("Tracebase %s\n", Version)
		fmt.Printf("Commit: %s\n", Commit)
		fmt.Printf("Build Date: %s\n", BuildDate)
		os.Exit(0)
	}

	// Initialize logger
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	log.Info().
		Str("version", Version).
		Str("commit", Commit).
		Str("build_date", BuildDate).
		Msg("Starting Tracebase")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Set log level
	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	tracer, err := observability.NewTracer(context.Background(), cfg.Tracing, Version)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize tracing")
	}

	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		metrics = observability.NewMetrics()
	}

	remoteClient, err := remote.New(cfg.Remote,
		remote.WithMetrics(metrics),
		remote.WithUserAgent("tracebase/"+Version),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create remote data service client")
	}

	// Metric ID sets are cached in front of the remote service
	metricService, closeCache, err := cache.Wrap(remoteClient, cfg.Cache, metrics)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize metric cache")
	}
	defer func() {
		if err := closeCache(); err != nil {
			log.Error().Err(err).Msg("Failed to close metric cache")
		}
	}()

	registry := preset.NewDefaultRegistry(
		preset.WithMetricService(metricService),
		preset.WithTracer(tracer.Tracer()),
		preset.WithMetrics(metrics),
	)

	serverOpts := []api.Option{
		api.WithMetrics(metrics),
		api.WithTracer(tracer),
	}
	if cfg.RateLimit.Enabled {
		limiter, err := ratelimit.NewCounter(cfg.RateLimit)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize rate limiter")
		}
		defer limiter.Close()
		serverOpts = append(serverOpts, api.WithRateLimiter(limiter))
	}

	// Initialize API server
	server := api.NewServer(cfg, registry, remoteClient, serverOpts...)

	// Start server in a goroutine
	go func() {
		log.Info().Str("address", cfg.Server.Address).Msg("Starting Tracebase server")
		if err := server.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}
