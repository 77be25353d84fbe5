package ratelimit

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tracebase-eu/tracebase/internal/config"
)

// NewCounter creates the counter selected by cfg.Provider
func NewCounter(cfg config.RateLimitConfig) (Counter, error) {
	switch cfg.Provider {
	case "memory", "":
		log.Info().Msg("Using in-memory rate limit counter (single instance mode)")
		return NewMemoryCounter(10 * time.Minute), nil

	case "redis":
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("redis_url is required for redis rate limit provider")
		}
		log.Info().Msg("Using Redis-compatible rate limit counter")
		counter, err := NewRedisCounter(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		return counter, nil

	default:
		return nil, fmt.Errorf("unknown rate limit provider: %s (valid options: memory, redis)", cfg.Provider)
	}
}
