// Package cache caches metric ID sets so repeated preset resolutions within
// the TTL do not hit the remote data service again.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tracebase-eu/tracebase/internal/config"
)

// Store is a byte-oriented key/value store with per-entry expiration
type Store interface {
	// Get returns the value for key. The boolean is false when the key is
	// missing or expired.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set stores value under key for ttl. A zero ttl never expires.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases resources held by the store.
	Close() error
}

// NewStore creates an ID set store based on the cache configuration.
//
// Provider options:
// - "memory": in-process store (default)
// - "redis": Redis-compatible store, shared between instances
func NewStore(cfg config.CacheConfig) (Store, error) {
	switch cfg.Provider {
	case "memory", "":
		log.Info().Msg("Using in-memory ID set cache")
		return NewMemoryStore(10 * time.Minute), nil

	case "redis":
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("redis_url is required for redis cache provider")
		}
		log.Info().Msg("Using Redis-compatible ID set cache")
		store, err := NewRedisStore(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to Redis: %w", err)
		}
		return store, nil

	default:
		return nil, fmt.Errorf("unknown cache provider: %s (valid options: memory, redis)", cfg.Provider)
	}
}
