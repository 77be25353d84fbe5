package ratelimit

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
)

// MiddlewareConfig configures the fiber middleware
type MiddlewareConfig struct {
	Counter Counter
	Limit   int64
	Window  time.Duration

	// KeyFunc derives the client key. Defaults to the client IP.
	KeyFunc func(c *fiber.Ctx) string

	// Timeout bounds one counter round trip. Defaults to one second.
	Timeout time.Duration
}

// Middleware rejects requests over the limit with 429 and sets the
// X-RateLimit-* headers on every checked response. Counter failures let the
// request through.
func Middleware(cfg MiddlewareConfig) fiber.Handler {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = func(c *fiber.Ctx) string { return c.IP() }
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Second
	}

	return func(c *fiber.Ctx) error {
		key := cfg.KeyFunc(c)

		ctx, cancel := context.WithTimeout(c.UserContext(), cfg.Timeout)
		decision, err := Check(ctx, cfg.Counter, key, cfg.Limit, cfg.Window)
		cancel()
		if err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Rate limit check failed, allowing request")
			return c.Next()
		}

		retryAfter := int(math.Ceil(time.Until(decision.ResetAt).Seconds()))
		if retryAfter < 0 {
			retryAfter = 0
		}

		c.Set("X-RateLimit-Limit", strconv.FormatInt(decision.Limit, 10))
		c.Set("X-RateLimit-Remaining", strconv.FormatInt(decision.Remaining, 10))
		c.Set("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))

		if !decision.Allowed {
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(retryAfter))
			log.Debug().Str("key", key).Str("path", c.Path()).Msg("Rate limit exceeded")
			return fiber.NewError(fiber.StatusTooManyRequests, fmt.Sprintf("rate limit exceeded, retry in %ds", retryAfter))
		}
		return c.Next()
	}
}
