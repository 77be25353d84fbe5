package ratelimit

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type brokenCounter struct{}

func (brokenCounter) Increment(context.Context, string, time.Duration) (int64, time.Time, error) {
	return 0, time.Time{}, errors.New("connection refused")
}
func (brokenCounter) Reset(context.Context, string) error { return nil }
func (brokenCounter) Close() error                        { return nil }

func newLimitedApp(cfg MiddlewareConfig) *fiber.App {
	app := fiber.New()
	app.Use(Middleware(cfg))
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString("ok") })
	return app
}

func TestMiddleware(t *testing.T) {
	counter := NewMemoryCounter(time.Minute)
	defer counter.Close()

	app := newLimitedApp(MiddlewareConfig{Counter: counter, Limit: 2, Window: time.Minute})

	for i, wantRemaining := range []string{"1", "0"} {
		resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode, "request %d", i)
		assert.Equal(t, "2", resp.Header.Get("X-RateLimit-Limit"))
		assert.Equal(t, wantRemaining, resp.Header.Get("X-RateLimit-Remaining"))
		assert.NotEmpty(t, resp.Header.Get("X-RateLimit-Reset"))
	}

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(fiber.HeaderRetryAfter))
}

func TestMiddleware_KeyFunc(t *testing.T) {
	counter := NewMemoryCounter(time.Minute)
	defer counter.Close()

	app := newLimitedApp(MiddlewareConfig{
		Counter: counter,
		Limit:   1,
		Window:  time.Minute,
		KeyFunc: func(c *fiber.Ctx) string { return c.Get("X-Client") },
	})

	send := func(client string) int {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("X-Client", client)
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp.StatusCode
	}

	assert.Equal(t, fiber.StatusOK, send("a"))
	assert.Equal(t, fiber.StatusOK, send("b"))
	assert.Equal(t, fiber.StatusTooManyRequests, send("a"))
}

func TestMiddleware_CounterFailureAllows(t *testing.T) {
	app := newLimitedApp(MiddlewareConfig{Counter: brokenCounter{}, Limit: 1, Window: time.Minute})

	for i := 0; i < 3; i++ {
		resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
		assert.Empty(t, resp.Header.Get("X-RateLimit-Limit"))
	}
}
