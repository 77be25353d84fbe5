package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryCounter keeps windows in process memory. State is not shared between replicas.
type MemoryCounter struct {
	mu         sync.Mutex
	windows    map[string]*window
	gcInterval time.Duration
	now        func() time.Time
	stop       chan struct{}
	stopOnce   sync.Once
}

type window struct {
	hits    int64
	resetAt time.Time
}

// NewMemoryCounter creates a counter that drops ended windows every gcInterval
func NewMemoryCounter(gcInterval time.Duration) *MemoryCounter {
	if gcInterval <= 0 {
		gcInterval = 10 * time.Minute
	}

	c := &MemoryCounter{
		windows:    make(map[string]*window),
		gcInterval: gcInterval,
		now:        time.Now,
		stop:       make(chan struct{}),
	}
	go c.gc()
	return c
}

func (c *MemoryCounter) Increment(ctx context.Context, key string, length time.Duration) (int64, time.Time, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	w, ok := c.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(length)}
		c.windows[key] = w
	}
	w.hits++
	return w.hits, w.resetAt, nil
}

func (c *MemoryCounter) Reset(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.windows, key)
	return nil
}

// Close stops the collector. It is safe to call more than once.
func (c *MemoryCounter) Close() error {
	c.stopOnce.Do(func() { close(c.stop) })
	return nil
}

func (c *MemoryCounter) gc() {
	ticker := time.NewTicker(c.gcInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

func (c *MemoryCounter) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for key, w := range c.windows {
		if !now.Before(w.resetAt) {
			delete(c.windows, key)
		}
	}
}
