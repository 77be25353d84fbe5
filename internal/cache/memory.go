package cache

import (
	"context"
	"time"

	"github.com/gofiber/storage/memory/v2"
)

// MemoryStore keeps entries in process memory
type MemoryStore struct {
	storage    *memory.Storage
	gcInterval time.Duration
}

// NewMemoryStore creates an in-memory store that sweeps expired entries every
// gcInterval. Non-positive intervals default to 10 minutes.
func NewMemoryStore(gcInterval time.Duration) *MemoryStore {
	if gcInterval <= 0 {
		gcInterval = 10 * time.Minute
	}
	return &MemoryStore{
		storage:    memory.New(memory.Config{GCInterval: gcInterval}),
		gcInterval: gcInterval,
	}
}

// Get implements Store
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	val, err := s.storage.Get(key)
	if err != nil {
		return nil, false, err
	}
	if val == nil {
		return nil, false, nil
	}
	return val, true, nil
}

// Set implements Store
func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	return s.storage.Set(key, value, ttl)
}

// Delete implements Store
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	return s.storage.Delete(key)
}

// Close implements Store
func (s *MemoryStore) Close() error {
	return s.storage.Close()
}
