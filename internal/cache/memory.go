package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryProvider implements Provider on an in-process TTL cache.
type MemoryProvider struct {
	store *gocache.Cache
}

// NewMemoryProvider creates a MemoryProvider. defaultTTL applies when Set is called
// with ttl <= 0; cleanupEvery <= 0 disables the background janitor.
func NewMemoryProvider(defaultTTL, cleanupEvery time.Duration) *MemoryProvider {
	if defaultTTL <= 0 {
		defaultTTL = gocache.NoExpiration
	}
	return &MemoryProvider{store: gocache.New(defaultTTL, cleanupEvery)}
}

// Get returns a copy of the stored value or ErrCacheMiss.
func (m *MemoryProvider) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v, ok := m.store.Get(key)
	if !ok {
		return nil, ErrCacheMiss
	}
	return append([]byte(nil), v.([]byte)...), nil
}

// Set stores a copy of value.
func (m *MemoryProvider) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.store.Set(key, append([]byte(nil), value...), expiration(ttl))
	return nil
}

// Del removes key.
func (m *MemoryProvider) Del(_ context.Context, key string) error {
	m.store.Delete(key)
	return nil
}

// Close drops every entry.
func (m *MemoryProvider) Close() error {
	m.store.Flush()
	return nil
}

func expiration(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return gocache.DefaultExpiration
	}
	return ttl
}
