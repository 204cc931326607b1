package repo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/miradorstack/mirador-synergy/internal/cache"
)

// recordingCache is an in-memory cache.Provider that remembers which keys were
// written, evicted and with which TTL.
type recordingCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	ttls    map[string]time.Duration
	evicted []string
}

var _ cache.Provider = (*recordingCache)(nil)

func newRecordingCache() *recordingCache {
	return &recordingCache{entries: make(map[string][]byte), ttls: make(map[string]time.Duration)}
}

// seed stores a raw payload under key, as if a previous run had cached it.
func (c *recordingCache) seed(key string, payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = payload
}

func (c *recordingCache) keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.entries))
	for k := range c.entries {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (c *recordingCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[key]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return append([]byte(nil), v...), nil
}

func (c *recordingCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = append([]byte(nil), value...)
	c.ttls[key] = ttl
	return nil
}

func (c *recordingCache) Del(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	c.evicted = append(c.evicted, key)
	return nil
}

func (c *recordingCache) Close() error { return nil }
