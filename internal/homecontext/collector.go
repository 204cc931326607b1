package homecontext

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/errgroup"

	"github.com/miradorstack/mirador-synergy/internal/metrics"
	"github.com/miradorstack/mirador-synergy/internal/models"
)

// Collector fetches every provider concurrently and caches readings per kind.
type Collector struct {
	providers []Provider
	cache     *gocache.Cache
	timeout   time.Duration
	logger    *slog.Logger
}

// NewCollector constructs a Collector. ttl <= 0 disables caching.
func NewCollector(logger *slog.Logger, ttl, timeout time.Duration, providers ...Provider) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	c := &Collector{providers: providers, timeout: timeout, logger: logger}
	if ttl > 0 {
		// no janitor goroutine; expired entries are purged on each Collect
		c.cache = gocache.New(ttl, 0)
	}
	return c
}

// Len returns the number of configured providers.
func (c *Collector) Len() int {
	if c == nil {
		return 0
	}
	return len(c.providers)
}

// Collect returns the readings of every provider that answered. failed lists the
// kinds that did not, sorted.
func (c *Collector) Collect(ctx context.Context) (models.ContextSnapshot, []string) {
	snapshot := make(models.ContextSnapshot)
	if c == nil || len(c.providers) == 0 {
		return snapshot, nil
	}
	if c.cache != nil {
		c.cache.DeleteExpired()
	}

	// cache hits are resolved before any fetch goroutine can touch snapshot
	pending := make([]Provider, 0, len(c.providers))
	for _, provider := range c.providers {
		if c.cache != nil {
			if cached, ok := c.cache.Get(provider.Kind()); ok {
				snapshot[provider.Kind()] = cached.(map[string]string)
				continue
			}
		}
		pending = append(pending, provider)
	}

	var (
		mu     sync.Mutex
		failed []string
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, provider := range pending {
		kind := provider.Kind()
		g.Go(func() error {
			fetchCtx, cancel := context.WithTimeout(gctx, c.timeout)
			defer cancel()
			readings, err := provider.Fetch(fetchCtx)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				metrics.UpstreamFailure("context_" + kind)
				c.logger.Warn("context provider unavailable", slog.String("kind", kind), slog.Any("error", err))
				failed = append(failed, kind)
				return nil
			}
			snapshot[kind] = readings
			if c.cache != nil {
				c.cache.SetDefault(kind, readings)
			}
			return nil
		})
	}
	// providers never return errors to the group; failures are reported per kind
	_ = g.Wait()

	sort.Strings(failed)
	return snapshot, failed
}
