package itunes

import (
	"context"
	"sync"
	"time"
)

// DefaultCacheTTL bounds how stale a cached lookup result may be.
const DefaultCacheTTL = 5 * time.Minute

// Looker is the lookup surface the cache wraps.
type Looker interface {
	Lookup(ctx context.Context, bundleID string) (*App, error)
}

type cacheEntry struct {
	app      *App
	fetched  time.Time
	resolved bool // a nil app for an unknown bundle id is cached too
}

// VersionCache memoizes lookup results per bundle id with a TTL. Only
// successful lookups are cached; errors always fall through to the client.
type VersionCache struct {
	client Looker
	ttl    time.Duration

	mu      sync.Mutex
	entries map[string]cacheEntry

	// now is swappable in tests.
	now func() time.Time
}

// NewVersionCache wraps client with a TTL cache. A non-positive ttl selects
// DefaultCacheTTL.
func NewVersionCache(client Looker, ttl time.Duration) *VersionCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &VersionCache{
		client:  client,
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

// Lookup returns the cached result when fresh, otherwise queries the
// underlying client and caches the answer.
func (c *VersionCache) Lookup(ctx context.Context, bundleID string) (*App, error) {
	c.mu.Lock()
	entry, ok := c.entries[bundleID]
	c.mu.Unlock()
	if ok && entry.resolved && c.now().Sub(entry.fetched) < c.ttl {
		return entry.app, nil
	}

	app, err := c.client.Lookup(ctx, bundleID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[bundleID] = cacheEntry{app: app, fetched: c.now(), resolved: true}
	c.mu.Unlock()
	return app, nil
}

// Invalidate drops the cached entry for a bundle id.
func (c *VersionCache) Invalidate(bundleID string) {
	c.mu.Lock()
	delete(c.entries, bundleID)
	c.mu.Unlock()
}
