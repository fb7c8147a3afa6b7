package resolvers

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/wippyai/wrap-runtime/core"
	"github.com/wippyai/wrap-runtime/uri"
)

// Cache stores resolutions by normalized URI. Entries live until Reset.
type Cache interface {
	Get(u uri.URI) (core.Resolution, bool)
	Set(u uri.URI, res core.Resolution)
	Reset()
}

// MemoryCache is an in-process Cache. Safe for concurrent use.
type MemoryCache struct {
	entries map[string]core.Resolution
	mu      sync.RWMutex
}

// NewMemoryCache creates an empty cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]core.Resolution)}
}

func (c *MemoryCache) Get(u uri.URI) (core.Resolution, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	res, ok := c.entries[u.Key()]
	return res, ok
}

// Set stores res for u. A later Set for the same URI replaces it.
func (c *MemoryCache) Set(u uri.URI, res core.Resolution) {
	c.mu.Lock()
	c.entries[u.Key()] = res
	c.mu.Unlock()
}

func (c *MemoryCache) Reset() {
	c.mu.Lock()
	c.entries = make(map[string]core.Resolution)
	c.mu.Unlock()
}

// Len returns the number of cached URIs.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// CacheResolver answers from its cache and asks the inner resolver only on
// a miss. Packages and redirects are cached; not found answers and errors
// are not.
//
// Concurrent misses for the same URI each ask the inner resolver and the
// last one to finish wins, unless the resolver was built WithDedup.
type CacheResolver struct {
	inner Resolver
	cache Cache
	group *singleflight.Group
}

// CacheOption configures a CacheResolver.
type CacheOption func(*CacheResolver)

// WithDedup collapses concurrent misses for one URI into a single inner
// resolution whose answer every caller shares.
func WithDedup() CacheOption {
	return func(r *CacheResolver) { r.group = &singleflight.Group{} }
}

// NewCache wraps inner with cache. A nil cache means a new MemoryCache.
func NewCache(inner Resolver, cache Cache, opts ...CacheOption) *CacheResolver {
	if cache == nil {
		cache = NewMemoryCache()
	}
	r := &CacheResolver{inner: inner, cache: cache}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Cache returns the underlying cache.
func (r *CacheResolver) Cache() Cache {
	return r.cache
}

// Reset drops every cached resolution.
func (r *CacheResolver) Reset() {
	r.cache.Reset()
}

func (r *CacheResolver) TryResolveURI(ctx context.Context, u uri.URI, invoker core.Invoker, rc *core.ResolutionContext) (core.Resolution, error) {
	if res, ok := r.cache.Get(u); ok {
		track(rc, "cache", u, res, nil)
		return res, nil
	}

	if r.group == nil {
		return r.resolve(ctx, u, invoker, rc)
	}

	v, err, _ := r.group.Do(u.Key(), func() (any, error) {
		return r.resolve(ctx, u, invoker, rc)
	})
	if err != nil {
		return core.Resolution{}, err
	}
	return v.(core.Resolution), nil
}

func (r *CacheResolver) resolve(ctx context.Context, u uri.URI, invoker core.Invoker, rc *core.ResolutionContext) (core.Resolution, error) {
	res, err := r.inner.TryResolveURI(ctx, u, invoker, rc)
	if err != nil {
		return core.Resolution{}, err
	}
	if !res.IsNotFound() {
		r.cache.Set(u, res)
	}
	return res, nil
}
