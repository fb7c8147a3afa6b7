package resolvers

import "github.com/wippyai/wrap-runtime/uri"

// BuildConfig describes the default resolver chain.
type BuildConfig struct {
	// Cache backs the cache layer. Nil means a new MemoryCache.
	Cache Cache

	// PackageFactory turns manifests returned by extensions into packages.
	PackageFactory PackageFactory

	// Entries are the static packages and redirects, consulted first.
	Entries []Entry

	// Resolvers run after the static table, in order.
	Resolvers []Resolver

	// Extensions are the interfaces the extendable resolver queries.
	// Empty means ExtensionInterface.
	Extensions []uri.URI

	// MaxDepth caps redirect chains. 0 means core.DefaultMaxDepth.
	MaxDepth int

	// NoCache drops the cache layer.
	NoCache bool

	// Dedup collapses concurrent cache misses for one URI.
	Dedup bool
}

// Chain is a built resolver chain.
type Chain struct {
	*Recursive
	cache *CacheResolver
}

// Build composes Recursive(Cache(Sequential(Static, resolvers..., Extendable))).
func Build(cfg BuildConfig) *Chain {
	seq := make([]Resolver, 0, len(cfg.Resolvers)+2)
	seq = append(seq, NewStatic(cfg.Entries...))
	seq = append(seq, cfg.Resolvers...)

	extOpts := []ExtendableOption{WithPackageFactory(cfg.PackageFactory)}
	if len(cfg.Extensions) > 0 {
		extOpts = append(extOpts, WithInterfaces(cfg.Extensions...))
	}
	seq = append(seq, NewExtendable(extOpts...))

	var inner Resolver = NewSequential(seq...)
	c := &Chain{}
	if !cfg.NoCache {
		var opts []CacheOption
		if cfg.Dedup {
			opts = append(opts, WithDedup())
		}
		c.cache = NewCache(inner, cfg.Cache, opts...)
		inner = c.cache
	}
	c.Recursive = NewRecursive(inner, WithMaxDepth(cfg.MaxDepth))
	return c
}

// Reset clears the cache layer, if any.
func (c *Chain) Reset() {
	if c.cache != nil {
		c.cache.Reset()
	}
}
