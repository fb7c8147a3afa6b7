package client

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/wippyai/wrap-runtime/core"
	"github.com/wippyai/wrap-runtime/files"
	"github.com/wippyai/wrap-runtime/resolvers"
	"github.com/wippyai/wrap-runtime/uri"
	"github.com/wippyai/wrap-runtime/wasm"
)

const tracerName = "github.com/wippyai/wrap-runtime/client"

// Builder assembles a Client. Methods return the receiver for chaining.
// A Builder is not safe for concurrent use.
type Builder struct {
	cache      resolvers.Cache
	resolver   resolvers.Resolver
	factory    resolvers.PackageFactory
	logger     *zap.Logger
	tp         trace.TracerProvider
	envs       map[string]map[string]any
	entries    []resolvers.Entry
	extra      []resolvers.Resolver
	ifaces     []uri.URI
	impls      map[string][]uri.URI
	extensions []uri.URI
	maxDepth   int
	noCache    bool
	dedup      bool
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{
		envs:  make(map[string]map[string]any),
		impls: make(map[string][]uri.URI),
	}
}

// AddPackage serves pkg at u.
func (b *Builder) AddPackage(u uri.URI, pkg core.Package) *Builder {
	b.entries = append(b.entries, resolvers.Entry{From: u, Package: pkg})
	return b
}

// AddRedirect continues resolution of from at to.
func (b *Builder) AddRedirect(from, to uri.URI) *Builder {
	b.entries = append(b.entries, resolvers.Entry{From: from, To: to})
	return b
}

// AddResolver appends a resolver queried after packages and redirects.
func (b *Builder) AddResolver(r resolvers.Resolver) *Builder {
	b.extra = append(b.extra, r)
	return b
}

// AddInterfaceImplementation registers impl as an implementation of iface.
// Implementations of the resolver extension interface take part in
// resolution.
func (b *Builder) AddInterfaceImplementation(iface, impl uri.URI) *Builder {
	key := iface.Key()
	if _, ok := b.impls[key]; !ok {
		b.ifaces = append(b.ifaces, iface)
	}
	for _, existing := range b.impls[key] {
		if existing.Equal(impl) {
			return b
		}
	}
	b.impls[key] = append(b.impls[key], impl)
	return b
}

// AddEnv merges env into the environment passed to wrappers at u.
func (b *Builder) AddEnv(u uri.URI, env map[string]any) *Builder {
	merged := b.envs[u.Key()]
	if merged == nil {
		merged = make(map[string]any, len(env))
		b.envs[u.Key()] = merged
	}
	for k, v := range env {
		merged[k] = v
	}
	return b
}

// AddExtensionInterface adds an interface whose implementations the
// extendable resolver queries. Without any, resolvers.ExtensionInterface
// is used.
func (b *Builder) AddExtensionInterface(iface uri.URI) *Builder {
	b.extensions = append(b.extensions, iface)
	return b
}

// WithCache sets the resolution cache.
func (b *Builder) WithCache(c resolvers.Cache) *Builder {
	b.cache = c
	b.noCache = false
	return b
}

// WithoutCache disables resolution caching.
func (b *Builder) WithoutCache() *Builder {
	b.noCache = true
	return b
}

// WithDedup makes concurrent first resolutions of a URI share one answer.
func (b *Builder) WithDedup() *Builder {
	b.dedup = true
	return b
}

// WithMaxDepth caps redirect chains and nested resolutions.
func (b *Builder) WithMaxDepth(n int) *Builder {
	b.maxDepth = n
	return b
}

// WithLogger sets the client logger. The default discards everything.
func (b *Builder) WithLogger(l *zap.Logger) *Builder {
	b.logger = l
	return b
}

// WithTracerProvider sets where invocation and resolution spans go. The
// default is the global provider.
func (b *Builder) WithTracerProvider(tp trace.TracerProvider) *Builder {
	b.tp = tp
	return b
}

// WithPackageFactory sets how manifests returned by resolver extensions
// become packages.
func (b *Builder) WithPackageFactory(f resolvers.PackageFactory) *Builder {
	b.factory = f
	return b
}

// WithRuntime makes manifests returned by resolver extensions wasm packages
// running in rt.
func (b *Builder) WithRuntime(rt *wasm.Runtime) *Builder {
	return b.WithPackageFactory(func(manifest []byte, reader files.Reader) core.Package {
		return wasm.NewPackage(rt, wasm.WithManifest(manifest), wasm.WithFileReader(reader))
	})
}

// WithResolver replaces the default resolver chain. Packages, redirects and
// extra resolvers added to the builder are then ignored, and the resolver
// is expected to follow redirects itself.
func (b *Builder) WithResolver(r resolvers.Resolver) *Builder {
	b.resolver = r
	return b
}

// Build creates the client.
func (b *Builder) Build() *Client {
	c := &Client{
		logger:   b.logger,
		maxDepth: b.maxDepth,
		envs:     make(map[string]map[string]any, len(b.envs)),
		impls:    make(map[string][]uri.URI, len(b.impls)),
		ifaces:   append([]uri.URI(nil), b.ifaces...),
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	tp := b.tp
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	c.tracer = tp.Tracer(tracerName)

	for k, env := range b.envs {
		copied := make(map[string]any, len(env))
		for ek, ev := range env {
			copied[ek] = ev
		}
		c.envs[k] = copied
	}
	for k, impls := range b.impls {
		c.impls[k] = append([]uri.URI(nil), impls...)
	}

	if b.resolver != nil {
		c.resolver = b.resolver
		return c
	}

	chain := resolvers.Build(resolvers.BuildConfig{
		Cache:          b.cache,
		PackageFactory: b.factory,
		Entries:        append([]resolvers.Entry(nil), b.entries...),
		Resolvers:      append([]resolvers.Resolver(nil), b.extra...),
		Extensions:     append([]uri.URI(nil), b.extensions...),
		MaxDepth:       b.maxDepth,
		NoCache:        b.noCache,
		Dedup:          b.dedup,
	})
	c.resolver = chain
	c.resetter = chain
	return c
}
