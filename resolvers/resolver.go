package resolvers

import (
	"context"
	stderrors "errors"

	"go.uber.org/zap"

	"github.com/wippyai/wrap-runtime/core"
	"github.com/wippyai/wrap-runtime/errors"
	"github.com/wippyai/wrap-runtime/uri"
)

// Resolver resolves one URI. rc is never nil when called through
// Recursive; other callers may pass nil.
type Resolver interface {
	TryResolveURI(ctx context.Context, u uri.URI, invoker core.Invoker, rc *core.ResolutionContext) (core.Resolution, error)
}

// Func adapts a function to Resolver.
type Func func(ctx context.Context, u uri.URI, invoker core.Invoker, rc *core.ResolutionContext) (core.Resolution, error)

func (f Func) TryResolveURI(ctx context.Context, u uri.URI, invoker core.Invoker, rc *core.ResolutionContext) (core.Resolution, error) {
	return f(ctx, u, invoker, rc)
}

func track(rc *core.ResolutionContext, name string, u uri.URI, res core.Resolution, err error) {
	Logger().Debug("resolution step",
		zap.String("resolver", name),
		zap.Stringer("uri", u),
		zap.Stringer("result", res.Outcome),
		zap.Error(err))
	if rc != nil {
		rc.TrackStep(core.Step{Resolver: name, URI: u, Result: res, Err: err})
	}
}

// Entry is a static resolution rule: From resolves to Package when it is
// set, otherwise to a redirect to To.
type Entry struct {
	Package core.Package
	From    uri.URI
	To      uri.URI
}

// Static resolves URIs by exact match against a fixed table. It does not
// follow redirects. When several entries share a From, the first wins.
type Static struct {
	entries map[string]Entry
}

// NewStatic creates a static resolver.
func NewStatic(entries ...Entry) *Static {
	s := &Static{entries: make(map[string]Entry, len(entries))}
	for _, e := range entries {
		if _, dup := s.entries[e.From.Key()]; dup {
			continue
		}
		s.entries[e.From.Key()] = e
	}
	return s
}

// NewRedirect resolves from to a redirect to to.
func NewRedirect(from, to uri.URI) *Static {
	return NewStatic(Entry{From: from, To: to})
}

// NewPackage resolves u to pkg.
func NewPackage(u uri.URI, pkg core.Package) *Static {
	return NewStatic(Entry{From: u, Package: pkg})
}

func (s *Static) TryResolveURI(_ context.Context, u uri.URI, _ core.Invoker, rc *core.ResolutionContext) (core.Resolution, error) {
	res := core.NotFound(u)
	if e, ok := s.entries[u.Key()]; ok {
		switch {
		case e.Package != nil:
			res = core.Found(u, e.Package)
		case !e.To.IsZero():
			res = core.Redirect(e.To)
		}
	}
	track(rc, "static", u, res, nil)
	return res, nil
}

// Len returns the number of distinct URIs in the table.
func (s *Static) Len() int {
	return len(s.entries)
}

// Sequential asks resolvers in order. The first answer other than not found
// wins and later resolvers are not asked. A failing resolver does not stop
// the search: its error is kept and reported, in order, only if no resolver
// answers. Infinite loop errors stop the search immediately.
type Sequential struct {
	resolvers []Resolver
}

// NewSequential creates a sequential resolver.
func NewSequential(resolvers ...Resolver) *Sequential {
	return &Sequential{resolvers: resolvers}
}

func (s *Sequential) TryResolveURI(ctx context.Context, u uri.URI, invoker core.Invoker, rc *core.ResolutionContext) (core.Resolution, error) {
	var errs error
	for _, r := range s.resolvers {
		res, err := r.TryResolveURI(ctx, u, invoker, rc)
		if err != nil {
			if stderrors.Is(err, errors.ErrInfiniteLoop) {
				return core.Resolution{}, err
			}
			errs = errors.Append(errs, err)
			continue
		}
		if !res.IsNotFound() {
			return res, nil
		}
	}
	if errs != nil {
		return core.Resolution{}, errs
	}
	return core.NotFound(u), nil
}

// Recursive follows redirects returned by its inner resolver until it
// reaches a package or nothing is found. Revisiting a URI fails with an
// infinite loop error, as does a chain longer than the depth cap.
type Recursive struct {
	inner    Resolver
	maxDepth int
}

// RecursiveOption configures a Recursive resolver.
type RecursiveOption func(*Recursive)

// WithMaxDepth caps redirect chains started by this resolver.
// n <= 0 means core.DefaultMaxDepth.
func WithMaxDepth(n int) RecursiveOption {
	return func(r *Recursive) { r.maxDepth = n }
}

// NewRecursive creates a recursive resolver.
func NewRecursive(inner Resolver, opts ...RecursiveOption) *Recursive {
	r := &Recursive{inner: inner}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// MaxDepth returns the depth cap for resolutions started without a context.
func (r *Recursive) MaxDepth() int {
	return r.maxDepth
}

func (r *Recursive) TryResolveURI(ctx context.Context, u uri.URI, invoker core.Invoker, rc *core.ResolutionContext) (core.Resolution, error) {
	if rc == nil {
		rc = core.NewResolutionContext(r.maxDepth)
	}
	if err := rc.StartResolving(u); err != nil {
		track(rc, "recursive", u, core.Resolution{}, err)
		return core.Resolution{}, err
	}
	defer rc.StopResolving(u)

	res, err := r.inner.TryResolveURI(ctx, u, invoker, rc)
	if err != nil {
		return core.Resolution{}, err
	}
	if res.IsRedirect() {
		return r.TryResolveURI(ctx, res.URI, invoker, rc)
	}
	return res, nil
}
