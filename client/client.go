package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/wippyai/wrap-runtime/codec"
	"github.com/wippyai/wrap-runtime/core"
	"github.com/wippyai/wrap-runtime/errors"
	"github.com/wippyai/wrap-runtime/files"
	"github.com/wippyai/wrap-runtime/manifest"
	"github.com/wippyai/wrap-runtime/resolvers"
	"github.com/wippyai/wrap-runtime/uri"
)

// Client resolves and invokes wrappers. Safe for concurrent use.
type Client struct {
	resolver resolvers.Resolver
	resetter interface{ Reset() }
	logger   *zap.Logger
	tracer   trace.Tracer
	envs     map[string]map[string]any
	impls    map[string][]uri.URI
	codecs   sync.Map
	ifaces   []uri.URI
	maxDepth int
}

type fileGetter interface {
	GetFile(ctx context.Context, path string) ([]byte, error)
}

func (c *Client) resolution(rc *core.ResolutionContext) *core.ResolutionContext {
	if rc != nil {
		return rc
	}
	return core.NewResolutionContext(c.maxDepth)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// TryResolveURI runs the resolver chain for u. rc may be nil.
func (c *Client) TryResolveURI(ctx context.Context, u uri.URI, rc *core.ResolutionContext) (core.Resolution, error) {
	ctx, span := c.tracer.Start(ctx, "wrap.resolve", trace.WithAttributes(attribute.String("wrap.uri", u.String())))
	res, err := c.resolver.TryResolveURI(ctx, u, c, c.resolution(rc))
	if err == nil {
		span.SetAttributes(attribute.String("wrap.resolution", res.Outcome.String()))
	}
	endSpan(span, err)
	return res, err
}

// LoadPackage resolves u to a package. Resolving to nothing, or to a URI
// nothing serves, is an URI not found error.
func (c *Client) LoadPackage(ctx context.Context, u uri.URI, rc *core.ResolutionContext) (core.Package, error) {
	res, err := c.TryResolveURI(ctx, u, rc)
	if err != nil {
		return nil, err
	}
	if !res.IsPackage() {
		return nil, errors.UriNotFound(u.String())
	}
	return res.Package, nil
}

// GetManifest resolves u and returns its manifest.
func (c *Client) GetManifest(ctx context.Context, u uri.URI, opts manifest.Options) (*manifest.Manifest, error) {
	pkg, err := c.LoadPackage(ctx, u, nil)
	if err != nil {
		return nil, err
	}
	return pkg.Manifest(ctx, opts)
}

// GetFile reads a file shipped by the wrapper at u.
func (c *Client) GetFile(ctx context.Context, u uri.URI, path string) ([]byte, error) {
	pkg, err := c.LoadPackage(ctx, u, nil)
	if err != nil {
		return nil, err
	}
	if fg, ok := pkg.(fileGetter); ok {
		return fg.GetFile(ctx, path)
	}

	w, err := pkg.CreateWrapper(ctx)
	if err != nil {
		return nil, err
	}
	defer w.Close(ctx)
	return w.GetFile(ctx, path)
}

// GetFileString reads a file and decodes it from encoding (UTF-8 when empty).
func (c *Client) GetFileString(ctx context.Context, u uri.URI, path, encoding string) (string, error) {
	data, err := c.GetFile(ctx, u, path)
	if err != nil {
		return "", err
	}
	return files.Decode(data, encoding)
}

// GetImplementations returns the registered implementations of iface, in
// registration order.
func (c *Client) GetImplementations(_ context.Context, iface uri.URI, _ *core.ResolutionContext) ([]uri.URI, error) {
	return append([]uri.URI(nil), c.impls[iface.Key()]...), nil
}

// Interfaces returns the interfaces that have implementations.
func (c *Client) Interfaces() []uri.URI {
	return append([]uri.URI(nil), c.ifaces...)
}

// GetEnv returns the environment configured for u, or nil.
func (c *Client) GetEnv(u uri.URI) map[string]any {
	return c.envs[u.Key()]
}

// ResetCache drops cached resolutions. A no-op for clients built without
// the default chain or without a cache.
func (c *Client) ResetCache() {
	if c.resetter != nil {
		c.resetter.Reset()
	}
	c.codecs.Range(func(k, _ any) bool {
		c.codecs.Delete(k)
		return true
	})
}

// Invoke resolves inv.URI and runs inv.Method.
//
// The method is checked against the manifest and arguments are encoded
// before a wrapper is created, so those failures hold no runtime resources.
// The wrapper is closed on every path.
func (c *Client) Invoke(ctx context.Context, inv *core.Invocation) (*core.InvokeResult, error) {
	ctx, span := c.tracer.Start(ctx, "wrap.invoke", trace.WithAttributes(
		attribute.String("wrap.uri", inv.URI.String()),
		attribute.String("wrap.method", inv.Method),
	))

	start := time.Now()
	res, err := c.invoke(ctx, inv)
	c.logger.Debug("invoke",
		zap.Stringer("uri", inv.URI),
		zap.String("method", inv.Method),
		zap.Duration("duration", time.Since(start)),
		zap.Bool("ok", err == nil))

	endSpan(span, err)
	return res, err
}

func (c *Client) invoke(ctx context.Context, inv *core.Invocation) (*core.InvokeResult, error) {
	pkg, err := c.LoadPackage(ctx, inv.URI, inv.Resolution)
	if err != nil {
		return nil, err
	}
	m, err := pkg.Manifest(ctx, manifest.Options{})
	if err != nil {
		return nil, err
	}
	if _, ok := m.ABI.Function(inv.Method); !ok {
		return nil, errors.MethodNotFound(inv.URI.String(), inv.Method)
	}

	call := *inv
	if call.Env == nil && call.EncodedEnv == nil {
		call.Env = c.GetEnv(inv.URI)
	}
	if enc, ok := pkg.(core.ArgsEncoder); ok && call.EncodedArgs == nil {
		call.EncodedArgs, err = enc.EncodeArgs(ctx, call.Method, call.Args)
		if err != nil {
			return nil, err
		}
	}

	w, err := pkg.CreateWrapper(ctx)
	if err != nil {
		return nil, err
	}
	return c.InvokeWrapper(ctx, w, &call)
}

// InvokeWrapper runs inv on an already created wrapper and closes it. The
// result is converted to the form inv.EncodeResult asks for.
func (c *Client) InvokeWrapper(ctx context.Context, w core.Wrapper, inv *core.Invocation) (*core.InvokeResult, error) {
	defer w.Close(ctx)

	res, err := w.Invoke(ctx, inv, c)
	if err != nil {
		return nil, err
	}

	switch {
	case inv.EncodeResult && !res.IsEncoded:
		data, err := codec.Marshal(res.Data)
		if err != nil {
			return nil, err
		}
		return core.Encoded(data), nil
	case !inv.EncodeResult && res.IsEncoded:
		m := w.Manifest()
		fn, ok := m.ABI.Function(inv.Method)
		if !ok {
			v, err := codec.Unmarshal(res.Encoded)
			if err != nil {
				return nil, err
			}
			return core.Decoded(v), nil
		}
		v, err := c.codec(m).DecodeResult(fn, res.Encoded)
		if err != nil {
			return nil, err
		}
		return core.Decoded(v), nil
	}
	return res, nil
}

func (c *Client) codec(m *manifest.Manifest) *codec.Codec {
	if v, ok := c.codecs.Load(m); ok {
		return v.(*codec.Codec)
	}
	v, _ := c.codecs.LoadOrStore(m, codec.New(&m.ABI))
	return v.(*codec.Codec)
}

// InvokeAs invokes and converts the decoded result to T. Values that are
// not already a T are converted through their MessagePack encoding, which
// turns maps into structs by msgpack tags.
func InvokeAs[T any](ctx context.Context, c *Client, inv core.Invocation) (T, error) {
	var zero T
	inv.EncodeResult = false

	res, err := c.Invoke(ctx, &inv)
	if err != nil {
		return zero, err
	}
	if v, ok := res.Data.(T); ok {
		return v, nil
	}

	data, err := codec.Marshal(res.Data)
	if err != nil {
		return zero, err
	}
	var out T
	if err := codec.UnmarshalInto(data, &out); err != nil {
		return zero, errors.New(errors.PhaseDecode, errors.KindTypeMismatch).
			URI(inv.URI.String()).
			Type(fmt.Sprintf("%T", zero)).
			Value(res.Data).
			Cause(err).
			Detail("convert %s result", inv.Method).
			Build()
	}
	return out, nil
}

var _ core.Invoker = (*Client)(nil)
