package resolvers

import (
	"context"
	"fmt"

	"github.com/wippyai/wrap-runtime/core"
	"github.com/wippyai/wrap-runtime/errors"
	"github.com/wippyai/wrap-runtime/files"
	"github.com/wippyai/wrap-runtime/uri"
)

// ExtensionInterface is the interface URI resolver extensions implement:
//
//	tryResolveUri(authority: String!, path: String!): MaybeUriOrManifest
//	getFile(path: String!): Bytes
//
// where MaybeUriOrManifest is {uri: String, manifest: Bytes}.
var ExtensionInterface = uri.MustParse("wrap://ens/wraps.eth:uri-resolver-ext@1.1.0")

// Extension method names.
const (
	MethodTryResolveURI = "tryResolveUri"
	MethodGetFile       = "getFile"
)

// PackageFactory builds a package from a manifest returned by an extension
// and a reader serving the package's other files through the extension.
type PackageFactory func(manifest []byte, reader files.Reader) core.Package

// Extendable resolves URIs by invoking the registered implementations of
// the extension interfaces, in registration order. Implementations that are
// themselves being resolved are skipped.
type Extendable struct {
	factory    PackageFactory
	interfaces []uri.URI
}

// ExtendableOption configures an Extendable resolver.
type ExtendableOption func(*Extendable)

// WithInterfaces replaces the extension interfaces queried.
func WithInterfaces(ifaces ...uri.URI) ExtendableOption {
	return func(e *Extendable) { e.interfaces = ifaces }
}

// WithPackageFactory sets how manifests returned by extensions become
// packages. Without one, such answers fail resolution.
func WithPackageFactory(f PackageFactory) ExtendableOption {
	return func(e *Extendable) { e.factory = f }
}

// NewExtendable creates a resolver that queries ExtensionInterface
// implementations unless configured otherwise.
func NewExtendable(opts ...ExtendableOption) *Extendable {
	e := &Extendable{interfaces: []uri.URI{ExtensionInterface}}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Extendable) TryResolveURI(ctx context.Context, u uri.URI, invoker core.Invoker, rc *core.ResolutionContext) (core.Resolution, error) {
	if invoker == nil {
		return core.NotFound(u), nil
	}
	if rc == nil {
		rc = core.NewResolutionContext(0)
	}

	var errs error
	for _, iface := range e.interfaces {
		impls, err := invoker.GetImplementations(ctx, iface, rc)
		if err != nil {
			errs = errors.Append(errs, err)
			continue
		}
		for _, impl := range impls {
			if rc.IsResolving(impl) {
				continue
			}
			res, err := e.tryExtension(ctx, impl, u, invoker, rc)
			track(rc, "extension "+impl.String(), u, res, err)
			if err != nil {
				errs = errors.Append(errs, err)
				continue
			}
			if !res.IsNotFound() {
				return res, nil
			}
		}
	}
	if errs != nil {
		return core.Resolution{}, errs
	}
	return core.NotFound(u), nil
}

func (e *Extendable) tryExtension(ctx context.Context, ext, u uri.URI, invoker core.Invoker, rc *core.ResolutionContext) (core.Resolution, error) {
	res, err := invoker.Invoke(ctx, &core.Invocation{
		URI:        ext,
		Method:     MethodTryResolveURI,
		Args:       map[string]any{"authority": u.Authority(), "path": u.Path()},
		Resolution: rc.SubContext(),
	})
	if err != nil {
		return core.Resolution{}, err
	}

	answer, ok := res.Data.(map[string]any)
	if !ok || answer == nil {
		return core.NotFound(u), nil
	}

	if s, ok := answer["uri"].(string); ok && s != "" {
		to, err := uri.Parse(s)
		if err != nil {
			return core.Resolution{}, err
		}
		if to.Equal(u) {
			return core.NotFound(u), nil
		}
		return core.Redirect(to), nil
	}

	if m, ok := answer["manifest"].([]byte); ok && len(m) > 0 {
		if e.factory == nil {
			return core.Resolution{}, errors.Unsupported(errors.PhaseResolve,
				fmt.Sprintf("manifest from %s without a package factory", ext))
		}
		reader := NewExtensionFileReader(invoker, ext, u)
		return core.Found(u, e.factory(m, reader)), nil
	}

	return core.NotFound(u), nil
}

// ExtensionFileReader reads a wrapper's files by invoking getFile on the
// extension that resolved it.
type ExtensionFileReader struct {
	invoker core.Invoker
	ext     uri.URI
	wrapper uri.URI
}

// NewExtensionFileReader creates a reader for files of wrapper served by ext.
func NewExtensionFileReader(invoker core.Invoker, ext, wrapper uri.URI) *ExtensionFileReader {
	return &ExtensionFileReader{invoker: invoker, ext: ext, wrapper: wrapper}
}

// ReadFile asks the extension for wrapper/path.
func (r *ExtensionFileReader) ReadFile(ctx context.Context, path string) ([]byte, error) {
	full := r.wrapper.Path() + "/" + files.Clean(path)
	res, err := r.invoker.Invoke(ctx, &core.Invocation{
		URI:    r.ext,
		Method: MethodGetFile,
		Args:   map[string]any{"path": full},
	})
	if err != nil {
		return nil, errors.FileNotFound(path, err)
	}
	switch data := res.Data.(type) {
	case []byte:
		if data != nil {
			return data, nil
		}
	case string:
		return []byte(data), nil
	}
	return nil, errors.FileNotFound(path, nil)
}

var _ files.Reader = (*ExtensionFileReader)(nil)
