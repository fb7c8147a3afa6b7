// Package plugin implements packages backed by Go code instead of a wasm
// module. Plugins bypass the memory pool and the typed codec: they receive
// decoded arguments and return Go values.
package plugin

import (
	"context"
	"sort"

	"github.com/wippyai/wrap-runtime/abi"
	"github.com/wippyai/wrap-runtime/codec"
	"github.com/wippyai/wrap-runtime/core"
	"github.com/wippyai/wrap-runtime/errors"
	"github.com/wippyai/wrap-runtime/files"
	"github.com/wippyai/wrap-runtime/manifest"
)

// Method is a plugin method.
type Method func(ctx context.Context, args map[string]any, invoker core.Invoker) (any, error)

// Option configures a Package.
type Option func(*Package)

// WithName sets the name of the generated manifest.
func WithName(name string) Option {
	return func(p *Package) { p.name = name }
}

// WithManifest replaces the generated manifest. Arguments and results of
// functions it declares are decoded and encoded with its ABI.
func WithManifest(m *manifest.Manifest) Option {
	return func(p *Package) { p.manifest = m }
}

// WithFileReader serves files the plugin ships.
func WithFileReader(r files.Reader) Option {
	return func(p *Package) { p.reader = r }
}

// Package is a plugin package. CreateWrapper is cheap; every wrapper
// dispatches straight to the registered methods.
type Package struct {
	methods  map[string]Method
	manifest *manifest.Manifest
	codec    *codec.Codec
	reader   files.Reader
	name     string
}

// NewPackage creates a plugin from methods keyed by name.
func NewPackage(methods map[string]Method, opts ...Option) *Package {
	p := &Package{methods: make(map[string]Method, len(methods)), name: "plugin"}
	for name, m := range methods {
		p.methods[name] = m
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.manifest == nil {
		p.manifest = generateManifest(p.name, p.methods)
	}
	p.codec = codec.New(&p.manifest.ABI)
	return p
}

func generateManifest(name string, methods map[string]Method) *manifest.Manifest {
	names := make([]string, 0, len(methods))
	for n := range methods {
		names = append(names, n)
	}
	sort.Strings(names)

	fns := make([]abi.Function, len(names))
	for i, n := range names {
		fns[i] = abi.Function{Name: n}
	}
	return &manifest.Manifest{
		Format: manifest.Latest,
		Type:   manifest.TypePlugin,
		Name:   name,
		ABI:    abi.ABI{Functions: fns},
	}
}

func (p *Package) Manifest(context.Context, manifest.Options) (*manifest.Manifest, error) {
	return p.manifest, nil
}

func (p *Package) CreateWrapper(context.Context) (core.Wrapper, error) {
	return &Wrapper{pkg: p}, nil
}

// Wrapper dispatches invocations to plugin methods.
type Wrapper struct {
	pkg *Package
}

func (w *Wrapper) Manifest() *manifest.Manifest {
	return w.pkg.manifest
}

// Invoke calls the method named by inv.Method. Encoded arguments are
// decoded first; the result is encoded when inv.EncodeResult is set.
func (w *Wrapper) Invoke(ctx context.Context, inv *core.Invocation, invoker core.Invoker) (*core.InvokeResult, error) {
	method, ok := w.pkg.methods[inv.Method]
	if !ok {
		return nil, errors.MethodNotFound(inv.URI.String(), inv.Method)
	}
	fn, typed := w.pkg.manifest.ABI.Function(inv.Method)

	args := inv.Args
	if inv.EncodedArgs != nil {
		decoded, err := w.decodeArgs(fn, typed, inv.EncodedArgs)
		if err != nil {
			return nil, err
		}
		args = decoded
	}
	if args == nil {
		args = map[string]any{}
	}

	v, err := method(ctx, args, invoker)
	if err != nil {
		return nil, errors.ModuleExecution(inv.URI.String(), err.Error(), err)
	}
	if !inv.EncodeResult {
		return core.Decoded(v), nil
	}

	var data []byte
	if typed && fn.Return != "" {
		data, err = w.pkg.codec.EncodeResult(fn, v)
	} else {
		data, err = codec.Marshal(v)
	}
	if err != nil {
		return nil, err
	}
	return core.Encoded(data), nil
}

func (w *Wrapper) decodeArgs(fn *abi.Function, typed bool, data []byte) (map[string]any, error) {
	if typed && len(fn.Args) > 0 {
		return w.pkg.codec.DecodeArgs(fn, data)
	}
	if len(data) == 0 {
		return map[string]any{}, nil
	}
	v, err := codec.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	switch m := v.(type) {
	case map[string]any:
		return m, nil
	case nil:
		return map[string]any{}, nil
	}
	return nil, errors.TypeMismatch(errors.PhaseDecode, []string{"args"}, "map", v)
}

func (w *Wrapper) GetFile(ctx context.Context, path string) ([]byte, error) {
	if w.pkg.reader == nil {
		return nil, errors.FileNotFound(path, nil)
	}
	return w.pkg.reader.ReadFile(ctx, path)
}

// Close is a no-op; plugin wrappers hold no resources.
func (w *Wrapper) Close(context.Context) error {
	return nil
}

var (
	_ core.Package = (*Package)(nil)
	_ core.Wrapper = (*Wrapper)(nil)
)
