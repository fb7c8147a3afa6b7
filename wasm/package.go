package wasm

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/wrap-runtime/codec"
	"github.com/wippyai/wrap-runtime/core"
	"github.com/wippyai/wrap-runtime/engine"
	"github.com/wippyai/wrap-runtime/errors"
	"github.com/wippyai/wrap-runtime/files"
	"github.com/wippyai/wrap-runtime/manifest"
)

// Source produces file bytes on demand.
type Source func(ctx context.Context) ([]byte, error)

// Option configures a Package.
type Option func(*Package)

// WithManifest supplies wrap.info bytes.
func WithManifest(data []byte) Option {
	return func(p *Package) { p.manifestBytes = data }
}

// WithManifestFunc supplies wrap.info lazily.
func WithManifestFunc(fn Source) Option {
	return func(p *Package) { p.manifestFunc = fn }
}

// WithModule supplies wrap.wasm bytes.
func WithModule(data []byte) Option {
	return func(p *Package) { p.moduleBytes = data }
}

// WithModuleFunc supplies wrap.wasm lazily.
func WithModuleFunc(fn Source) Option {
	return func(p *Package) { p.moduleFunc = fn }
}

// WithFileReader serves wrap.info, wrap.wasm and any other file the package
// ships when they are not supplied otherwise.
func WithFileReader(r files.Reader) Option {
	return func(p *Package) { p.reader = r }
}

// Package is a wasm wrapper package. The manifest and module are loaded at
// most once and then cached. Safe for concurrent use.
type Package struct {
	rt     *Runtime
	reader files.Reader

	manifestFunc Source
	moduleFunc   Source

	manifest *manifest.Manifest
	codec    *codec.Codec

	manifestBytes []byte
	moduleBytes   []byte

	mu sync.Mutex
}

// NewPackage creates a package that runs in rt. For each of wrap.info and
// wrap.wasm, explicit bytes win over a lazy getter, which wins over the
// file reader.
func NewPackage(rt *Runtime, opts ...Option) *Package {
	p := &Package{rt: rt}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Package) load(ctx context.Context, path string, data []byte, fn Source) ([]byte, error) {
	if data != nil {
		return data, nil
	}
	if fn != nil {
		return fn(ctx)
	}
	if p.reader != nil {
		return p.reader.ReadFile(ctx, path)
	}
	return nil, errors.FileNotFound(path, nil)
}

// Manifest loads, migrates and validates wrap.info. The first successful
// load is cached.
func (p *Package) Manifest(ctx context.Context, opts manifest.Options) (*manifest.Manifest, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.manifestLocked(ctx, opts)
}

func (p *Package) manifestLocked(ctx context.Context, opts manifest.Options) (*manifest.Manifest, error) {
	if p.manifest != nil {
		return p.manifest, nil
	}

	data, err := p.load(ctx, files.ManifestPath, p.manifestBytes, p.manifestFunc)
	if err != nil {
		return nil, err
	}
	m, err := manifest.Deserialize(data, opts)
	if err != nil {
		return nil, err
	}

	p.manifestBytes = data
	p.manifest = m
	p.codec = codec.New(&m.ABI)
	return m, nil
}

// Module returns the wrap.wasm bytes, loading them once.
func (p *Package) Module(ctx context.Context) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.moduleBytes != nil {
		return p.moduleBytes, nil
	}
	data, err := p.load(ctx, files.ModulePath, nil, p.moduleFunc)
	if err != nil {
		return nil, err
	}
	p.moduleBytes = data
	return data, nil
}

// Codec returns the codec for the package's ABI.
func (p *Package) Codec(ctx context.Context) (*codec.Codec, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, err := p.manifestLocked(ctx, manifest.Options{}); err != nil {
		return nil, err
	}
	return p.codec, nil
}

// EncodeArgs encodes args for method against the package's ABI.
func (p *Package) EncodeArgs(ctx context.Context, method string, args map[string]any) ([]byte, error) {
	c, err := p.Codec(ctx)
	if err != nil {
		return nil, err
	}
	fn, ok := c.ABI().Function(method)
	if !ok {
		return nil, errors.MethodNotFound(p.manifest.Name, method)
	}
	return c.EncodeArgs(fn, args)
}

// GetFile serves wrap.info and wrap.wasm from whatever source the package
// was given, and other paths from its file reader.
func (p *Package) GetFile(ctx context.Context, path string) ([]byte, error) {
	switch files.Clean(path) {
	case files.ManifestPath:
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.load(ctx, files.ManifestPath, p.manifestBytes, p.manifestFunc)
	case files.ModulePath:
		return p.Module(ctx)
	}
	if p.reader == nil {
		return nil, errors.FileNotFound(path, nil)
	}
	return p.reader.ReadFile(ctx, path)
}

// CreateWrapper acquires a pool handle and instantiates the module in its
// region. The handle is released if anything after acquisition fails.
func (p *Package) CreateWrapper(ctx context.Context) (core.Wrapper, error) {
	m, err := p.Manifest(ctx, manifest.Options{})
	if err != nil {
		return nil, err
	}
	if m.Type == manifest.TypeInterface {
		return nil, errors.Unsupported(errors.PhaseLoad, "instantiating interface wrapper "+m.Name)
	}
	c, err := p.Codec(ctx)
	if err != nil {
		return nil, err
	}
	module, err := p.Module(ctx)
	if err != nil {
		return nil, err
	}

	h, err := p.rt.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	region, ok := h.Region().(*engine.Region)
	if !ok {
		p.rt.pool.Release(h)
		return nil, fmt.Errorf("pool region %T is not an engine region", h.Region())
	}

	guest, err := region.Instantiate(ctx, m.Name, module)
	if err != nil {
		p.rt.pool.Release(h)
		return nil, err
	}

	Logger().Debug("wrapper created", zap.String("name", m.Name), zap.Int("handle", h.ID()))
	return &Wrapper{
		pkg:      p,
		manifest: m,
		codec:    c,
		guest:    guest,
		handle:   h,
	}, nil
}

var _ core.Package = (*Package)(nil)
var _ core.ArgsEncoder = (*Package)(nil)
