package wasm

import (
	"context"
	"sync"

	"github.com/wippyai/wrap-runtime/codec"
	"github.com/wippyai/wrap-runtime/core"
	"github.com/wippyai/wrap-runtime/engine"
	"github.com/wippyai/wrap-runtime/errors"
	"github.com/wippyai/wrap-runtime/manifest"
	"github.com/wippyai/wrap-runtime/pool"
	"github.com/wippyai/wrap-runtime/uri"
)

// Wrapper is a module instantiated in a pool region.
type Wrapper struct {
	pkg      *Package
	manifest *manifest.Manifest
	codec    *codec.Codec
	guest    *engine.Guest
	closeErr error
	handle   pool.Handle
	once     sync.Once
}

func (w *Wrapper) Manifest() *manifest.Manifest {
	return w.manifest
}

// Handle returns the pool handle the wrapper holds.
func (w *Wrapper) Handle() pool.Handle {
	return w.handle
}

// Invoke runs inv.Method in the guest and releases the wrapper's pool handle
// before returning.
func (w *Wrapper) Invoke(ctx context.Context, inv *core.Invocation, invoker core.Invoker) (*core.InvokeResult, error) {
	defer w.Close(ctx)

	name := inv.URI.String()
	if inv.URI.IsZero() {
		name = w.manifest.Name
	}

	fn, ok := w.manifest.ABI.Function(inv.Method)
	if !ok {
		return nil, errors.MethodNotFound(name, inv.Method)
	}

	args := inv.EncodedArgs
	if args == nil {
		encoded, err := w.codec.EncodeArgs(fn, inv.Args)
		if err != nil {
			return nil, err
		}
		args = encoded
	}

	env := inv.EncodedEnv
	if env == nil && inv.Env != nil {
		encoded, err := w.codec.EncodeEnv(inv.Env)
		if err != nil {
			return nil, err
		}
		env = encoded
	}

	call := &engine.Call{
		URI:    name,
		Method: inv.Method,
		Args:   args,
		Env:    env,
	}
	if invoker != nil {
		call.Host = &host{invoker: invoker}
	}

	data, err := w.guest.Invoke(ctx, call)
	if err != nil {
		return nil, err
	}
	if inv.EncodeResult {
		return core.Encoded(data), nil
	}

	v, err := w.codec.DecodeResult(fn, data)
	if err != nil {
		return nil, err
	}
	return core.Decoded(v), nil
}

func (w *Wrapper) GetFile(ctx context.Context, path string) ([]byte, error) {
	return w.pkg.GetFile(ctx, path)
}

// Close closes the guest and releases the pool handle. Only the first call
// has an effect.
func (w *Wrapper) Close(ctx context.Context) error {
	w.once.Do(func() {
		w.closeErr = w.guest.Close(ctx)
		w.pkg.rt.pool.Release(w.handle)
	})
	return w.closeErr
}

// host serves a guest's calls to other wrappers through the invoker.
type host struct {
	invoker core.Invoker
}

func (h *host) Subinvoke(ctx context.Context, target, method string, args []byte) ([]byte, error) {
	u, err := uri.Parse(target)
	if err != nil {
		return nil, err
	}
	res, err := h.invoker.Invoke(ctx, &core.Invocation{
		URI:          u,
		Method:       method,
		EncodedArgs:  args,
		EncodeResult: true,
	})
	if err != nil {
		return nil, err
	}
	if res.IsEncoded {
		return res.Encoded, nil
	}
	return codec.Marshal(res.Data)
}

func (h *host) SubinvokeImplementation(ctx context.Context, iface, impl, method string, args []byte) ([]byte, error) {
	if _, err := uri.Parse(iface); err != nil {
		return nil, err
	}
	return h.Subinvoke(ctx, impl, method, args)
}

func (h *host) GetImplementations(ctx context.Context, iface string) ([]string, error) {
	u, err := uri.Parse(iface)
	if err != nil {
		return nil, err
	}
	impls, err := h.invoker.GetImplementations(ctx, u, nil)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(impls))
	for i, impl := range impls {
		out[i] = impl.String()
	}
	return out, nil
}

var (
	_ core.Wrapper = (*Wrapper)(nil)
	_ engine.Host  = (*host)(nil)
)

