package engine

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	wrapruntime "github.com/wippyai/wrap-runtime"
	"github.com/wippyai/wrap-runtime/errors"
	"github.com/wippyai/wrap-runtime/internal/wasmbin"
)

const (
	// MemoryModule is the module name guests import their memory from.
	MemoryModule = "env"
	// MemoryExport is the export name of the shared memory.
	MemoryExport = "memory"
)

// Region is a linear memory plus the runtime guests run in while they use it.
// A region serves one guest at a time.
type Region struct {
	runtime wazero.Runtime
	memory  api.Memory
	engine  *Engine
}

// NewRegion creates a region sized by the engine's region descriptor.
func (e *Engine) NewRegion(ctx context.Context) (*Region, error) {
	rt := wazero.NewRuntimeWithConfig(ctx, e.runtimeConfig())

	limits := wasmbin.Limits{Min: e.cfg.initialPages()}
	if e.cfg.MaxPages > 0 {
		limits.Max = e.cfg.MaxPages
		limits.HasMax = true
	}

	env, err := rt.InstantiateWithConfig(ctx, wasmbin.MemoryModule(MemoryExport, limits),
		wazero.NewModuleConfig().WithName(MemoryModule))
	if err != nil {
		_ = rt.Close(ctx)
		return nil, fmt.Errorf("instantiate memory module: %w", err)
	}

	mem := env.ExportedMemory(MemoryExport)
	if mem == nil {
		_ = rt.Close(ctx)
		return nil, fmt.Errorf("memory module has no %q export", MemoryExport)
	}

	if _, err := instantiateHost(ctx, rt); err != nil {
		_ = rt.Close(ctx)
		return nil, fmt.Errorf("instantiate wrap host module: %w", err)
	}

	if e.cfg.EnableWASI {
		if _, err := instantiateWASI(ctx, rt); err != nil {
			_ = rt.Close(ctx)
			return nil, fmt.Errorf("instantiate WASI: %w", err)
		}
	}

	Logger().Debug("region created", zap.Uint32("pages", limits.Min))
	return &Region{runtime: rt, memory: mem, engine: e}, nil
}

func (r *Region) Read(offset uint32, length uint32) ([]byte, error) {
	data, ok := r.memory.Read(offset, length)
	if !ok {
		return nil, fmt.Errorf("read out of bounds: offset=%d, length=%d", offset, length)
	}
	out := make([]byte, length)
	copy(out, data)
	return out, nil
}

func (r *Region) Write(offset uint32, data []byte) error {
	ok := r.memory.Write(offset, data)
	if !ok {
		return fmt.Errorf("write out of bounds: offset=%d, length=%d", offset, len(data))
	}
	return nil
}

func (r *Region) Size() uint32 {
	return r.memory.Size()
}

// Zero fills the whole memory with zero bytes. Memory a guest has grown
// stays allocated.
func (r *Region) Zero() error {
	view, ok := r.memory.Read(0, r.memory.Size())
	if !ok {
		return fmt.Errorf("zero region: memory view unavailable")
	}
	clear(view)
	return nil
}

// Close releases the region's runtime and every module in it.
func (r *Region) Close(ctx context.Context) error {
	return r.runtime.Close(ctx)
}

// Instantiate compiles module (through the shared cache) and instantiates it
// against this region's memory.
func (r *Region) Instantiate(ctx context.Context, uri string, module []byte) (*Guest, error) {
	compiled, err := r.runtime.CompileModule(ctx, module)
	if err != nil {
		return nil, errors.Instantiation(uri, fmt.Errorf("compile module: %w", err))
	}

	// Anonymous so a region can host the same module again after Close.
	mod, err := r.runtime.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(""))
	if err != nil {
		_ = compiled.Close(ctx)
		return nil, errors.Instantiation(uri, err)
	}

	invoke := mod.ExportedFunction(InvokeExport)
	if invoke == nil {
		_ = mod.Close(ctx)
		_ = compiled.Close(ctx)
		return nil, errors.Instantiation(uri, fmt.Errorf("module does not export %s", InvokeExport))
	}

	return &Guest{uri: uri, module: mod, compiled: compiled, invoke: invoke}, nil
}

var _ wrapruntime.Memory = (*Region)(nil)
var _ wrapruntime.Zeroer = (*Region)(nil)
