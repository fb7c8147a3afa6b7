package wasm

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"github.com/wippyai/wrap-runtime/engine"
	"github.com/wippyai/wrap-runtime/pool"
)

// Config configures a Runtime.
type Config struct {
	Engine engine.Config
	Pool   pool.Config
}

// Runtime is the engine and memory pool shared by wasm packages.
// Safe for concurrent use.
//
// A wasm guest that subinvokes another wasm guest holds two handles while
// the inner call runs. With pool Max 1 such a call blocks for MaxWait, or forever when MaxWait is 0.
type Runtime struct {
	engine *engine.Engine
	pool   *pool.Pool
}

// NewRuntime creates an engine and a pool of its regions, warming
// cfg.Pool.Min regions.
func NewRuntime(ctx context.Context, cfg Config) (*Runtime, error) {
	eng, err := engine.New(ctx, cfg.Engine)
	if err != nil {
		return nil, fmt.Errorf("create engine: %w", err)
	}

	p, err := pool.New(ctx, cfg.Pool, func(ctx context.Context) (pool.Region, error) {
		return eng.NewRegion(ctx)
	})
	if err != nil {
		_ = eng.Close(ctx)
		return nil, fmt.Errorf("create pool: %w", err)
	}

	return &Runtime{engine: eng, pool: p}, nil
}

// Engine returns the runtime's engine.
func (r *Runtime) Engine() *engine.Engine {
	return r.engine
}

// Pool returns the shared memory pool.
func (r *Runtime) Pool() *pool.Pool {
	return r.pool
}

// Close closes the pool and then the engine. Wrappers still holding
// handles fail on their next use.
func (r *Runtime) Close(ctx context.Context) error {
	return multierr.Combine(r.pool.Close(ctx), r.engine.Close(ctx))
}
