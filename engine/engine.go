package engine

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero"
)

// Defaults for the region descriptor.
const (
	DefaultInitialPages = 1
	PageSize            = 65536
)

// Config holds configuration for engine creation
type Config struct {
	// MemoryLimitPages sets the maximum memory per region in pages (64KB each).
	// 0 means default (65536 pages = 4GB).
	// 256 = 16MB, 1024 = 64MB, 4096 = 256MB
	MemoryLimitPages uint32

	// InitialPages is the size of a fresh region. 0 means DefaultInitialPages.
	InitialPages uint32

	// MaxPages caps how far a guest may grow a region. 0 means no cap beyond
	// MemoryLimitPages.
	MaxPages uint32

	// EnableWASI provides wasi_snapshot_preview1 to guests.
	EnableWASI bool

	// CompilationCacheDir persists compiled modules across processes.
	// Empty keeps the cache in memory.
	CompilationCacheDir string
}

func (c Config) initialPages() uint32 {
	if c.InitialPages == 0 {
		return DefaultInitialPages
	}
	return c.InitialPages
}

// Engine creates memory regions that share one compilation cache.
// Safe for concurrent use.
type Engine struct {
	cache wazero.CompilationCache
	cfg   Config
}

// New creates an engine.
func New(ctx context.Context, cfg Config) (*Engine, error) {
	if cfg.MaxPages > 0 && cfg.MaxPages < cfg.initialPages() {
		return nil, fmt.Errorf("max pages %d below initial pages %d", cfg.MaxPages, cfg.initialPages())
	}
	if cfg.MemoryLimitPages > 0 && cfg.initialPages() > cfg.MemoryLimitPages {
		return nil, fmt.Errorf("initial pages %d above memory limit %d", cfg.initialPages(), cfg.MemoryLimitPages)
	}

	var cache wazero.CompilationCache
	if cfg.CompilationCacheDir != "" {
		c, err := wazero.NewCompilationCacheWithDir(cfg.CompilationCacheDir)
		if err != nil {
			return nil, fmt.Errorf("open compilation cache: %w", err)
		}
		cache = c
	} else {
		cache = wazero.NewCompilationCache()
	}

	return &Engine{cfg: cfg, cache: cache}, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// Close releases the compilation cache. Regions must be closed first.
func (e *Engine) Close(ctx context.Context) error {
	return e.cache.Close(ctx)
}

func (e *Engine) runtimeConfig() wazero.RuntimeConfig {
	cfg := wazero.NewRuntimeConfig().
		WithCompilationCache(e.cache).
		WithCloseOnContextDone(true)
	if e.cfg.MemoryLimitPages > 0 {
		cfg = cfg.WithMemoryLimitPages(e.cfg.MemoryLimitPages)
	}
	return cfg
}
