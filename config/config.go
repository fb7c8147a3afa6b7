package config

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/afero"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/wrap-runtime/client"
	"github.com/wippyai/wrap-runtime/engine"
	"github.com/wippyai/wrap-runtime/errors"
	"github.com/wippyai/wrap-runtime/files"
	"github.com/wippyai/wrap-runtime/pool"
	"github.com/wippyai/wrap-runtime/resolvers"
	"github.com/wippyai/wrap-runtime/uri"
	"github.com/wippyai/wrap-runtime/wasm"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "WRAP"

// Config describes a runtime and the client built on it.
type Config struct {
	Pool       PoolConfig       `yaml:"pool" envconfig:"POOL"`
	Memory     MemoryConfig     `yaml:"memory" envconfig:"MEMORY"`
	Resolution ResolutionConfig `yaml:"resolution" envconfig:"RESOLUTION"`
	Log        LogConfig        `yaml:"log" envconfig:"LOG"`

	// WASI provides wasi_snapshot_preview1 to guests.
	WASI bool `yaml:"wasi" envconfig:"WASI"`

	// CacheDir persists compiled modules. Empty keeps them in memory.
	CacheDir string `yaml:"cache_dir" envconfig:"CACHE_DIR"`

	// Redirects maps a URI to the URI resolution continues at.
	Redirects map[string]string `yaml:"redirects" ignored:"true"`

	// Packages are wasm wrappers read from directories.
	Packages []PackageConfig `yaml:"packages" ignored:"true"`

	// Interfaces maps an interface URI to its implementations.
	Interfaces map[string][]string `yaml:"interfaces" ignored:"true"`

	// Env maps a URI to the environment its wrapper is invoked with.
	Env map[string]map[string]any `yaml:"env" ignored:"true"`
}

// PoolConfig sizes the shared memory pool.
type PoolConfig struct {
	Max     int           `yaml:"max" envconfig:"MAX"`
	Min     int           `yaml:"min" envconfig:"MIN"`
	MaxWait time.Duration `yaml:"max_wait" envconfig:"MAX_WAIT"`
}

// MemoryConfig sizes memory regions, in 64KiB pages.
type MemoryConfig struct {
	LimitPages   uint32 `yaml:"limit_pages" envconfig:"LIMIT_PAGES"`
	InitialPages uint32 `yaml:"initial_pages" envconfig:"INITIAL_PAGES"`
	MaxPages     uint32 `yaml:"max_pages" envconfig:"MAX_PAGES"`
}

// ResolutionConfig tunes the resolver chain.
type ResolutionConfig struct {
	MaxDepth int  `yaml:"max_depth" envconfig:"MAX_DEPTH"`
	NoCache  bool `yaml:"no_cache" envconfig:"NO_CACHE"`
	Dedup    bool `yaml:"dedup" envconfig:"DEDUP"`
}

// LogConfig selects the logger Build installs.
type LogConfig struct {
	// Level is a zap level name. Empty disables logging.
	Level       string `yaml:"level" envconfig:"LEVEL"`
	Development bool   `yaml:"development" envconfig:"DEVELOPMENT"`
}

// PackageConfig serves the wrap.info and wrap.wasm found in Path at URI.
type PackageConfig struct {
	URI  string `yaml:"uri"`
	Path string `yaml:"path"`
}

// Default returns a config with a pool of four regions.
func Default() Config {
	return Config{Pool: PoolConfig{Max: 4}}
}

// Load reads the YAML file at path on fs over Default. Unknown keys are
// rejected.
func Load(fs afero.Fs, path string) (Config, error) {
	cfg := Default()

	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return cfg, errors.Wrap(errors.PhaseConfig, errors.KindNotFound, err, "read "+path)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return cfg, errors.Wrap(errors.PhaseConfig, errors.KindInvalidData, err, "parse "+path)
	}
	return cfg, cfg.Validate()
}

// FromEnv applies WRAP_* overrides to cfg, for example WRAP_POOL_MAX or
// WRAP_RESOLUTION_MAX_DEPTH. Maps and lists are file-only.
func FromEnv(cfg *Config) error {
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "environment")
	}
	return cfg.Validate()
}

// Validate checks sizes and that every URI parses.
func (c Config) Validate() error {
	var errs error
	invalid := func(path []string, format string, args ...any) {
		errs = errors.Append(errs, errors.Validation(errors.PhaseConfig, path, fmt.Sprintf(format, args...)))
	}
	checkURI := func(path []string, s string) {
		if _, err := uri.Parse(s); err != nil {
			invalid(path, "invalid URI %q: %v", s, err)
		}
	}

	if c.Pool.Max < 0 || c.Pool.Min < 0 {
		invalid([]string{"pool"}, "sizes must not be negative")
	}
	if c.Pool.Max > 0 && c.Pool.Min > c.Pool.Max {
		invalid([]string{"pool", "min"}, "min %d above max %d", c.Pool.Min, c.Pool.Max)
	}
	if c.Pool.MaxWait < 0 {
		invalid([]string{"pool", "max_wait"}, "must not be negative")
	}
	if c.Resolution.MaxDepth < 0 {
		invalid([]string{"resolution", "max_depth"}, "must not be negative")
	}
	if c.Log.Level != "" {
		if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
			invalid([]string{"log", "level"}, "%v", err)
		}
	}

	for from, to := range c.Redirects {
		checkURI([]string{"redirects", from}, from)
		checkURI([]string{"redirects", from}, to)
	}
	for i, p := range c.Packages {
		path := []string{"packages", fmt.Sprint(i)}
		checkURI(path, p.URI)
		if p.Path == "" {
			invalid(path, "path is empty")
		}
	}
	for iface, impls := range c.Interfaces {
		checkURI([]string{"interfaces", iface}, iface)
		for _, impl := range impls {
			checkURI([]string{"interfaces", iface}, impl)
		}
	}
	for u := range c.Env {
		checkURI([]string{"env", u}, u)
	}
	return errs
}

// Runtime describes the wasm runtime.
func (c Config) Runtime() wasm.Config {
	return wasm.Config{
		Engine: engine.Config{
			MemoryLimitPages:    c.Memory.LimitPages,
			InitialPages:        c.Memory.InitialPages,
			MaxPages:            c.Memory.MaxPages,
			EnableWASI:          c.WASI,
			CompilationCacheDir: c.CacheDir,
		},
		Pool: pool.Config{
			Max:     c.Pool.Max,
			Min:     c.Pool.Min,
			MaxWait: c.Pool.MaxWait,
		},
	}
}

// Logger builds the configured logger. An empty level yields a no-op logger.
func (c LogConfig) Logger() (*zap.Logger, error) {
	if c.Level == "" {
		return zap.NewNop(), nil
	}
	level, err := zapcore.ParseLevel(c.Level)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "log level")
	}

	zc := zap.NewProductionConfig()
	if c.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

// Build creates the runtime and a client that serves the configured
// packages, redirects, interfaces and envs. Package directories are read
// from fs lazily, on first use. The caller closes the runtime.
func Build(ctx context.Context, fs afero.Fs, cfg Config) (*wasm.Runtime, *client.Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	logger, err := cfg.Log.Logger()
	if err != nil {
		return nil, nil, err
	}
	if cfg.Log.Level != "" {
		engine.SetLogger(logger.Named("engine"))
		pool.SetLogger(logger.Named("pool"))
		wasm.SetLogger(logger.Named("wasm"))
		resolvers.SetLogger(logger.Named("resolvers"))
	}

	rt, err := wasm.NewRuntime(ctx, cfg.Runtime())
	if err != nil {
		return nil, nil, err
	}

	b := client.NewBuilder().
		WithRuntime(rt).
		WithLogger(logger.Named("client")).
		WithMaxDepth(cfg.Resolution.MaxDepth)
	if cfg.Resolution.NoCache {
		b.WithoutCache()
	}
	if cfg.Resolution.Dedup {
		b.WithDedup()
	}

	for _, p := range cfg.Packages {
		b.AddPackage(uri.MustParse(p.URI), wasm.NewPackage(rt, wasm.WithFileReader(files.NewFS(fs, p.Path))))
	}
	for _, from := range sortedKeys(cfg.Redirects) {
		b.AddRedirect(uri.MustParse(from), uri.MustParse(cfg.Redirects[from]))
	}
	for _, iface := range sortedKeys(cfg.Interfaces) {
		for _, impl := range cfg.Interfaces[iface] {
			b.AddInterfaceImplementation(uri.MustParse(iface), uri.MustParse(impl))
		}
	}
	for _, u := range sortedKeys(cfg.Env) {
		b.AddEnv(uri.MustParse(u), cfg.Env[u])
	}

	return rt, b.Build(), nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
