package config

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/wippyai/wrap-runtime/client"
	"github.com/wippyai/wrap-runtime/core"
	"github.com/wippyai/wrap-runtime/errors"
	"github.com/wippyai/wrap-runtime/files"
	"github.com/wippyai/wrap-runtime/internal/testwrap"
	"github.com/wippyai/wrap-runtime/uri"
)

const sample = `
pool:
  max: 2
  max_wait: 5s
memory:
  initial_pages: 2
  max_pages: 16
resolution:
  max_depth: 8
  dedup: true
redirects:
  wrap://alias/adder: wrap://fs/adder
packages:
  - uri: wrap://fs/adder
    path: /wraps/adder
interfaces:
  wrap://test/interface:
    - wrap://fs/adder
env:
  wrap://fs/adder:
    key: value
`

func writeFile(t *testing.T, fs afero.Fs, path string, data []byte) {
	t.Helper()
	if err := afero.WriteFile(fs, path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestLoad(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/etc/wrap.yaml", []byte(sample))

	cfg, err := Load(fs, "/etc/wrap.yaml")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Pool.Max != 2 || cfg.Pool.MaxWait != 5*time.Second {
		t.Errorf("pool = %+v", cfg.Pool)
	}
	if cfg.Memory.InitialPages != 2 || cfg.Memory.MaxPages != 16 {
		t.Errorf("memory = %+v", cfg.Memory)
	}
	if cfg.Resolution.MaxDepth != 8 || !cfg.Resolution.Dedup {
		t.Errorf("resolution = %+v", cfg.Resolution)
	}
	if cfg.Redirects["wrap://alias/adder"] != "wrap://fs/adder" {
		t.Errorf("redirects = %v", cfg.Redirects)
	}
	if len(cfg.Packages) != 1 || cfg.Packages[0].Path != "/wraps/adder" {
		t.Errorf("packages = %v", cfg.Packages)
	}
	if cfg.Env["wrap://fs/adder"]["key"] != "value" {
		t.Errorf("env = %v", cfg.Env)
	}

	rc := cfg.Runtime()
	if rc.Pool.Max != 2 || rc.Engine.InitialPages != 2 || rc.Engine.MaxPages != 16 {
		t.Errorf("runtime config = %+v", rc)
	}
}

func TestLoad_Errors(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/unknown.yaml", []byte("pool:\n  size: 3\n"))
	writeFile(t, fs, "/invalid.yaml", []byte("pool:\n  max: -1\nredirects:\n  nope: wrap://a/b\n"))
	writeFile(t, fs, "/empty.yaml", nil)

	if _, err := Load(fs, "/missing.yaml"); err == nil {
		t.Error("expected error for a missing file")
	}
	if _, err := Load(fs, "/unknown.yaml"); err == nil {
		t.Error("expected error for an unknown key")
	}

	_, err := Load(fs, "/invalid.yaml")
	if n := len(errors.List(err)); n != 2 {
		t.Fatalf("expected 2 validation errors, got %d: %v", n, err)
	}

	cfg, err := Load(fs, "/empty.yaml")
	if err != nil {
		t.Fatalf("empty: %v", err)
	}
	if cfg.Pool.Max != Default().Pool.Max {
		t.Errorf("empty file lost defaults: %+v", cfg.Pool)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		mutate func(*Config)
		name   string
		ok     bool
	}{
		{func(*Config) {}, "default", true},
		{func(c *Config) { c.Pool.Min = 5 }, "min above max", false},
		{func(c *Config) { c.Pool.MaxWait = -time.Second }, "negative wait", false},
		{func(c *Config) { c.Resolution.MaxDepth = -1 }, "negative depth", false},
		{func(c *Config) { c.Log.Level = "loud" }, "bad level", false},
		{func(c *Config) { c.Log.Level = "warn" }, "good level", true},
		{func(c *Config) { c.Packages = []PackageConfig{{URI: "wrap://fs/a"}} }, "package without path", false},
		{func(c *Config) { c.Interfaces = map[string][]string{"wrap://i/x": {"http://nope"}} }, "bad implementation", false},
		{func(c *Config) { c.Env = map[string]map[string]any{"fs/a": {"k": 1}} }, "env", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if (err == nil) != tc.ok {
				t.Fatalf("validate = %v, want ok=%v", err, tc.ok)
			}
			if err != nil && !stderrors.Is(err, &errors.Error{Phase: errors.PhaseConfig, Kind: errors.KindValidation}) {
				t.Fatalf("unexpected error kind: %v", err)
			}
		})
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("WRAP_POOL_MAX", "7")
	t.Setenv("WRAP_POOL_MAX_WAIT", "250ms")
	t.Setenv("WRAP_RESOLUTION_MAX_DEPTH", "4")
	t.Setenv("WRAP_LOG_LEVEL", "debug")
	t.Setenv("WRAP_WASI", "true")

	cfg := Default()
	cfg.CacheDir = "/var/cache/wrap"
	if err := FromEnv(&cfg); err != nil {
		t.Fatalf("from env: %v", err)
	}
	if cfg.Pool.Max != 7 || cfg.Pool.MaxWait != 250*time.Millisecond {
		t.Errorf("pool = %+v", cfg.Pool)
	}
	if cfg.Resolution.MaxDepth != 4 || cfg.Log.Level != "debug" || !cfg.WASI {
		t.Errorf("config = %+v", cfg)
	}
	if cfg.CacheDir != "/var/cache/wrap" {
		t.Errorf("unset variable overwrote cache dir: %q", cfg.CacheDir)
	}

	t.Setenv("WRAP_POOL_MAX", "many")
	if err := FromEnv(&cfg); err == nil {
		t.Fatal("expected error for a non-numeric pool size")
	}
}

func TestLogger(t *testing.T) {
	for _, lc := range []LogConfig{{}, {Level: "info"}, {Level: "debug", Development: true}} {
		l, err := lc.Logger()
		if err != nil {
			t.Fatalf("%+v: %v", lc, err)
		}
		_ = l.Sync()
	}
	if _, err := (LogConfig{Level: "loud"}).Logger(); err == nil {
		t.Fatal("expected error for an unknown level")
	}
}

func TestBuild(t *testing.T) {
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	writeFile(t, fs, "/etc/wrap.yaml", []byte(sample))
	writeFile(t, fs, "/wraps/adder/"+files.ManifestPath, testwrap.ManifestBytes("adder"))
	writeFile(t, fs, "/wraps/adder/"+files.ModulePath, testwrap.Module("wrap://plugin/adder"))

	cfg, err := Load(fs, "/etc/wrap.yaml")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	rt, c, err := Build(ctx, fs, cfg)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	defer rt.Close(ctx)

	got, err := client.InvokeAs[uint32](ctx, c, core.Invocation{
		URI:    uri.MustParse("wrap://alias/adder"),
		Method: "add",
		Args:   map[string]any{"a": 2, "b": 3},
	})
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if got != 5 {
		t.Errorf("add = %d, want 5", got)
	}

	impls, err := c.GetImplementations(ctx, uri.MustParse("wrap://test/interface"), nil)
	if err != nil || len(impls) != 1 {
		t.Fatalf("implementations = %v, %v", impls, err)
	}
	if env := c.GetEnv(uri.MustParse("wrap://fs/adder")); env["key"] != "value" {
		t.Errorf("env = %v", env)
	}
	if st := rt.Pool().Config(); st.Max != 2 {
		t.Errorf("pool max = %d", st.Max)
	}
}

func TestBuild_Invalid(t *testing.T) {
	cfg := Default()
	cfg.Redirects = map[string]string{"wrap://a/b": "::"}
	if _, _, err := Build(context.Background(), afero.NewMemMapFs(), cfg); err == nil {
		t.Fatal("expected validation error")
	}
}
