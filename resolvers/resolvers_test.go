package resolvers

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wippyai/wrap-runtime/core"
	"github.com/wippyai/wrap-runtime/errors"
	"github.com/wippyai/wrap-runtime/files"
	"github.com/wippyai/wrap-runtime/manifest"
	"github.com/wippyai/wrap-runtime/uri"
)

type stubPackage struct {
	name string
}

func (p *stubPackage) Manifest(context.Context, manifest.Options) (*manifest.Manifest, error) {
	return &manifest.Manifest{Format: manifest.Latest, Type: manifest.TypePlugin, Name: p.name}, nil
}

func (p *stubPackage) CreateWrapper(context.Context) (core.Wrapper, error) {
	return nil, stderrors.New("stub package")
}

// counting wraps a resolver and counts queries.
type counting struct {
	inner Resolver
	calls atomic.Int32
}

func (c *counting) TryResolveURI(ctx context.Context, u uri.URI, inv core.Invoker, rc *core.ResolutionContext) (core.Resolution, error) {
	c.calls.Add(1)
	return c.inner.TryResolveURI(ctx, u, inv, rc)
}

func u(s string) uri.URI {
	return uri.MustParse(s)
}

func TestStatic(t *testing.T) {
	ctx := context.Background()
	pkg := &stubPackage{name: "a"}
	s := NewStatic(
		Entry{From: u("test/a"), Package: pkg},
		Entry{From: u("test/b"), To: u("test/c")},
		Entry{From: u("test/b"), To: u("test/d")},
	)

	tests := []struct {
		in      string
		outcome core.Outcome
		uri     string
	}{
		{"test/a", core.OutcomePackage, "wrap://test/a"},
		{"wrap://TEST/b/", core.OutcomeRedirect, "wrap://test/c"},
		{"test/x", core.OutcomeNotFound, "wrap://test/x"},
	}
	for _, tc := range tests {
		res, err := s.TryResolveURI(ctx, u(tc.in), nil, nil)
		if err != nil {
			t.Fatalf("resolve %s: %v", tc.in, err)
		}
		if res.Outcome != tc.outcome || res.URI.String() != tc.uri {
			t.Errorf("resolve %s = %v, want %v %s", tc.in, res, tc.outcome, tc.uri)
		}
	}
	if s.Len() != 2 {
		t.Errorf("len = %d, first entry per URI should win", s.Len())
	}
}

func TestSequential_FirstAnswerWins(t *testing.T) {
	ctx := context.Background()
	first := &counting{inner: NewRedirect(u("test/a"), u("test/b"))}
	second := &counting{inner: NewPackage(u("test/a"), &stubPackage{})}

	res, err := NewSequential(first, second).TryResolveURI(ctx, u("test/a"), nil, nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !res.IsRedirect() {
		t.Errorf("result = %v, want redirect", res)
	}
	if second.calls.Load() != 0 {
		t.Errorf("second resolver queried %d times after an answer", second.calls.Load())
	}

	res, _ = NewSequential(first, second).TryResolveURI(ctx, u("test/zzz"), nil, nil)
	if !res.IsNotFound() || second.calls.Load() != 1 {
		t.Errorf("not found should fall through: %v, second calls %d", res, second.calls.Load())
	}
}

func TestSequential_Errors(t *testing.T) {
	ctx := context.Background()
	e1 := stderrors.New("first broke")
	e2 := stderrors.New("second broke")
	failing := func(err error) Resolver {
		return Func(func(context.Context, uri.URI, core.Invoker, *core.ResolutionContext) (core.Resolution, error) {
			return core.Resolution{}, err
		})
	}

	res, err := NewSequential(failing(e1), NewPackage(u("test/a"), &stubPackage{})).TryResolveURI(ctx, u("test/a"), nil, nil)
	if err != nil || !res.IsPackage() {
		t.Fatalf("a later answer should win over an earlier failure: %v, %v", res, err)
	}

	_, err = NewSequential(failing(e1), failing(e2)).TryResolveURI(ctx, u("test/a"), nil, nil)
	list := errors.List(err)
	if len(list) != 2 || list[0] != e1 || list[1] != e2 {
		t.Fatalf("errors = %v, want both in order", list)
	}
	if errors.First(err) != e1 {
		t.Errorf("first = %v", errors.First(err))
	}

	loop := errors.InfiniteLoop("wrap://test/a", "cycle")
	second := &counting{inner: NewPackage(u("test/a"), &stubPackage{})}
	_, err = NewSequential(failing(loop), second).TryResolveURI(ctx, u("test/a"), nil, nil)
	if !stderrors.Is(err, errors.ErrInfiniteLoop) || second.calls.Load() != 0 {
		t.Fatalf("infinite loop should stop the search: %v", err)
	}
}

func TestRecursive_RedirectChain(t *testing.T) {
	ctx := context.Background()
	pkg := &stubPackage{name: "c"}
	table := &counting{inner: NewStatic(
		Entry{From: u("test/a"), To: u("test/b")},
		Entry{From: u("test/b"), To: u("test/c")},
		Entry{From: u("test/c"), Package: pkg},
	)}
	r := NewRecursive(table)

	viaA, err := r.TryResolveURI(ctx, u("test/a"), nil, nil)
	if err != nil {
		t.Fatalf("resolve a: %v", err)
	}
	if n := table.calls.Load(); n > 3 {
		t.Errorf("resolving a took %d queries, want at most 3", n)
	}

	viaC, err := r.TryResolveURI(ctx, u("test/c"), nil, nil)
	if err != nil {
		t.Fatalf("resolve c: %v", err)
	}
	if viaA.Package != pkg || viaC.Package != pkg {
		t.Fatalf("a and c should resolve to the same package: %v, %v", viaA, viaC)
	}
}

func TestRecursive_Cycles(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		entries []Entry
	}{
		{"self", []Entry{{From: u("test/a"), To: u("test/a")}}},
		{"pair", []Entry{{From: u("test/a"), To: u("test/b")}, {From: u("test/b"), To: u("test/a")}}},
		{"triangle", []Entry{
			{From: u("test/a"), To: u("test/b")},
			{From: u("test/b"), To: u("test/c")},
			{From: u("test/c"), To: u("test/a")},
		}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rc := core.NewResolutionContext(0)
			_, err := NewRecursive(NewStatic(tc.entries...)).TryResolveURI(ctx, u("test/a"), nil, rc)
			if !stderrors.Is(err, errors.ErrInfiniteLoop) {
				t.Fatalf("expected infinite loop, got %v", err)
			}
			if len(rc.Path()) != 0 {
				t.Errorf("chain not unwound: %v", rc.Path())
			}
		})
	}
}

func TestRecursive_MaxDepth(t *testing.T) {
	ctx := context.Background()
	s := NewStatic(
		Entry{From: u("test/1"), To: u("test/2")},
		Entry{From: u("test/2"), To: u("test/3")},
		Entry{From: u("test/3"), To: u("test/4")},
		Entry{From: u("test/4"), Package: &stubPackage{}},
	)

	if _, err := NewRecursive(s, WithMaxDepth(3)).TryResolveURI(ctx, u("test/1"), nil, nil); !stderrors.Is(err, errors.ErrInfiniteLoop) {
		t.Fatalf("expected depth cap error, got %v", err)
	}
	res, err := NewRecursive(s, WithMaxDepth(4)).TryResolveURI(ctx, u("test/1"), nil, nil)
	if err != nil || !res.IsPackage() {
		t.Fatalf("chain within cap: %v, %v", res, err)
	}
}

func TestCache(t *testing.T) {
	ctx := context.Background()
	inner := &counting{inner: NewPackage(u("test/a"), &stubPackage{})}
	c := NewCache(inner, nil)

	for i := 0; i < 2; i++ {
		res, err := c.TryResolveURI(ctx, u("test/a"), nil, nil)
		if err != nil || !res.IsPackage() {
			t.Fatalf("resolve: %v, %v", res, err)
		}
	}
	if n := inner.calls.Load(); n != 1 {
		t.Fatalf("inner resolver called %d times, want 1", n)
	}

	c.Reset()
	if _, err := c.TryResolveURI(ctx, u("test/a"), nil, nil); err != nil {
		t.Fatalf("resolve after reset: %v", err)
	}
	if n := inner.calls.Load(); n != 2 {
		t.Fatalf("inner resolver called %d times after reset, want 2", n)
	}

	c.TryResolveURI(ctx, u("test/missing"), nil, nil)
	c.TryResolveURI(ctx, u("test/missing"), nil, nil)
	if n := inner.calls.Load(); n != 4 {
		t.Errorf("not found answers should not be cached: %d calls", n)
	}
}

func TestCache_Dedup(t *testing.T) {
	ctx := context.Background()
	release := make(chan struct{})
	var calls atomic.Int32
	inner := Func(func(_ context.Context, x uri.URI, _ core.Invoker, _ *core.ResolutionContext) (core.Resolution, error) {
		calls.Add(1)
		<-release
		return core.Found(x, &stubPackage{}), nil
	})
	c := NewCache(inner, NewMemoryCache(), WithDedup())

	const n = 8
	var wg sync.WaitGroup
	results := make([]core.Resolution, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = c.TryResolveURI(ctx, u("test/a"), nil, nil)
		}(i)
	}

	for calls.Load() == 0 {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if got := calls.Load(); got != 1 {
		t.Fatalf("inner resolver called %d times, want 1", got)
	}
	for i, res := range results {
		if res.Package != results[0].Package {
			t.Fatalf("caller %d got a different package", i)
		}
	}
}

type fakeInvoker struct {
	answers map[string]any
	errs    map[string]error
	impls   []uri.URI
	invoked []string
	mu      sync.Mutex
}

func (f *fakeInvoker) Invoke(_ context.Context, inv *core.Invocation) (*core.InvokeResult, error) {
	f.mu.Lock()
	f.invoked = append(f.invoked, inv.URI.String()+"."+inv.Method)
	f.mu.Unlock()
	key := inv.URI.String() + "." + inv.Method
	if err := f.errs[key]; err != nil {
		return nil, err
	}
	return core.Decoded(f.answers[key]), nil
}

func (f *fakeInvoker) InvokeWrapper(ctx context.Context, _ core.Wrapper, inv *core.Invocation) (*core.InvokeResult, error) {
	return f.Invoke(ctx, inv)
}

func (f *fakeInvoker) GetImplementations(context.Context, uri.URI, *core.ResolutionContext) ([]uri.URI, error) {
	return f.impls, nil
}

func TestExtendable_Redirect(t *testing.T) {
	ctx := context.Background()
	ext := u("test/ext")
	inv := &fakeInvoker{
		impls: []uri.URI{ext},
		answers: map[string]any{
			"wrap://test/ext.tryResolveUri": map[string]any{"uri": "wrap://test/target", "manifest": nil},
		},
	}

	res, err := NewExtendable().TryResolveURI(ctx, u("custom/thing"), inv, nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !res.IsRedirect() || res.URI.String() != "wrap://test/target" {
		t.Fatalf("result = %v", res)
	}
}

func TestExtendable_Manifest(t *testing.T) {
	ctx := context.Background()
	ext := u("test/ext")
	inv := &fakeInvoker{
		impls: []uri.URI{ext},
		answers: map[string]any{
			"wrap://test/ext.tryResolveUri": map[string]any{"manifest": []byte("info")},
			"wrap://test/ext.getFile":       []byte("module"),
		},
	}

	var gotManifest []byte
	var gotReader files.Reader
	factory := func(m []byte, r files.Reader) core.Package {
		gotManifest, gotReader = m, r
		return &stubPackage{name: "ext"}
	}

	res, err := NewExtendable(WithPackageFactory(factory)).TryResolveURI(ctx, u("custom/thing"), inv, nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !res.IsPackage() || string(gotManifest) != "info" {
		t.Fatalf("result = %v, manifest %q", res, gotManifest)
	}

	data, err := gotReader.ReadFile(ctx, files.ModulePath)
	if err != nil || string(data) != "module" {
		t.Fatalf("read through extension = %q, %v", data, err)
	}
}

func TestExtendable_SkipsAndErrors(t *testing.T) {
	ctx := context.Background()
	busy := u("test/busy")
	broken := u("test/broken")
	inv := &fakeInvoker{
		impls: []uri.URI{busy, broken},
		errs:  map[string]error{"wrap://test/broken.tryResolveUri": stderrors.New("extension broke")},
	}

	rc := core.NewResolutionContext(0)
	if err := rc.StartResolving(busy); err != nil {
		t.Fatalf("start: %v", err)
	}

	_, err := NewExtendable().TryResolveURI(ctx, u("custom/thing"), inv, rc)
	if err == nil || len(errors.List(err)) != 1 {
		t.Fatalf("expected the broken extension's error, got %v", err)
	}
	for _, call := range inv.invoked {
		if call == "wrap://test/busy.tryResolveUri" {
			t.Fatal("an extension being resolved must be skipped")
		}
	}

	res, err := NewExtendable().TryResolveURI(ctx, u("custom/thing"), &fakeInvoker{}, nil)
	if err != nil || !res.IsNotFound() {
		t.Fatalf("no implementations: %v, %v", res, err)
	}
}

func TestBuild(t *testing.T) {
	ctx := context.Background()
	pkg := &stubPackage{name: "c"}
	extra := &counting{inner: NewPackage(u("test/c"), pkg)}
	chain := Build(BuildConfig{
		Entries:   []Entry{{From: u("test/a"), To: u("test/c")}},
		Resolvers: []Resolver{extra},
	})

	for i := 0; i < 2; i++ {
		res, err := chain.TryResolveURI(ctx, u("test/a"), &fakeInvoker{}, nil)
		if err != nil {
			t.Fatalf("resolve: %v", err)
		}
		if res.Package != pkg {
			t.Fatalf("result = %v", res)
		}
	}
	if n := extra.calls.Load(); n != 1 {
		t.Fatalf("extra resolver called %d times, want 1 (cached)", n)
	}

	chain.Reset()
	chain.TryResolveURI(ctx, u("test/a"), &fakeInvoker{}, nil)
	if n := extra.calls.Load(); n != 2 {
		t.Fatalf("extra resolver called %d times after reset, want 2", n)
	}
}
