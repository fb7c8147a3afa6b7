// Package wasm implements packages and wrappers backed by a wasm module.
//
// A Runtime pairs an engine with the memory pool every wasm wrapper draws
// from. It is created once and passed explicitly to NewPackage:
//
//	rt, err := wasm.NewRuntime(ctx, wasm.Config{Pool: pool.Config{Max: 8}})
//	pkg := wasm.NewPackage(rt,
//	    wasm.WithManifest(info),
//	    wasm.WithModule(module),
//	)
//
// Each wrapper holds one pool handle from CreateWrapper until its invocation
// returns, and releases it exactly once on every path.
package wasm
