// Package wrapruntime is a resolution and execution runtime for wrappers:
// portable WASM modules paired with a typed interface manifest.
//
// Given a URI naming a wrapper, the runtime resolves it through a chain of
// pluggable resolvers to a package, instantiates the package into a sandboxed
// WASM module backed by pooled linear memory, and invokes exported methods
// with MessagePack-encoded arguments and results.
//
// # Architecture Overview
//
//	wrapruntime/         Root package with the Memory interface
//	├── client/          Invocation orchestrator and client builder
//	├── resolvers/       Static, redirect, cache, recursive and extension resolvers
//	├── core/            Package, Wrapper, Invocation and Resolution types
//	├── wasm/            WASM-backed packages bound to pooled memory
//	├── plugin/          Native Go packages
//	├── engine/          wazero integration and the wrap host ABI
//	├── pool/            Bounded pool of reusable memory regions
//	├── codec/           ABI-driven MessagePack codec
//	├── abi/             Manifest ABI model and type expressions
//	├── manifest/        wrap.info versions, migration and validation
//	├── files/           File readers for manifests, modules and assets
//	├── uri/             URI parsing and normalization
//	├── config/          YAML and environment configuration
//	└── errors/          Structured error types
//
// # Quick Start
//
//	rt, err := wasm.NewRuntime(ctx, wasm.Config{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close(ctx)
//
//	pkg := wasm.NewPackage(rt, wasm.WithFileReader(files.NewOS("./build")))
//
//	c := client.NewBuilder().
//	    AddPackage(uri.MustParse("wrap://fs/./build"), pkg).
//	    Build()
//
//	sum, err := client.InvokeAs[uint32](ctx, c, core.Invocation{
//	    URI:    uri.MustParse("wrap://fs/./build"),
//	    Method: "add",
//	    Args:   map[string]any{"a": 2, "b": 3},
//	})
//
// # Concurrency
//
// Client, Runtime and Pool are safe for concurrent use. A Wrapper owns one
// pool handle and serves exactly one invocation; it must not be shared.
//
// # Memory Model
//
// WASM linear memory can only grow, never shrink. Released regions are zeroed
// lazily on their next acquisition, and a region keeps whatever size its last
// guest grew it to.
package wrapruntime
