// Package wasmbin writes minimal WebAssembly core module binaries.
//
// It covers the subset of the binary format the runtime needs to synthesize
// modules at run time: the memory provider instantiated behind every pooled
// region, and small guest fixtures used by tests. Sections are emitted in the
// canonical order (type, import, function, memory, export, code, data).
//
//	m := &wasmbin.Module{
//		Memories: []wasmbin.Limits{{Min: 1}},
//		Exports:  []wasmbin.Export{{Name: "memory", Kind: wasmbin.KindMemory}},
//	}
//	bin := m.Encode()
package wasmbin
