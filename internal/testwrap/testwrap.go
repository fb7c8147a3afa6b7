// Package testwrap builds a small wrap guest for tests.
//
// The guest implements three methods:
//
//	add(a: UInt32!, b: UInt32!): UInt32!   returns a+b with i32 wraparound
//	fail                                   aborts with "boom"
//	relay(a: UInt32!, b: UInt32!): UInt32! subinvokes add on another wrapper
//
// Any other method name reaches the guest's own "unknown method" error path.
package testwrap

import (
	"github.com/wippyai/wrap-runtime/abi"
	"github.com/wippyai/wrap-runtime/internal/wasmbin"
	"github.com/wippyai/wrap-runtime/manifest"
)

// Guest diagnostics.
const (
	AbortMessage  = "boom"
	AbortFile     = "src/index.ts"
	AbortLine     = 12
	AbortColumn   = 3
	UnknownMethod = "unknown method"
)

// Fixed guest memory layout.
const (
	methodAddr  = 1024
	abortMsg    = 2048
	abortFile   = 2064
	unknownAddr = 2080
	addName     = 2112
	relayURI    = 2128
	resultAddr  = 4096
	relayBuf    = 8192
)

// Function indices: imports first, then defined functions.
const (
	fnInvokeArgs uint32 = iota
	fnInvokeResult
	fnInvokeError
	fnAbort
	fnSubinvoke
	fnSubinvokeResultLen
	fnSubinvokeResult
	fnSubinvokeErrorLen
	fnSubinvokeError
	fnBE32
	fnInvoke
)

var (
	i32 = wasmbin.I32

	tPair   = wasmbin.FuncType{Params: []wasmbin.ValType{i32, i32}}
	tAbort  = wasmbin.FuncType{Params: []wasmbin.ValType{i32, i32, i32, i32, i32, i32}}
	tInvoke = wasmbin.FuncType{Params: []wasmbin.ValType{i32, i32, i32}, Results: []wasmbin.ValType{i32}}
	tUnary  = wasmbin.FuncType{Params: []wasmbin.ValType{i32}, Results: []wasmbin.ValType{i32}}
	tSub    = wasmbin.FuncType{Params: []wasmbin.ValType{i32, i32, i32, i32, i32, i32}, Results: []wasmbin.ValType{i32}}
	tLen    = wasmbin.FuncType{Results: []wasmbin.ValType{i32}}
	tPtr    = wasmbin.FuncType{Params: []wasmbin.ValType{i32}}
)

// Type indices match the order of the Types slice in Module.
const (
	typePair uint32 = iota
	typeAbort
	typeInvoke
	typeUnary
	typeSub
	typeLen
	typePtr
)

func wrapImport(name string, typ uint32) wasmbin.Import {
	return wasmbin.Import{Module: "wrap", Name: name, Kind: wasmbin.KindFunc, Type: typ}
}

// Module returns the guest binary. relayTarget is the URI relay subinvokes.
func Module(relayTarget string) []byte {
	m := &wasmbin.Module{
		Types: []wasmbin.FuncType{tPair, tAbort, tInvoke, tUnary, tSub, tLen, tPtr},
		Imports: []wasmbin.Import{
			wrapImport("__wrap_invoke_args", typePair),
			wrapImport("__wrap_invoke_result", typePair),
			wrapImport("__wrap_invoke_error", typePair),
			wrapImport("__wrap_abort", typeAbort),
			wrapImport("__wrap_subinvoke", typeSub),
			wrapImport("__wrap_subinvoke_result_len", typeLen),
			wrapImport("__wrap_subinvoke_result", typePtr),
			wrapImport("__wrap_subinvoke_error_len", typeLen),
			wrapImport("__wrap_subinvoke_error", typePtr),
			{Module: "env", Name: "memory", Kind: wasmbin.KindMemory, Memory: wasmbin.Limits{Min: 1}},
		},
		Funcs: []wasmbin.Func{
			{Type: typeUnary, Body: be32()},
			{Type: typeInvoke, Locals: []wasmbin.ValType{i32, i32}, Body: invoke(len(relayTarget))},
		},
		Exports: []wasmbin.Export{{Name: "_wrap_invoke", Kind: wasmbin.KindFunc, Index: fnInvoke}},
		Data: []wasmbin.Data{
			{Offset: abortMsg, Bytes: []byte(AbortMessage)},
			{Offset: abortFile, Bytes: []byte(AbortFile)},
			{Offset: unknownAddr, Bytes: []byte(UnknownMethod)},
			{Offset: addName, Bytes: []byte("add")},
			{Offset: relayURI, Bytes: []byte(relayTarget)},
		},
	}
	return m.Encode()
}

// be32 reads a big-endian u32 at the address in local 0.
func be32() []byte {
	c := &wasmbin.Code{}
	c.LocalGet(0).I32Load8U(0).I32Const(24).I32Shl()
	c.LocalGet(0).I32Load8U(1).I32Const(16).I32Shl().I32Or()
	c.LocalGet(0).I32Load8U(2).I32Const(8).I32Shl().I32Or()
	c.LocalGet(0).I32Load8U(3).I32Or()
	return c.Bytes()
}

// invoke is _wrap_invoke(method_size, args_size, env_size).
// Locals: 3 = args pointer, 4 = sum.
func invoke(relayLen int) []byte {
	c := &wasmbin.Code{}
	c.I32Const(methodAddr).LocalGet(0).I32Add().LocalSet(3)
	c.I32Const(methodAddr).LocalGet(3).Call(fnInvokeArgs)

	// fail
	c.LocalGet(0).I32Const(4).I32Eq().If()
	c.I32Const(abortMsg).I32Const(int32(len(AbortMessage)))
	c.I32Const(abortFile).I32Const(int32(len(AbortFile)))
	c.I32Const(AbortLine).I32Const(AbortColumn).Call(fnAbort).Unreachable()
	c.End()

	// relay
	c.LocalGet(0).I32Const(5).I32Eq().If()
	c.I32Const(relayURI).I32Const(int32(relayLen))
	c.I32Const(addName).I32Const(3)
	c.LocalGet(3).LocalGet(1).Call(fnSubinvoke).If()
	c.I32Const(relayBuf).Call(fnSubinvokeResult)
	c.I32Const(relayBuf).Call(fnSubinvokeResultLen).Call(fnInvokeResult)
	c.I32Const(1).Return()
	c.Else()
	c.I32Const(relayBuf).Call(fnSubinvokeError)
	c.I32Const(relayBuf).Call(fnSubinvokeErrorLen).Call(fnInvokeError)
	c.I32Const(0).Return()
	c.End()
	c.End()

	// anything but add
	c.LocalGet(0).I32Const(3).I32Ne().If()
	c.I32Const(unknownAddr).I32Const(int32(len(UnknownMethod))).Call(fnInvokeError)
	c.I32Const(0).Return()
	c.End()

	// add: args are 82 a1 'a' ce <a> a1 'b' ce <b>
	c.LocalGet(3).I32Const(4).I32Add().Call(fnBE32)
	c.LocalGet(3).I32Const(11).I32Add().Call(fnBE32)
	c.I32Add().LocalSet(4)

	c.I32Const(resultAddr).I32Const(0xce).I32Store8(0)
	c.I32Const(resultAddr + 1).LocalGet(4).I32Const(24).I32ShrU().I32Store8(0)
	c.I32Const(resultAddr + 2).LocalGet(4).I32Const(16).I32ShrU().I32Store8(0)
	c.I32Const(resultAddr + 3).LocalGet(4).I32Const(8).I32ShrU().I32Store8(0)
	c.I32Const(resultAddr + 4).LocalGet(4).I32Store8(0)
	c.I32Const(resultAddr).I32Const(5).Call(fnInvokeResult)
	c.I32Const(1)
	return c.Bytes()
}

// ABI describes add, fail and relay.
func ABI() abi.ABI {
	pair := []abi.Property{{Name: "a", Type: "UInt32!"}, {Name: "b", Type: "UInt32!"}}
	return abi.ABI{
		Version: "0.1",
		Functions: []abi.Function{
			{Name: "add", Args: pair, Return: "UInt32!"},
			{Name: "fail"},
			{Name: "relay", Args: pair, Return: "UInt32!"},
		},
	}
}

// Manifest returns a wasm manifest named name in the latest format.
func Manifest(name string) *manifest.Manifest {
	return &manifest.Manifest{
		Format: manifest.Latest,
		Type:   manifest.TypeWasm,
		Name:   name,
		ABI:    ABI(),
	}
}

// ManifestBytes returns Manifest(name) serialized as wrap.info.
func ManifestBytes(name string) []byte {
	data, err := manifest.Serialize(Manifest(name))
	if err != nil {
		panic(err)
	}
	return data
}

// AddArgs returns the wire encoding of {a, b} that add expects.
func AddArgs(a, b uint32) []byte {
	return []byte{
		0x82,
		0xa1, 'a', 0xce, byte(a >> 24), byte(a >> 16), byte(a >> 8), byte(a),
		0xa1, 'b', 0xce, byte(b >> 24), byte(b >> 16), byte(b >> 8), byte(b),
	}
}
