package engine

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
)

// HostModule is the module name of the wrap host imports.
const HostModule = "wrap"

// Host serves the calls a guest makes to other wrappers.
type Host interface {
	Subinvoke(ctx context.Context, uri, method string, args []byte) ([]byte, error)
	SubinvokeImplementation(ctx context.Context, iface, impl, method string, args []byte) ([]byte, error)
	GetImplementations(ctx context.Context, uri string) ([]string, error)
}

type hostFunc struct {
	fn      api.GoModuleFunc
	name    string
	params  []api.ValueType
	results []api.ValueType
}

func i32s(n int) []api.ValueType {
	out := make([]api.ValueType, n)
	for i := range out {
		out[i] = api.ValueTypeI32
	}
	return out
}

var hostFuncs = []hostFunc{
	{name: "__wrap_invoke_args", params: i32s(2), fn: invokeArgs},
	{name: "__wrap_invoke_result", params: i32s(2), fn: invokeResult},
	{name: "__wrap_invoke_error", params: i32s(2), fn: invokeError},
	{name: "__wrap_abort", params: i32s(6), fn: abort},
	{name: "__wrap_load_env", params: i32s(1), fn: loadEnv},
	{name: "__wrap_debug_log", params: i32s(2), fn: debugLog},

	{name: "__wrap_subinvoke", params: i32s(6), results: i32s(1), fn: subinvoke},
	{name: "__wrap_subinvoke_result_len", results: i32s(1), fn: resultLen(subResult)},
	{name: "__wrap_subinvoke_result", params: i32s(1), fn: writeResult(subResult)},
	{name: "__wrap_subinvoke_error_len", results: i32s(1), fn: resultLen(subError)},
	{name: "__wrap_subinvoke_error", params: i32s(1), fn: writeResult(subError)},

	{name: "__wrap_subinvokeImplementation", params: i32s(8), results: i32s(1), fn: subinvokeImplementation},
	{name: "__wrap_subinvokeImplementation_result_len", results: i32s(1), fn: resultLen(implResult)},
	{name: "__wrap_subinvokeImplementation_result", params: i32s(1), fn: writeResult(implResult)},
	{name: "__wrap_subinvokeImplementation_error_len", results: i32s(1), fn: resultLen(implError)},
	{name: "__wrap_subinvokeImplementation_error", params: i32s(1), fn: writeResult(implError)},

	{name: "__wrap_getImplementations", params: i32s(2), results: i32s(1), fn: getImplementations},
	{name: "__wrap_getImplementations_result_len", results: i32s(1), fn: resultLen(implsResult)},
	{name: "__wrap_getImplementations_result", params: i32s(1), fn: writeResult(implsResult)},
}

func instantiateHost(ctx context.Context, r wazero.Runtime) (api.Module, error) {
	builder := r.NewHostModuleBuilder(HostModule)
	for _, hf := range hostFuncs {
		builder = builder.NewFunctionBuilder().
			WithGoModuleFunction(hf.fn, hf.params, hf.results).
			Export(hf.name)
	}
	return builder.Instantiate(ctx)
}

// hostFault aborts the running guest from inside a host function.
func hostFault(format string, args ...any) {
	panic(fmt.Errorf(format, args...))
}

func read(mod api.Module, ptr, length uint64) []byte {
	data, ok := mod.Memory().Read(uint32(ptr), uint32(length))
	if !ok {
		hostFault("read out of bounds: offset=%d, length=%d", uint32(ptr), uint32(length))
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out
}

func write(mod api.Module, ptr uint64, data []byte) {
	if !mod.Memory().Write(uint32(ptr), data) {
		hostFault("write out of bounds: offset=%d, length=%d", uint32(ptr), len(data))
	}
}

func boolResult(ok bool) uint64 {
	if ok {
		return 1
	}
	return 0
}

var invokeArgs api.GoModuleFunc = func(ctx context.Context, mod api.Module, stack []uint64) {
	st := stateFrom(ctx)
	write(mod, stack[0], []byte(st.call.Method))
	write(mod, stack[1], st.call.Args)
}

var invokeResult api.GoModuleFunc = func(ctx context.Context, mod api.Module, stack []uint64) {
	st := stateFrom(ctx)
	st.result = read(mod, stack[0], stack[1])
	st.resultSet = true
}

var invokeError api.GoModuleFunc = func(ctx context.Context, mod api.Module, stack []uint64) {
	st := stateFrom(ctx)
	st.errMsg = string(read(mod, stack[0], stack[1]))
	st.errSet = true
}

var abort api.GoModuleFunc = func(ctx context.Context, mod api.Module, stack []uint64) {
	st := stateFrom(ctx)
	st.abort = &Abort{
		Message: string(read(mod, stack[0], stack[1])),
		File:    string(read(mod, stack[2], stack[3])),
		Line:    uint32(stack[4]),
		Column:  uint32(stack[5]),
	}
	panic(st.abort)
}

var loadEnv api.GoModuleFunc = func(ctx context.Context, mod api.Module, stack []uint64) {
	st := stateFrom(ctx)
	write(mod, stack[0], st.call.Env)
}

var debugLog api.GoModuleFunc = func(ctx context.Context, mod api.Module, stack []uint64) {
	st := stateFrom(ctx)
	Logger().Debug("guest log",
		zap.String("uri", st.uri),
		zap.String("message", string(read(mod, stack[0], stack[1]))))
}

var subinvoke api.GoModuleFunc = func(ctx context.Context, mod api.Module, stack []uint64) {
	st := stateFrom(ctx)
	uri := string(read(mod, stack[0], stack[1]))
	method := string(read(mod, stack[2], stack[3]))
	args := read(mod, stack[4], stack[5])

	st.buffers[subResult], st.buffers[subError] = nil, nil
	if st.call.Host == nil {
		st.buffers[subError] = []byte("subinvoke is not available")
		stack[0] = 0
		return
	}

	result, err := st.call.Host.Subinvoke(ctx, uri, method, args)
	if err != nil {
		st.buffers[subError] = []byte(err.Error())
		stack[0] = 0
		return
	}
	st.buffers[subResult] = result
	stack[0] = 1
}

var subinvokeImplementation api.GoModuleFunc = func(ctx context.Context, mod api.Module, stack []uint64) {
	st := stateFrom(ctx)
	iface := string(read(mod, stack[0], stack[1]))
	impl := string(read(mod, stack[2], stack[3]))
	method := string(read(mod, stack[4], stack[5]))
	args := read(mod, stack[6], stack[7])

	st.buffers[implResult], st.buffers[implError] = nil, nil
	if st.call.Host == nil {
		st.buffers[implError] = []byte("subinvoke is not available")
		stack[0] = 0
		return
	}

	result, err := st.call.Host.SubinvokeImplementation(ctx, iface, impl, method, args)
	if err != nil {
		st.buffers[implError] = []byte(err.Error())
		stack[0] = 0
		return
	}
	st.buffers[implResult] = result
	stack[0] = 1
}

var getImplementations api.GoModuleFunc = func(ctx context.Context, mod api.Module, stack []uint64) {
	st := stateFrom(ctx)
	uri := string(read(mod, stack[0], stack[1]))

	var impls []string
	if st.call.Host != nil {
		found, err := st.call.Host.GetImplementations(ctx, uri)
		if err != nil {
			hostFault("get implementations of %s: %v", uri, err)
		}
		impls = found
	}
	if impls == nil {
		impls = []string{}
	}

	encoded, err := msgpack.Marshal(impls)
	if err != nil {
		hostFault("encode implementations: %v", err)
	}
	st.buffers[implsResult] = encoded
	stack[0] = boolResult(len(impls) > 0)
}

func resultLen(b buffer) api.GoModuleFunc {
	return func(ctx context.Context, _ api.Module, stack []uint64) {
		stack[0] = uint64(len(stateFrom(ctx).buffers[b]))
	}
}

func writeResult(b buffer) api.GoModuleFunc {
	return func(ctx context.Context, mod api.Module, stack []uint64) {
		write(mod, stack[0], stateFrom(ctx).buffers[b])
	}
}
