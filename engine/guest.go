package engine

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/wrap-runtime/errors"
)

// InvokeExport is the entry point every wrap guest exports.
const InvokeExport = "_wrap_invoke"

// Call is one method invocation on a guest.
type Call struct {
	Host Host
	// URI names the wrapper in errors. Empty means the URI the guest was
	// instantiated with.
	URI    string
	Method string
	Args   []byte
	Env    []byte
}

// Abort is the diagnostic a guest reports through __wrap_abort.
type Abort struct {
	Message string
	File    string
	Line    uint32
	Column  uint32
}

func (a *Abort) Error() string {
	return fmt.Sprintf("__wrap_abort: %s\nFile: %s\nLocation: [%d,%d]", a.Message, a.File, a.Line, a.Column)
}

type buffer int

const (
	subResult buffer = iota
	subError
	implResult
	implError
	implsResult
	bufferCount
)

type callState struct {
	call      *Call
	abort     *Abort
	uri       string
	errMsg    string
	result    []byte
	buffers   [bufferCount][]byte
	resultSet bool
	errSet    bool
}

type stateKey struct{}

func stateFrom(ctx context.Context) *callState {
	st, ok := ctx.Value(stateKey{}).(*callState)
	if !ok {
		hostFault("wrap host function called outside an invocation")
	}
	return st
}

// Guest is a wrap module instantiated in a region.
type Guest struct {
	module   api.Module
	compiled wazero.CompiledModule
	invoke   api.Function
	uri      string
}

// Invoke runs one method. Traps, aborts and guest-reported errors are
// returned as module execution errors carrying the guest's diagnostic.
func (g *Guest) Invoke(ctx context.Context, call *Call) ([]byte, error) {
	uri := g.uri
	if call.URI != "" {
		uri = call.URI
	}
	st := &callState{call: call, uri: uri}
	callCtx := context.WithValue(ctx, stateKey{}, st)

	res, err := g.invoke.Call(callCtx,
		uint64(len(call.Method)), uint64(len(call.Args)), uint64(len(call.Env)))

	if st.abort != nil {
		return nil, errors.ModuleExecution(uri, st.abort.Error(), st.abort)
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, errors.ModuleExecution(uri, "invocation cancelled", ctxErr)
		}
		return nil, errors.ModuleExecution(uri, fmt.Sprintf("%s trapped: %v", call.Method, err), err)
	}

	if len(res) == 1 && uint32(res[0]) == 1 {
		if !st.resultSet {
			return nil, errors.ModuleExecution(uri, call.Method+" returned success without a result", nil)
		}
		return st.result, nil
	}

	msg := st.errMsg
	if !st.errSet {
		msg = call.Method + " failed without an error message"
	}
	return nil, errors.ModuleExecution(uri, msg, nil)
}

// Close releases the module instance. The region stays usable.
func (g *Guest) Close(ctx context.Context) error {
	err := g.module.Close(ctx)
	if cerr := g.compiled.Close(ctx); err == nil {
		err = cerr
	}
	return err
}
