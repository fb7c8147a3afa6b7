// Package errors provides structured error types for the wrap runtime.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error
// category). Resolution and invocation never panic across the public API; they
// return *Error values that callers render by kind and message.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseEncode, errors.KindOverflow).
//		Path("args", "a").
//		Type("UInt32").
//		Detail("value 4294967296 overflows UInt32").
//		Build()
//
// Or the constructors for the runtime taxonomy:
//
//	err := errors.UriNotFound("wrap://ens/a.eth")
//	err := errors.MethodNotFound(uri, "add")
//
// Kind-only sentinels match regardless of phase:
//
//	if errors.Is(err, wrerrors.ErrInfiniteLoop) { ... }
//
// Operations made of independent parts (a resolver chain, a set of extension
// resolvers) combine their failures; List returns them in order and First
// gives the deterministic first failure.
package errors
