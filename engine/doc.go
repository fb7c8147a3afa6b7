// Package engine runs wrap modules on wazero.
//
// Each memory Region is a wazero runtime of its own. It exports a linear
// memory as env.memory, provides the wrap host module that wrap guests
// import, and optionally WASI preview1. Guest modules are instantiated
// anonymously into a region and invoked through the wrap ABI:
//
//	_wrap_invoke(method_size, args_size, env_size) -> i32
//
// The guest pulls the method name and arguments with __wrap_invoke_args and
// the environment with __wrap_load_env, then reports through
// __wrap_invoke_result or __wrap_invoke_error and returns 1 or 0. Guests reach
// other wrappers with __wrap_subinvoke, __wrap_subinvokeImplementation and
// __wrap_getImplementations, which the engine forwards to a Host.
//
// All regions of an Engine share one compilation cache, so a module is
// compiled once no matter how many regions instantiate it.
package engine
