package core

import (
	"context"

	"github.com/wippyai/wrap-runtime/manifest"
	"github.com/wippyai/wrap-runtime/uri"
)

// Package is a wrapper that has been resolved but not instantiated. It holds
// enough to produce a Wrapper without fetching anything again.
type Package interface {
	// Manifest loads (once) and returns the package manifest.
	Manifest(ctx context.Context, opts manifest.Options) (*manifest.Manifest, error)

	// CreateWrapper produces a callable wrapper. A wasm package acquires a
	// pool handle here; the wrapper owns it until Close or its invocation ends.
	CreateWrapper(ctx context.Context) (Wrapper, error)
}

// Wrapper is a live, callable wrapper. It serves one invocation at a time.
type Wrapper interface {
	Manifest() *manifest.Manifest

	// Invoke runs inv.Method. The wrapper's resources are released when
	// Invoke returns, on every path.
	Invoke(ctx context.Context, inv *Invocation, invoker Invoker) (*InvokeResult, error)

	// GetFile reads a file the wrapper ships.
	GetFile(ctx context.Context, path string) ([]byte, error)

	// Close releases the wrapper without invoking it. Safe to call after
	// Invoke and more than once.
	Close(ctx context.Context) error
}

// Invoker is the call surface wrappers and resolvers use to reach other
// wrappers. The client implements it.
type Invoker interface {
	Invoke(ctx context.Context, inv *Invocation) (*InvokeResult, error)
	InvokeWrapper(ctx context.Context, w Wrapper, inv *Invocation) (*InvokeResult, error)
	GetImplementations(ctx context.Context, iface uri.URI, rc *ResolutionContext) ([]uri.URI, error)
}

// Invocation is one method call on a wrapper.
//
// Args and Env are used when the encoded forms are nil. Wasm wrappers need
// the encoded forms; plugins need the decoded ones and decode generically
// when only bytes are present.
type Invocation struct {
	Args       map[string]any
	Env        map[string]any
	Resolution *ResolutionContext
	URI        uri.URI
	Method     string

	EncodedArgs []byte
	EncodedEnv  []byte

	// EncodeResult asks for the result in wire form instead of decoded.
	EncodeResult bool
}

// InvokeResult holds either a decoded value or its wire form.
type InvokeResult struct {
	Data    any
	Encoded []byte

	// IsEncoded reports that Encoded is the result.
	IsEncoded bool
}

// Encoded wraps wire bytes as a result.
func Encoded(data []byte) *InvokeResult {
	return &InvokeResult{Encoded: data, IsEncoded: true}
}

// Decoded wraps a Go value as a result.
func Decoded(v any) *InvokeResult {
	return &InvokeResult{Data: v}
}

// ArgsEncoder is implemented by packages whose wrappers take wire-encoded
// arguments. The client encodes before creating the wrapper so encoding
// failures never hold runtime resources.
type ArgsEncoder interface {
	EncodeArgs(ctx context.Context, method string, args map[string]any) ([]byte, error)
}
