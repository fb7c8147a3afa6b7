// Package resolvers turns URIs into packages.
//
// Every resolver answers TryResolveURI with a package, a redirect to another
// URI, or not found. Resolvers compose: Sequential asks a list in order and
// the first answer other than not found wins, Cache memoizes an inner
// resolver, and Recursive follows redirects until it reaches a package,
// failing on cycles and on chains deeper than its cap.
//
// The usual chain, as assembled by Build:
//
//	Recursive(Cache(Sequential(Static, extra..., Extendable)))
//
// Extendable is where resolution calls back into the client: it invokes
// wrappers implementing the URI resolver extension interface, under the same
// cycle and depth guards as everything else.
package resolvers
