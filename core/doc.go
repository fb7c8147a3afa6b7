// Package core defines the contracts shared by resolvers, packages and the
// client: what a package and a wrapper are, what an invocation carries, and
// how a resolution is tracked while it walks redirects.
package core
