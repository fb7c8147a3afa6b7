// Package client drives invocations: it resolves a URI to a package,
// checks the method against the manifest, encodes arguments, runs the
// wrapper and decodes the result.
//
// A client is assembled with a Builder:
//
//	c := client.NewBuilder().
//	    WithRuntime(rt).
//	    AddPackage(uri.MustParse("wrap://test/adder"), pkg).
//	    AddRedirect(uri.MustParse("wrap://ens/adder.eth"), uri.MustParse("wrap://test/adder")).
//	    Build()
//
// Every operation returns an error value; multi-part failures are combined
// and can be listed with errors.List.
package client
