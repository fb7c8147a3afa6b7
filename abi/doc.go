// Package abi models the interface a wrapper exposes: its functions, the
// object and enum types they use, its environment and the types it imports
// from other wrappers.
//
// Argument, property and return types are type expressions. The primary
// notation is GraphQL style:
//
//	UInt32!              required unsigned 32-bit integer
//	[String!]            optional list of required strings
//	Map<String, Int>!    required string-keyed map
//	Ethereum_TxRequest   optional imported object
//
// WIT notation (u32, list<string>, option<u8>) is accepted as well and maps
// onto the same model.
package abi
