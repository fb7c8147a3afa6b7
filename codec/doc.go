// Package codec encodes and decodes wrapper values as MessagePack, driven by
// the type expressions of an ABI.
//
// Integers are written at their declared width and range-checked in both
// directions: a value that does not fit its declared type is an overflow
// error, never a truncation. Maps are wrapped in MessagePack extension type 1.
// Objects are maps keyed by property name, written in declaration order.
//
// Decoded values use a canonical set of Go types:
//
//	UInt8 .. UInt64      uint8 .. uint64
//	Int8 .. Int64        int8 .. int64
//	Float32, Float64     float32, float64
//	Boolean              bool
//	String               string
//	Bytes                []byte
//	BigInt               *big.Int
//	BigNumber            *big.Float
//	JSON                 json.RawMessage
//	[T]                  []any
//	Map<String, V>       map[string]any
//	Map<Int*, V>         map[any]any
//	object               map[string]any
//	enum                 constant name (string)
//
// Encoding accepts these types plus their natural Go relatives: any integer
// or integral float for integer slots, typed slices and maps, structs for
// objects, and an ordinal for enums.
package codec
