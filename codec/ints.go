package codec

import (
	"encoding/json"
	"math"
	"math/big"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/wippyai/wrap-runtime/abi"
)

// integer is a sign-magnitude integer wide enough for every fixed-width kind.
type integer struct {
	mag uint64
	neg bool
}

func fromInt64(i int64) integer {
	if i < 0 {
		return integer{neg: true, mag: uint64(-(i + 1)) + 1}
	}
	return integer{mag: uint64(i)}
}

func fromUint64(u uint64) integer {
	return integer{mag: u}
}

// integerOf converts v to an integer. ok is false when v is not numeric or
// not integral; tooBig is set when v is integral but beyond 64 bits.
func integerOf(v any) (n integer, ok bool, tooBig bool) {
	switch x := v.(type) {
	case int:
		return fromInt64(int64(x)), true, false
	case int8:
		return fromInt64(int64(x)), true, false
	case int16:
		return fromInt64(int64(x)), true, false
	case int32:
		return fromInt64(int64(x)), true, false
	case int64:
		return fromInt64(x), true, false
	case uint:
		return fromUint64(uint64(x)), true, false
	case uint8:
		return fromUint64(uint64(x)), true, false
	case uint16:
		return fromUint64(uint64(x)), true, false
	case uint32:
		return fromUint64(uint64(x)), true, false
	case uint64:
		return fromUint64(x), true, false
	case float32:
		return integerOfFloat(float64(x))
	case float64:
		return integerOfFloat(x)
	case *big.Int:
		if x == nil {
			return integer{}, false, false
		}
		return integerOfBig(x)
	case json.Number:
		b, ok := new(big.Int).SetString(string(x), 10)
		if !ok {
			return integer{}, false, false
		}
		return integerOfBig(b)
	}
	return integer{}, false, false
}

func integerOfFloat(f float64) (integer, bool, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return integer{}, false, false
	}
	if f >= 0x1p64 || f < -0x1p63 {
		return integer{}, true, true
	}
	if f < 0 {
		return fromInt64(int64(f)), true, false
	}
	return fromUint64(uint64(f)), true, false
}

func integerOfBig(b *big.Int) (integer, bool, bool) {
	if b.IsUint64() {
		return fromUint64(b.Uint64()), true, false
	}
	if b.IsInt64() {
		return fromInt64(b.Int64()), true, false
	}
	return integer{}, true, true
}

func (n integer) fits(k abi.Kind) bool {
	switch k {
	case abi.UInt8:
		return !n.neg && n.mag <= math.MaxUint8
	case abi.UInt16:
		return !n.neg && n.mag <= math.MaxUint16
	case abi.UInt32:
		return !n.neg && n.mag <= math.MaxUint32
	case abi.UInt64:
		return !n.neg
	case abi.Int8:
		return n.mag <= limit(n.neg, math.MaxInt8)
	case abi.Int16:
		return n.mag <= limit(n.neg, math.MaxInt16)
	case abi.Int32:
		return n.mag <= limit(n.neg, math.MaxInt32)
	case abi.Int64:
		return n.mag <= limit(n.neg, math.MaxInt64)
	}
	return false
}

func limit(neg bool, max uint64) uint64 {
	if neg {
		return max + 1
	}
	return max
}

func (n integer) int64() int64 {
	if n.neg {
		return -int64(n.mag-1) - 1
	}
	return int64(n.mag)
}

// value returns n as the canonical Go type for k. n must fit k.
func (n integer) value(k abi.Kind) any {
	switch k {
	case abi.UInt8:
		return uint8(n.mag)
	case abi.UInt16:
		return uint16(n.mag)
	case abi.UInt32:
		return uint32(n.mag)
	case abi.UInt64:
		return n.mag
	case abi.Int8:
		return int8(n.int64())
	case abi.Int16:
		return int16(n.int64())
	case abi.Int32:
		return int32(n.int64())
	default:
		return n.int64()
	}
}

// encode writes n with the fixed width of k. n must fit k.
func (n integer) encode(enc *msgpack.Encoder, k abi.Kind) error {
	switch k {
	case abi.UInt8:
		return enc.EncodeUint8(uint8(n.mag))
	case abi.UInt16:
		return enc.EncodeUint16(uint16(n.mag))
	case abi.UInt32:
		return enc.EncodeUint32(uint32(n.mag))
	case abi.UInt64:
		return enc.EncodeUint64(n.mag)
	case abi.Int8:
		return enc.EncodeInt8(int8(n.int64()))
	case abi.Int16:
		return enc.EncodeInt16(int16(n.int64()))
	case abi.Int32:
		return enc.EncodeInt32(int32(n.int64()))
	default:
		return enc.EncodeInt64(n.int64())
	}
}

func (n integer) less(o integer) bool {
	switch {
	case n.neg && !o.neg:
		return true
	case !n.neg && o.neg:
		return false
	case n.neg:
		return n.mag > o.mag
	default:
		return n.mag < o.mag
	}
}

func (n integer) String() string {
	if n.neg {
		return new(big.Int).Neg(new(big.Int).SetUint64(n.mag)).String()
	}
	return new(big.Int).SetUint64(n.mag).String()
}
