package codec

import (
	"fmt"
	"reflect"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/vmihailenco/msgpack/v5/msgpcode"

	"github.com/wippyai/wrap-runtime/errors"
)

// Marshal encodes v without a schema, using MessagePack defaults. It is used
// for plugin results and environments that have no declared type.
func Marshal(v any) ([]byte, error) {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseEncode, errors.KindInvalidData, err, "marshal value")
	}
	return data, nil
}

// Unmarshal decodes data without a schema. Integers decode as int64 or
// uint64, maps as map[string]any when every key is a string and map[any]any
// otherwise. ABI maps wrapped in extension type 1 are unwrapped.
func Unmarshal(data []byte) (any, error) {
	d := newDecoder(data)
	v, err := d.decodeAny(nil)
	if err != nil {
		if _, ok := err.(*errors.Error); !ok {
			err = errors.Wrap(errors.PhaseDecode, errors.KindInvalidData, err, "unmarshal value")
		}
		return nil, err
	}
	if err := d.finish(nil); err != nil {
		return nil, err
	}
	return v, nil
}

// UnmarshalInto decodes data into a Go value with MessagePack defaults.
func UnmarshalInto(data []byte, out any) error {
	if err := msgpack.Unmarshal(data, out); err != nil {
		return errors.Wrap(errors.PhaseDecode, errors.KindInvalidData, err, fmt.Sprintf("unmarshal into %T", out))
	}
	return nil
}

func (d *decoder) decodeAny(path []string) (any, error) {
	c, err := d.dec.PeekCode()
	if err != nil {
		return nil, err
	}

	switch {
	case c == msgpcode.Nil:
		return nil, d.dec.DecodeNil()
	case c == msgpcode.True || c == msgpcode.False:
		return d.dec.DecodeBool()
	case c == msgpcode.Uint8 || c == msgpcode.Uint16 || c == msgpcode.Uint32 || c == msgpcode.Uint64:
		return d.dec.DecodeUint64()
	case c == msgpcode.Int8 || c == msgpcode.Int16 || c == msgpcode.Int32 || c == msgpcode.Int64 ||
		msgpcode.IsFixedNum(c):
		return d.dec.DecodeInt64()
	case c == msgpcode.Float:
		return d.dec.DecodeFloat32()
	case c == msgpcode.Double:
		return d.dec.DecodeFloat64()
	case isStr(c):
		return d.dec.DecodeString()
	case isBin(c):
		return d.dec.DecodeBytes()
	case isArray(c):
		n, err := d.arrayLen(path)
		if err != nil {
			return nil, err
		}
		items := make([]any, n)
		for i := range items {
			if items[i], err = d.decodeAny(appendIndex(path, i)); err != nil {
				return nil, err
			}
		}
		return items, nil
	case isMap(c):
		return d.decodeAnyMap(path)
	case isExt(c):
		id, _, err := d.dec.DecodeExtHeader()
		if err != nil {
			return nil, err
		}
		if id != mapExtType {
			return nil, errors.InvalidData(errors.PhaseDecode, path, fmt.Sprintf("unexpected extension type %d", id))
		}
		return d.decodeAny(path)
	}
	return nil, errors.New(errors.PhaseDecode, errors.KindInvalidData).
		Path(path...).
		Value(c).
		Detail("unrecognized format tag 0x%02x", c).
		Build()
}

func (d *decoder) decodeAnyMap(path []string) (any, error) {
	n, err := d.mapLen(path)
	if err != nil {
		return nil, err
	}
	keys := make([]any, n)
	values := make([]any, n)
	allStrings := true
	for i := 0; i < n; i++ {
		if keys[i], err = d.decodeAny(path); err != nil {
			return nil, err
		}
		if _, ok := keys[i].(string); !ok {
			allStrings = false
		}
		if values[i], err = d.decodeAny(append(append([]string(nil), path...), fmt.Sprint(keys[i]))); err != nil {
			return nil, err
		}
	}

	if allStrings {
		out := make(map[string]any, n)
		for i := range keys {
			out[keys[i].(string)] = values[i]
		}
		return out, nil
	}
	out := make(map[any]any, n)
	for i := range keys {
		if keys[i] != nil && !reflect.TypeOf(keys[i]).Comparable() {
			return nil, errors.InvalidData(errors.PhaseDecode, path, fmt.Sprintf("map key of type %T", keys[i]))
		}
		out[keys[i]] = values[i]
	}
	return out, nil
}
