package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"unicode/utf8"

	"github.com/tidwall/gjson"
	"github.com/vmihailenco/msgpack/v5"
	"github.com/vmihailenco/msgpack/v5/msgpcode"

	"github.com/wippyai/wrap-runtime/abi"
	"github.com/wippyai/wrap-runtime/errors"
)

// bigNumberPrec is the mantissa precision used for decoded BigNumber values.
const bigNumberPrec = 256

type decoder struct {
	r   *bytes.Reader
	dec *msgpack.Decoder
}

func newDecoder(data []byte) *decoder {
	r := bytes.NewReader(data)
	return &decoder{r: r, dec: msgpack.NewDecoder(r)}
}

// finish fails if input remains after the top-level value.
func (d *decoder) finish(path []string) error {
	if d.r.Len() != 0 {
		return errors.InvalidData(errors.PhaseDecode, path,
			fmt.Sprintf("%d trailing bytes after value", d.r.Len()))
	}
	return nil
}

// arrayLen reads an array header. Each element takes at least one byte, so
// a count beyond the remaining input is rejected before anything is
// allocated for it.
func (d *decoder) arrayLen(path []string) (int, error) {
	n, err := d.dec.DecodeArrayLen()
	if err != nil {
		return 0, err
	}
	return n, d.checkLen(n, 1, path)
}

// mapLen reads a map header. Each entry takes at least two bytes.
func (d *decoder) mapLen(path []string) (int, error) {
	n, err := d.dec.DecodeMapLen()
	if err != nil {
		return 0, err
	}
	return n, d.checkLen(n, 2, path)
}

func (d *decoder) checkLen(n, minSize int, path []string) error {
	if n < 0 || n > d.r.Len()/minSize {
		return errors.InvalidData(errors.PhaseDecode, path,
			fmt.Sprintf("length %d exceeds the %d remaining bytes", n, d.r.Len()))
	}
	return nil
}

func (d *decoder) wrap(err error, path []string, s *Schema) error {
	if _, ok := err.(*errors.Error); ok {
		return err
	}
	return errors.New(errors.PhaseDecode, errors.KindInvalidData).
		Path(path...).
		Type(s.expr).
		Cause(err).
		Detail("malformed input").
		Build()
}

func (d *decoder) decode(s *Schema, path []string) (any, error) {
	c, err := d.dec.PeekCode()
	if err != nil {
		return nil, d.wrap(err, path, s)
	}

	if c == msgpcode.Nil {
		if s.required {
			return nil, errors.New(errors.PhaseDecode, errors.KindInvalidData).
				Path(path...).
				Type(s.expr).
				Detail("null value for required type").
				Build()
		}
		if err := d.dec.DecodeNil(); err != nil {
			return nil, d.wrap(err, path, s)
		}
		return nil, nil
	}

	v, err := d.decodeValue(s, c, path)
	if err != nil {
		return nil, d.wrap(err, path, s)
	}
	return v, nil
}

func (d *decoder) decodeValue(s *Schema, c byte, path []string) (any, error) {
	switch s.kind {
	case abi.UInt8, abi.UInt16, abi.UInt32, abi.UInt64,
		abi.Int8, abi.Int16, abi.Int32, abi.Int64:
		n, err := d.decodeInteger(s, c, path)
		if err != nil {
			return nil, err
		}
		if !n.fits(s.kind) {
			return nil, errors.Overflow(errors.PhaseDecode, path, n.String(), s.kind.String())
		}
		return n.value(s.kind), nil

	case abi.Float32, abi.Float64:
		return d.decodeFloat(s, c, path)

	case abi.Boolean:
		if c != msgpcode.True && c != msgpcode.False {
			return nil, mismatch(path, s, c)
		}
		return d.dec.DecodeBool()

	case abi.String:
		return d.decodeString(s, c, path)

	case abi.Bytes:
		if !isBin(c) && !isStr(c) {
			return nil, mismatch(path, s, c)
		}
		b, err := d.dec.DecodeBytes()
		if err != nil {
			return nil, err
		}
		if b == nil {
			b = []byte{}
		}
		return b, nil

	case abi.BigInt:
		str, err := d.decodeString(s, c, path)
		if err != nil {
			return nil, err
		}
		n, ok := new(big.Int).SetString(str, 10)
		if !ok {
			return nil, errors.InvalidData(errors.PhaseDecode, path, fmt.Sprintf("invalid BigInt %q", str))
		}
		return n, nil

	case abi.BigNumber:
		str, err := d.decodeString(s, c, path)
		if err != nil {
			return nil, err
		}
		f, _, err := big.ParseFloat(str, 10, bigNumberPrec, big.ToNearestEven)
		if err != nil {
			return nil, errors.InvalidData(errors.PhaseDecode, path, fmt.Sprintf("invalid BigNumber %q", str))
		}
		return f, nil

	case abi.JSON:
		str, err := d.decodeString(s, c, path)
		if err != nil {
			return nil, err
		}
		if !gjson.Valid(str) {
			return nil, errors.InvalidData(errors.PhaseDecode, path, "invalid JSON document")
		}
		return json.RawMessage(str), nil

	case abi.Array:
		if !isArray(c) {
			return nil, mismatch(path, s, c)
		}
		n, err := d.arrayLen(path)
		if err != nil {
			return nil, err
		}
		items := make([]any, n)
		for i := range items {
			item, err := d.decode(s.elem, appendIndex(path, i))
			if err != nil {
				return nil, err
			}
			items[i] = item
		}
		return items, nil

	case abi.Map:
		return d.decodeMap(s, c, path)

	case abi.Named:
		if s.enum != nil {
			return d.decodeEnum(s, c, path)
		}
		if !isMap(c) {
			return nil, mismatch(path, s, c)
		}
		return d.decodeObject(s.object, path)
	}
	return nil, errors.Unsupported(errors.PhaseDecode, "type "+s.expr)
}

func (d *decoder) decodeInteger(s *Schema, c byte, path []string) (integer, error) {
	switch {
	case c == msgpcode.Uint8 || c == msgpcode.Uint16 || c == msgpcode.Uint32 || c == msgpcode.Uint64:
		u, err := d.dec.DecodeUint64()
		return fromUint64(u), err
	case c == msgpcode.Int8 || c == msgpcode.Int16 || c == msgpcode.Int32 || c == msgpcode.Int64 ||
		msgpcode.IsFixedNum(c):
		i, err := d.dec.DecodeInt64()
		return fromInt64(i), err
	}
	return integer{}, mismatch(path, s, c)
}

func (d *decoder) decodeFloat(s *Schema, c byte, path []string) (any, error) {
	var f float64
	switch {
	case c == msgpcode.Float:
		f32, err := d.dec.DecodeFloat32()
		if err != nil {
			return nil, err
		}
		if s.kind == abi.Float32 {
			return f32, nil
		}
		return float64(f32), nil
	case c == msgpcode.Double:
		f64, err := d.dec.DecodeFloat64()
		if err != nil {
			return nil, err
		}
		f = f64
	default:
		n, err := d.decodeInteger(s, c, path)
		if err != nil {
			return nil, err
		}
		f = float64(n.mag)
		if n.neg {
			f = float64(n.int64())
		}
	}

	if s.kind == abi.Float32 {
		if !math.IsInf(f, 0) && !math.IsNaN(f) && math.Abs(f) > math.MaxFloat32 {
			return nil, errors.Overflow(errors.PhaseDecode, path, f, "Float32")
		}
		return float32(f), nil
	}
	return f, nil
}

func (d *decoder) decodeString(s *Schema, c byte, path []string) (string, error) {
	if !isStr(c) {
		return "", mismatch(path, s, c)
	}
	b, err := d.dec.DecodeBytes()
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", errors.InvalidUTF8(errors.PhaseDecode, path, b)
	}
	return string(b), nil
}

func (d *decoder) decodeMap(s *Schema, c byte, path []string) (any, error) {
	if isExt(c) {
		id, _, err := d.dec.DecodeExtHeader()
		if err != nil {
			return nil, err
		}
		if id != mapExtType {
			return nil, errors.InvalidData(errors.PhaseDecode, path, fmt.Sprintf("unexpected extension type %d", id))
		}
		if c, err = d.dec.PeekCode(); err != nil {
			return nil, err
		}
	}
	if !isMap(c) {
		return nil, mismatch(path, s, c)
	}

	n, err := d.mapLen(path)
	if err != nil {
		return nil, err
	}

	if s.key.kind == abi.String {
		out := make(map[string]any, n)
		for i := 0; i < n; i++ {
			k, err := d.decode(s.key, path)
			if err != nil {
				return nil, err
			}
			key := k.(string)
			v, err := d.decode(s.value, append(append([]string(nil), path...), key))
			if err != nil {
				return nil, err
			}
			out[key] = v
		}
		return out, nil
	}

	out := make(map[any]any, n)
	for i := 0; i < n; i++ {
		k, err := d.decode(s.key, path)
		if err != nil {
			return nil, err
		}
		v, err := d.decode(s.value, append(append([]string(nil), path...), fmt.Sprint(k)))
		if err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, nil
}

func (d *decoder) decodeEnum(s *Schema, c byte, path []string) (any, error) {
	if isStr(c) {
		name, err := d.decodeString(s, c, path)
		if err != nil {
			return nil, err
		}
		if _, ok := s.enum.Ordinal(name); !ok {
			return nil, errors.InvalidEnum(errors.PhaseDecode, path, name, s.enum.Name)
		}
		return name, nil
	}

	n, err := d.decodeInteger(s, c, path)
	if err != nil {
		return nil, err
	}
	if n.neg || n.mag >= uint64(len(s.enum.Constants)) {
		return nil, errors.InvalidEnum(errors.PhaseDecode, path, n.String(), s.enum.Name)
	}
	return s.enum.Constants[n.mag], nil
}

// decodeObject reads a map keyed by property name. Unknown keys are skipped.
func (d *decoder) decodeObject(obj *objectSchema, path []string) (map[string]any, error) {
	n, err := d.mapLen(path)
	if err != nil {
		return nil, err
	}

	out := make(map[string]any, len(obj.fields))
	for i := 0; i < n; i++ {
		key, err := d.dec.DecodeString()
		if err != nil {
			return nil, err
		}
		f, ok := obj.field(key)
		if !ok {
			if err := d.dec.Skip(); err != nil {
				return nil, err
			}
			continue
		}
		v, err := d.decode(f.schema, append(append([]string(nil), path...), key))
		if err != nil {
			return nil, err
		}
		out[key] = v
	}

	for _, f := range obj.fields {
		if _, ok := out[f.name]; !ok && f.schema.required {
			return nil, errors.FieldMissing(errors.PhaseDecode, path, f.name)
		}
	}
	return out, nil
}

func (o *objectSchema) field(name string) (*field, bool) {
	for i := range o.fields {
		if o.fields[i].name == name {
			return &o.fields[i], true
		}
	}
	return nil, false
}

func mismatch(path []string, s *Schema, c byte) error {
	return errors.New(errors.PhaseDecode, errors.KindTypeMismatch).
		Path(path...).
		Type(s.expr).
		Value(c).
		Detail("unexpected format tag 0x%02x", c).
		Build()
}

func isStr(c byte) bool {
	return msgpcode.IsFixedString(c) || c == msgpcode.Str8 || c == msgpcode.Str16 || c == msgpcode.Str32
}

func isBin(c byte) bool {
	return c == msgpcode.Bin8 || c == msgpcode.Bin16 || c == msgpcode.Bin32
}

func isArray(c byte) bool {
	return msgpcode.IsFixedArray(c) || c == msgpcode.Array16 || c == msgpcode.Array32
}

func isMap(c byte) bool {
	return msgpcode.IsFixedMap(c) || c == msgpcode.Map16 || c == msgpcode.Map32
}

func isExt(c byte) bool {
	return msgpcode.IsFixedExt(c) || c == msgpcode.Ext8 || c == msgpcode.Ext16 || c == msgpcode.Ext32
}
