package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"reflect"
	"sort"
	"unicode/utf8"

	"github.com/tidwall/gjson"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/wippyai/wrap-runtime/abi"
	"github.com/wippyai/wrap-runtime/errors"
)

// mapExtType is the MessagePack extension type wrapping ABI maps.
const mapExtType int8 = 1

type encoder struct {
	buf bytes.Buffer
	enc *msgpack.Encoder
}

func newEncoder() *encoder {
	e := &encoder{}
	e.enc = msgpack.NewEncoder(&e.buf)
	return e
}

func (e *encoder) encode(s *Schema, v any, path []string) error {
	if isNil(v) {
		if s.required {
			return errors.New(errors.PhaseEncode, errors.KindInvalidData).
				Path(path...).
				Type(s.expr).
				Detail("null value for required type").
				Build()
		}
		return e.enc.EncodeNil()
	}

	switch s.kind {
	case abi.UInt8, abi.UInt16, abi.UInt32, abi.UInt64,
		abi.Int8, abi.Int16, abi.Int32, abi.Int64:
		return e.encodeInteger(s, v, path)
	case abi.Float32, abi.Float64:
		return e.encodeFloat(s, v, path)
	case abi.Boolean:
		b, ok := v.(bool)
		if !ok {
			return errors.TypeMismatch(errors.PhaseEncode, path, s.expr, v)
		}
		return e.enc.EncodeBool(b)
	case abi.String:
		str, ok := v.(string)
		if !ok {
			return errors.TypeMismatch(errors.PhaseEncode, path, s.expr, v)
		}
		if !utf8.ValidString(str) {
			return errors.InvalidUTF8(errors.PhaseEncode, path, []byte(str))
		}
		return e.enc.EncodeString(str)
	case abi.Bytes:
		switch b := v.(type) {
		case []byte:
			return e.enc.EncodeBytes(b)
		case string:
			return e.enc.EncodeBytes([]byte(b))
		}
		return errors.TypeMismatch(errors.PhaseEncode, path, s.expr, v)
	case abi.BigInt:
		return e.encodeBigInt(s, v, path)
	case abi.BigNumber:
		return e.encodeBigNumber(s, v, path)
	case abi.JSON:
		return e.encodeJSON(s, v, path)
	case abi.Array:
		return e.encodeArray(s, v, path)
	case abi.Map:
		return e.encodeMap(s, v, path)
	case abi.Named:
		if s.enum != nil {
			return e.encodeEnum(s, v, path)
		}
		return e.encodeObject(s.object, v, path)
	}
	return errors.Unsupported(errors.PhaseEncode, "type "+s.expr)
}

func (e *encoder) encodeInteger(s *Schema, v any, path []string) error {
	n, ok, tooBig := integerOf(v)
	if !ok {
		return errors.TypeMismatch(errors.PhaseEncode, path, s.expr, v)
	}
	if tooBig || !n.fits(s.kind) {
		return errors.Overflow(errors.PhaseEncode, path, v, s.kind.String())
	}
	return n.encode(e.enc, s.kind)
}

func (e *encoder) encodeFloat(s *Schema, v any, path []string) error {
	var f float64
	switch x := v.(type) {
	case float32:
		if s.kind == abi.Float32 {
			return e.enc.EncodeFloat32(x)
		}
		f = float64(x)
	case float64:
		f = x
	case json.Number:
		parsed, err := x.Float64()
		if err != nil {
			return errors.TypeMismatch(errors.PhaseEncode, path, s.expr, v)
		}
		f = parsed
	default:
		n, ok, tooBig := integerOf(v)
		if !ok || tooBig {
			return errors.TypeMismatch(errors.PhaseEncode, path, s.expr, v)
		}
		f = float64(n.int64())
		if !n.neg {
			f = float64(n.mag)
		}
	}

	if s.kind == abi.Float32 {
		if !math.IsInf(f, 0) && !math.IsNaN(f) && math.Abs(f) > math.MaxFloat32 {
			return errors.Overflow(errors.PhaseEncode, path, v, "Float32")
		}
		return e.enc.EncodeFloat32(float32(f))
	}
	return e.enc.EncodeFloat64(f)
}

func (e *encoder) encodeBigInt(s *Schema, v any, path []string) error {
	switch x := v.(type) {
	case *big.Int:
		return e.enc.EncodeString(x.String())
	case big.Int:
		return e.enc.EncodeString(x.String())
	case string:
		if _, ok := new(big.Int).SetString(x, 10); !ok {
			return errors.InvalidData(errors.PhaseEncode, path, fmt.Sprintf("invalid BigInt %q", x))
		}
		return e.enc.EncodeString(x)
	}
	n, ok, tooBig := integerOf(v)
	if !ok || tooBig {
		return errors.TypeMismatch(errors.PhaseEncode, path, s.expr, v)
	}
	return e.enc.EncodeString(n.String())
}

func (e *encoder) encodeBigNumber(s *Schema, v any, path []string) error {
	switch x := v.(type) {
	case *big.Float:
		return e.enc.EncodeString(x.Text('g', -1))
	case *big.Int:
		return e.enc.EncodeString(x.String())
	case string:
		if _, _, err := big.ParseFloat(x, 10, bigNumberPrec, big.ToNearestEven); err != nil {
			return errors.InvalidData(errors.PhaseEncode, path, fmt.Sprintf("invalid BigNumber %q", x))
		}
		return e.enc.EncodeString(x)
	case float64:
		return e.enc.EncodeString(big.NewFloat(x).Text('g', -1))
	}
	n, ok, tooBig := integerOf(v)
	if !ok || tooBig {
		return errors.TypeMismatch(errors.PhaseEncode, path, s.expr, v)
	}
	return e.enc.EncodeString(n.String())
}

func (e *encoder) encodeJSON(s *Schema, v any, path []string) error {
	var raw string
	switch x := v.(type) {
	case json.RawMessage:
		raw = string(x)
	case string:
		raw = x
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return errors.New(errors.PhaseEncode, errors.KindInvalidData).
				Path(path...).
				Type(s.expr).
				Cause(err).
				Detail("marshal JSON").
				Build()
		}
		raw = string(data)
	}
	if !gjson.Valid(raw) {
		return errors.InvalidData(errors.PhaseEncode, path, "invalid JSON document")
	}
	return e.enc.EncodeString(raw)
}

func (e *encoder) encodeArray(s *Schema, v any, path []string) error {
	if items, ok := v.([]any); ok {
		if err := e.enc.EncodeArrayLen(len(items)); err != nil {
			return err
		}
		for i, item := range items {
			if err := e.encode(s.elem, item, appendIndex(path, i)); err != nil {
				return err
			}
		}
		return nil
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return errors.TypeMismatch(errors.PhaseEncode, path, s.expr, v)
	}
	if err := e.enc.EncodeArrayLen(rv.Len()); err != nil {
		return err
	}
	for i := 0; i < rv.Len(); i++ {
		if err := e.encode(s.elem, rv.Index(i).Interface(), appendIndex(path, i)); err != nil {
			return err
		}
	}
	return nil
}

type mapEntry struct {
	value  any
	str    string
	num    integer
	encKey []byte
}

func (e *encoder) encodeMap(s *Schema, v any, path []string) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map {
		return errors.TypeMismatch(errors.PhaseEncode, path, s.expr, v)
	}

	entries := make([]mapEntry, 0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		k := iter.Key().Interface()
		keyPath := append(append([]string(nil), path...), fmt.Sprint(k))

		inner := newEncoder()
		if err := inner.encode(s.key, k, keyPath); err != nil {
			return err
		}
		entry := mapEntry{value: iter.Value().Interface(), encKey: inner.buf.Bytes()}
		if str, ok := k.(string); ok {
			entry.str = str
		} else {
			entry.num, _, _ = integerOf(k)
		}
		entries = append(entries, entry)
	}

	// Deterministic output regardless of Go map iteration order.
	if s.key.kind == abi.String {
		sort.Slice(entries, func(i, j int) bool { return entries[i].str < entries[j].str })
	} else {
		sort.Slice(entries, func(i, j int) bool { return entries[i].num.less(entries[j].num) })
	}

	body := newEncoder()
	if err := body.enc.EncodeMapLen(len(entries)); err != nil {
		return err
	}
	for _, entry := range entries {
		body.buf.Write(entry.encKey)
		valuePath := append(append([]string(nil), path...), entry.str)
		if s.key.kind != abi.String {
			valuePath[len(valuePath)-1] = entry.num.String()
		}
		if err := body.encode(s.value, entry.value, valuePath); err != nil {
			return err
		}
	}

	if err := e.enc.EncodeExtHeader(mapExtType, body.buf.Len()); err != nil {
		return err
	}
	_, err := e.enc.Writer().Write(body.buf.Bytes())
	return err
}

func (e *encoder) encodeEnum(s *Schema, v any, path []string) error {
	if name, ok := v.(string); ok {
		ord, found := s.enum.Ordinal(name)
		if !found {
			return errors.InvalidEnum(errors.PhaseEncode, path, name, s.enum.Name)
		}
		return e.enc.EncodeInt32(int32(ord))
	}

	n, ok, _ := integerOf(v)
	if !ok {
		return errors.TypeMismatch(errors.PhaseEncode, path, s.expr, v)
	}
	if n.neg || n.mag >= uint64(len(s.enum.Constants)) {
		return errors.InvalidEnum(errors.PhaseEncode, path, v, s.enum.Name)
	}
	return e.enc.EncodeInt32(int32(n.mag))
}

func (e *encoder) encodeObject(obj *objectSchema, v any, path []string) error {
	m, err := toStringMap(v)
	if err != nil {
		return errors.New(errors.PhaseEncode, errors.KindTypeMismatch).
			Path(path...).
			Type(obj.name).
			Cause(err).
			Detail("expected object, got %T", v).
			Build()
	}

	if err := e.enc.EncodeMapLen(len(obj.fields)); err != nil {
		return err
	}
	for _, f := range obj.fields {
		fpath := append(append([]string(nil), path...), f.name)
		value, present := m[f.name]
		if !present && f.schema.required {
			return errors.FieldMissing(errors.PhaseEncode, path, f.name)
		}
		if err := e.enc.EncodeString(f.name); err != nil {
			return err
		}
		if err := e.encode(f.schema, value, fpath); err != nil {
			return err
		}
	}
	return nil
}

// toStringMap accepts map[string]any directly and converts any other value
// (structs, typed maps) through its MessagePack representation.
func toStringMap(v any) (map[string]any, error) {
	if m, ok := v.(map[string]any); ok {
		return m, nil
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Ptr {
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct && rv.Kind() != reflect.Map {
		return nil, fmt.Errorf("%T is not an object", v)
	}
	data, err := msgpack.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := msgpack.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

func appendIndex(path []string, i int) []string {
	return append(append([]string(nil), path...), fmt.Sprintf("[%d]", i))
}
