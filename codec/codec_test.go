package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"math/big"
	"reflect"
	"testing"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/wippyai/wrap-runtime/abi"
	wrerrors "github.com/wippyai/wrap-runtime/errors"
)

func testABI() *abi.ABI {
	return &abi.ABI{
		Functions: []abi.Function{
			{
				Name:   "add",
				Args:   []abi.Property{{Name: "a", Type: "UInt32!"}, {Name: "b", Type: "UInt32!"}},
				Return: "UInt32!",
			},
			{
				Name:   "greet",
				Args:   []abi.Property{{Name: "user", Type: "User!"}, {Name: "loud", Type: "Boolean"}},
				Return: "String!",
			},
		},
		Objects: []abi.Object{
			{Name: "User", Properties: []abi.Property{
				{Name: "name", Type: "String!"},
				{Name: "age", Type: "UInt8"},
				{Name: "role", Type: "Role!"},
			}},
			{Name: "Node", Properties: []abi.Property{
				{Name: "value", Type: "Int!"},
				{Name: "next", Type: "Node"},
			}},
		},
		Enums: []abi.Enum{
			{Name: "Role", Constants: []string{"ADMIN", "MEMBER"}},
		},
		Env: &abi.Object{Name: "Env", Properties: []abi.Property{
			{Name: "apiKey", Type: "String!"},
		}},
	}
}

func TestEncodeArgs_Layout(t *testing.T) {
	c := New(testABI())
	fn, _ := c.ABI().Function("add")

	data, err := c.EncodeArgs(fn, map[string]any{"b": 3, "a": 2})
	if err != nil {
		t.Fatalf("encode args: %v", err)
	}

	want := []byte{
		0x82,
		0xa1, 'a', 0xce, 0x00, 0x00, 0x00, 0x02,
		0xa1, 'b', 0xce, 0x00, 0x00, 0x00, 0x03,
	}
	if !bytes.Equal(data, want) {
		t.Errorf("args = % x, want % x", data, want)
	}

	args, err := c.DecodeArgs(fn, data)
	if err != nil {
		t.Fatalf("decode args: %v", err)
	}
	if args["a"] != uint32(2) || args["b"] != uint32(3) {
		t.Errorf("decoded args = %v", args)
	}
}

func TestEncodeArgs_Errors(t *testing.T) {
	c := New(testABI())
	fn, _ := c.ABI().Function("add")

	_, err := c.EncodeArgs(fn, map[string]any{"a": 1})
	var e *wrerrors.Error
	if !errors.As(err, &e) || e.Kind != wrerrors.KindFieldMissing {
		t.Errorf("missing arg: got %v", err)
	}

	_, err = c.EncodeArgs(fn, map[string]any{"a": 1, "b": 2, "c": 3})
	if !errors.As(err, &e) || e.Kind != wrerrors.KindInvalidInput {
		t.Errorf("unknown arg: got %v", err)
	}

	_, err = c.EncodeArgs(fn, map[string]any{"a": 1, "b": 4294967296})
	if !errors.Is(err, wrerrors.ErrOverflow) {
		t.Errorf("overflowing arg: got %v", err)
	}

	_, err = c.DecodeArgs(fn, nil)
	if !errors.As(err, &e) || e.Kind != wrerrors.KindFieldMissing {
		t.Errorf("empty args with required fields: got %v", err)
	}
}

func TestRoundTrip(t *testing.T) {
	c := New(testABI())

	tests := []struct {
		expr string
		in   any
		want any
	}{
		{"UInt8!", 200, uint8(200)},
		{"UInt16!", uint16(65535), uint16(65535)},
		{"UInt32!", 4294967295.0, uint32(4294967295)},
		{"UInt64!", uint64(math.MaxUint64), uint64(math.MaxUint64)},
		{"Int8!", -128, int8(-128)},
		{"Int16!", -300, int16(-300)},
		{"Int!", int64(math.MaxInt32), int32(math.MaxInt32)},
		{"Int64!", int64(math.MinInt64), int64(math.MinInt64)},
		{"Float32!", float32(1.5), float32(1.5)},
		{"Float64!", 2.25, 2.25},
		{"Boolean!", true, true},
		{"String!", "héllo", "héllo"},
		{"Bytes!", []byte{1, 2, 3}, []byte{1, 2, 3}},
		{"String", nil, nil},
		{"JSON!", `{"a":[1,2]}`, json.RawMessage(`{"a":[1,2]}`)},
		{"[UInt8!]!", []int{1, 2}, []any{uint8(1), uint8(2)}},
		{"[String]!", []any{"a", nil}, []any{"a", nil}},
		{"Map<String, Int!>!", map[string]int{"a": 1, "b": -2}, map[string]any{"a": int32(1), "b": int32(-2)}},
		{"Map<UInt8, String!>!", map[int]string{1: "x"}, map[any]any{uint8(1): "x"}},
		{"Role!", "MEMBER", "MEMBER"},
		{"Role!", 0, "ADMIN"},
		{
			"User!",
			map[string]any{"name": "ann", "age": 30, "role": "ADMIN"},
			map[string]any{"name": "ann", "age": uint8(30), "role": "ADMIN"},
		},
		{
			"User!",
			map[string]any{"name": "bob", "role": 1},
			map[string]any{"name": "bob", "age": nil, "role": "MEMBER"},
		},
		{
			"Node!",
			map[string]any{"value": 1, "next": map[string]any{"value": 2}},
			map[string]any{"value": int32(1), "next": map[string]any{"value": int32(2), "next": nil}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			data, err := c.EncodeValue(tt.expr, tt.in)
			if err != nil {
				t.Fatalf("encode: %v", err)
			}
			got, err := c.DecodeValue(tt.expr, data)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestEncode_Struct(t *testing.T) {
	type user struct {
		Name string `msgpack:"name"`
		Role string `msgpack:"role"`
	}
	c := New(testABI())

	data, err := c.EncodeValue("User!", user{Name: "cy", Role: "MEMBER"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := c.DecodeValue("User!", data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	m := got.(map[string]any)
	if m["name"] != "cy" || m["role"] != "MEMBER" {
		t.Errorf("got %v", m)
	}
}

func TestBigValues(t *testing.T) {
	c := New(nil)

	n := new(big.Int).Lsh(big.NewInt(1), 100)
	data, err := c.EncodeValue("BigInt!", n)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := c.DecodeValue("BigInt!", data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.(*big.Int).Cmp(n) != 0 {
		t.Errorf("BigInt = %v, want %v", got, n)
	}

	data, err = c.EncodeValue("BigNumber!", "1.25")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err = c.DecodeValue("BigNumber!", data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.(*big.Float).Cmp(big.NewFloat(1.25)) != 0 {
		t.Errorf("BigNumber = %v", got)
	}

	if _, err := c.EncodeValue("BigInt!", "12x"); err == nil {
		t.Error("expected error for malformed BigInt")
	}
}

func TestOverflow(t *testing.T) {
	c := New(nil)

	encodeCases := []struct {
		expr string
		v    any
	}{
		{"UInt32!", 4294967296},
		{"UInt8!", -1},
		{"Int8!", 128},
		{"Int8!", -129},
		{"Int32!", int64(math.MaxInt32) + 1},
		{"UInt64!", new(big.Int).Lsh(big.NewInt(1), 70)},
		{"Float32!", math.MaxFloat64},
	}
	for _, tt := range encodeCases {
		_, err := c.EncodeValue(tt.expr, tt.v)
		if !errors.Is(err, wrerrors.ErrOverflow) {
			t.Errorf("encode %v as %s: got %v", tt.v, tt.expr, err)
		}
	}

	data, err := msgpack.Marshal(300)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	_, err = c.DecodeValue("UInt8!", data)
	if !errors.Is(err, wrerrors.ErrOverflow) {
		t.Errorf("decode 300 as UInt8: got %v", err)
	}
	var e *wrerrors.Error
	if !errors.As(err, &e) || e.Phase != wrerrors.PhaseDecode {
		t.Errorf("expected decode phase, got %v", err)
	}

	data, err = msgpack.Marshal(-1)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if _, err := c.DecodeValue("UInt64!", data); !errors.Is(err, wrerrors.ErrOverflow) {
		t.Errorf("decode -1 as UInt64: got %v", err)
	}
}

func TestDecodeErrors(t *testing.T) {
	c := New(testABI())

	tests := []struct {
		name string
		expr string
		data []byte
		kind wrerrors.Kind
	}{
		{"unrecognized tag", "UInt32!", []byte{0xc1}, wrerrors.KindTypeMismatch},
		{"string for integer", "UInt32!", []byte{0xa1, 'x'}, wrerrors.KindTypeMismatch},
		{"null for required", "String!", []byte{0xc0}, wrerrors.KindInvalidData},
		{"trailing bytes", "UInt8!", []byte{0x01, 0x02}, wrerrors.KindInvalidData},
		{"truncated", "UInt32!", []byte{0xce, 0x00}, wrerrors.KindInvalidData},
		{"empty input", "UInt32!", nil, wrerrors.KindInvalidData},
		{"bad enum ordinal", "Role!", []byte{0x05}, wrerrors.KindInvalidEnum},
		{"bad utf8", "String!", []byte{0xa2, 0xff, 0xfe}, wrerrors.KindInvalidUTF8},
		{"bad json", "JSON!", []byte{0xa1, '{'}, wrerrors.KindInvalidData},
		{"wrong extension", "Map<String, Int>!", []byte{0xd4, 0x02, 0x80}, wrerrors.KindInvalidData},
		{"missing required field", "User!", []byte{0x81, 0xa4, 'n', 'a', 'm', 'e', 0xa1, 'x'}, wrerrors.KindFieldMissing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.DecodeValue(tt.expr, tt.data)
			var e *wrerrors.Error
			if !errors.As(err, &e) {
				t.Fatalf("expected *errors.Error, got %v", err)
			}
			if e.Phase != wrerrors.PhaseDecode {
				t.Errorf("phase = %s", e.Phase)
			}
			if e.Kind != tt.kind {
				t.Errorf("kind = %s, want %s (%v)", e.Kind, tt.kind, err)
			}
		})
	}
}

func TestDecode_HugeLengths(t *testing.T) {
	c := New(testABI())
	array32 := []byte{0xdd, 0x7f, 0xff, 0xff, 0xff}
	map32 := []byte{0xdf, 0x7f, 0xff, 0xff, 0xff}
	extMap := append([]byte{0xc7, 0x05, byte(mapExtType)}, map32...)

	tests := []struct {
		name string
		expr string
		data []byte
	}{
		{"array32", "[UInt8]", array32},
		{"array32 of one byte", "[UInt8]!", []byte{0xdd, 0x00, 0x00, 0x00, 0x02, 0x01}},
		{"map32", "Map<String, Int>!", map32},
		{"ext map32", "Map<String, Int>!", extMap},
		{"integer-keyed map32", "Map<Int, Int>!", extMap},
		{"object map32", "User!", map32},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.DecodeValue(tt.expr, tt.data)
			if !errors.Is(err, &wrerrors.Error{Phase: wrerrors.PhaseDecode, Kind: wrerrors.KindInvalidData}) {
				t.Fatalf("expected invalid data, got %v", err)
			}
		})
	}

	for _, data := range [][]byte{array32, map32, extMap} {
		if _, err := Unmarshal(data); !errors.Is(err, &wrerrors.Error{Kind: wrerrors.KindInvalidData}) {
			t.Fatalf("unmarshal % x: expected invalid data, got %v", data, err)
		}
	}
}

func TestDecode_SkipsUnknownFields(t *testing.T) {
	c := New(testABI())
	data, err := msgpack.Marshal(map[string]any{
		"name":  "x",
		"role":  1,
		"extra": []any{1, "two", map[string]any{"three": 3}},
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	got, err := c.DecodeValue("User!", data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := map[string]any{"name": "x", "role": "MEMBER"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestDecode_AcceptsCompactIntegers(t *testing.T) {
	c := New(nil)
	for _, v := range []any{7, 200, 70000, -5} {
		data, err := msgpack.Marshal(v)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		got, err := c.DecodeValue("Int64!", data)
		if err != nil {
			t.Fatalf("decode %v: %v", v, err)
		}
		if got != int64(v.(int)) {
			t.Errorf("got %v, want %v", got, v)
		}
	}
}

func TestMap_ExtensionWrapper(t *testing.T) {
	c := New(nil)
	data, err := c.EncodeValue("Map<String, Boolean!>!", map[string]bool{"z": true, "a": false})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	id, _, err := msgpack.NewDecoder(bytes.NewReader(data)).DecodeExtHeader()
	if err != nil {
		t.Fatalf("read extension header: %v", err)
	}
	if id != mapExtType {
		t.Fatalf("extension type = %d, want %d", id, mapExtType)
	}

	again, err := c.EncodeValue("Map<String, Boolean!>!", map[string]bool{"a": false, "z": true})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !bytes.Equal(data, again) {
		t.Error("map encoding should not depend on iteration order")
	}

	plain, err := msgpack.Marshal(map[string]bool{"k": true})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got, err := c.DecodeValue("Map<String, Boolean!>!", plain)
	if err != nil {
		t.Fatalf("decode plain map: %v", err)
	}
	if !reflect.DeepEqual(got, map[string]any{"k": true}) {
		t.Errorf("got %v", got)
	}
}

func TestEnumEncodeErrors(t *testing.T) {
	c := New(testABI())
	for _, v := range []any{"GUEST", 2, -1} {
		_, err := c.EncodeValue("Role!", v)
		var e *wrerrors.Error
		if !errors.As(err, &e) || e.Kind != wrerrors.KindInvalidEnum {
			t.Errorf("encode %v: got %v", v, err)
		}
	}
}

func TestCompile_UnknownType(t *testing.T) {
	c := New(testABI())
	_, err := c.EncodeValue("Ghost!", map[string]any{})
	var e *wrerrors.Error
	if !errors.As(err, &e) || e.Kind != wrerrors.KindNotFound {
		t.Errorf("got %v", err)
	}
}

func TestCompile_Cached(t *testing.T) {
	comp := NewCompiler(testABI())
	a, err := comp.Compile("[User!]")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	b, err := comp.Compile("[User!]")
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if a != b {
		t.Error("expected cached schema")
	}
	if a.String() != "[User!]" || a.Required() {
		t.Errorf("schema = %s required=%v", a, a.Required())
	}
}

func TestEnv(t *testing.T) {
	c := New(testABI())
	data, err := c.EncodeEnv(map[string]any{"apiKey": "secret"})
	if err != nil {
		t.Fatalf("encode env: %v", err)
	}
	env, err := c.DecodeEnv(data)
	if err != nil {
		t.Fatalf("decode env: %v", err)
	}
	if env["apiKey"] != "secret" {
		t.Errorf("env = %v", env)
	}
	if _, err := c.EncodeEnv(map[string]any{}); err == nil {
		t.Error("expected missing apiKey error")
	}

	plain := New(nil)
	data, err = plain.EncodeEnv(map[string]any{"anything": "goes"})
	if err != nil {
		t.Fatalf("encode schema-less env: %v", err)
	}
	env, err = plain.DecodeEnv(data)
	if err != nil {
		t.Fatalf("decode schema-less env: %v", err)
	}
	if env["anything"] != "goes" {
		t.Errorf("env = %v", env)
	}
}

func TestUnmarshal(t *testing.T) {
	data, err := Marshal(map[string]any{"a": 1, "b": []any{"x", true, nil}, "c": 1.5})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	want := map[string]any{"a": int64(1), "b": []any{"x", true, nil}, "c": 1.5}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %#v, want %#v", got, want)
	}

	c := New(nil)
	data, err = c.EncodeValue("Map<UInt8, Boolean!>!", map[uint8]bool{7: true})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err = Unmarshal(data)
	if err != nil {
		t.Fatalf("unmarshal ext map: %v", err)
	}
	if !reflect.DeepEqual(got, map[any]any{uint64(7): true}) {
		t.Errorf("got %#v", got)
	}

	if _, err := Unmarshal([]byte{0xc1}); err == nil {
		t.Error("expected error for unrecognized tag")
	}
	if _, err := Unmarshal([]byte{0x01, 0x02}); err == nil {
		t.Error("expected error for trailing bytes")
	}
}

func TestUnmarshalInto(t *testing.T) {
	type point struct {
		X int `msgpack:"x"`
		Y int `msgpack:"y"`
	}
	data, err := Marshal(map[string]any{"x": 1, "y": 2})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var p point
	if err := UnmarshalInto(data, &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if p.X != 1 || p.Y != 2 {
		t.Errorf("point = %+v", p)
	}
}
