package codec

import (
	"bytes"
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func roundTrip(c *Codec, expr string, v any) (any, bool) {
	data, err := c.EncodeValue(expr, v)
	if err != nil {
		return nil, false
	}
	got, err := c.DecodeValue(expr, data)
	if err != nil {
		return nil, false
	}
	return got, true
}

func TestRoundTripProperties(t *testing.T) {
	c := New(testABI())
	properties := gopter.NewProperties(nil)

	properties.Property("UInt32 round-trips", prop.ForAll(
		func(v uint32) bool {
			got, ok := roundTrip(c, "UInt32!", v)
			return ok && got == v
		},
		gen.UInt32(),
	))

	properties.Property("Int64 round-trips", prop.ForAll(
		func(v int64) bool {
			got, ok := roundTrip(c, "Int64!", v)
			return ok && got == v
		},
		gen.Int64(),
	))

	properties.Property("Int16 round-trips", prop.ForAll(
		func(v int16) bool {
			got, ok := roundTrip(c, "Int16!", v)
			return ok && got == v
		},
		gen.Int16(),
	))

	properties.Property("Float64 round-trips", prop.ForAll(
		func(v float64) bool {
			got, ok := roundTrip(c, "Float64!", v)
			return ok && got == v
		},
		gen.Float64Range(-1e300, 1e300),
	))

	properties.Property("String round-trips", prop.ForAll(
		func(v string) bool {
			got, ok := roundTrip(c, "String!", v)
			return ok && got == v
		},
		gen.AnyString(),
	))

	properties.Property("Bytes round-trip", prop.ForAll(
		func(v []byte) bool {
			got, ok := roundTrip(c, "Bytes!", v)
			return ok && bytes.Equal(got.([]byte), v)
		},
		gen.SliceOf(gen.UInt8()),
	))

	properties.Property("[UInt16] round-trips", prop.ForAll(
		func(v []uint16) bool {
			got, ok := roundTrip(c, "[UInt16!]!", v)
			if !ok {
				return false
			}
			items := got.([]any)
			if len(items) != len(v) {
				return false
			}
			for i := range v {
				if items[i] != v[i] {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.UInt16()),
	))

	properties.Property("Map<String, Int8> round-trips", prop.ForAll(
		func(v map[string]int8) bool {
			got, ok := roundTrip(c, "Map<String, Int8!>!", v)
			if !ok {
				return false
			}
			want := make(map[string]any, len(v))
			for k, n := range v {
				want[k] = n
			}
			return reflect.DeepEqual(got, want)
		},
		gen.MapOf(gen.AlphaString(), gen.Int8()),
	))

	properties.Property("User objects round-trip", prop.ForAll(
		func(name string, age uint8, admin bool) bool {
			role := "MEMBER"
			if admin {
				role = "ADMIN"
			}
			in := map[string]any{"name": name, "age": age, "role": role}
			got, ok := roundTrip(c, "User!", in)
			return ok && reflect.DeepEqual(got, in)
		},
		gen.AlphaString(),
		gen.UInt8(),
		gen.Bool(),
	))

	properties.TestingRun(t)
}
