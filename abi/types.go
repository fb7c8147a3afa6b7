package abi

import (
	"strings"

	"go.bytecodealliance.org/wit"

	"github.com/wippyai/wrap-runtime/errors"
)

// Kind identifies the shape of a type expression.
type Kind uint8

const (
	Invalid Kind = iota
	UInt8
	UInt16
	UInt32
	UInt64
	Int8
	Int16
	Int32
	Int64
	Float32
	Float64
	Boolean
	String
	Bytes
	BigInt
	BigNumber
	JSON
	Array
	Map
	Named // object or enum, resolved against an ABI
)

var kindNames = [...]string{
	Invalid:   "Invalid",
	UInt8:     "UInt8",
	UInt16:    "UInt16",
	UInt32:    "UInt32",
	UInt64:    "UInt64",
	Int8:      "Int8",
	Int16:     "Int16",
	Int32:     "Int32",
	Int64:     "Int64",
	Float32:   "Float32",
	Float64:   "Float64",
	Boolean:   "Boolean",
	String:    "String",
	Bytes:     "Bytes",
	BigInt:    "BigInt",
	BigNumber: "BigNumber",
	JSON:      "JSON",
	Array:     "Array",
	Map:       "Map",
	Named:     "Named",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "Invalid"
}

// IsInteger reports whether k is a fixed-width integer kind.
func (k Kind) IsInteger() bool {
	return k >= UInt8 && k <= Int64
}

// IsScalar reports whether k has no nested types.
func (k Kind) IsScalar() bool {
	return k >= UInt8 && k <= JSON
}

var scalars = map[string]Kind{
	"UInt8":     UInt8,
	"UInt16":    UInt16,
	"UInt32":    UInt32,
	"UInt":      UInt32,
	"UInt64":    UInt64,
	"Int8":      Int8,
	"Int16":     Int16,
	"Int32":     Int32,
	"Int":       Int32,
	"Int64":     Int64,
	"Float32":   Float32,
	"Float64":   Float64,
	"Boolean":   Boolean,
	"String":    String,
	"Bytes":     Bytes,
	"BigInt":    BigInt,
	"BigNumber": BigNumber,
	"JSON":      JSON,
}

// Type is a parsed type expression.
type Type struct {
	Elem     *Type // Array element
	Key      *Type // Map key
	Value    *Type // Map value
	Name     string
	Kind     Kind
	Required bool
}

// String renders t in GraphQL notation.
func (t *Type) String() string {
	var b strings.Builder
	t.write(&b)
	return b.String()
}

func (t *Type) write(b *strings.Builder) {
	switch t.Kind {
	case Array:
		b.WriteByte('[')
		t.Elem.write(b)
		b.WriteByte(']')
	case Map:
		b.WriteString("Map<")
		t.Key.write(b)
		b.WriteString(", ")
		t.Value.write(b)
		b.WriteByte('>')
	case Named:
		b.WriteString(t.Name)
	default:
		b.WriteString(t.Kind.String())
	}
	if t.Required {
		b.WriteByte('!')
	}
}

// Walk calls fn for t and every nested type, depth first.
func (t *Type) Walk(fn func(*Type)) {
	fn(t)
	switch t.Kind {
	case Array:
		t.Elem.Walk(fn)
	case Map:
		t.Key.Walk(fn)
		t.Value.Walk(fn)
	}
}

// ParseType parses a type expression.
//
// GraphQL notation is the primary form: scalars, [T], Map<K, V> and named
// object or enum types, each optionally followed by ! to mark it required.
// Expressions starting with a lower-case letter are parsed as WIT types
// (u32, string, list<T>, option<T>), which are required unless wrapped in
// option.
func ParseType(expr string) (*Type, error) {
	s := strings.TrimSpace(expr)
	if s == "" {
		return nil, errors.New(errors.PhaseParse, errors.KindInvalidInput).
			Detail("empty type expression").
			Build()
	}
	if s[0] >= 'a' && s[0] <= 'z' {
		return parseWIT(s)
	}

	p := &parser{src: s}
	t, err := p.parse()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return nil, p.fail("unexpected %q", p.src[p.pos:])
	}
	return t, nil
}

// MustParseType is like ParseType but panics on error.
func MustParseType(expr string) *Type {
	t, err := ParseType(expr)
	if err != nil {
		panic(err)
	}
	return t
}

type parser struct {
	src string
	pos int
}

func (p *parser) parse() (*Type, error) {
	p.skipSpace()
	if p.pos >= len(p.src) {
		return nil, p.fail("unexpected end of expression")
	}

	var t *Type
	switch {
	case p.src[p.pos] == '[':
		p.pos++
		elem, err := p.parse()
		if err != nil {
			return nil, err
		}
		if err := p.expect(']'); err != nil {
			return nil, err
		}
		t = &Type{Kind: Array, Elem: elem}

	default:
		name := p.ident()
		if name == "" {
			return nil, p.fail("expected type name at %q", p.src[p.pos:])
		}
		if name == "Map" {
			m, err := p.parseMap()
			if err != nil {
				return nil, err
			}
			t = m
		} else if k, ok := scalars[name]; ok {
			t = &Type{Kind: k}
		} else {
			t = &Type{Kind: Named, Name: name}
		}
	}

	p.skipSpace()
	if p.pos < len(p.src) && p.src[p.pos] == '!' {
		p.pos++
		t.Required = true
	}
	return t, nil
}

func (p *parser) parseMap() (*Type, error) {
	if err := p.expect('<'); err != nil {
		return nil, err
	}
	key, err := p.parse()
	if err != nil {
		return nil, err
	}
	if key.Kind != String && !key.Kind.IsInteger() {
		return nil, p.fail("map key must be String or an integer type, got %s", key)
	}
	// Map keys are never null.
	key.Required = true
	if err := p.expect(','); err != nil {
		return nil, err
	}
	value, err := p.parse()
	if err != nil {
		return nil, err
	}
	if err := p.expect('>'); err != nil {
		return nil, err
	}
	return &Type{Kind: Map, Key: key, Value: value}, nil
}

func (p *parser) ident() string {
	start := p.pos
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		if c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9' && p.pos > start) {
			p.pos++
			continue
		}
		break
	}
	return p.src[start:p.pos]
}

func (p *parser) expect(c byte) error {
	p.skipSpace()
	if p.pos >= len(p.src) || p.src[p.pos] != c {
		return p.fail("expected %q", c)
	}
	p.pos++
	return nil
}

func (p *parser) skipSpace() {
	for p.pos < len(p.src) && (p.src[p.pos] == ' ' || p.src[p.pos] == '\t') {
		p.pos++
	}
}

func (p *parser) fail(format string, args ...any) error {
	return errors.New(errors.PhaseParse, errors.KindInvalidInput).
		Type(p.src).
		Detail(format, args...).
		Build()
}

func parseWIT(expr string) (*Type, error) {
	p := &parser{src: expr}
	wt, err := p.witType()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return nil, p.fail("unexpected %q", p.src[p.pos:])
	}
	return FromWIT(wt)
}

// witType parses list<T> and option<T> itself and leaves primitive names
// to wit.ParseType.
func (p *parser) witType() (wit.Type, error) {
	p.skipSpace()
	name := p.ident()
	if name == "" {
		return nil, p.fail("expected WIT type at %q", p.src[p.pos:])
	}

	switch name {
	case "list", "option":
		if err := p.expect('<'); err != nil {
			return nil, err
		}
		inner, err := p.witType()
		if err != nil {
			return nil, err
		}
		if err := p.expect('>'); err != nil {
			return nil, err
		}
		if name == "list" {
			return &wit.TypeDef{Kind: &wit.List{Type: inner}}, nil
		}
		return &wit.TypeDef{Kind: &wit.Option{Type: inner}}, nil
	}

	wt, err := wit.ParseType(name)
	if err != nil {
		return nil, errors.New(errors.PhaseParse, errors.KindInvalidInput).
			Type(p.src).
			Cause(err).
			Detail("invalid WIT type %q", name).
			Build()
	}
	return wt, nil
}

// FromWIT converts a WIT type into a type expression. Only the subset with a
// direct wire mapping is accepted.
func FromWIT(wt wit.Type) (*Type, error) {
	switch v := wt.(type) {
	case wit.Bool:
		return &Type{Kind: Boolean, Required: true}, nil
	case wit.U8:
		return &Type{Kind: UInt8, Required: true}, nil
	case wit.U16:
		return &Type{Kind: UInt16, Required: true}, nil
	case wit.U32:
		return &Type{Kind: UInt32, Required: true}, nil
	case wit.U64:
		return &Type{Kind: UInt64, Required: true}, nil
	case wit.S8:
		return &Type{Kind: Int8, Required: true}, nil
	case wit.S16:
		return &Type{Kind: Int16, Required: true}, nil
	case wit.S32:
		return &Type{Kind: Int32, Required: true}, nil
	case wit.S64:
		return &Type{Kind: Int64, Required: true}, nil
	case wit.F32:
		return &Type{Kind: Float32, Required: true}, nil
	case wit.F64:
		return &Type{Kind: Float64, Required: true}, nil
	case wit.String, wit.Char:
		return &Type{Kind: String, Required: true}, nil
	case *wit.TypeDef:
		switch k := v.Kind.(type) {
		case *wit.List:
			if _, ok := k.Type.(wit.U8); ok {
				return &Type{Kind: Bytes, Required: true}, nil
			}
			elem, err := FromWIT(k.Type)
			if err != nil {
				return nil, err
			}
			return &Type{Kind: Array, Elem: elem, Required: true}, nil
		case *wit.Option:
			inner, err := FromWIT(k.Type)
			if err != nil {
				return nil, err
			}
			inner.Required = false
			return inner, nil
		case wit.Type:
			return FromWIT(k)
		}
		return nil, errors.New(errors.PhaseParse, errors.KindUnsupported).
			Detail("unsupported WIT type definition %T", v.Kind).
			Build()
	}
	return nil, errors.New(errors.PhaseParse, errors.KindUnsupported).
		Detail("unsupported WIT type %T", wt).
		Build()
}
