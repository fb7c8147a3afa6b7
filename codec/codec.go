package codec

import (
	"sync"

	"github.com/wippyai/wrap-runtime/abi"
	"github.com/wippyai/wrap-runtime/errors"
)

// Codec encodes and decodes values for one wrapper's ABI.
// Safe for concurrent use.
type Codec struct {
	compiler *Compiler
	args     sync.Map // function name -> *objectSchema
	env      *objectSchema
	envOnce  sync.Once
	envErr   error
}

// New creates a codec for a.
func New(a *abi.ABI) *Codec {
	return &Codec{compiler: NewCompiler(a)}
}

// ABI returns the ABI the codec was built for.
func (c *Codec) ABI() *abi.ABI {
	return c.compiler.abi
}

// Compiler returns the codec's schema compiler.
func (c *Codec) Compiler() *Compiler {
	return c.compiler
}

// EncodeValue encodes v as the type expression expr.
func (c *Codec) EncodeValue(expr string, v any) ([]byte, error) {
	s, err := c.compiler.Compile(expr)
	if err != nil {
		return nil, err
	}
	return EncodeSchema(s, v)
}

// DecodeValue decodes data as the type expression expr.
func (c *Codec) DecodeValue(expr string, data []byte) (any, error) {
	s, err := c.compiler.Compile(expr)
	if err != nil {
		return nil, err
	}
	return DecodeSchema(s, data)
}

// EncodeSchema encodes v with a compiled schema.
func EncodeSchema(s *Schema, v any) ([]byte, error) {
	e := newEncoder()
	if err := e.encode(s, v, nil); err != nil {
		return nil, err
	}
	return e.buf.Bytes(), nil
}

// DecodeSchema decodes data with a compiled schema. The whole input must be
// consumed.
func DecodeSchema(s *Schema, data []byte) (any, error) {
	d := newDecoder(data)
	v, err := d.decode(s, nil)
	if err != nil {
		return nil, err
	}
	if err := d.finish(nil); err != nil {
		return nil, err
	}
	return v, nil
}

func (c *Codec) argsSchema(fn *abi.Function) (*objectSchema, error) {
	if cached, ok := c.args.Load(fn.Name); ok {
		return cached.(*objectSchema), nil
	}
	obj, err := c.compiler.compileArgs(fn)
	if err != nil {
		return nil, err
	}
	c.args.Store(fn.Name, obj)
	return obj, nil
}

// EncodeArgs encodes an argument map for fn. Arguments are written in
// declaration order; undeclared arguments are rejected.
func (c *Codec) EncodeArgs(fn *abi.Function, args map[string]any) ([]byte, error) {
	obj, err := c.argsSchema(fn)
	if err != nil {
		return nil, err
	}
	for name := range args {
		if _, ok := obj.field(name); !ok {
			return nil, errors.New(errors.PhaseEncode, errors.KindInvalidInput).
				Path("args", name).
				Detail("unknown argument %q for method %q", name, fn.Name).
				Build()
		}
	}
	if args == nil {
		args = map[string]any{}
	}

	e := newEncoder()
	if err := e.encodeObject(obj, args, []string{"args"}); err != nil {
		return nil, err
	}
	return e.buf.Bytes(), nil
}

// DecodeArgs decodes an encoded argument map for fn. Empty input is an empty
// argument map.
func (c *Codec) DecodeArgs(fn *abi.Function, data []byte) (map[string]any, error) {
	obj, err := c.argsSchema(fn)
	if err != nil {
		return nil, err
	}
	return decodeObjectBytes(obj, data, []string{"args"})
}

func decodeObjectBytes(obj *objectSchema, data []byte, path []string) (map[string]any, error) {
	if len(data) == 0 {
		for _, f := range obj.fields {
			if f.schema.required {
				return nil, errors.FieldMissing(errors.PhaseDecode, path, f.name)
			}
		}
		return map[string]any{}, nil
	}

	d := newDecoder(data)
	c, err := d.dec.PeekCode()
	if err != nil {
		return nil, errors.Wrap(errors.PhaseDecode, errors.KindInvalidData, err, "read object")
	}
	if !isMap(c) {
		return nil, errors.New(errors.PhaseDecode, errors.KindTypeMismatch).
			Path(path...).
			Detail("expected map, got format tag 0x%02x", c).
			Build()
	}
	m, err := d.decodeObject(obj, path)
	if err != nil {
		if _, ok := err.(*errors.Error); !ok {
			err = errors.Wrap(errors.PhaseDecode, errors.KindInvalidData, err, "read object")
		}
		return nil, err
	}
	if err := d.finish(path); err != nil {
		return nil, err
	}
	return m, nil
}

// EncodeResult encodes a method's return value. Functions without a declared
// return type are encoded schema-less.
func (c *Codec) EncodeResult(fn *abi.Function, v any) ([]byte, error) {
	if fn.Return == "" {
		return Marshal(v)
	}
	return c.EncodeValue(fn.Return, v)
}

// DecodeResult decodes a method's return value.
func (c *Codec) DecodeResult(fn *abi.Function, data []byte) (any, error) {
	if fn.Return == "" {
		return Unmarshal(data)
	}
	return c.DecodeValue(fn.Return, data)
}

func (c *Codec) envSchema() (*objectSchema, error) {
	c.envOnce.Do(func() {
		def := c.compiler.abi.Env
		if def == nil {
			return
		}
		c.compiler.mu.Lock()
		defer c.compiler.mu.Unlock()
		fields, err := c.compiler.compileFields(def.Properties, []string{"env"})
		if err != nil {
			c.envErr = err
			return
		}
		c.env = &objectSchema{name: "env", fields: fields}
	})
	return c.env, c.envErr
}

// EncodeEnv encodes an environment for the wrapper. Without an env declared
// in the ABI the value is encoded schema-less.
func (c *Codec) EncodeEnv(env map[string]any) ([]byte, error) {
	obj, err := c.envSchema()
	if err != nil {
		return nil, err
	}
	if obj == nil {
		return Marshal(env)
	}
	e := newEncoder()
	if err := e.encodeObject(obj, env, []string{"env"}); err != nil {
		return nil, err
	}
	return e.buf.Bytes(), nil
}

// DecodeEnv decodes an encoded environment.
func (c *Codec) DecodeEnv(data []byte) (map[string]any, error) {
	obj, err := c.envSchema()
	if err != nil {
		return nil, err
	}
	if obj != nil {
		return decodeObjectBytes(obj, data, []string{"env"})
	}
	if len(data) == 0 {
		return map[string]any{}, nil
	}
	v, err := Unmarshal(data)
	if err != nil {
		return nil, err
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, errors.InvalidData(errors.PhaseDecode, []string{"env"}, "env is not a string-keyed map")
	}
	return m, nil
}
