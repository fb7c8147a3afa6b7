package codec

import (
	"sync"

	"github.com/wippyai/wrap-runtime/abi"
	"github.com/wippyai/wrap-runtime/errors"
)

// Schema is a type expression compiled against an ABI. Named references are
// resolved to their object or enum definitions.
type Schema struct {
	elem     *Schema
	key      *Schema
	value    *Schema
	object   *objectSchema
	enum     *abi.Enum
	expr     string
	kind     abi.Kind
	required bool
}

type objectSchema struct {
	name   string
	fields []field
}

type field struct {
	schema *Schema
	name   string
}

// String returns the type expression the schema was compiled from.
func (s *Schema) String() string {
	return s.expr
}

// Required reports whether null is rejected for this schema.
func (s *Schema) Required() bool {
	return s.required
}

// Compiler compiles type expressions against one ABI and caches the result.
// Safe for concurrent use.
type Compiler struct {
	abi     *abi.ABI
	objects map[string]*objectSchema
	cache   sync.Map // expr -> *Schema
	mu      sync.Mutex
}

// NewCompiler creates a compiler for a. A nil ABI supports only scalar and
// structural types.
func NewCompiler(a *abi.ABI) *Compiler {
	if a == nil {
		a = &abi.ABI{}
	}
	return &Compiler{
		abi:     a,
		objects: make(map[string]*objectSchema),
	}
}

// Compile returns the schema for a type expression.
func (c *Compiler) Compile(expr string) (*Schema, error) {
	if cached, ok := c.cache.Load(expr); ok {
		return cached.(*Schema), nil
	}

	t, err := abi.ParseType(expr)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	s, err := c.compile(t, nil)
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}

	s.expr = expr
	c.cache.Store(expr, s)
	return s, nil
}

// compile must be called with mu held.
func (c *Compiler) compile(t *abi.Type, path []string) (*Schema, error) {
	s := &Schema{kind: t.Kind, required: t.Required, expr: t.String()}

	switch t.Kind {
	case abi.Array:
		elem, err := c.compile(t.Elem, path)
		if err != nil {
			return nil, err
		}
		s.elem = elem

	case abi.Map:
		key, err := c.compile(t.Key, path)
		if err != nil {
			return nil, err
		}
		value, err := c.compile(t.Value, path)
		if err != nil {
			return nil, err
		}
		s.key, s.value = key, value

	case abi.Named:
		if e, ok := c.abi.Enum(t.Name); ok {
			s.enum = e
			break
		}
		obj, err := c.compileObject(t.Name, path)
		if err != nil {
			return nil, err
		}
		s.object = obj
	}

	return s, nil
}

func (c *Compiler) compileObject(name string, path []string) (*objectSchema, error) {
	if obj, ok := c.objects[name]; ok {
		return obj, nil
	}

	def, ok := c.abi.Object(name)
	if !ok {
		return nil, errors.New(errors.PhaseLoad, errors.KindNotFound).
			Path(path...).
			Type(name).
			Detail("unknown type %q", name).
			Build()
	}

	// Registered before fields are compiled so self-references terminate.
	obj := &objectSchema{name: name}
	c.objects[name] = obj

	fields, err := c.compileFields(def.Properties, append(path, name))
	if err != nil {
		delete(c.objects, name)
		return nil, err
	}
	obj.fields = fields
	return obj, nil
}

func (c *Compiler) compileFields(props []abi.Property, path []string) ([]field, error) {
	fields := make([]field, 0, len(props))
	for _, p := range props {
		t, err := abi.ParseType(p.Type)
		if err != nil {
			return nil, err
		}
		fpath := append(append([]string(nil), path...), p.Name)
		s, err := c.compile(t, fpath)
		if err != nil {
			return nil, err
		}
		fields = append(fields, field{name: p.Name, schema: s})
	}
	return fields, nil
}

// compileArgs builds an object schema for a function's argument list.
func (c *Compiler) compileArgs(fn *abi.Function) (*objectSchema, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fields, err := c.compileFields(fn.Args, []string{fn.Name})
	if err != nil {
		return nil, err
	}
	return &objectSchema{name: fn.Name, fields: fields}, nil
}
