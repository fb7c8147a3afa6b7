package abi

import (
	"github.com/wippyai/wrap-runtime/errors"
)

// ABI describes the callable surface of a wrapper and the types it uses.
type ABI struct {
	Version    string     `msgpack:"version,omitempty" yaml:"version,omitempty"`
	Functions  []Function `msgpack:"functions,omitempty" yaml:"functions,omitempty"`
	Objects    []Object   `msgpack:"objects,omitempty" yaml:"objects,omitempty"`
	Enums      []Enum     `msgpack:"enums,omitempty" yaml:"enums,omitempty"`
	Env        *Object    `msgpack:"env,omitempty" yaml:"env,omitempty"`
	Imports    []Import   `msgpack:"imports,omitempty" yaml:"imports,omitempty"`
	Interfaces []string   `msgpack:"interfaces,omitempty" yaml:"interfaces,omitempty"`
}

// Function is an exported wrapper method.
type Function struct {
	Name   string     `msgpack:"name" yaml:"name"`
	Args   []Property `msgpack:"args,omitempty" yaml:"args,omitempty"`
	Return string     `msgpack:"return,omitempty" yaml:"return,omitempty"`
}

// Property is a named, typed slot: a function argument or an object field.
type Property struct {
	Name string `msgpack:"name" yaml:"name"`
	Type string `msgpack:"type" yaml:"type"`
}

// Object is a record type encoded as a map keyed by property name.
type Object struct {
	Name       string     `msgpack:"name" yaml:"name"`
	Properties []Property `msgpack:"properties,omitempty" yaml:"properties,omitempty"`
}

// Enum is a closed set of named constants encoded by ordinal.
type Enum struct {
	Name      string   `msgpack:"name" yaml:"name"`
	Constants []string `msgpack:"constants" yaml:"constants"`
}

// Import brings types from another wrapper into scope under Namespace.
// Imported types are addressed as Namespace_Name.
type Import struct {
	URI       string     `msgpack:"uri" yaml:"uri"`
	Namespace string     `msgpack:"namespace" yaml:"namespace"`
	Functions []Function `msgpack:"functions,omitempty" yaml:"functions,omitempty"`
	Objects   []Object   `msgpack:"objects,omitempty" yaml:"objects,omitempty"`
	Enums     []Enum     `msgpack:"enums,omitempty" yaml:"enums,omitempty"`
}

// Function returns the function with the given name.
func (a *ABI) Function(name string) (*Function, bool) {
	for i := range a.Functions {
		if a.Functions[i].Name == name {
			return &a.Functions[i], true
		}
	}
	return nil, false
}

// Object returns the object type with the given name, searching imports
// by their namespaced name.
func (a *ABI) Object(name string) (*Object, bool) {
	for i := range a.Objects {
		if a.Objects[i].Name == name {
			return &a.Objects[i], true
		}
	}
	if a.Env != nil && a.Env.Name == name {
		return a.Env, true
	}
	for i := range a.Imports {
		imp := &a.Imports[i]
		local, ok := imp.local(name)
		if !ok {
			continue
		}
		for j := range imp.Objects {
			if imp.Objects[j].Name == local {
				return &imp.Objects[j], true
			}
		}
	}
	return nil, false
}

// Enum returns the enum type with the given name, searching imports by their
// namespaced name.
func (a *ABI) Enum(name string) (*Enum, bool) {
	for i := range a.Enums {
		if a.Enums[i].Name == name {
			return &a.Enums[i], true
		}
	}
	for i := range a.Imports {
		imp := &a.Imports[i]
		local, ok := imp.local(name)
		if !ok {
			continue
		}
		for j := range imp.Enums {
			if imp.Enums[j].Name == local {
				return &imp.Enums[j], true
			}
		}
	}
	return nil, false
}

// ImportedFunction returns a function declared by the import with the given
// namespace.
func (a *ABI) ImportedFunction(namespace, name string) (*Import, *Function, bool) {
	for i := range a.Imports {
		imp := &a.Imports[i]
		if imp.Namespace != namespace {
			continue
		}
		for j := range imp.Functions {
			if imp.Functions[j].Name == name {
				return imp, &imp.Functions[j], true
			}
		}
	}
	return nil, nil, false
}

func (i *Import) local(name string) (string, bool) {
	p := i.Namespace + "_"
	if len(name) <= len(p) || name[:len(p)] != p {
		return "", false
	}
	return name[len(p):], true
}

// Arg returns the argument with the given name.
func (f *Function) Arg(name string) (*Property, bool) {
	for i := range f.Args {
		if f.Args[i].Name == name {
			return &f.Args[i], true
		}
	}
	return nil, false
}

// Ordinal returns the position of constant in the enum.
func (e *Enum) Ordinal(constant string) (int, bool) {
	for i, c := range e.Constants {
		if c == constant {
			return i, true
		}
	}
	return 0, false
}

// Validate checks that names are unique, every type expression parses and
// every named type reference resolves. All problems are reported, in
// declaration order.
func (a *ABI) Validate() error {
	var errs error

	seen := make(map[string]string)
	declare := func(kind, name string, path []string) {
		if name == "" {
			errs = errors.Append(errs, errors.Validation(errors.PhaseLoad, path, kind+" has no name"))
			return
		}
		if prev, ok := seen[name]; ok {
			errs = errors.Append(errs, errors.Validation(errors.PhaseLoad, path,
				"duplicate name "+name+" (already declared as "+prev+")"))
			return
		}
		seen[name] = kind
	}

	for _, o := range a.Objects {
		declare("object", o.Name, []string{"objects", o.Name})
	}
	for _, e := range a.Enums {
		declare("enum", e.Name, []string{"enums", e.Name})
	}
	for _, imp := range a.Imports {
		for _, o := range imp.Objects {
			declare("object", imp.Namespace+"_"+o.Name, []string{"imports", imp.Namespace, o.Name})
		}
		for _, e := range imp.Enums {
			declare("enum", imp.Namespace+"_"+e.Name, []string{"imports", imp.Namespace, e.Name})
		}
	}

	fnames := make(map[string]bool)
	for _, f := range a.Functions {
		path := []string{"functions", f.Name}
		if f.Name == "" {
			errs = errors.Append(errs, errors.Validation(errors.PhaseLoad, path, "function has no name"))
			continue
		}
		if fnames[f.Name] {
			errs = errors.Append(errs, errors.Validation(errors.PhaseLoad, path, "duplicate function "+f.Name))
		}
		fnames[f.Name] = true
		errs = errors.Append(errs, a.checkProperties(f.Args, path))
		if f.Return != "" {
			errs = errors.Append(errs, a.checkType(f.Return, append(path, "return")))
		}
	}

	for _, o := range a.Objects {
		errs = errors.Append(errs, a.checkProperties(o.Properties, []string{"objects", o.Name}))
	}
	if a.Env != nil {
		errs = errors.Append(errs, a.checkProperties(a.Env.Properties, []string{"env"}))
	}
	for _, e := range a.Enums {
		if len(e.Constants) == 0 {
			errs = errors.Append(errs, errors.Validation(errors.PhaseLoad, []string{"enums", e.Name}, "enum has no constants"))
		}
	}

	return errs
}

func (a *ABI) checkProperties(props []Property, path []string) error {
	var errs error
	names := make(map[string]bool, len(props))
	for _, p := range props {
		ppath := append(append([]string(nil), path...), p.Name)
		if names[p.Name] {
			errs = errors.Append(errs, errors.Validation(errors.PhaseLoad, ppath, "duplicate property "+p.Name))
		}
		names[p.Name] = true
		errs = errors.Append(errs, a.checkType(p.Type, ppath))
	}
	return errs
}

func (a *ABI) checkType(expr string, path []string) error {
	t, err := ParseType(expr)
	if err != nil {
		if e, ok := err.(*errors.Error); ok {
			e.Path = path
		}
		return err
	}
	var errs error
	t.Walk(func(n *Type) {
		if n.Kind != Named {
			return
		}
		if _, ok := a.Object(n.Name); ok {
			return
		}
		if _, ok := a.Enum(n.Name); ok {
			return
		}
		errs = errors.Append(errs, errors.New(errors.PhaseLoad, errors.KindNotFound).
			Path(path...).
			Type(expr).
			Detail("unknown type %q", n.Name).
			Build())
	})
	return errs
}
