package manifest

import "github.com/wippyai/wrap-runtime/abi"

// ManifestV01 is the 0.1 layout, which grouped functions under a module type.
type ManifestV01 struct {
	Format Format `msgpack:"format" yaml:"format"`
	Type   Type   `msgpack:"type" yaml:"type"`
	Name   string `msgpack:"name" yaml:"name"`
	ABI    ABIV01 `msgpack:"abi" yaml:"abi"`
}

// ABIV01 is the 0.1 ABI layout.
type ABIV01 struct {
	ModuleType *ModuleTypeV01 `msgpack:"moduleType,omitempty" yaml:"moduleType,omitempty"`
	Objects    []abi.Object   `msgpack:"objects,omitempty" yaml:"objects,omitempty"`
	Enums      []abi.Enum     `msgpack:"enums,omitempty" yaml:"enums,omitempty"`
	Env        *abi.Object    `msgpack:"env,omitempty" yaml:"env,omitempty"`
	Imports    []abi.Import   `msgpack:"imports,omitempty" yaml:"imports,omitempty"`
	Interfaces []string       `msgpack:"interfaces,omitempty" yaml:"interfaces,omitempty"`
}

// ModuleTypeV01 holds the methods of a 0.1 module.
type ModuleTypeV01 struct {
	Methods []abi.Function `msgpack:"methods,omitempty" yaml:"methods,omitempty"`
}

// Migrate01To02 lifts a 0.1 manifest to 0.2. Module methods become top-level
// functions; everything else carries over unchanged.
func Migrate01To02(old *ManifestV01) *Manifest {
	m := &Manifest{
		Format: V02,
		Type:   old.Type,
		Name:   old.Name,
		ABI: abi.ABI{
			Version:    string(V02),
			Objects:    old.ABI.Objects,
			Enums:      old.ABI.Enums,
			Env:        old.ABI.Env,
			Imports:    old.ABI.Imports,
			Interfaces: old.ABI.Interfaces,
		},
	}
	if old.ABI.ModuleType != nil {
		m.ABI.Functions = old.ABI.ModuleType.Methods
	}
	if m.Type == "" {
		m.Type = TypeWasm
	}
	return m
}
