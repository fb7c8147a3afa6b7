package wasmbin

const (
	magic   = "\x00asm"
	version = "\x01\x00\x00\x00"
)

// Section IDs
const (
	sectionType     byte = 1
	sectionImport   byte = 2
	sectionFunction byte = 3
	sectionMemory   byte = 5
	sectionExport   byte = 7
	sectionCode     byte = 10
	sectionData     byte = 11
)

// ValType is a core value type.
type ValType byte

const (
	I32 ValType = 0x7f
	I64 ValType = 0x7e
	F32 ValType = 0x7d
	F64 ValType = 0x7c
)

// Kind is an import/export descriptor kind.
type Kind byte

const (
	KindFunc   Kind = 0x00
	KindMemory Kind = 0x02
)

const funcTypeByte = 0x60

// FuncType is a function signature.
type FuncType struct {
	Params  []ValType
	Results []ValType
}

// Limits describes a memory in 64KiB pages. Max is only encoded when HasMax is set.
type Limits struct {
	Min    uint32
	Max    uint32
	HasMax bool
}

// Import is a function import (Kind == KindFunc, Type set) or a memory
// import (Kind == KindMemory, Memory set).
type Import struct {
	Module string
	Name   string
	Kind   Kind
	Type   uint32
	Memory Limits
}

// Export names an entity of the module. Index is in the kind's index space,
// which for functions starts with the imported ones.
type Export struct {
	Name  string
	Kind  Kind
	Index uint32
}

// Func is a defined function. Body holds the instructions without the
// terminating end opcode.
type Func struct {
	Type   uint32
	Locals []ValType
	Body   []byte
}

// Data is an active data segment for memory 0.
type Data struct {
	Offset int32
	Bytes  []byte
}

// Module is the in-memory form of a core module.
type Module struct {
	Types    []FuncType
	Imports  []Import
	Funcs    []Func
	Memories []Limits
	Exports  []Export
	Data     []Data
}

// Encode returns the binary encoding of m.
func (m *Module) Encode() []byte {
	out := make([]byte, 0, 256)
	out = append(out, magic...)
	out = append(out, version...)

	if len(m.Types) > 0 {
		sec := AppendU32(nil, uint32(len(m.Types)))
		for _, ft := range m.Types {
			sec = append(sec, funcTypeByte)
			sec = appendValTypes(sec, ft.Params)
			sec = appendValTypes(sec, ft.Results)
		}
		out = appendSection(out, sectionType, sec)
	}

	if len(m.Imports) > 0 {
		sec := AppendU32(nil, uint32(len(m.Imports)))
		for _, imp := range m.Imports {
			sec = appendName(sec, imp.Module)
			sec = appendName(sec, imp.Name)
			sec = append(sec, byte(imp.Kind))
			switch imp.Kind {
			case KindFunc:
				sec = AppendU32(sec, imp.Type)
			case KindMemory:
				sec = appendLimits(sec, imp.Memory)
			}
		}
		out = appendSection(out, sectionImport, sec)
	}

	if len(m.Funcs) > 0 {
		sec := AppendU32(nil, uint32(len(m.Funcs)))
		for _, f := range m.Funcs {
			sec = AppendU32(sec, f.Type)
		}
		out = appendSection(out, sectionFunction, sec)
	}

	if len(m.Memories) > 0 {
		sec := AppendU32(nil, uint32(len(m.Memories)))
		for _, l := range m.Memories {
			sec = appendLimits(sec, l)
		}
		out = appendSection(out, sectionMemory, sec)
	}

	if len(m.Exports) > 0 {
		sec := AppendU32(nil, uint32(len(m.Exports)))
		for _, exp := range m.Exports {
			sec = appendName(sec, exp.Name)
			sec = append(sec, byte(exp.Kind))
			sec = AppendU32(sec, exp.Index)
		}
		out = appendSection(out, sectionExport, sec)
	}

	if len(m.Funcs) > 0 {
		sec := AppendU32(nil, uint32(len(m.Funcs)))
		for _, f := range m.Funcs {
			body := appendLocals(nil, f.Locals)
			body = append(body, f.Body...)
			body = append(body, opEnd)
			sec = AppendU32(sec, uint32(len(body)))
			sec = append(sec, body...)
		}
		out = appendSection(out, sectionCode, sec)
	}

	if len(m.Data) > 0 {
		sec := AppendU32(nil, uint32(len(m.Data)))
		for _, d := range m.Data {
			sec = append(sec, 0x00) // active, memory 0
			sec = append(sec, opI32Const)
			sec = AppendS32(sec, d.Offset)
			sec = append(sec, opEnd)
			sec = AppendU32(sec, uint32(len(d.Bytes)))
			sec = append(sec, d.Bytes...)
		}
		out = appendSection(out, sectionData, sec)
	}

	return out
}

func appendSection(dst []byte, id byte, content []byte) []byte {
	dst = append(dst, id)
	dst = AppendU32(dst, uint32(len(content)))
	return append(dst, content...)
}

func appendValTypes(dst []byte, types []ValType) []byte {
	dst = AppendU32(dst, uint32(len(types)))
	for _, t := range types {
		dst = append(dst, byte(t))
	}
	return dst
}

func appendLimits(dst []byte, l Limits) []byte {
	if l.HasMax {
		dst = append(dst, 0x01)
		dst = AppendU32(dst, l.Min)
		return AppendU32(dst, l.Max)
	}
	dst = append(dst, 0x00)
	return AppendU32(dst, l.Min)
}

// appendLocals groups consecutive locals of the same type.
func appendLocals(dst []byte, locals []ValType) []byte {
	type group struct {
		n int
		t ValType
	}
	var groups []group
	for _, t := range locals {
		if len(groups) > 0 && groups[len(groups)-1].t == t {
			groups[len(groups)-1].n++
			continue
		}
		groups = append(groups, group{n: 1, t: t})
	}
	dst = AppendU32(dst, uint32(len(groups)))
	for _, g := range groups {
		dst = AppendU32(dst, uint32(g.n))
		dst = append(dst, byte(g.t))
	}
	return dst
}

// MemoryModule returns a module that defines a single memory and exports it
// under name.
func MemoryModule(name string, limits Limits) []byte {
	m := &Module{
		Memories: []Limits{limits},
		Exports:  []Export{{Name: name, Kind: KindMemory, Index: 0}},
	}
	return m.Encode()
}
