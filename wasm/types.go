package wasm

import (
	"fmt"
	"strings"
)

// ValType is a WebAssembly value type.
type ValType byte

// String returns the text-format name of the value type.
func (v ValType) String() string {
	switch v {
	case ValI32:
		return "i32"
	case ValI64:
		return "i64"
	case ValF32:
		return "f32"
	case ValF64:
		return "f64"
	case ValV128:
		return "v128"
	case ValFuncRef:
		return "funcref"
	case ValExtern:
		return "externref"
	default:
		return fmt.Sprintf("valtype(0x%02x)", byte(v))
	}
}

// FuncType is a function signature.
type FuncType struct {
	Params  []ValType
	Results []ValType
}

// Equal reports whether two signatures are identical.
func (t FuncType) Equal(o FuncType) bool {
	if len(t.Params) != len(o.Params) || len(t.Results) != len(o.Results) {
		return false
	}
	for i := range t.Params {
		if t.Params[i] != o.Params[i] {
			return false
		}
	}
	for i := range t.Results {
		if t.Results[i] != o.Results[i] {
			return false
		}
	}
	return true
}

// String renders the signature in text format, e.g. "(param i64 i64) (result i64)".
func (t FuncType) String() string {
	var parts []string
	if len(t.Params) > 0 {
		parts = append(parts, "(param "+joinTypes(t.Params)+")")
	}
	if len(t.Results) > 0 {
		parts = append(parts, "(result "+joinTypes(t.Results)+")")
	}
	return strings.Join(parts, " ")
}

func joinTypes(types []ValType) string {
	names := make([]string, len(types))
	for i, v := range types {
		names[i] = v.String()
	}
	return strings.Join(names, " ")
}

// Import is a module import. For function imports TypeIdx holds the
// signature; other kinds keep their descriptor bytes verbatim.
type Import struct {
	Module  string
	Name    string
	Kind    byte
	TypeIdx uint32
	Desc    []byte
}

// Export is a module export.
type Export struct {
	Name string
	Kind byte
	Idx  uint32
}

// LocalEntry declares Count locals of type ValType.
type LocalEntry struct {
	Count   uint32
	ValType ValType
}

// FuncBody is a code section entry. Code holds the encoded instruction
// sequence including the final end.
type FuncBody struct {
	Locals []LocalEntry
	Code   []byte
}

// Section is a section this package does not interpret. It is re-emitted
// unchanged at its original position.
type Section struct {
	ID   byte
	Name string // custom sections only
	Data []byte
}

// Module is a decoded WebAssembly module. Only the sections needed to
// locate and rewrite function bodies are decoded; everything else is
// carried through Sections.
type Module struct {
	Types     []FuncType
	Imports   []Import
	Funcs     []uint32 // type index of each defined function
	Exports   []Export
	Code      []FuncBody
	FuncNames map[uint32]string

	// Sections holds every section in file order. Decoded sections appear as
	// placeholders (nil Data) and are re-encoded from the typed fields.
	Sections []Section
}

// NumImportedFuncs returns the number of imported functions, which precede
// defined functions in the function index space.
func (m *Module) NumImportedFuncs() uint32 {
	var n uint32
	for _, imp := range m.Imports {
		if imp.Kind == KindFunc {
			n++
		}
	}
	return n
}

// FuncTypeOf returns the signature of the function at funcIdx in the
// function index space.
func (m *Module) FuncTypeOf(funcIdx uint32) (FuncType, error) {
	var typeIdx uint32
	imported := m.NumImportedFuncs()
	if funcIdx < imported {
		var seen uint32
		for _, imp := range m.Imports {
			if imp.Kind != KindFunc {
				continue
			}
			if seen == funcIdx {
				typeIdx = imp.TypeIdx
				break
			}
			seen++
		}
	} else {
		local := funcIdx - imported
		if int(local) >= len(m.Funcs) {
			return FuncType{}, fmt.Errorf("function index %d out of range", funcIdx)
		}
		typeIdx = m.Funcs[local]
	}
	if int(typeIdx) >= len(m.Types) {
		return FuncType{}, fmt.Errorf("type index %d out of range", typeIdx)
	}
	return m.Types[typeIdx], nil
}

// FuncName returns the debug name of a function, falling back to the
// first export name and then to "$<index>".
func (m *Module) FuncName(funcIdx uint32) string {
	if name, ok := m.FuncNames[funcIdx]; ok {
		return name
	}
	for _, exp := range m.Exports {
		if exp.Kind == KindFunc && exp.Idx == funcIdx {
			return exp.Name
		}
	}
	return fmt.Sprintf("$%d", funcIdx)
}

// FindFunc resolves a function by export name or debug name.
func (m *Module) FindFunc(name string) (uint32, bool) {
	for _, exp := range m.Exports {
		if exp.Kind == KindFunc && exp.Name == name {
			return exp.Idx, true
		}
	}
	found, ok := uint32(0), false
	for idx, n := range m.FuncNames {
		if n == name && (!ok || idx < found) {
			found, ok = idx, true
		}
	}
	return found, ok
}

// LocalTypes expands the compressed local declarations of a body.
func (b FuncBody) LocalTypes() []ValType {
	var out []ValType
	for _, e := range b.Locals {
		for i := uint32(0); i < e.Count; i++ {
			out = append(out, e.ValType)
		}
	}
	return out
}
