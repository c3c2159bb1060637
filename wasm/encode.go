package wasm

import (
	"sort"

	"github.com/wippyai/wasm-tailcall/wasm/internal/binary"
)

// Encode serializes the module. Decoded modules keep their section layout,
// so a module that was not modified encodes to its original bytes.
// Modules built in code (no Sections) are emitted in canonical order with
// a name section derived from FuncNames.
func (m *Module) Encode() []byte {
	w := binary.NewWriter()
	w.WriteU32LE(Magic)
	w.WriteU32LE(Version)

	sections := m.Sections
	if sections == nil {
		sections = m.canonicalLayout()
	}
	for _, s := range sections {
		switch s.ID {
		case SectionCustom:
			if s.Data == nil && s.Name == "name" {
				w.Section(SectionCustom, m.encodeNames)
				continue
			}
			w.Section(SectionCustom, func(sw *binary.Writer) {
				sw.WriteName(s.Name)
				sw.WriteBytes(s.Data)
			})
		case SectionType:
			w.Section(s.ID, m.encodeTypes)
		case SectionImport:
			w.Section(s.ID, m.encodeImports)
		case SectionFunction:
			w.Section(s.ID, m.encodeFunctions)
		case SectionExport:
			w.Section(s.ID, m.encodeExports)
		case SectionCode:
			w.Section(s.ID, m.encodeCode)
		default:
			w.Section(s.ID, func(sw *binary.Writer) { sw.WriteBytes(s.Data) })
		}
	}
	return w.Bytes()
}

func (m *Module) canonicalLayout() []Section {
	var out []Section
	if len(m.Types) > 0 {
		out = append(out, Section{ID: SectionType})
	}
	if len(m.Imports) > 0 {
		out = append(out, Section{ID: SectionImport})
	}
	if len(m.Funcs) > 0 {
		out = append(out, Section{ID: SectionFunction})
	}
	if len(m.Exports) > 0 {
		out = append(out, Section{ID: SectionExport})
	}
	if len(m.Code) > 0 {
		out = append(out, Section{ID: SectionCode})
	}
	if len(m.FuncNames) > 0 {
		out = append(out, Section{ID: SectionCustom, Name: "name"})
	}
	return out
}

func writeValTypes(w *binary.Writer, types []ValType) {
	w.WriteU32(uint32(len(types)))
	for _, t := range types {
		w.Byte(byte(t))
	}
}

func (m *Module) encodeTypes(w *binary.Writer) {
	w.WriteU32(uint32(len(m.Types)))
	for _, t := range m.Types {
		w.Byte(FuncTypeByte)
		writeValTypes(w, t.Params)
		writeValTypes(w, t.Results)
	}
}

func (m *Module) encodeImports(w *binary.Writer) {
	w.WriteU32(uint32(len(m.Imports)))
	for _, imp := range m.Imports {
		w.WriteName(imp.Module)
		w.WriteName(imp.Name)
		w.Byte(imp.Kind)
		if imp.Kind == KindFunc {
			w.WriteU32(imp.TypeIdx)
		} else {
			w.WriteBytes(imp.Desc)
		}
	}
}

func (m *Module) encodeFunctions(w *binary.Writer) {
	w.WriteU32(uint32(len(m.Funcs)))
	for _, t := range m.Funcs {
		w.WriteU32(t)
	}
}

func (m *Module) encodeExports(w *binary.Writer) {
	w.WriteU32(uint32(len(m.Exports)))
	for _, exp := range m.Exports {
		w.WriteName(exp.Name)
		w.Byte(exp.Kind)
		w.WriteU32(exp.Idx)
	}
}

func (m *Module) encodeCode(w *binary.Writer) {
	w.WriteU32(uint32(len(m.Code)))
	for _, body := range m.Code {
		entry := EncodeFuncBody(body)
		w.WriteU32(uint32(len(entry)))
		w.WriteBytes(entry)
	}
}

// EncodeFuncBody encodes a code section entry without its size prefix.
func EncodeFuncBody(body FuncBody) []byte {
	w := binary.NewWriter()
	w.WriteU32(uint32(len(body.Locals)))
	for _, l := range body.Locals {
		w.WriteU32(l.Count)
		w.Byte(byte(l.ValType))
	}
	w.WriteBytes(body.Code)
	return w.Bytes()
}

func (m *Module) encodeNames(w *binary.Writer) {
	w.WriteName("name")
	idxs := make([]uint32, 0, len(m.FuncNames))
	for idx := range m.FuncNames {
		idxs = append(idxs, idx)
	}
	sort.Slice(idxs, func(i, j int) bool { return idxs[i] < idxs[j] })

	w.Section(NameSubsectionFunctions, func(sw *binary.Writer) {
		sw.WriteU32(uint32(len(idxs)))
		for _, idx := range idxs {
			sw.WriteU32(idx)
			sw.WriteName(m.FuncNames[idx])
		}
	})
}
