package wasm

import (
	"errors"
	"fmt"

	"github.com/wippyai/wasm-tailcall/wasm/internal/binary"
)

// Parsing errors returned by ParseModule.
var (
	ErrInvalidMagic   = errors.New("invalid wasm magic number")
	ErrInvalidVersion = errors.New("invalid wasm version")
	ErrUnsupported    = errors.New("unsupported encoding")
)

// ParseModule decodes a binary module. Sections other than type, import,
// function, export, code and the function-name subsection of the "name"
// custom section are kept verbatim.
func ParseModule(data []byte) (*Module, error) {
	r := binary.NewReader(data)

	magic, err := r.ReadU32LE()
	if err != nil {
		return nil, r.WrapError("header", err)
	}
	if magic != Magic {
		return nil, ErrInvalidMagic
	}
	version, err := r.ReadU32LE()
	if err != nil {
		return nil, r.WrapError("header", err)
	}
	if version != Version {
		return nil, ErrInvalidVersion
	}

	m := &Module{}
	var lastOrder int
	for r.Len() > 0 {
		id, err := r.ReadByte()
		if err != nil {
			return nil, r.WrapError("section header", err)
		}
		if id != SectionCustom {
			order := sectionOrder(id)
			if order == 0 {
				return nil, fmt.Errorf("unknown section id 0x%02x", id)
			}
			if order <= lastOrder {
				return nil, fmt.Errorf("section %d appears out of order", id)
			}
			lastOrder = order
		}
		size, err := r.ReadU32()
		if err != nil {
			return nil, r.WrapError("section size", err)
		}
		payload, err := r.ReadBytes(int(size))
		if err != nil {
			return nil, r.WrapError("section data", err)
		}

		sr := binary.NewReader(payload)
		switch id {
		case SectionCustom:
			name, err := sr.ReadName()
			if err != nil {
				return nil, sr.WrapError("custom", err)
			}
			body := sr.ReadRemaining()
			if name == "name" {
				// A malformed name section is ignored, as engines do.
				if names, err := parseFuncNames(body); err == nil {
					m.FuncNames = names
				}
			}
			m.Sections = append(m.Sections, Section{ID: id, Name: name, Data: body})
			continue
		case SectionType:
			err = parseTypeSection(sr, m)
		case SectionImport:
			err = parseImportSection(sr, payload, m)
		case SectionFunction:
			err = parseFunctionSection(sr, m)
		case SectionExport:
			err = parseExportSection(sr, m)
		case SectionCode:
			err = parseCodeSection(sr, m)
		default:
			m.Sections = append(m.Sections, Section{ID: id, Data: payload})
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%s section: %w", sectionName(id), err)
		}
		if sr.Len() != 0 {
			return nil, fmt.Errorf("%s section: %d trailing bytes", sectionName(id), sr.Len())
		}
		m.Sections = append(m.Sections, Section{ID: id})
	}

	if len(m.Funcs) != len(m.Code) {
		return nil, fmt.Errorf("function and code section sizes differ: %d vs %d", len(m.Funcs), len(m.Code))
	}
	return m, nil
}

// sectionOrder returns the canonical position of a non-custom section.
// Tag and data count sections sit between their neighbours rather than at
// their numeric id.
func sectionOrder(id byte) int {
	switch id {
	case SectionType:
		return 1
	case SectionImport:
		return 2
	case SectionFunction:
		return 3
	case SectionTable:
		return 4
	case SectionMemory:
		return 5
	case SectionTag:
		return 6
	case SectionGlobal:
		return 7
	case SectionExport:
		return 8
	case SectionStart:
		return 9
	case SectionElement:
		return 10
	case SectionDataCount:
		return 11
	case SectionCode:
		return 12
	case SectionData:
		return 13
	}
	return 0
}

func sectionName(id byte) string {
	switch id {
	case SectionType:
		return "type"
	case SectionImport:
		return "import"
	case SectionFunction:
		return "function"
	case SectionExport:
		return "export"
	case SectionCode:
		return "code"
	}
	return fmt.Sprintf("section(%d)", id)
}

func readCount(r *binary.Reader) (uint32, error) {
	n, err := r.ReadU32()
	if err != nil {
		return 0, err
	}
	if int(n) > r.Len() {
		return 0, fmt.Errorf("vector length %d exceeds remaining %d bytes", n, r.Len())
	}
	return n, nil
}

func readValType(r *binary.Reader) (ValType, error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	switch v := ValType(b); v {
	case ValI32, ValI64, ValF32, ValF64, ValV128, ValFuncRef, ValExtern:
		return v, nil
	}
	return 0, fmt.Errorf("%w: value type 0x%02x", ErrUnsupported, b)
}

func readValTypes(r *binary.Reader) ([]ValType, error) {
	n, err := readCount(r)
	if err != nil {
		return nil, err
	}
	out := make([]ValType, n)
	for i := range out {
		if out[i], err = readValType(r); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func parseTypeSection(r *binary.Reader, m *Module) error {
	n, err := readCount(r)
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		form, err := r.ReadByte()
		if err != nil {
			return err
		}
		if form != FuncTypeByte {
			return fmt.Errorf("%w: type form 0x%02x", ErrUnsupported, form)
		}
		params, err := readValTypes(r)
		if err != nil {
			return err
		}
		results, err := readValTypes(r)
		if err != nil {
			return err
		}
		m.Types = append(m.Types, FuncType{Params: params, Results: results})
	}
	return nil
}

func parseImportSection(r *binary.Reader, payload []byte, m *Module) error {
	n, err := readCount(r)
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		var imp Import
		if imp.Module, err = r.ReadName(); err != nil {
			return err
		}
		if imp.Name, err = r.ReadName(); err != nil {
			return err
		}
		if imp.Kind, err = r.ReadByte(); err != nil {
			return err
		}
		start := r.Position()
		switch imp.Kind {
		case KindFunc:
			if imp.TypeIdx, err = r.ReadU32(); err != nil {
				return err
			}
		case KindTable:
			if _, err = readValType(r); err != nil {
				return err
			}
			err = skipLimits(r)
		case KindMemory:
			err = skipLimits(r)
		case KindGlobal:
			if _, err = readValType(r); err != nil {
				return err
			}
			_, err = r.ReadByte()
		case KindTag:
			if _, err = r.ReadByte(); err != nil {
				return err
			}
			_, err = r.ReadU32()
		default:
			return fmt.Errorf("import %s.%s: unknown kind %d", imp.Module, imp.Name, imp.Kind)
		}
		if err != nil {
			return fmt.Errorf("import %s.%s: %w", imp.Module, imp.Name, err)
		}
		imp.Desc = payload[start:r.Position()]
		m.Imports = append(m.Imports, imp)
	}
	return nil
}

func skipLimits(r *binary.Reader) error {
	flags, err := r.ReadByte()
	if err != nil {
		return err
	}
	if flags > 0x07 {
		return fmt.Errorf("%w: limits flags 0x%02x", ErrUnsupported, flags)
	}
	if _, err := r.ReadU64(); err != nil {
		return err
	}
	if flags&0x01 != 0 {
		_, err = r.ReadU64()
	}
	return err
}

func parseFunctionSection(r *binary.Reader, m *Module) error {
	n, err := readCount(r)
	if err != nil {
		return err
	}
	m.Funcs = make([]uint32, n)
	for i := range m.Funcs {
		if m.Funcs[i], err = r.ReadU32(); err != nil {
			return err
		}
	}
	return nil
}

func parseExportSection(r *binary.Reader, m *Module) error {
	n, err := readCount(r)
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		var exp Export
		if exp.Name, err = r.ReadName(); err != nil {
			return err
		}
		if exp.Kind, err = r.ReadByte(); err != nil {
			return err
		}
		if exp.Idx, err = r.ReadU32(); err != nil {
			return err
		}
		m.Exports = append(m.Exports, exp)
	}
	return nil
}

func parseCodeSection(r *binary.Reader, m *Module) error {
	n, err := readCount(r)
	if err != nil {
		return err
	}
	for i := uint32(0); i < n; i++ {
		size, err := r.ReadU32()
		if err != nil {
			return err
		}
		entry, err := r.ReadBytes(int(size))
		if err != nil {
			return fmt.Errorf("body %d: %w", i, err)
		}
		body, err := parseFuncBody(entry)
		if err != nil {
			return fmt.Errorf("body %d: %w", i, err)
		}
		m.Code = append(m.Code, body)
	}
	return nil
}

func parseFuncBody(entry []byte) (FuncBody, error) {
	r := binary.NewReader(entry)
	var body FuncBody
	groups, err := readCount(r)
	if err != nil {
		return body, err
	}
	var total uint64
	for i := uint32(0); i < groups; i++ {
		count, err := r.ReadU32()
		if err != nil {
			return body, err
		}
		vt, err := readValType(r)
		if err != nil {
			return body, err
		}
		total += uint64(count)
		if total > 50000 {
			return body, fmt.Errorf("too many locals: %d", total)
		}
		body.Locals = append(body.Locals, LocalEntry{Count: count, ValType: vt})
	}
	body.Code = r.ReadRemaining()
	if len(body.Code) == 0 || body.Code[len(body.Code)-1] != OpEnd {
		return body, errors.New("body does not end with end")
	}
	return body, nil
}

func parseFuncNames(data []byte) (map[uint32]string, error) {
	r := binary.NewReader(data)
	for r.Len() > 0 {
		id, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		size, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		sub, err := r.ReadBytes(int(size))
		if err != nil {
			return nil, err
		}
		if id != NameSubsectionFunctions {
			continue
		}
		sr := binary.NewReader(sub)
		n, err := readCount(sr)
		if err != nil {
			return nil, err
		}
		names := make(map[uint32]string, n)
		for i := uint32(0); i < n; i++ {
			idx, err := sr.ReadU32()
			if err != nil {
				return nil, err
			}
			name, err := sr.ReadName()
			if err != nil {
				return nil, err
			}
			names[idx] = name
		}
		return names, nil
	}
	return nil, nil
}
