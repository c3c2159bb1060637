package wasm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/wasm-tailcall/wasm"
)

// addModule returns a module with one exported function add(i64, i64) -> i64
// and an imported host function.
func addModule() *wasm.Module {
	code, err := wasm.EncodeInstructions([]wasm.Instruction{
		{Opcode: wasm.OpLocalGet, Imm: wasm.LocalImm{LocalIdx: 0}},
		{Opcode: wasm.OpLocalGet, Imm: wasm.LocalImm{LocalIdx: 1}},
		{Opcode: wasm.OpI64Add},
		{Opcode: wasm.OpEnd},
	})
	if err != nil {
		panic(err)
	}
	return &wasm.Module{
		Types: []wasm.FuncType{
			{Params: []wasm.ValType{wasm.ValI64, wasm.ValI64}, Results: []wasm.ValType{wasm.ValI64}},
			{Params: []wasm.ValType{wasm.ValI32}},
		},
		Imports:   []wasm.Import{{Module: "env", Name: "log", Kind: wasm.KindFunc, TypeIdx: 1}},
		Funcs:     []uint32{0},
		Exports:   []wasm.Export{{Name: "add", Kind: wasm.KindFunc, Idx: 1}},
		Code:      []wasm.FuncBody{{Code: code}},
		FuncNames: map[uint32]string{1: "$add"},
	}
}

func TestParseMinimalModule(t *testing.T) {
	m, err := wasm.ParseModule([]byte{0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00})
	require.NoError(t, err)
	assert.Empty(t, m.Code)
}

func TestParseHeaderErrors(t *testing.T) {
	_, err := wasm.ParseModule([]byte{0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00})
	assert.ErrorIs(t, err, wasm.ErrInvalidMagic)

	_, err = wasm.ParseModule([]byte{0x00, 0x61, 0x73, 0x6D, 0x02, 0x00, 0x00, 0x00})
	assert.ErrorIs(t, err, wasm.ErrInvalidVersion)

	_, err = wasm.ParseModule([]byte{0x00, 0x61, 0x73})
	assert.Error(t, err)
}

func TestEncodeParseRoundTrip(t *testing.T) {
	data := addModule().Encode()

	m, err := wasm.ParseModule(data)
	require.NoError(t, err)

	require.Len(t, m.Types, 2)
	assert.True(t, m.Types[0].Equal(wasm.FuncType{
		Params:  []wasm.ValType{wasm.ValI64, wasm.ValI64},
		Results: []wasm.ValType{wasm.ValI64},
	}))
	assert.Equal(t, uint32(1), m.NumImportedFuncs())
	assert.Equal(t, "$add", m.FuncName(1))
	assert.Equal(t, "$0", m.FuncName(0))

	idx, ok := m.FindFunc("add")
	require.True(t, ok)
	assert.Equal(t, uint32(1), idx)

	ft, err := m.FuncTypeOf(idx)
	require.NoError(t, err)
	assert.Equal(t, []wasm.ValType{wasm.ValI64}, ft.Results)

	_, err = m.FuncTypeOf(7)
	assert.Error(t, err)

	// Re-encoding a decoded module preserves its bytes.
	assert.Equal(t, data, m.Encode())
}

func TestUnknownSectionsPassThrough(t *testing.T) {
	data := addModule().Encode()
	// Append a custom section "meta" carrying three bytes.
	data = append(data, 0x00, 0x08, 0x04, 'm', 'e', 't', 'a', 1, 2, 3)

	m, err := wasm.ParseModule(data)
	require.NoError(t, err)

	last := m.Sections[len(m.Sections)-1]
	assert.Equal(t, "meta", last.Name)
	assert.Equal(t, []byte{1, 2, 3}, last.Data)
	assert.Equal(t, data, m.Encode())
}

func TestSectionOrderEnforced(t *testing.T) {
	// export section (7) followed by type section (1)
	data := []byte{0x00, 0x61, 0x73, 0x6D, 0x01, 0x00, 0x00, 0x00,
		0x07, 0x01, 0x00,
		0x01, 0x01, 0x00}
	_, err := wasm.ParseModule(data)
	assert.ErrorContains(t, err, "out of order")
}

func TestFunctionCodeMismatch(t *testing.T) {
	m := addModule()
	m.Funcs = append(m.Funcs, 0)
	_, err := wasm.ParseModule(m.Encode())
	assert.ErrorContains(t, err, "sizes differ")
}

func TestLocalTypes(t *testing.T) {
	body := wasm.FuncBody{Locals: []wasm.LocalEntry{
		{Count: 2, ValType: wasm.ValI32},
		{Count: 1, ValType: wasm.ValI64},
	}}
	assert.Equal(t, []wasm.ValType{wasm.ValI32, wasm.ValI32, wasm.ValI64}, body.LocalTypes())
}
