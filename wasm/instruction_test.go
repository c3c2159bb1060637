package wasm_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/wasm-tailcall/wasm"
)

func TestInstructionRoundTrip(t *testing.T) {
	instrs := []wasm.Instruction{
		{Opcode: wasm.OpBlock, Imm: wasm.BlockImm{Type: wasm.BlockTypeVoid}},
		{Opcode: wasm.OpLoop, Imm: wasm.BlockImm{Type: wasm.BlockTypeI64}},
		{Opcode: wasm.OpLocalGet, Imm: wasm.LocalImm{LocalIdx: 300}},
		{Opcode: wasm.OpI64Const, Imm: wasm.I64Imm{Value: -1}},
		{Opcode: wasm.OpI64LtU},
		{Opcode: wasm.OpBrIf, Imm: wasm.BranchImm{LabelIdx: 0}},
		{Opcode: wasm.OpBrTable, Imm: wasm.BrTableImm{Labels: []uint32{0, 1}, Default: 1}},
		{Opcode: wasm.OpEnd},
		{Opcode: wasm.OpF64Const, Imm: wasm.F64Imm{Bits: math.Float64bits(1.5)}},
		{Opcode: wasm.OpF32Const, Imm: wasm.F32Imm{Bits: 0x7FC00001}},
		{Opcode: wasm.OpI32Const, Imm: wasm.I32Imm{Value: math.MinInt32}},
		{Opcode: wasm.OpI64Load, Imm: wasm.MemoryImm{Align: 3, Offset: 16}},
		{Opcode: 0x36, Imm: wasm.MemoryImm{Align: 2, MemIdx: 1}},
		{Opcode: wasm.OpMemoryGrow, Imm: wasm.MemoryIdxImm{}},
		{Opcode: wasm.OpPrefixMisc, Imm: wasm.MiscImm{SubOpcode: wasm.MiscMemoryCopy, Operands: []uint32{0, 0}}},
		{Opcode: wasm.OpPrefixMisc, Imm: wasm.MiscImm{SubOpcode: 2}},
		{Opcode: wasm.OpRefNull, Imm: wasm.RefNullImm{HeapType: -16}},
		{Opcode: wasm.OpRefFunc, Imm: wasm.RefFuncImm{FuncIdx: 3}},
		{Opcode: wasm.OpSelectType, Imm: wasm.SelectTypeImm{Types: []wasm.ValType{wasm.ValI64}}},
		{Opcode: wasm.OpCallIndirect, Imm: wasm.CallIndirectImm{TypeIdx: 2, TableIdx: 0}},
		{Opcode: wasm.OpReturnCall, Imm: wasm.CallImm{FuncIdx: 5}},
		{Opcode: wasm.OpReturnCallIndirect, Imm: wasm.CallIndirectImm{TypeIdx: 1}},
		{Opcode: wasm.OpEnd},
	}

	code, err := wasm.EncodeInstructions(instrs)
	require.NoError(t, err)

	decoded, err := wasm.DecodeInstructions(code)
	require.NoError(t, err)
	assert.Equal(t, instrs, decoded)
}

func TestDecodeUnsupportedOpcode(t *testing.T) {
	// 0xFD is the SIMD prefix
	_, err := wasm.DecodeInstructions([]byte{0xFD, 0x00, 0x0B})
	assert.ErrorContains(t, err, "unsupported opcode 0xfd")

	_, err = wasm.DecodeInstructions([]byte{wasm.OpPrefixMisc, 0x20})
	assert.ErrorContains(t, err, "sub-opcode")
}

func TestDecodeTruncatedImmediate(t *testing.T) {
	_, err := wasm.DecodeInstructions([]byte{wasm.OpCall})
	assert.Error(t, err)
}

func TestCallTarget(t *testing.T) {
	idx, ok := wasm.Instruction{Opcode: wasm.OpCall, Imm: wasm.CallImm{FuncIdx: 4}}.CallTarget()
	assert.True(t, ok)
	assert.Equal(t, uint32(4), idx)

	idx, ok = wasm.Instruction{Opcode: wasm.OpReturnCall, Imm: wasm.CallImm{FuncIdx: 2}}.CallTarget()
	assert.True(t, ok)
	assert.Equal(t, uint32(2), idx)

	_, ok = wasm.Instruction{Opcode: wasm.OpCallIndirect, Imm: wasm.CallIndirectImm{}}.CallTarget()
	assert.False(t, ok)
}

func TestFormatInstruction(t *testing.T) {
	cases := []struct {
		instr wasm.Instruction
		want  string
	}{
		{wasm.Instruction{Opcode: wasm.OpLocalGet, Imm: wasm.LocalImm{LocalIdx: 2}}, "local.get 2"},
		{wasm.Instruction{Opcode: wasm.OpBlock, Imm: wasm.BlockImm{Type: wasm.BlockTypeVoid}}, "block"},
		{wasm.Instruction{Opcode: wasm.OpIf, Imm: wasm.BlockImm{Type: wasm.BlockTypeI64}}, "if (result i64)"},
		{wasm.Instruction{Opcode: wasm.OpBrTable, Imm: wasm.BrTableImm{Labels: []uint32{0, 2}, Default: 1}}, "br_table 0 2 1"},
		{wasm.Instruction{Opcode: wasm.OpReturnCall, Imm: wasm.CallImm{FuncIdx: 0}}, "return_call 0"},
		{wasm.Instruction{Opcode: wasm.OpI64Sub}, "i64.sub"},
		{wasm.Instruction{Opcode: wasm.OpI64Const, Imm: wasm.I64Imm{Value: -7}}, "i64.const -7"},
		{wasm.Instruction{Opcode: wasm.OpI64Load, Imm: wasm.MemoryImm{Align: 3, Offset: 8}}, "i64.load offset=8 align=8"},
		{wasm.Instruction{Opcode: wasm.OpPrefixMisc, Imm: wasm.MiscImm{SubOpcode: wasm.MiscMemoryFill, Operands: []uint32{0}}}, "memory.fill 0"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, wasm.FormatInstruction(tc.instr))
	}
}

func TestListingIndentsNesting(t *testing.T) {
	got := wasm.Listing([]wasm.Instruction{
		{Opcode: wasm.OpBlock, Imm: wasm.BlockImm{Type: wasm.BlockTypeVoid}},
		{Opcode: wasm.OpNop},
		{Opcode: wasm.OpEnd},
		{Opcode: wasm.OpUnreachable},
		{Opcode: wasm.OpEnd},
	})
	assert.Equal(t, "  block\n    nop\n  end\n  unreachable\nend\n", got)
}
