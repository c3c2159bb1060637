package wasm

import (
	"fmt"

	"github.com/wippyai/wasm-tailcall/wasm/internal/binary"
)

// Instruction is a decoded instruction. Imm holds one of the *Imm types
// below, or nil for instructions without immediates.
type Instruction struct {
	Imm    any
	Opcode byte
}

// BlockImm holds the block type of block, loop and if.
// Negative values are value-type shorthands, non-negative values are type indices.
type BlockImm struct {
	Type int32
}

// BranchImm holds the relative label depth of br and br_if.
type BranchImm struct {
	LabelIdx uint32
}

// BrTableImm holds the label table of br_table.
type BrTableImm struct {
	Labels  []uint32
	Default uint32
}

// CallImm holds the callee of call and return_call.
type CallImm struct {
	FuncIdx uint32
}

// CallIndirectImm holds the signature and table of call_indirect and
// return_call_indirect.
type CallIndirectImm struct {
	TypeIdx  uint32
	TableIdx uint32
}

// LocalImm holds the slot of local.get, local.set and local.tee.
type LocalImm struct {
	LocalIdx uint32
}

// GlobalImm holds the index of global.get and global.set.
type GlobalImm struct {
	GlobalIdx uint32
}

// TableImm holds the table of table.get and table.set.
type TableImm struct {
	TableIdx uint32
}

// MemoryImm is the memarg of loads and stores.
type MemoryImm struct {
	Offset uint64
	Align  uint32
	MemIdx uint32
}

// MemoryIdxImm holds the memory of memory.size and memory.grow.
type MemoryIdxImm struct {
	MemIdx uint32
}

// I32Imm is an i32.const operand.
type I32Imm struct{ Value int32 }

// I64Imm is an i64.const operand.
type I64Imm struct{ Value int64 }

// F32Imm is an f32.const operand kept as raw bits.
type F32Imm struct{ Bits uint32 }

// F64Imm is an f64.const operand kept as raw bits.
type F64Imm struct{ Bits uint64 }

// MiscImm holds the sub-opcode and index operands of 0xFC instructions.
type MiscImm struct {
	Operands  []uint32
	SubOpcode uint32
}

// RefNullImm holds the heap type of ref.null.
type RefNullImm struct {
	HeapType int64
}

// RefFuncImm holds the function of ref.func.
type RefFuncImm struct {
	FuncIdx uint32
}

// SelectTypeImm holds the result types of a typed select.
type SelectTypeImm struct {
	Types []ValType
}

// CallTarget returns the direct callee of call and return_call.
func (i Instruction) CallTarget() (uint32, bool) {
	if i.Opcode != OpCall && i.Opcode != OpReturnCall {
		return 0, false
	}
	imm, ok := i.Imm.(CallImm)
	return imm.FuncIdx, ok
}

// miscOperandCount is the number of u32 operands after each 0xFC sub-opcode.
func miscOperandCount(sub uint32) (int, bool) {
	switch {
	case sub <= MiscI64TruncSatF64U:
		return 0, true
	case sub == MiscMemoryInit, sub == MiscMemoryCopy, sub == MiscTableInit, sub == MiscTableCopy:
		return 2, true
	case sub <= MiscTableFill:
		return 1, true
	}
	return 0, false
}

func isMemoryAccess(op byte) bool { return op >= OpI32Load && op <= OpI64Store32 }

func isPlainNumeric(op byte) bool { return op >= OpI32Eqz && op <= OpI64Extend32S }

// DecodeInstructions decodes an instruction sequence. Unknown opcodes are
// reported as errors rather than skipped.
func DecodeInstructions(code []byte) ([]Instruction, error) {
	r := binary.NewReader(code)
	instrs := make([]Instruction, 0, len(code)/2)
	for r.Len() > 0 {
		at := r.Position()
		instr, err := decodeInstruction(r)
		if err != nil {
			return nil, fmt.Errorf("instruction at offset %d: %w", at, err)
		}
		instrs = append(instrs, instr)
	}
	return instrs, nil
}

func decodeInstruction(r *binary.Reader) (Instruction, error) {
	op, err := r.ReadByte()
	if err != nil {
		return Instruction{}, err
	}
	instr := Instruction{Opcode: op}

	switch {
	case op == OpBlock || op == OpLoop || op == OpIf:
		bt, err := r.ReadS33()
		if err != nil {
			return instr, err
		}
		instr.Imm = BlockImm{Type: int32(bt)}

	case op == OpBr || op == OpBrIf:
		l, err := r.ReadU32()
		if err != nil {
			return instr, err
		}
		instr.Imm = BranchImm{LabelIdx: l}

	case op == OpBrTable:
		n, err := r.ReadU32()
		if err != nil {
			return instr, err
		}
		if int(n) > r.Len() {
			return instr, fmt.Errorf("br_table: %d labels exceed remaining input", n)
		}
		labels := make([]uint32, n)
		for i := range labels {
			if labels[i], err = r.ReadU32(); err != nil {
				return instr, err
			}
		}
		def, err := r.ReadU32()
		if err != nil {
			return instr, err
		}
		instr.Imm = BrTableImm{Labels: labels, Default: def}

	case op == OpCall || op == OpReturnCall || op == OpRefFunc:
		idx, err := r.ReadU32()
		if err != nil {
			return instr, err
		}
		if op == OpRefFunc {
			instr.Imm = RefFuncImm{FuncIdx: idx}
		} else {
			instr.Imm = CallImm{FuncIdx: idx}
		}

	case op == OpCallIndirect || op == OpReturnCallIndirect:
		typeIdx, err := r.ReadU32()
		if err != nil {
			return instr, err
		}
		tableIdx, err := r.ReadU32()
		if err != nil {
			return instr, err
		}
		instr.Imm = CallIndirectImm{TypeIdx: typeIdx, TableIdx: tableIdx}

	case op == OpLocalGet || op == OpLocalSet || op == OpLocalTee:
		idx, err := r.ReadU32()
		if err != nil {
			return instr, err
		}
		instr.Imm = LocalImm{LocalIdx: idx}

	case op == OpGlobalGet || op == OpGlobalSet:
		idx, err := r.ReadU32()
		if err != nil {
			return instr, err
		}
		instr.Imm = GlobalImm{GlobalIdx: idx}

	case op == OpTableGet || op == OpTableSet:
		idx, err := r.ReadU32()
		if err != nil {
			return instr, err
		}
		instr.Imm = TableImm{TableIdx: idx}

	case op == OpSelectType:
		n, err := r.ReadU32()
		if err != nil {
			return instr, err
		}
		if int(n) > r.Len() {
			return instr, fmt.Errorf("select: %d types exceed remaining input", n)
		}
		types := make([]ValType, n)
		for i := range types {
			b, err := r.ReadByte()
			if err != nil {
				return instr, err
			}
			types[i] = ValType(b)
		}
		instr.Imm = SelectTypeImm{Types: types}

	case isMemoryAccess(op):
		m, err := readMemArg(r)
		if err != nil {
			return instr, err
		}
		instr.Imm = m

	case op == OpMemorySize || op == OpMemoryGrow:
		idx, err := r.ReadU32()
		if err != nil {
			return instr, err
		}
		instr.Imm = MemoryIdxImm{MemIdx: idx}

	case op == OpI32Const:
		v, err := r.ReadS32()
		if err != nil {
			return instr, err
		}
		instr.Imm = I32Imm{Value: v}

	case op == OpI64Const:
		v, err := r.ReadS64()
		if err != nil {
			return instr, err
		}
		instr.Imm = I64Imm{Value: v}

	case op == OpF32Const:
		v, err := r.ReadU32LE()
		if err != nil {
			return instr, err
		}
		instr.Imm = F32Imm{Bits: v}

	case op == OpF64Const:
		v, err := r.ReadU64LE()
		if err != nil {
			return instr, err
		}
		instr.Imm = F64Imm{Bits: v}

	case op == OpRefNull:
		ht, err := r.ReadS33()
		if err != nil {
			return instr, err
		}
		instr.Imm = RefNullImm{HeapType: ht}

	case op == OpPrefixMisc:
		sub, err := r.ReadU32()
		if err != nil {
			return instr, err
		}
		n, ok := miscOperandCount(sub)
		if !ok {
			return instr, fmt.Errorf("unsupported 0xFC sub-opcode %d", sub)
		}
		imm := MiscImm{SubOpcode: sub}
		for i := 0; i < n; i++ {
			v, err := r.ReadU32()
			if err != nil {
				return instr, err
			}
			imm.Operands = append(imm.Operands, v)
		}
		instr.Imm = imm

	case op == OpUnreachable, op == OpNop, op == OpElse, op == OpEnd, op == OpReturn,
		op == OpDrop, op == OpSelect, op == OpRefIsNull, isPlainNumeric(op):
		// no immediates

	default:
		return instr, fmt.Errorf("unsupported opcode 0x%02x", op)
	}
	return instr, nil
}

func readMemArg(r *binary.Reader) (MemoryImm, error) {
	var m MemoryImm
	align, err := r.ReadU32()
	if err != nil {
		return m, err
	}
	if align&0x40 != 0 {
		align &^= 0x40
		if m.MemIdx, err = r.ReadU32(); err != nil {
			return m, err
		}
	}
	m.Align = align
	m.Offset, err = r.ReadU64()
	return m, err
}

// EncodeInstructions encodes an instruction sequence.
func EncodeInstructions(instrs []Instruction) ([]byte, error) {
	w := binary.NewWriter()
	for i, instr := range instrs {
		if err := encodeInstruction(w, instr); err != nil {
			return nil, fmt.Errorf("instruction %d (%s): %w", i, OpcodeName(instr), err)
		}
	}
	return w.Bytes(), nil
}

func encodeInstruction(w *binary.Writer, instr Instruction) error {
	w.Byte(instr.Opcode)
	switch imm := instr.Imm.(type) {
	case nil:
	case BlockImm:
		w.WriteS32(imm.Type)
	case BranchImm:
		w.WriteU32(imm.LabelIdx)
	case BrTableImm:
		w.WriteU32(uint32(len(imm.Labels)))
		for _, l := range imm.Labels {
			w.WriteU32(l)
		}
		w.WriteU32(imm.Default)
	case CallImm:
		w.WriteU32(imm.FuncIdx)
	case RefFuncImm:
		w.WriteU32(imm.FuncIdx)
	case CallIndirectImm:
		w.WriteU32(imm.TypeIdx)
		w.WriteU32(imm.TableIdx)
	case LocalImm:
		w.WriteU32(imm.LocalIdx)
	case GlobalImm:
		w.WriteU32(imm.GlobalIdx)
	case TableImm:
		w.WriteU32(imm.TableIdx)
	case SelectTypeImm:
		w.WriteU32(uint32(len(imm.Types)))
		for _, t := range imm.Types {
			w.Byte(byte(t))
		}
	case MemoryImm:
		if imm.MemIdx != 0 {
			w.WriteU32(imm.Align | 0x40)
			w.WriteU32(imm.MemIdx)
		} else {
			w.WriteU32(imm.Align)
		}
		w.WriteU64(imm.Offset)
	case MemoryIdxImm:
		w.WriteU32(imm.MemIdx)
	case I32Imm:
		w.WriteS32(imm.Value)
	case I64Imm:
		w.WriteS64(imm.Value)
	case F32Imm:
		w.WriteU32LE(imm.Bits)
	case F64Imm:
		w.WriteU64LE(imm.Bits)
	case RefNullImm:
		w.WriteS64(imm.HeapType)
	case MiscImm:
		w.WriteU32(imm.SubOpcode)
		for _, v := range imm.Operands {
			w.WriteU32(v)
		}
	default:
		return fmt.Errorf("unknown immediate type %T", imm)
	}
	return nil
}
