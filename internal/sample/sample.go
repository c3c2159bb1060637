// Package sample builds small modules whose functions exercise the
// tail-call rewriter: an accumulator sum in the staged shape produced by
// compilers that route every result through a local and a shared exit
// block, variants with several exits or an extra instruction after the
// call, and a function that calls a different function.
//
// Every sample function has the signature (param i64 i64) (result i64) and
// declares one i64 local (slot 2) that holds the staged result.
package sample

import (
	"github.com/wippyai/wasm-tailcall/wasm"
)

// Function names used by the sample modules.
const (
	SumName        = "sum"
	MultiExitName  = "multi_exit"
	DisallowedName = "disallowed"
	AddName        = "add"
	OuterName      = "outer"
	BareName       = "bare"
)

const (
	slotN   = 0
	slotAcc = 1
	slotRet = 2
)

// SumType is the signature of every sample function.
var SumType = wasm.FuncType{
	Params:  []wasm.ValType{wasm.ValI64, wasm.ValI64},
	Results: []wasm.ValType{wasm.ValI64},
}

// StagedLocals declares the staging local.
var StagedLocals = []wasm.LocalEntry{{Count: 1, ValType: wasm.ValI64}}

// Expected returns sum(n, acc) computed directly.
func Expected(n, acc uint64) uint64 {
	return n*(n+1)/2 + acc
}

func op(code byte) wasm.Instruction { return wasm.Instruction{Opcode: code} }

func get(slot uint32) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpLocalGet, Imm: wasm.LocalImm{LocalIdx: slot}}
}

func set(slot uint32) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpLocalSet, Imm: wasm.LocalImm{LocalIdx: slot}}
}

func i64(v int64) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpI64Const, Imm: wasm.I64Imm{Value: v}}
}

func br(depth uint32) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpBr, Imm: wasm.BranchImm{LabelIdx: depth}}
}

func block(code byte) wasm.Instruction {
	return wasm.Instruction{Opcode: code, Imm: wasm.BlockImm{Type: wasm.BlockTypeVoid}}
}

func call(fn uint32) wasm.Instruction {
	return wasm.Instruction{Opcode: wasm.OpCall, Imm: wasm.CallImm{FuncIdx: fn}}
}

// recurse pushes n-1 and n+acc.
func recurse() []wasm.Instruction {
	return []wasm.Instruction{
		get(slotN), i64(1), op(wasm.OpI64Sub),
		get(slotN), get(slotAcc), op(wasm.OpI64Add),
	}
}

func concat(parts ...[]wasm.Instruction) []wasm.Instruction {
	var out []wasm.Instruction
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// SumBody returns the staged accumulator sum:
//
//	block
//	  if n < 1 { ret = acc; br exit }
//	  call self(n-1, n+acc)
//	  ret = result; br exit
//	end
//	ret
func SumBody(self uint32) []wasm.Instruction {
	return concat(
		[]wasm.Instruction{
			block(wasm.OpBlock),
			get(slotN), i64(1), op(wasm.OpI64LtU),
			block(wasm.OpIf),
			get(slotAcc), set(slotRet), br(1),
			op(wasm.OpEnd),
		},
		recurse(),
		[]wasm.Instruction{
			call(self), set(slotRet), br(0),
			op(wasm.OpEnd),
			get(slotRet),
			op(wasm.OpEnd),
		},
	)
}

// MultiExitBody is SumBody with an additional early exit for n == 1.
func MultiExitBody(self uint32) []wasm.Instruction {
	return concat(
		[]wasm.Instruction{
			block(wasm.OpBlock),
			get(slotN), i64(1), op(wasm.OpI64LtU),
			block(wasm.OpIf),
			get(slotAcc), set(slotRet), br(1),
			op(wasm.OpEnd),
			get(slotN), i64(1), op(wasm.OpI64Eq),
			block(wasm.OpIf),
			get(slotAcc), i64(1), op(wasm.OpI64Add), set(slotRet), br(1),
			op(wasm.OpEnd),
		},
		recurse(),
		[]wasm.Instruction{
			call(self), set(slotRet), br(0),
			op(wasm.OpEnd),
			get(slotRet),
			op(wasm.OpEnd),
		},
	)
}

// DisallowedBody adds zero to the recursive result before staging it, so
// the call is not in tail position.
func DisallowedBody(self uint32) []wasm.Instruction {
	return concat(
		[]wasm.Instruction{
			block(wasm.OpBlock),
			get(slotN), i64(1), op(wasm.OpI64LtU),
			block(wasm.OpIf),
			get(slotAcc), set(slotRet), br(1),
			op(wasm.OpEnd),
		},
		recurse(),
		[]wasm.Instruction{
			call(self), i64(0), op(wasm.OpI64Add), set(slotRet), br(0),
			op(wasm.OpEnd),
			get(slotRet),
			op(wasm.OpEnd),
		},
	)
}

// BareBody returns the recursive result directly without staging it.
func BareBody(self uint32) []wasm.Instruction {
	return concat(
		[]wasm.Instruction{
			get(slotN), i64(1), op(wasm.OpI64LtU),
			block(wasm.OpIf),
			get(slotAcc), op(wasm.OpReturn),
			op(wasm.OpEnd),
		},
		recurse(),
		[]wasm.Instruction{call(self), op(wasm.OpReturn), op(wasm.OpEnd)},
	)
}

// AddBody returns n + acc.
func AddBody() []wasm.Instruction {
	return []wasm.Instruction{get(slotN), get(slotAcc), op(wasm.OpI64Add), op(wasm.OpEnd)}
}

// OuterBody stages the result of calling callee(n, acc).
func OuterBody(callee uint32) []wasm.Instruction {
	return []wasm.Instruction{
		block(wasm.OpBlock),
		get(slotN), get(slotAcc),
		call(callee), set(slotRet), br(0),
		op(wasm.OpEnd),
		get(slotRet),
		op(wasm.OpEnd),
	}
}

// Func is one function of a sample module.
type Func struct {
	Name string
	Code []wasm.Instruction
}

// Module assembles exported functions of type SumType with one staging
// local each. Function i gets index i.
func Module(funcs ...Func) *wasm.Module {
	m := &wasm.Module{
		Types:     []wasm.FuncType{SumType},
		FuncNames: make(map[uint32]string, len(funcs)),
	}
	for i, f := range funcs {
		code, err := wasm.EncodeInstructions(f.Code)
		if err != nil {
			panic(err)
		}
		idx := uint32(i)
		m.Funcs = append(m.Funcs, 0)
		m.Code = append(m.Code, wasm.FuncBody{Locals: StagedLocals, Code: code})
		m.Exports = append(m.Exports, wasm.Export{Name: f.Name, Kind: wasm.KindFunc, Idx: idx})
		m.FuncNames[idx] = f.Name
	}
	return m
}

// Sum returns a module exporting the staged sum.
func Sum() []byte {
	return Module(Func{SumName, SumBody(0)}).Encode()
}

// MultiExit returns a module exporting the multi-exit sum.
func MultiExit() []byte {
	return Module(Func{MultiExitName, MultiExitBody(0)}).Encode()
}

// Disallowed returns a module whose recursive call is not in tail position.
func Disallowed() []byte {
	return Module(Func{DisallowedName, DisallowedBody(0)}).Encode()
}

// NonSelf returns a module where outer stages the result of add.
func NonSelf() []byte {
	return Module(Func{AddName, AddBody()}, Func{OuterName, OuterBody(0)}).Encode()
}

// Bare returns a module exporting a sum that returns its recursive result
// without staging it.
func Bare() []byte {
	return Module(Func{BareName, BareBody(0)}).Encode()
}

// All returns every sample function in one module, indexed in the order
// sum, multi_exit, disallowed, add, outer.
func All() []byte {
	return Module(
		Func{SumName, SumBody(0)},
		Func{MultiExitName, MultiExitBody(1)},
		Func{DisallowedName, DisallowedBody(2)},
		Func{AddName, AddBody()},
		Func{OuterName, OuterBody(3)},
	).Encode()
}
