// Package stream models a function body as a doubly linked list of
// instructions whose branch operands are references to the constructs they
// target instead of relative label depths. Edits keep every reference
// valid; label depths are recomputed when the body is compacted back into
// an instruction sequence.
package stream

import (
	"github.com/wippyai/wasm-tailcall/wasm"
)

// Class is the role an instruction plays in tail-call analysis.
type Class uint8

const (
	Other      Class = iota // anything not listed below
	Call                    // call, call_indirect
	Return                  // return
	LoadLocal               // local.get
	StoreLocal              // local.set
	Branch                  // br
	NoOp                    // nop
	TailMarker              // synthetic prefix fused into return_call
	Scope                   // block, loop, if, else, end
)

var classNames = [...]string{"other", "call", "return", "load", "store", "branch", "nop", "tail", "scope"}

func (c Class) String() string {
	if int(c) < len(classNames) {
		return classNames[c]
	}
	return "class?"
}

// Instr is one node of a Body.
type Instr struct {
	Op    wasm.Instruction
	Class Class

	// Target is the construct opener a br or br_if transfers to. Targets
	// holds br_table destinations, default last.
	Target  *Instr
	Targets []*Instr

	// Opener links else and end to the block, loop or if they belong to.
	// Else and End link an opener to its markers.
	Opener *Instr
	Else   *Instr
	End    *Instr

	// Synthetic marks instructions that normalization added.
	Synthetic bool

	prev, next *Instr
	body       *Body
}

// New returns a detached instruction classified by its opcode.
func New(op wasm.Instruction) *Instr {
	return &Instr{Op: op, Class: classify(op.Opcode)}
}

// NewTailMarker returns a detached tail-call marker.
func NewTailMarker() *Instr {
	return &Instr{Class: TailMarker, Synthetic: true}
}

func classify(op byte) Class {
	switch op {
	case wasm.OpCall, wasm.OpCallIndirect:
		return Call
	case wasm.OpReturn:
		return Return
	case wasm.OpLocalGet:
		return LoadLocal
	case wasm.OpLocalSet:
		return StoreLocal
	case wasm.OpBr:
		return Branch
	case wasm.OpNop:
		return NoOp
	case wasm.OpBlock, wasm.OpLoop, wasm.OpIf, wasm.OpElse, wasm.OpEnd:
		return Scope
	}
	return Other
}

// Next returns the following instruction, or nil at the end of the body.
func (i *Instr) Next() *Instr { return i.next }

// Prev returns the preceding instruction, or nil at the start of the body.
func (i *Instr) Prev() *Instr { return i.prev }

// Attached reports whether the instruction is part of a body.
func (i *Instr) Attached() bool { return i.body != nil }

// Index returns the current position of the instruction in its body, or -1
// if it is detached.
func (i *Instr) Index() int {
	if i.body == nil {
		return -1
	}
	n := 0
	for p := i.prev; p != nil; p = p.prev {
		n++
	}
	return n
}

// Slot returns the local index of local.get, local.set and local.tee.
func (i *Instr) Slot() (uint32, bool) {
	imm, ok := i.Op.Imm.(wasm.LocalImm)
	return imm.LocalIdx, ok
}

// Callee returns the direct callee of a call. Indirect calls report false.
func (i *Instr) Callee() (uint32, bool) {
	if i.Class != Call {
		return 0, false
	}
	return i.Op.CallTarget()
}

// Opens reports whether the instruction opens a construct.
func (i *Instr) Opens() bool {
	switch i.Op.Opcode {
	case wasm.OpBlock, wasm.OpLoop, wasm.OpIf:
		return i.Class == Scope
	}
	return false
}

// IsEnd reports whether the instruction is an end marker.
func (i *Instr) IsEnd() bool { return i.Class == Scope && i.Op.Opcode == wasm.OpEnd }

// IsElse reports whether the instruction is an else marker.
func (i *Instr) IsElse() bool { return i.Class == Scope && i.Op.Opcode == wasm.OpElse }

// BranchTargets returns every construct the instruction can transfer to.
func (i *Instr) BranchTargets() []*Instr {
	switch {
	case i.Target != nil:
		return []*Instr{i.Target}
	case len(i.Targets) > 0:
		return i.Targets
	}
	return nil
}

func (i *Instr) String() string {
	if i.Class == TailMarker {
		return "<tail>"
	}
	return wasm.FormatInstruction(i.Op)
}
