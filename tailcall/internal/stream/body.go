package stream

import (
	"fmt"

	"github.com/wippyai/wasm-tailcall/wasm"
)

// Header describes the function a body belongs to.
type Header struct {
	Self   uint32 // index in the module's function index space
	Name   string
	Type   wasm.FuncType
	Locals []wasm.LocalEntry
}

// Body is a normalized function body.
type Body struct {
	Header

	// Root is the implicit function-level construct. It is not part of the
	// list; its End is the final end instruction.
	Root *Instr

	head, tail *Instr
	size       int
}

// First returns the first instruction.
func (b *Body) First() *Instr { return b.head }

// Last returns the final end.
func (b *Body) Last() *Instr { return b.tail }

// Len returns the number of instructions.
func (b *Body) Len() int { return b.size }

// Instrs returns a snapshot of the list.
func (b *Body) Instrs() []*Instr {
	out := make([]*Instr, 0, b.size)
	for n := b.head; n != nil; n = n.next {
		out = append(out, n)
	}
	return out
}

// At returns the instruction at position idx, or nil.
func (b *Body) At(idx int) *Instr {
	n := b.head
	for ; n != nil && idx > 0; idx-- {
		n = n.next
	}
	return n
}

// SlotType returns the type of a parameter or local slot.
func (b *Body) SlotType(slot uint32) (wasm.ValType, bool) {
	if int(slot) < len(b.Type.Params) {
		return b.Type.Params[slot], true
	}
	slot -= uint32(len(b.Type.Params))
	for _, e := range b.Locals {
		if slot < e.Count {
			return e.ValType, true
		}
		slot -= e.Count
	}
	return 0, false
}

// Normalize builds a Body from a decoded instruction sequence.
//
// Branch label depths are resolved to construct references. return_call
// and return_call_indirect are expanded into a tail marker, the matching
// call and a return, so rewritten bodies are recognizable. When the last
// instruction before the final end is not a return, a synthetic return is
// inserted there so every exit of the function is explicit.
func Normalize(h Header, instrs []wasm.Instruction) (*Body, error) {
	if len(instrs) == 0 || instrs[len(instrs)-1].Opcode != wasm.OpEnd {
		return nil, fmt.Errorf("body does not end with end")
	}

	b := &Body{Header: h}
	b.Root = &Instr{Op: wasm.Instruction{Opcode: wasm.OpBlock, Imm: wasm.BlockImm{Type: wasm.BlockTypeVoid}}, Class: Scope, Synthetic: true}
	stack := []*Instr{b.Root}

	resolve := func(depth uint32) (*Instr, error) {
		if int(depth) >= len(stack) {
			return nil, fmt.Errorf("label depth %d exceeds nesting %d", depth, len(stack))
		}
		return stack[len(stack)-1-int(depth)], nil
	}

	for idx, op := range instrs {
		if len(stack) == 0 {
			return nil, fmt.Errorf("instruction %d after final end", idx)
		}
		switch op.Opcode {
		case wasm.OpReturnCall, wasm.OpReturnCallIndirect:
			call := op
			call.Opcode = wasm.OpCall
			if op.Opcode == wasm.OpReturnCallIndirect {
				call.Opcode = wasm.OpCallIndirect
			}
			b.append(NewTailMarker())
			b.append(New(call))
			b.append(New(wasm.Instruction{Opcode: wasm.OpReturn}))
			continue
		}

		n := New(op)
		switch op.Opcode {
		case wasm.OpBlock, wasm.OpLoop, wasm.OpIf:
			stack = append(stack, n)
		case wasm.OpElse:
			top := stack[len(stack)-1]
			if top.Op.Opcode != wasm.OpIf || top.Else != nil || top == b.Root {
				return nil, fmt.Errorf("instruction %d: else without if", idx)
			}
			n.Opener = top
			top.Else = n
		case wasm.OpEnd:
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			n.Opener = top
			top.End = n
		case wasm.OpBr, wasm.OpBrIf:
			imm, ok := op.Imm.(wasm.BranchImm)
			if !ok {
				return nil, fmt.Errorf("instruction %d: malformed branch", idx)
			}
			t, err := resolve(imm.LabelIdx)
			if err != nil {
				return nil, fmt.Errorf("instruction %d: %w", idx, err)
			}
			n.Target = t
		case wasm.OpBrTable:
			imm, ok := op.Imm.(wasm.BrTableImm)
			if !ok {
				return nil, fmt.Errorf("instruction %d: malformed br_table", idx)
			}
			for _, l := range append(append([]uint32(nil), imm.Labels...), imm.Default) {
				t, err := resolve(l)
				if err != nil {
					return nil, fmt.Errorf("instruction %d: %w", idx, err)
				}
				n.Targets = append(n.Targets, t)
			}
		}
		b.append(n)
	}
	if len(stack) != 0 {
		return nil, fmt.Errorf("%d unterminated constructs", len(stack))
	}

	if final := b.tail; final.prev == nil || final.prev.Class != Return {
		ret := New(wasm.Instruction{Opcode: wasm.OpReturn})
		ret.Synthetic = true
		b.InsertBefore(final, ret)
	}
	return b, nil
}

func (b *Body) append(n *Instr) {
	n.body = b
	n.prev = b.tail
	if b.tail != nil {
		b.tail.next = n
	} else {
		b.head = n
	}
	b.tail = n
	b.size++
}

// Remove detaches n from the body. Construct markers cannot be removed.
func (b *Body) Remove(n *Instr) {
	if n.body != b {
		panic("stream: remove of foreign instruction")
	}
	if n.Class == Scope {
		panic("stream: remove of construct marker")
	}
	b.unlink(n)
}

func (b *Body) unlink(n *Instr) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		b.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		b.tail = n.prev
	}
	n.prev, n.next, n.body = nil, nil, nil
	b.size--
}

// InsertBefore links the detached instruction n directly before at.
func (b *Body) InsertBefore(at, n *Instr) {
	if at.body != b || n.body != nil {
		panic("stream: invalid insert")
	}
	n.body = b
	n.prev = at.prev
	n.next = at
	if at.prev != nil {
		at.prev.next = n
	} else {
		b.head = n
	}
	at.prev = n
	b.size++
}

// InsertAfter links the detached instruction n directly after at.
func (b *Body) InsertAfter(at, n *Instr) {
	if at.body != b || n.body != nil {
		panic("stream: invalid insert")
	}
	if at.next == nil {
		b.append(n)
		return
	}
	b.InsertBefore(at.next, n)
}

// Replace substitutes the detached instruction n for old.
func (b *Body) Replace(old, n *Instr) {
	b.InsertBefore(old, n)
	b.Remove(old)
}

// MoveAfter relinks n so that it directly follows anchor.
func (b *Body) MoveAfter(n, anchor *Instr) {
	if n == anchor || anchor.next == n {
		return
	}
	b.unlink(n)
	b.InsertAfter(anchor, n)
}

// Landing returns the instruction executed first when control falls through
// to n. Construct ends other than the final one are skipped, and an else
// marker continues after the end of its if.
func (b *Body) Landing(n *Instr) *Instr {
	for n != nil {
		switch {
		case n.IsEnd() && n.Opener != b.Root:
			n = n.next
		case n.IsElse():
			n = n.Opener.End
		default:
			return n
		}
	}
	return nil
}

// BranchLanding returns where a transfer to target continues: after the
// construct for block and if, at the top of the body for loop, and at the
// final end for the function root.
func (b *Body) BranchLanding(target *Instr) *Instr {
	switch {
	case target == b.Root:
		return b.Root.End
	case target.Op.Opcode == wasm.OpLoop:
		return b.Landing(target.next)
	default:
		return b.Landing(target.End.next)
	}
}

// DoNothing reports whether n is an unconditional branch that lands where
// falling through would.
func (b *Body) DoNothing(n *Instr) bool {
	if n.Class != Branch || n.Target == nil {
		return false
	}
	return b.BranchLanding(n.Target) == b.Landing(n.next)
}
