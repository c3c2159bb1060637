package stream

import (
	"fmt"

	"github.com/wippyai/wasm-tailcall/wasm"
)

// Compact converts the body back into an instruction sequence.
//
// Tail markers are fused with the following call and return into
// return_call or return_call_indirect. Branch label depths are recomputed
// from the current nesting. A synthetic return directly before the final
// end is dropped. When the end of a construct can no longer be reached,
// because its body ends in a transfer and nothing branches to it, an
// unreachable is placed after it so the code that follows still validates.
func (b *Body) Compact() ([]wasm.Instruction, error) {
	targeted := make(map[*Instr]bool)
	for n := b.head; n != nil; n = n.next {
		for _, t := range n.BranchTargets() {
			targeted[t] = true
		}
	}

	out := make([]wasm.Instruction, 0, b.size)
	stack := []*Instr{b.Root}
	// liveThen records whether the then-arm of each open if falls through.
	liveThen := make(map[*Instr]bool)
	dead := false

	depthOf := func(t *Instr) (uint32, error) {
		for i := len(stack) - 1; i >= 0; i-- {
			if stack[i] == t {
				return uint32(len(stack) - 1 - i), nil
			}
		}
		return 0, fmt.Errorf("branch target is not an enclosing construct")
	}

	for n := b.head; n != nil; n = n.next {
		switch {
		case n.Class == TailMarker:
			call := n.next
			if call == nil || call.Class != Call || call.next == nil || call.next.Class != Return {
				return nil, fmt.Errorf("tail marker at %d is not followed by call and return", n.Index())
			}
			fused := call.Op
			fused.Opcode = wasm.OpReturnCall
			if call.Op.Opcode == wasm.OpCallIndirect {
				fused.Opcode = wasm.OpReturnCallIndirect
			}
			out = append(out, fused)
			n = call.next
			dead = true
			continue

		case n.Class == Return && n.Synthetic && n.next == b.tail:
			continue

		case n.Opens():
			stack = append(stack, n)
			out = append(out, n.Op)
			dead = false
			continue

		case n.IsElse():
			liveThen[n.Opener] = !dead
			out = append(out, n.Op)
			dead = false
			continue

		case n.IsEnd():
			opener := n.Opener
			stack = stack[:len(stack)-1]
			out = append(out, n.Op)
			if opener == b.Root {
				continue
			}
			reachable := !dead || targeted[opener]
			switch opener.Op.Opcode {
			case wasm.OpLoop:
				reachable = !dead
			case wasm.OpIf:
				reachable = reachable || opener.Else == nil || liveThen[opener]
			}
			dead = !reachable
			if dead && (n.next == nil || n.next.Op.Opcode != wasm.OpUnreachable || n.next.Class != Other) {
				out = append(out, wasm.Instruction{Opcode: wasm.OpUnreachable})
			}
			continue
		}

		op := n.Op
		switch n.Op.Opcode {
		case wasm.OpBr, wasm.OpBrIf:
			d, err := depthOf(n.Target)
			if err != nil {
				return nil, fmt.Errorf("instruction %d: %w", n.Index(), err)
			}
			op.Imm = wasm.BranchImm{LabelIdx: d}
		case wasm.OpBrTable:
			labels := make([]uint32, len(n.Targets))
			for i, t := range n.Targets {
				d, err := depthOf(t)
				if err != nil {
					return nil, fmt.Errorf("instruction %d: %w", n.Index(), err)
				}
				labels[i] = d
			}
			op.Imm = wasm.BrTableImm{Labels: labels[:len(labels)-1], Default: labels[len(labels)-1]}
		}
		out = append(out, op)

		switch n.Op.Opcode {
		case wasm.OpBr, wasm.OpBrTable, wasm.OpReturn, wasm.OpUnreachable:
			dead = true
		}
	}

	if len(stack) != 0 {
		return nil, fmt.Errorf("unbalanced constructs")
	}
	return out, nil
}
