package engine

import (
	"github.com/wippyai/wasm-tailcall/errors"
	"github.com/wippyai/wasm-tailcall/tailcall/internal/stream"
	"github.com/wippyai/wasm-tailcall/wasm"
)

// Exit is an early exit that stores its result into the staged local and
// branches to the staged load.
type Exit struct {
	Store  *stream.Instr
	Branch *stream.Instr
}

// Site is a recursive call whose result is returned unchanged. It is only
// valid for the body it was located in until that body is edited.
type Site struct {
	Call   *stream.Instr
	Staged *stream.Instr // local.get that reloads the call result
	Return *stream.Instr
	Exits  []Exit

	CallIndex   int
	ReturnIndex int
}

// Locate finds the first rewritable tail-call site in b. Every call that
// was skipped on the way is explained by a rejection; when no site exists
// the last rejection has kind KindNoTailCallPattern. Locate does not
// modify b.
func Locate(b *stream.Body) (*Site, []*errors.Error) {
	var rejections []*errors.Error
	candidates := 0
	for n := b.First(); n != nil; n = n.Next() {
		if n.Class != stream.Call {
			continue
		}
		candidates++
		site, rej := inspect(b, n)
		if site != nil {
			return site, rejections
		}
		rejections = append(rejections, rej)
	}
	rejections = append(rejections, errors.New(errors.PhaseLocate, errors.KindNoTailCallPattern).
		Func(b.Name).
		Detail("%d call candidates, none rewritable", candidates).
		Build())
	return nil, rejections
}

func inspect(b *stream.Body, call *stream.Instr) (*Site, *errors.Error) {
	idx := call.Index()

	// A call at the start of the body has no predecessor to inspect.
	if prev := call.Prev(); prev != nil && prev.Class == stream.TailMarker {
		return nil, errors.Reject(errors.KindAlreadyRewritten, b.Name, idx, "call is already a tail call")
	}

	callee, ok := call.Callee()
	if !ok {
		return nil, errors.Reject(errors.KindNotSelfRecursive, b.Name, idx, "indirect callee")
	}
	if callee != b.Self {
		return nil, errors.Reject(errors.KindNotSelfRecursive, b.Name, idx, "callee %d is not function %d", callee, b.Self)
	}

	ret, bad := scanToReturn(b, call)
	if bad != nil {
		return nil, errors.Reject(errors.KindDisallowedInstruction, b.Name, idx,
			"%s at #%d between call and return", bad, bad.Index())
	}

	staged := stagedLoad(call, ret)
	if staged == nil {
		return nil, errors.Reject(errors.KindNoStagedValue, b.Name, idx, "no local load between call and return")
	}
	if !returnsCallResult(call, staged, ret) {
		return nil, errors.Reject(errors.KindNoStagedValue, b.Name, idx,
			"%s at #%d does not reload the call result", staged, staged.Index())
	}

	exits := otherExits(b, call, staged)
	if rej := checkEntries(b, call, ret, exits); rej != nil {
		return nil, rej
	}

	return &Site{
		Call:        call,
		Staged:      staged,
		Return:      ret,
		Exits:       exits,
		CallIndex:   idx,
		ReturnIndex: ret.Index(),
	}, nil
}

// scanToReturn walks forward from the call to the first return. Only local
// loads and stores, nops, branches that land where falling through would,
// and construct ends may lie in between. The first other instruction is
// returned as bad.
func scanToReturn(b *stream.Body, call *stream.Instr) (ret, bad *stream.Instr) {
	for n := call.Next(); n != nil; n = n.Next() {
		switch {
		case n.Class == stream.Return:
			return n, nil
		case n.Class == stream.LoadLocal, n.Class == stream.StoreLocal, n.Class == stream.NoOp:
		case n.Class == stream.Branch && b.DoNothing(n):
		case n.IsEnd() && n.Opener != b.Root:
		default:
			return nil, n
		}
	}
	return nil, b.Last()
}

// stagedLoad returns the last local load before the return.
func stagedLoad(call, ret *stream.Instr) *stream.Instr {
	for n := ret.Prev(); n != nil && n != call; n = n.Prev() {
		if n.Class == stream.LoadLocal {
			return n
		}
	}
	return nil
}

type symbol struct {
	fromCall bool
	pushedBy *stream.Instr
}

// returnsCallResult simulates the operand stack and locals from the call
// to the return and reports whether the returned value is the call result
// as pushed by the staged load.
func returnsCallResult(call, staged, ret *stream.Instr) bool {
	stack := []symbol{{fromCall: true, pushedBy: call}}
	locals := make(map[uint32]symbol)
	for n := call.Next(); n != ret; n = n.Next() {
		switch n.Class {
		case stream.LoadLocal:
			slot, _ := n.Slot()
			v := locals[slot]
			v.pushedBy = n
			stack = append(stack, v)
		case stream.StoreLocal:
			slot, _ := n.Slot()
			var v symbol
			if len(stack) > 0 {
				v = stack[len(stack)-1]
				stack = stack[:len(stack)-1]
			}
			locals[slot] = v
		}
	}
	if len(stack) == 0 {
		return false
	}
	top := stack[len(stack)-1]
	return top.fromCall && top.pushedBy == staged
}

// otherExits collects the branches before the call that land on the staged
// load right after storing into its slot.
func otherExits(b *stream.Body, call, staged *stream.Instr) []Exit {
	slot, _ := staged.Slot()
	var exits []Exit
	for n := b.First(); n != nil && n != call; n = n.Next() {
		if n.Class != stream.Branch || b.BranchLanding(n.Target) != staged {
			continue
		}
		store := n.Prev()
		if store == nil || store.Class != stream.StoreLocal {
			continue
		}
		if s, _ := store.Slot(); s != slot {
			continue
		}
		exits = append(exits, Exit{Store: store, Branch: n})
	}
	return exits
}

// checkEntries rejects the site when control can reach the code between
// the call and the return other than through the call or a recognized
// exit. Deleting that code would change the behavior of such a path.
func checkEntries(b *stream.Body, call, ret *stream.Instr, exits []Exit) *errors.Error {
	span := make(map[*stream.Instr]bool)
	for n := call.Next(); ; n = n.Next() {
		span[n] = true
		if n == ret {
			break
		}
	}
	recognized := make(map[*stream.Instr]bool, len(exits))
	for _, e := range exits {
		recognized[e.Branch] = true
	}

	callIdx := call.Index()
	for n := b.First(); n != nil; n = n.Next() {
		if span[n] || recognized[n] {
			continue
		}
		for _, t := range n.BranchTargets() {
			if span[b.BranchLanding(t)] {
				return errors.Reject(errors.KindSharedExit, b.Name, callIdx,
					"%s at #%d also reaches the return", n, n.Index())
			}
		}
	}
	for n := call.Next(); n != ret; n = n.Next() {
		if n.IsEnd() && n.Opener.Op.Opcode == wasm.OpIf {
			return errors.Reject(errors.KindSharedExit, b.Name, callIdx,
				"if closed at #%d joins another path before the return", n.Index())
		}
	}
	return nil
}
