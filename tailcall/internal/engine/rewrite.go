package engine

import (
	"github.com/wippyai/wasm-tailcall/errors"
	"github.com/wippyai/wasm-tailcall/tailcall/internal/stream"
	"github.com/wippyai/wasm-tailcall/wasm"
)

// Rewrite turns a located site into a tail call:
//
//  1. Everything between the call and the return is deleted, except
//     construct markers, and the return is moved directly after the call.
//  2. Each other exit becomes a return and its store is deleted.
//  3. A tail marker is inserted before the call.
//
// The site must have been located in b and b must not have been edited
// since. The same body is returned.
func Rewrite(b *stream.Body, site *Site) *stream.Body {
	for n := site.Call.Next(); n != site.Return; {
		next := n.Next()
		if n.Class != stream.Scope {
			b.Remove(n)
		}
		n = next
	}
	b.MoveAfter(site.Return, site.Call)

	for _, exit := range site.Exits {
		b.Replace(exit.Branch, stream.New(wasm.Instruction{Opcode: wasm.OpReturn}))
		b.Remove(exit.Store)
	}

	b.InsertBefore(site.Call, stream.NewTailMarker())
	return b
}

// RewriteBody rewrites sites until Locate finds no more. It returns the
// number of rewritten sites and the rejections of the final search.
func RewriteBody(b *stream.Body) (int, []*errors.Error, error) {
	// Each rewrite consumes one call.
	limit := 1
	for n := b.First(); n != nil; n = n.Next() {
		switch n.Class {
		case stream.Call, stream.Return, stream.Branch:
			limit++
		}
	}

	sites := 0
	for {
		site, rejections := Locate(b)
		if site == nil {
			return sites, rejections, nil
		}
		if sites >= limit {
			return sites, rejections, errors.New(errors.PhaseRewrite, errors.KindInvalidData).
				Func(b.Name).
				Detail("no fixed point after %d rewrites", sites).
				Build()
		}
		Rewrite(b, site)
		sites++
	}
}
