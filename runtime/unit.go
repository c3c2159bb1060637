package runtime

import (
	"context"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/multierr"

	"github.com/wippyai/wasm-tailcall/engine"
	"github.com/wippyai/wasm-tailcall/errors"
	"github.com/wippyai/wasm-tailcall/tailcall"
)

// Unit is a loaded module with one bound function.
type Unit struct {
	def      api.FunctionDefinition
	module   *engine.WazeroModule
	instance *engine.WazeroInstance
	// Report is set when the unit was rewritten by this runtime rather
	// than loaded from the store.
	Report    *tailcall.Report
	Name      string
	Key       string
	Func      string
	Wasm      []byte
	Sites     int
	Rewritten bool
}

// Definition returns the core signature of the bound function.
func (u *Unit) Definition() api.FunctionDefinition {
	return u.def
}

// Signature returns the default WIT view of the bound function.
func (u *Unit) Signature() (*engine.Signature, error) {
	return engine.SignatureFor(u.def)
}

// CallRaw calls the function with core values.
func (u *Unit) CallRaw(ctx context.Context, params ...uint64) ([]uint64, error) {
	return u.instance.Call(ctx, u.Func, params...)
}

// Call converts args with the default signature and returns the single
// result, or nil for a function without results.
func (u *Unit) Call(ctx context.Context, args ...any) (any, error) {
	sig, err := u.Signature()
	if err != nil {
		return nil, err
	}
	return u.CallWithSignature(ctx, sig, args...)
}

// CallWithSignature converts args with sig, which must flatten to the
// function's core signature.
func (u *Unit) CallWithSignature(ctx context.Context, sig *engine.Signature, args ...any) (any, error) {
	if err := sig.Check(u.def); err != nil {
		return nil, err
	}
	out, err := u.instance.CallWithSignature(ctx, u.Func, sig, args...)
	if err != nil {
		return nil, err
	}
	switch len(out) {
	case 0:
		return nil, nil
	case 1:
		return out[0], nil
	default:
		return nil, errors.Unsupported(errors.PhaseBind, "multiple results")
	}
}

func (u *Unit) close(ctx context.Context) error {
	return multierr.Append(u.instance.Close(ctx), u.module.Close(ctx))
}
