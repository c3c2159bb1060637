package tailcall

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/wippyai/wasm-tailcall/errors"
	"github.com/wippyai/wasm-tailcall/tailcall/internal/engine"
	"github.com/wippyai/wasm-tailcall/wasm"
)

// Report summarizes a transformation per selected function.
type Report = engine.Report

// FuncReport describes the outcome for one function.
type FuncReport = engine.FuncReport

// Config configures the tail-call transformation.
type Config struct {
	// Functions limits the rewrite to matching debug or export names.
	// Nil considers every defined function.
	Functions FunctionMatcher
	Logger    *zap.Logger
}

// Transform rewrites self-recursive calls whose result is returned
// unchanged into return_call.
//
// The transformation:
//   - Deletes the instructions that stage the call result before returning it
//   - Turns the branches of other exits into direct returns
//   - Replaces the call and its return with a single return_call
//
// Only functions of the form (param x acc) (result acc) are considered.
// Functions without a rewritable site are left byte-for-byte unchanged; when
// nothing changed the input slice is returned as is. The Report explains
// every call that was not rewritten.
func Transform(wasmData []byte, cfg Config) ([]byte, *Report, error) {
	eng := engine.New(engine.Config{
		Functions: cfg.Functions,
		Logger:    cfg.Logger,
	})
	return eng.Transform(wasmData)
}

// TransformFunc rewrites a single function by name.
func TransformFunc(wasmData []byte, funcName string, logger *zap.Logger) ([]byte, *Report, error) {
	return Transform(wasmData, Config{
		Functions: NewFunctionNameMatcher([]string{funcName}),
		Logger:    logger,
	})
}

// IsRewritten reports whether the function already contains a tail call.
func IsRewritten(wasmData []byte, funcName string) (bool, error) {
	_, _, instrs, err := function(wasmData, funcName)
	if err != nil {
		return false, err
	}
	for _, instr := range instrs {
		if instr.Opcode == wasm.OpReturnCall || instr.Opcode == wasm.OpReturnCallIndirect {
			return true, nil
		}
	}
	return false, nil
}

// Listing renders a function body in text format, preceded by its
// signature and locals.
func Listing(wasmData []byte, funcName string) (string, error) {
	ft, body, instrs, err := function(wasmData, funcName)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "func $%s %s", funcName, ft)
	if locals := body.LocalTypes(); len(locals) > 0 {
		b.WriteString(" (local")
		for _, v := range locals {
			b.WriteString(" " + v.String())
		}
		b.WriteString(")")
	}
	b.WriteByte('\n')
	b.WriteString(wasm.Listing(instrs))
	return b.String(), nil
}

// Functions returns the names of every defined function.
func Functions(wasmData []byte) ([]string, error) {
	m, err := wasm.ParseModule(wasmData)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseDecode, errors.KindInvalidData, err, "parse module")
	}
	imported := m.NumImportedFuncs()
	names := make([]string, 0, len(m.Code))
	for i := range m.Code {
		names = append(names, m.FuncName(imported+uint32(i)))
	}
	return names, nil
}

func function(wasmData []byte, funcName string) (wasm.FuncType, wasm.FuncBody, []wasm.Instruction, error) {
	m, err := wasm.ParseModule(wasmData)
	if err != nil {
		return wasm.FuncType{}, wasm.FuncBody{}, nil, errors.Wrap(errors.PhaseDecode, errors.KindInvalidData, err, "parse module")
	}
	idx, ok := m.FindFunc(funcName)
	if !ok {
		return wasm.FuncType{}, wasm.FuncBody{}, nil, errors.NotFound(errors.PhaseDecode, "function", funcName)
	}
	imported := m.NumImportedFuncs()
	if idx < imported {
		return wasm.FuncType{}, wasm.FuncBody{}, nil, errors.InvalidInput(errors.PhaseDecode, fmt.Sprintf("imported function %q has no body", funcName))
	}
	ft, err := m.FuncTypeOf(idx)
	if err != nil {
		return wasm.FuncType{}, wasm.FuncBody{}, nil, errors.Wrap(errors.PhaseDecode, errors.KindInvalidData, err, "function type")
	}
	body := m.Code[idx-imported]
	instrs, err := wasm.DecodeInstructions(body.Code)
	if err != nil {
		return wasm.FuncType{}, wasm.FuncBody{}, nil, errors.New(errors.PhaseDecode, errors.KindInvalidData).
			Func(funcName).Cause(err).Build()
	}
	return ft, body, instrs, nil
}
