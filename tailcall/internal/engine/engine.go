package engine

import (
	"go.uber.org/zap"

	"github.com/wippyai/wasm-tailcall/errors"
	"github.com/wippyai/wasm-tailcall/tailcall/internal/stream"
	"github.com/wippyai/wasm-tailcall/wasm"
)

// FunctionMatcher determines if a function should be considered.
type FunctionMatcher interface {
	MatchFunction(name string) bool
}

// Config configures the transformation engine.
type Config struct {
	// Functions selects functions by debug or export name. Nil selects all.
	Functions FunctionMatcher
	Logger    *zap.Logger
}

// FuncReport describes the outcome for one selected function.
type FuncReport struct {
	// Skipped is set when the function could not be analyzed.
	Skipped    *errors.Error
	Name       string
	Rejections []*errors.Error
	Index      uint32
	Sites      int
}

// Report summarizes a transformation.
type Report struct {
	Funcs   []FuncReport
	Changed bool
}

// Sites returns the total number of rewritten sites.
func (r *Report) Sites() int {
	n := 0
	for _, f := range r.Funcs {
		n += f.Sites
	}
	return n
}

// Func returns the report of a function by name.
func (r *Report) Func(name string) (FuncReport, bool) {
	for _, f := range r.Funcs {
		if f.Name == name {
			return f, true
		}
	}
	return FuncReport{}, false
}

// Engine runs the tail-call rewrite over every selected function of a
// module.
//
// The engine is stateless between Transform calls.
type Engine struct {
	functions FunctionMatcher
	log       *zap.Logger
}

// New creates a new transformation engine with the given config.
func New(cfg Config) *Engine {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{functions: cfg.Functions, log: log}
}

// SupportedShape reports whether a signature has one recursion argument,
// one accumulator and a result of the accumulator's type.
func SupportedShape(t wasm.FuncType) bool {
	return len(t.Params) == 2 && len(t.Results) == 1 && t.Results[0] == t.Params[1]
}

// Transform rewrites every tail-call site of the selected functions.
//
// Functions without a site keep their encoded body. When no function
// changed, the input slice itself is returned.
func (e *Engine) Transform(wasmData []byte) ([]byte, *Report, error) {
	m, err := wasm.ParseModule(wasmData)
	if err != nil {
		return nil, nil, errors.Wrap(errors.PhaseDecode, errors.KindInvalidData, err, "parse module")
	}

	report := &Report{}
	imported := m.NumImportedFuncs()
	for i := range m.Code {
		idx := imported + uint32(i)
		name := m.FuncName(idx)
		if !e.selected(m, idx) {
			continue
		}

		fr, code, err := e.transformFunc(m, idx, name, m.Code[i])
		if err != nil {
			return nil, report, err
		}
		report.Funcs = append(report.Funcs, fr)
		if code != nil {
			m.Code[i].Code = code
			report.Changed = true
		}
	}

	if !report.Changed {
		return wasmData, report, nil
	}
	return m.Encode(), report, nil
}

func (e *Engine) selected(m *wasm.Module, idx uint32) bool {
	if e.functions == nil {
		return true
	}
	if name, ok := m.FuncNames[idx]; ok && e.functions.MatchFunction(name) {
		return true
	}
	for _, exp := range m.Exports {
		if exp.Kind == wasm.KindFunc && exp.Idx == idx && e.functions.MatchFunction(exp.Name) {
			return true
		}
	}
	return e.functions.MatchFunction(m.FuncName(idx))
}

// transformFunc returns the re-encoded body, or nil when nothing changed.
func (e *Engine) transformFunc(m *wasm.Module, idx uint32, name string, body wasm.FuncBody) (FuncReport, []byte, error) {
	fr := FuncReport{Index: idx, Name: name}
	log := e.log.With(zap.String("func", name), zap.Uint32("index", idx))

	ft, err := m.FuncTypeOf(idx)
	if err != nil {
		return fr, nil, errors.Wrap(errors.PhaseDecode, errors.KindInvalidData, err, "function type")
	}
	if !SupportedShape(ft) {
		fr.Skipped = errors.New(errors.PhaseNormalize, errors.KindUnsupported).
			Func(name).
			Detail("signature %s is not (param x acc) (result acc)", ft).
			Build()
		log.Debug("function skipped", zap.Error(fr.Skipped))
		return fr, nil, nil
	}

	instrs, err := wasm.DecodeInstructions(body.Code)
	if err != nil {
		fr.Skipped = errors.New(errors.PhaseDecode, errors.KindUnsupported).Func(name).Cause(err).Build()
		log.Debug("function skipped", zap.Error(fr.Skipped))
		return fr, nil, nil
	}

	b, err := stream.Normalize(stream.Header{Self: idx, Name: name, Type: ft, Locals: body.Locals}, instrs)
	if err != nil {
		fr.Skipped = errors.New(errors.PhaseNormalize, errors.KindInvalidData).Func(name).Cause(err).Build()
		log.Debug("function skipped", zap.Error(fr.Skipped))
		return fr, nil, nil
	}

	sites, rejections, err := RewriteBody(b)
	fr.Sites = sites
	fr.Rejections = rejections
	if err != nil {
		return fr, nil, err
	}
	for _, rej := range rejections {
		log.Debug("candidate rejected", zap.String("kind", string(rej.Kind)), zap.String("detail", rej.Detail))
	}
	if sites == 0 {
		return fr, nil, nil
	}

	out, err := b.Compact()
	if err != nil {
		return fr, nil, errors.New(errors.PhaseRewrite, errors.KindInvalidData).Func(name).Cause(err).Build()
	}
	code, err := wasm.EncodeInstructions(out)
	if err != nil {
		return fr, nil, errors.New(errors.PhaseEncode, errors.KindInvalidData).Func(name).Cause(err).Build()
	}
	log.Info("tail calls rewritten", zap.Int("sites", sites))
	return fr, code, nil
}
