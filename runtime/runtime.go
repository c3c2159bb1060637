package runtime

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-tailcall/engine"
	"github.com/wippyai/wasm-tailcall/errors"
	"github.com/wippyai/wasm-tailcall/store"
	"github.com/wippyai/wasm-tailcall/tailcall"
)

// Config configures a Runtime.
type Config struct {
	Logger *zap.Logger
	// Store overrides StoreConfig with an existing store. The runtime does
	// not close a store it did not open.
	Store       store.Store
	StoreConfig store.Config
	Engine      engine.Config
}

// Runtime rewrites functions, persists the rewritten modules and binds
// them to callables. Units are cached by the identity of the input module
// and function for the lifetime of the runtime.
type Runtime struct {
	engine    *engine.WazeroEngine
	store     store.Store
	log       *zap.Logger
	units     map[string]*Unit
	cfg       Config
	ownsStore bool
	mu        sync.Mutex
}

// New creates a runtime with its engine and store.
func New(ctx context.Context, cfg Config) (*Runtime, error) {
	log := cfg.Logger
	if log == nil {
		log = engine.Logger()
	}

	eng, err := engine.NewWazeroEngineWithConfig(ctx, &cfg.Engine)
	if err != nil {
		return nil, errors.Load("create engine", err)
	}

	r := &Runtime{
		engine: eng,
		store:  cfg.Store,
		log:    log,
		units:  make(map[string]*Unit),
		cfg:    cfg,
	}
	if r.store == nil {
		st, err := store.Open(cfg.StoreConfig)
		if err != nil {
			return nil, multierr.Append(err, eng.Close(ctx))
		}
		r.store = st
		r.ownsStore = true
	}
	return r, nil
}

// Engine returns the wazero engine.
func (r *Runtime) Engine() *engine.WazeroEngine {
	return r.engine
}

// Store returns the unit store.
func (r *Runtime) Store() store.Store {
	return r.store
}

// Rewrite returns a callable unit for the tail-call rewritten form of
// funcName. The first request for a module and function transforms it,
// persists the result under a fresh unit name and loads the persisted
// bytes; later requests reuse the unit, and a store that already holds a
// rewrite of the same input skips the transformation.
//
// When the function has no rewritable site the error has kind
// KindNoTailCallPattern and the caller may fall back to Load. With tail
// calls disabled the original function is bound instead.
func (r *Runtime) Rewrite(ctx context.Context, wasm []byte, funcName string) (*Unit, error) {
	if r.cfg.Engine.DisableTailCalls {
		r.log.Warn("tail calls disabled, binding original function", zap.String("func", funcName))
		return r.Load(ctx, wasm, funcName)
	}

	key := store.Key(wasm, funcName)
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.units[key]; ok {
		return u, nil
	}

	rec, found, err := r.store.Lookup(ctx, key)
	if err != nil {
		return nil, err
	}
	var report *tailcall.Report
	if found {
		r.log.Debug("rewritten unit found in store", zap.String("unit", rec.Name), zap.String("func", funcName))
	} else {
		rec, report, err = r.rewrite(ctx, wasm, funcName, key)
		if err != nil {
			return nil, err
		}
	}

	u, err := r.bind(ctx, rec.Name, key, funcName, rec.Wasm)
	if err != nil {
		return nil, err
	}
	u.Rewritten = true
	u.Sites = rec.Sites
	u.Report = report
	r.units[key] = u
	r.log.Info("function bound to tail-call form",
		zap.String("func", funcName),
		zap.String("unit", rec.Name),
		zap.Int("sites", rec.Sites))
	return u, nil
}

func (r *Runtime) rewrite(ctx context.Context, wasm []byte, funcName, key string) (store.Unit, *tailcall.Report, error) {
	out, report, err := tailcall.TransformFunc(wasm, funcName, r.log)
	if err != nil {
		return store.Unit{}, nil, err
	}
	fr, ok := report.Func(funcName)
	if !ok {
		return store.Unit{}, report, errors.NotFound(errors.PhaseRewrite, "function", funcName)
	}
	if fr.Skipped != nil {
		return store.Unit{}, report, fr.Skipped
	}
	if fr.Sites == 0 {
		b := errors.New(errors.PhaseRewrite, errors.KindNoTailCallPattern).
			Func(funcName).
			Detail("no rewritable tail call")
		if n := len(fr.Rejections); n > 1 {
			// The last rejection only summarizes; the one before names
			// the reason of the final candidate.
			b = b.Cause(fr.Rejections[n-2])
		}
		return store.Unit{}, report, b.Build()
	}

	rec := store.Unit{
		Name:      store.NewUnitName(),
		Key:       key,
		Func:      funcName,
		Wasm:      out,
		Sites:     fr.Sites,
		CreatedAt: time.Now().UTC(),
	}
	if err := r.store.Put(ctx, rec); err != nil {
		return store.Unit{}, report, err
	}
	// Bind what was persisted, not what was produced in memory.
	persisted, err := r.store.Load(ctx, rec.Name)
	if err != nil {
		return store.Unit{}, report, err
	}
	return persisted, report, nil
}

// Load binds the original, unrewritten function.
func (r *Runtime) Load(ctx context.Context, wasm []byte, funcName string) (*Unit, error) {
	key := "original:" + store.Key(wasm, funcName)
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.units[key]; ok {
		return u, nil
	}
	u, err := r.bind(ctx, "original-"+funcName, key, funcName, wasm)
	if err != nil {
		return nil, err
	}
	r.units[key] = u
	return u, nil
}

func (r *Runtime) bind(ctx context.Context, name, key, funcName string, wasm []byte) (*Unit, error) {
	mod, err := r.engine.LoadModule(ctx, wasm)
	if err != nil {
		return nil, err
	}
	def, ok := mod.ExportedFunction(funcName)
	if !ok {
		return nil, multierr.Append(
			errors.NotFound(errors.PhaseBind, "exported function", funcName),
			mod.Close(ctx))
	}
	inst, err := mod.Instantiate(ctx)
	if err != nil {
		return nil, multierr.Append(err, mod.Close(ctx))
	}
	return &Unit{
		Name:     name,
		Key:      key,
		Func:     funcName,
		Wasm:     wasm,
		def:      def,
		module:   mod,
		instance: inst,
	}, nil
}

// Units returns the bound units sorted by name.
func (r *Runtime) Units() []*Unit {
	r.mu.Lock()
	defer r.mu.Unlock()
	units := make([]*Unit, 0, len(r.units))
	for _, u := range r.units {
		units = append(units, u)
	}
	sort.Slice(units, func(i, j int) bool { return units[i].Name < units[j].Name })
	return units
}

// Close releases every unit, the engine and a store opened by the runtime.
func (r *Runtime) Close(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var err error
	for key, u := range r.units {
		err = multierr.Append(err, u.close(ctx))
		delete(r.units, key)
	}
	err = multierr.Append(err, r.engine.Close(ctx))
	if r.ownsStore {
		err = multierr.Append(err, r.store.Close())
	}
	return err
}
