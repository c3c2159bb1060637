package engine

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/experimental"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-tailcall/errors"
)

// Kind selects the wazero execution engine.
type Kind string

const (
	KindAuto        Kind = "auto"        // compiler where supported, interpreter elsewhere
	KindCompiler    Kind = "compiler"    // native code, tail calls are jumps
	KindInterpreter Kind = "interpreter" // call stack capped at a few thousand frames
)

// ParseKind parses an engine kind. The empty string is KindAuto.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case "":
		return KindAuto, nil
	case KindAuto, KindCompiler, KindInterpreter:
		return k, nil
	default:
		return "", errors.InvalidInput(errors.PhaseConfig, fmt.Sprintf("unknown engine %q", s))
	}
}

// WazeroEngine wraps a wazero runtime configured for tail calls.
type WazeroEngine struct {
	runtime wazero.Runtime
	cache   wazero.CompilationCache
	cfg     Config
}

// Config holds configuration for engine creation
type Config struct {
	Engine Kind

	// CompilationCacheDir persists compiled modules across processes.
	// Empty disables the on-disk cache.
	CompilationCacheDir string

	// MemoryLimitPages sets the maximum memory per instance in pages (64KB each).
	// 0 means default (65536 pages = 4GB).
	MemoryLimitPages uint32

	// DisableTailCalls turns the tail-call proposal off. Modules containing
	// return_call then fail to compile.
	DisableTailCalls bool
}

// NewWazeroEngine creates a new wazero-based engine
func NewWazeroEngine(ctx context.Context) (*WazeroEngine, error) {
	return NewWazeroEngineWithConfig(ctx, nil)
}

// NewWazeroEngineWithConfig creates a new engine with custom configuration
func NewWazeroEngineWithConfig(ctx context.Context, cfg *Config) (*WazeroEngine, error) {
	var c Config
	if cfg != nil {
		c = *cfg
	}
	if c.Engine == "" {
		c.Engine = KindAuto
	}

	var runtimeCfg wazero.RuntimeConfig
	switch c.Engine {
	case KindAuto:
		runtimeCfg = wazero.NewRuntimeConfig()
	case KindCompiler:
		runtimeCfg = wazero.NewRuntimeConfigCompiler()
	case KindInterpreter:
		runtimeCfg = wazero.NewRuntimeConfigInterpreter()
	default:
		return nil, errors.InvalidInput(errors.PhaseConfig, fmt.Sprintf("unknown engine %q", c.Engine))
	}

	features := api.CoreFeaturesV2
	if !c.DisableTailCalls {
		features |= experimental.CoreFeaturesTailCall
	}
	runtimeCfg = runtimeCfg.WithCoreFeatures(features)
	if c.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(c.MemoryLimitPages)
	}

	e := &WazeroEngine{cfg: c}
	if c.CompilationCacheDir != "" {
		cache, err := wazero.NewCompilationCacheWithDir(c.CompilationCacheDir)
		if err != nil {
			return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "compilation cache")
		}
		e.cache = cache
		runtimeCfg = runtimeCfg.WithCompilationCache(cache)
	}

	e.runtime = wazero.NewRuntimeWithConfig(ctx, runtimeCfg)
	Logger().Debug("wazero runtime created",
		zap.String("engine", string(c.Engine)),
		zap.Bool("tail_calls", !c.DisableTailCalls))
	return e, nil
}

// Kind returns the configured engine kind.
func (e *WazeroEngine) Kind() Kind {
	return e.cfg.Engine
}

// TailCalls reports whether return_call is accepted.
func (e *WazeroEngine) TailCalls() bool {
	return !e.cfg.DisableTailCalls
}

// LoadModule compiles a core module.
func (e *WazeroEngine) LoadModule(ctx context.Context, wasmBytes []byte) (*WazeroModule, error) {
	compiled, err := e.runtime.CompileModule(ctx, wasmBytes)
	if err != nil {
		return nil, errors.Load("compile failed", err)
	}
	return &WazeroModule{
		engine:   e,
		compiled: compiled,
	}, nil
}

// Close closes the runtime and every module it instantiated.
func (e *WazeroEngine) Close(ctx context.Context) error {
	err := e.runtime.Close(ctx)
	if e.cache != nil {
		err = multierr.Append(err, e.cache.Close(ctx))
	}
	return err
}

// WazeroModule is a compiled module that can create instances.
type WazeroModule struct {
	engine   *WazeroEngine
	compiled wazero.CompiledModule
}

// ExportNames returns the names of the exported functions, sorted.
func (m *WazeroModule) ExportNames() []string {
	defs := m.compiled.ExportedFunctions()
	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ExportedFunction returns the definition of an exported function.
func (m *WazeroModule) ExportedFunction(name string) (api.FunctionDefinition, bool) {
	def, ok := m.compiled.ExportedFunctions()[name]
	return def, ok
}

// InstanceConfig holds configuration for module instantiation
type InstanceConfig struct {
	Name string
}

// Instantiate creates an anonymous instance.
func (m *WazeroModule) Instantiate(ctx context.Context) (*WazeroInstance, error) {
	return m.InstantiateWithConfig(ctx, nil)
}

// InstantiateWithConfig creates an instance with custom configuration
func (m *WazeroModule) InstantiateWithConfig(ctx context.Context, cfg *InstanceConfig) (*WazeroInstance, error) {
	modConfig := wazero.NewModuleConfig()
	if cfg != nil && cfg.Name != "" {
		modConfig = modConfig.WithName(cfg.Name)
	} else {
		modConfig = modConfig.WithName("") // anonymous for parallel instantiation
	}

	instance, err := m.engine.runtime.InstantiateModule(ctx, m.compiled, modConfig)
	if err != nil {
		return nil, errors.Instantiation(err)
	}
	return &WazeroInstance{
		module:    m,
		instance:  instance,
		funcCache: make(map[string]api.Function),
	}, nil
}

// Close releases the compiled module.
func (m *WazeroModule) Close(ctx context.Context) error {
	return m.compiled.Close(ctx)
}

// WazeroInstance is an instantiated module. Calls are serialized because
// wazero functions are not safe for concurrent use.
type WazeroInstance struct {
	instance  api.Module
	module    *WazeroModule
	funcCache map[string]api.Function
	mu        sync.Mutex
}

// Module returns the compiled module of the instance.
func (i *WazeroInstance) Module() *WazeroModule {
	return i.module
}

func (i *WazeroInstance) function(name string) (api.Function, error) {
	if fn, ok := i.funcCache[name]; ok {
		return fn, nil
	}
	if i.instance == nil {
		return nil, errors.New(errors.PhaseRuntime, errors.KindInvalidInput).Detail("instance closed").Build()
	}
	fn := i.instance.ExportedFunction(name)
	if fn == nil {
		return nil, errors.NotFound(errors.PhaseRuntime, "function", name)
	}
	i.funcCache[name] = fn
	return fn, nil
}

// Call invokes an exported function with raw core values.
func (i *WazeroInstance) Call(ctx context.Context, name string, params ...uint64) ([]uint64, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	fn, err := i.function(name)
	if err != nil {
		return nil, err
	}
	results, err := fn.Call(ctx, params...)
	if err != nil {
		return nil, errors.New(errors.PhaseRuntime, errors.KindInvalidData).Func(name).Cause(err).Build()
	}
	return results, nil
}

// CallWithSignature lowers Go values according to sig, calls the function
// and lifts its results.
func (i *WazeroInstance) CallWithSignature(ctx context.Context, name string, sig *Signature, params ...any) ([]any, error) {
	flat, err := sig.Lower(params)
	if err != nil {
		return nil, err
	}
	raw, err := i.Call(ctx, name, flat...)
	if err != nil {
		return nil, err
	}
	return sig.Lift(raw)
}

// Close closes the instance.
func (i *WazeroInstance) Close(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.instance == nil {
		return nil
	}
	err := i.instance.Close(ctx)
	i.instance = nil
	i.funcCache = nil
	return err
}

// IsStackOverflow reports whether a call failed because the guest
// exhausted the call stack.
func IsStackOverflow(err error) bool {
	return err != nil && strings.Contains(err.Error(), "stack overflow")
}
