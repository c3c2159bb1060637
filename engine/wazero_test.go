package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/wippyai/wasm-tailcall/errors"
	"github.com/wippyai/wasm-tailcall/internal/sample"
	"github.com/wippyai/wasm-tailcall/tailcall"
)

func TestParseKind(t *testing.T) {
	tests := []struct {
		in      string
		want    Kind
		wantErr bool
	}{
		{"", KindAuto, false},
		{"auto", KindAuto, false},
		{"Compiler", KindCompiler, false},
		{" interpreter ", KindInterpreter, false},
		{"jit", "", true},
	}
	for _, tt := range tests {
		got, err := ParseKind(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestNewWazeroEngineWithConfig(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		cfg  *Config
		name string
	}{
		{nil, "nil config"},
		{&Config{}, "default config"},
		{&Config{Engine: KindInterpreter}, "interpreter"},
		{&Config{MemoryLimitPages: 256}, "16MB limit"},
		{&Config{DisableTailCalls: true}, "no tail calls"},
		{&Config{CompilationCacheDir: t.TempDir()}, "compilation cache"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			eng, err := NewWazeroEngineWithConfig(ctx, tc.cfg)
			require.NoError(t, err)
			assert.NotNil(t, eng.runtime)
			assert.Equal(t, tc.cfg == nil || !tc.cfg.DisableTailCalls, eng.TailCalls())
			require.NoError(t, eng.Close(ctx))
		})
	}

	_, err := NewWazeroEngineWithConfig(ctx, &Config{Engine: "jit"})
	assert.Error(t, err)
}

func rewrittenSum(t *testing.T) []byte {
	t.Helper()
	out, _, err := tailcall.Transform(sample.Sum(), tailcall.Config{})
	require.NoError(t, err)
	return out
}

func TestLoadAndCall(t *testing.T) {
	ctx := context.Background()
	eng, err := NewWazeroEngineWithConfig(ctx, &Config{Engine: KindInterpreter})
	require.NoError(t, err)
	defer eng.Close(ctx)

	mod, err := eng.LoadModule(ctx, rewrittenSum(t))
	require.NoError(t, err)
	assert.Equal(t, []string{sample.SumName}, mod.ExportNames())

	def, ok := mod.ExportedFunction(sample.SumName)
	require.True(t, ok)
	assert.Len(t, def.ParamTypes(), 2)

	inst, err := mod.Instantiate(ctx)
	require.NoError(t, err)
	defer inst.Close(ctx)

	res, err := inst.Call(ctx, sample.SumName, 50000, 0)
	require.NoError(t, err)
	assert.Equal(t, []uint64{sample.Expected(50000, 0)}, res)

	_, err = inst.Call(ctx, "missing")
	var e *errors.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, errors.KindNotFound, e.Kind)
}

func TestStackOverflowWithoutTailCall(t *testing.T) {
	ctx := context.Background()
	eng, err := NewWazeroEngineWithConfig(ctx, &Config{Engine: KindInterpreter})
	require.NoError(t, err)
	defer eng.Close(ctx)

	mod, err := eng.LoadModule(ctx, sample.Sum())
	require.NoError(t, err)
	inst, err := mod.Instantiate(ctx)
	require.NoError(t, err)

	_, err = inst.Call(ctx, sample.SumName, 50000, 0)
	require.Error(t, err)
	assert.True(t, IsStackOverflow(err), err.Error())
	assert.False(t, IsStackOverflow(nil))
}

func TestDisableTailCallsRejectsReturnCall(t *testing.T) {
	ctx := context.Background()
	eng, err := NewWazeroEngineWithConfig(ctx, &Config{DisableTailCalls: true})
	require.NoError(t, err)
	defer eng.Close(ctx)

	_, err = eng.LoadModule(ctx, rewrittenSum(t))
	var e *errors.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, errors.PhaseLoad, e.Phase)

	_, err = eng.LoadModule(ctx, sample.Sum())
	assert.NoError(t, err, "modules without tail calls still compile")
}

func TestCallWithSignature(t *testing.T) {
	ctx := context.Background()
	eng, err := NewWazeroEngine(ctx)
	require.NoError(t, err)
	defer eng.Close(ctx)

	mod, err := eng.LoadModule(ctx, rewrittenSum(t))
	require.NoError(t, err)
	inst, err := mod.InstantiateWithConfig(ctx, &InstanceConfig{Name: "sum"})
	require.NoError(t, err)
	defer inst.Close(ctx)

	sig, err := ParseSignature("func(n: u64, acc: u64) -> u64")
	require.NoError(t, err)
	def, _ := mod.ExportedFunction(sample.SumName)
	require.NoError(t, sig.Check(def))

	out, err := inst.CallWithSignature(ctx, sample.SumName, sig, 100, uint64(5))
	require.NoError(t, err)
	assert.Equal(t, []any{sample.Expected(100, 5)}, out)
}

func TestInstanceClosed(t *testing.T) {
	ctx := context.Background()
	eng, err := NewWazeroEngine(ctx)
	require.NoError(t, err)
	defer eng.Close(ctx)

	mod, err := eng.LoadModule(ctx, sample.Sum())
	require.NoError(t, err)
	inst, err := mod.Instantiate(ctx)
	require.NoError(t, err)
	require.NoError(t, inst.Close(ctx))
	require.NoError(t, inst.Close(ctx))

	_, err = inst.Call(ctx, sample.SumName, 1, 0)
	assert.Error(t, err)
}

func TestSetLogger(t *testing.T) {
	assert.NotNil(t, Logger())
	l := zap.NewExample()
	SetLogger(l)
	assert.Same(t, l, Logger())
	SetLogger(nil)
	assert.NotNil(t, Logger())
}
