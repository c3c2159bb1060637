package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/wasm-tailcall/internal/sample"
	"github.com/wippyai/wasm-tailcall/tailcall"
)

func writeModule(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "tailcall", cmd.Use)

	for _, name := range []string{"rewrite", "dis", "run", "demo", "inspect"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"config", "engine", "log-level", "no-tail-calls"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), name)
	}
	assert.Equal(t, "c", cmd.PersistentFlags().Lookup("config").Shorthand)
}

func TestRewriteCommand(t *testing.T) {
	in := writeModule(t, "sum.wasm", sample.Sum())

	out, err := execute(t, "rewrite", in)
	require.NoError(t, err)
	assert.Contains(t, out, "sum: 1 site(s) rewritten")
	assert.Contains(t, out, "1 site(s) in 1 function(s)")

	path := filepath.Join(filepath.Dir(in), "sum.tail.wasm")
	assert.Contains(t, out, "wrote "+path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	rewritten, err := tailcall.IsRewritten(data, sample.SumName)
	require.NoError(t, err)
	assert.True(t, rewritten)
}

func TestRewriteCommandSelectsFunctions(t *testing.T) {
	in := writeModule(t, "all.wasm", sample.All())
	target := filepath.Join(t.TempDir(), "out.wasm")

	out, err := execute(t, "rewrite", in, "-o", target, "--func", "multi*", "--func", "outer")
	require.NoError(t, err)
	assert.Contains(t, out, "multi_exit: 1 site(s) rewritten")
	assert.Contains(t, out, "outer: unchanged")
	assert.Contains(t, out, "not_self_recursive")
	assert.NotContains(t, out, "sum:")

	_, err = os.Stat(target)
	require.NoError(t, err)
}

func TestRewriteCommandDryRun(t *testing.T) {
	in := writeModule(t, "sum.wasm", sample.Sum())
	_, err := execute(t, "rewrite", in, "--dry-run")
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(filepath.Dir(in), "sum.tail.wasm"))
	assert.True(t, os.IsNotExist(err))
}

func TestRewriteCommandErrors(t *testing.T) {
	_, err := execute(t, "rewrite", filepath.Join(t.TempDir(), "missing.wasm"))
	assert.Error(t, err)

	_, err = execute(t, "rewrite", writeModule(t, "bad.wasm", []byte("junk")))
	assert.Error(t, err)

	_, err = execute(t, "rewrite")
	assert.Error(t, err)
}

func TestDisCommand(t *testing.T) {
	in := writeModule(t, "sum.wasm", sample.Sum())

	out, err := execute(t, "dis", in)
	require.NoError(t, err)
	assert.Equal(t, "sum\n", out)

	out, err = execute(t, "dis", in, "--func", "sum")
	require.NoError(t, err)
	want, err := tailcall.Listing(sample.Sum(), sample.SumName)
	require.NoError(t, err)
	assert.Equal(t, want, out)

	out, err = execute(t, "dis", in, "--func", "sum", "--rewritten")
	require.NoError(t, err)
	assert.Contains(t, out, "return_call 0")
	assert.NotContains(t, out, "local.set 2")
}

func TestDisCommandMarksRewritten(t *testing.T) {
	data, _, err := tailcall.TransformFunc(sample.Sum(), sample.SumName, nil)
	require.NoError(t, err)
	in := writeModule(t, "tail.wasm", data)

	out, err := execute(t, "dis", in)
	require.NoError(t, err)
	assert.Equal(t, "sum (tail calls)\n", out)
}

func TestRunCommand(t *testing.T) {
	in := writeModule(t, "sum.wasm", sample.Sum())

	out, err := execute(t, "run", in, "--func", "sum", "--arg", "10")
	require.NoError(t, err)
	assert.Contains(t, out, "sum(10, 0) = 55")
	assert.Contains(t, out, "rewritten, 1 site(s)")

	out, err = execute(t, "run", in, "--func", "sum", "--arg", "10", "--acc=-5", "--sig", "func(n: s64, acc: s64) -> s64")
	require.NoError(t, err)
	assert.Contains(t, out, "sum(10, -5) = 50")

	out, err = execute(t, "run", in, "-f", "sum", "-n", "4", "--original")
	require.NoError(t, err)
	assert.Contains(t, out, "sum(4, 0) = 10  [original]")
}

func TestRunCommandFallsBackToOriginal(t *testing.T) {
	in := writeModule(t, "outer.wasm", sample.NonSelf())
	out, err := execute(t, "run", in, "--func", "outer", "--arg", "3", "--acc", "4")
	require.NoError(t, err)
	assert.Contains(t, out, "outer(3, 4) = 7  [original]")
}

func TestRunCommandErrors(t *testing.T) {
	in := writeModule(t, "sum.wasm", sample.Sum())

	_, err := execute(t, "run", in, "--func", "sum")
	assert.Error(t, err, "--arg is required")

	_, err = execute(t, "run", in, "--func", "sum", "--arg", "ten")
	assert.Error(t, err)

	_, err = execute(t, "run", in, "--func", "missing", "--arg", "1")
	assert.Error(t, err)
}

func TestRunCommandNoTailCalls(t *testing.T) {
	in := writeModule(t, "sum.wasm", sample.Sum())
	out, err := execute(t, "--no-tail-calls", "run", in, "--func", "sum", "--arg", "10")
	require.NoError(t, err)
	assert.Contains(t, out, "[original]")
}

func TestDemoCommand(t *testing.T) {
	out, err := execute(t, "--engine", "interpreter", "demo", "--n", "50000")
	require.NoError(t, err)
	assert.Contains(t, out, "engine: interpreter, tail calls: true")
	assert.Contains(t, out, "expected: 1250025000")
	assert.Contains(t, out, "original  sum(50000, 0) failed: stack overflow")
	assert.Contains(t, out, "rewritten sum(50000, 0) = 1250025000")
}

func TestDemoCommandListing(t *testing.T) {
	out, err := execute(t, "demo", "--n", "10", "--listing")
	require.NoError(t, err)
	assert.Contains(t, out, "return_call 0")
	assert.Contains(t, out, "original  sum(10, 0) = 55")
}

func TestConfigPrecedence(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "tailcall.toml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("[engine]\nkind = \"compiler\"\n"), 0o644))

	out, err := execute(t, "--config", cfgPath, "demo", "--n", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "engine: compiler")

	t.Setenv("TAILCALL_ENGINE", "interpreter")
	out, err = execute(t, "--config", cfgPath, "demo", "--n", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "engine: interpreter")

	out, err = execute(t, "--config", cfgPath, "--engine", "compiler", "demo", "--n", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "engine: compiler")

	_, err = execute(t, "--engine", "jit", "demo")
	assert.Error(t, err)
}

func TestInspectModel(t *testing.T) {
	opts := &RootOptions{}
	require.NoError(t, opts.load(NewRootCommand()))

	m := newInspectModel(opts, writeModule(t, "all.wasm", sample.All()))
	defer m.close()
	assert.Equal(t, "Loading module...", m.View())

	msg := m.load()
	m.Update(msg)
	require.NoError(t, m.err)
	names := make([]string, len(m.funcs))
	for i, f := range m.funcs {
		names[i] = f.name
	}
	assert.Equal(t, []string{"sum", "multi_exit", "disallowed", "add", "outer"}, names)
	assert.Contains(t, m.View(), "Select a function")

	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.Equal(t, stateInputArgs, m.state)
	require.Len(t, m.inputs, 2)
	m.inputs[0].SetValue("50")
	m.inputs[1].SetValue("0")

	m.Update(m.call())
	require.Equal(t, stateShowResult, m.state)
	require.Len(t, m.results, 2)
	assert.Equal(t, "original", m.results[0].label)
	assert.Equal(t, "1275", m.results[0].result)
	assert.Equal(t, "rewritten (1 site(s))", m.results[1].label)
	assert.Equal(t, "1275", m.results[1].result)
	assert.Contains(t, m.View(), "1275")

	m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	assert.Equal(t, stateSelectFunc, m.state)
	m.Update(tea.KeyMsg{Type: tea.KeyDown})
	m.Update(tea.KeyMsg{Type: tea.KeyDown})
	assert.Equal(t, 2, m.selected)

	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m.inputs[0].SetValue("3")
	m.inputs[1].SetValue("0")
	m.Update(m.call())
	require.Len(t, m.results, 2)
	assert.Equal(t, "6", m.results[0].result)
	assert.Error(t, m.results[1].err)
}

func TestInspectModelLoadError(t *testing.T) {
	opts := &RootOptions{}
	require.NoError(t, opts.load(NewRootCommand()))

	m := newInspectModel(opts, filepath.Join(t.TempDir(), "missing.wasm"))
	m.Update(m.load())
	assert.Error(t, m.err)
	assert.Contains(t, m.View(), "Error")
}
