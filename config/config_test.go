package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/wasm-tailcall/engine"
	"github.com/wippyai/wasm-tailcall/errors"
	"github.com/wippyai/wasm-tailcall/store"
)

func write(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func env(vars map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := vars[k]
		return v, ok
	}
}

const tomlConfig = `
[engine]
kind = "interpreter"
disable-tail-calls = true
memory-limit-pages = 16

[store]
kind = "file"
path = "units"

[log]
level = "debug"
`

const yamlConfig = `
engine:
  kind: interpreter
  disable-tail-calls: true
  memory-limit-pages: 16
store:
  kind: file
  path: units
log:
  level: debug
`

func TestLoad(t *testing.T) {
	for name, content := range map[string]string{
		"tailcall.toml": tomlConfig,
		"tailcall.yaml": yamlConfig,
		"tailcall.yml":  yamlConfig,
	} {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			path := write(t, dir, name, content)

			cfg, err := Load(path)
			require.NoError(t, err)
			assert.Equal(t, path, cfg.Path)
			assert.Equal(t, "interpreter", cfg.Engine.Kind)
			assert.True(t, cfg.Engine.DisableTailCalls)
			assert.Equal(t, uint32(16), cfg.Engine.MemoryLimitPages)
			assert.Equal(t, "file", cfg.Store.Kind)
			assert.Equal(t, filepath.Join(dir, "units"), cfg.Store.Path)
			assert.Equal(t, "debug", cfg.Log.Level)
		})
	}
}

func TestLoadKeepsDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(write(t, dir, "partial.toml", "[log]\nlevel = \"info\"\n"))
	require.NoError(t, err)
	assert.Equal(t, "auto", cfg.Engine.Kind)
	assert.Equal(t, "memory", cfg.Store.Kind)
	assert.Equal(t, "info", cfg.Log.Level)

	cfg, err = Load(write(t, dir, "empty.yaml", ""))
	require.NoError(t, err)
	assert.Equal(t, Default().Engine, cfg.Engine)
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		file    string
		content string
		kind    errors.Kind
	}{
		{"unknown toml key", "a.toml", "[engine]\nknd = \"compiler\"\n", errors.KindInvalidInput},
		{"unknown yaml key", "a.yaml", "engine:\n  knd: compiler\n", errors.KindInvalidData},
		{"bad toml", "b.toml", "[engine\n", errors.KindInvalidData},
		{"bad engine", "c.toml", "[engine]\nkind = \"jit\"\n", errors.KindInvalidInput},
		{"bad store", "d.yaml", "store:\n  kind: redis\n", errors.KindInvalidInput},
		{"sqlite without path", "e.yaml", "store:\n  kind: sqlite\n", errors.KindInvalidInput},
		{"bad level", "f.toml", "[log]\nlevel = \"loud\"\n", errors.KindInvalidInput},
		{"format", "g.json", "{}", errors.KindInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(write(t, dir, tt.file, tt.content))
			var e *errors.Error
			require.ErrorAs(t, err, &e)
			assert.Equal(t, errors.PhaseConfig, e.Phase)
			assert.Equal(t, tt.kind, e.Kind)
		})
	}

	_, err := Load(filepath.Join(dir, "missing.toml"))
	var e *errors.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, errors.KindNotFound, e.Kind)
}

func TestFindAndLoad(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	write(t, root, "tailcall.toml", "[engine]\nkind = \"compiler\"\n")

	cfg, err := FindAndLoad(nested)
	require.NoError(t, err)
	assert.Equal(t, "compiler", cfg.Engine.Kind)
	assert.Equal(t, filepath.Join(root, "tailcall.toml"), cfg.Path)
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(env(map[string]string{
		EnvEngine:           "interpreter",
		EnvDisableTailCalls: "1",
		EnvStore:            "sqlite",
		EnvStorePath:        "/tmp/units.db",
		EnvLogLevel:         "error",
		EnvCacheDir:         "/tmp/cache",
	}))
	require.NoError(t, err)
	assert.Equal(t, "interpreter", cfg.Engine.Kind)
	assert.True(t, cfg.Engine.DisableTailCalls)
	assert.Equal(t, "sqlite", cfg.Store.Kind)
	assert.Equal(t, "/tmp/units.db", cfg.Store.Path)
	assert.Equal(t, "error", cfg.Log.Level)
	assert.Equal(t, "/tmp/cache", cfg.Engine.CompilationCacheDir)

	assert.Error(t, Default().ApplyEnv(env(map[string]string{EnvDisableTailCalls: "maybe"})))
	assert.Error(t, Default().ApplyEnv(env(map[string]string{EnvEngine: "jit"})))
}

func TestApplyEnvFromProcess(t *testing.T) {
	t.Setenv(EnvEngine, "compiler")
	cfg := Default()
	require.NoError(t, cfg.ApplyEnv(nil))
	assert.Equal(t, "compiler", cfg.Engine.Kind)
}

func TestRuntime(t *testing.T) {
	cfg := Default()
	cfg.Engine.Kind = "Interpreter"
	cfg.Engine.DisableTailCalls = true
	cfg.Store = Store{Kind: "file", Path: "/var/units"}

	rc, err := cfg.Runtime(nil)
	require.NoError(t, err)
	assert.Equal(t, engine.KindInterpreter, rc.Engine.Engine)
	assert.True(t, rc.Engine.DisableTailCalls)
	assert.Equal(t, store.Config{Kind: store.KindFile, Path: "/var/units"}, rc.StoreConfig)
}

func TestNewLogger(t *testing.T) {
	cfg := Default()
	cfg.Log.Level = "debug"
	log, err := cfg.NewLogger()
	require.NoError(t, err)
	assert.True(t, log.Core().Enabled(-1))

	cfg.Log = Log{Level: "error", Development: true}
	log, err = cfg.NewLogger()
	require.NoError(t, err)
	assert.False(t, log.Core().Enabled(1))

	cfg.Log.Level = "loud"
	_, err = cfg.NewLogger()
	assert.Error(t, err)
}
