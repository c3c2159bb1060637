// Package config loads tailcall configuration from a TOML or YAML file and
// TAILCALL_* environment variables.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/wasm-tailcall/engine"
	"github.com/wippyai/wasm-tailcall/errors"
	"github.com/wippyai/wasm-tailcall/runtime"
	"github.com/wippyai/wasm-tailcall/store"
)

// FileNames are searched, in order, by FindAndLoad.
var FileNames = []string{"tailcall.toml", "tailcall.yaml", "tailcall.yml"}

// Config is the file representation of a runtime configuration.
type Config struct {
	Engine Engine `toml:"engine" yaml:"engine"`
	Store  Store  `toml:"store" yaml:"store"`
	Log    Log    `toml:"log" yaml:"log"`

	// Path is the file the configuration was read from (set at load time).
	Path string `toml:"-" yaml:"-"`
}

// Engine configures wazero.
type Engine struct {
	Kind                string `toml:"kind" yaml:"kind"`
	CompilationCacheDir string `toml:"compilation-cache-dir" yaml:"compilation-cache-dir"`
	MemoryLimitPages    uint32 `toml:"memory-limit-pages" yaml:"memory-limit-pages"`
	DisableTailCalls    bool   `toml:"disable-tail-calls" yaml:"disable-tail-calls"`
}

// Store configures persistence of rewritten units.
type Store struct {
	Kind string `toml:"kind" yaml:"kind"`
	Path string `toml:"path" yaml:"path"`
}

// Log configures the zap logger.
type Log struct {
	Level       string `toml:"level" yaml:"level"`
	Development bool   `toml:"development" yaml:"development"`
}

// Default returns the configuration used without a file.
func Default() *Config {
	return &Config{
		Engine: Engine{Kind: string(engine.KindAuto)},
		Store:  Store{Kind: string(store.KindMemory)},
		Log:    Log{Level: "warn"},
	}
}

// Load reads a configuration file. The format follows the extension:
// .toml, or .yaml and .yml. Unknown keys are errors.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindNotFound, err, "read "+path)
	}

	cfg := Default()
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		md, err := toml.Decode(string(data), cfg)
		if err != nil {
			return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidData, err, "parse "+path)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, errors.InvalidInput(errors.PhaseConfig,
				fmt.Sprintf("%s: unknown key %q", path, undecoded[0].String()))
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		// An empty document decodes to io.EOF and keeps the defaults.
		if err := dec.Decode(cfg); err != nil && len(bytes.TrimSpace(data)) > 0 {
			return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidData, err, "parse "+path)
		}
	default:
		return nil, errors.InvalidInput(errors.PhaseConfig, fmt.Sprintf("unsupported config format %q", ext))
	}

	if cfg.Store.Path != "" && !filepath.IsAbs(cfg.Store.Path) {
		cfg.Store.Path = filepath.Join(filepath.Dir(path), cfg.Store.Path)
	}
	cfg.Path = path
	return cfg, cfg.Validate()
}

// FindAndLoad walks up from dir looking for one of FileNames. It returns
// the defaults when no file is found.
func FindAndLoad(dir string) (*Config, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "resolve "+dir)
	}
	for {
		for _, name := range FileNames {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				return Load(path)
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return Default(), nil
		}
		dir = parent
	}
}

// Environment variables read by ApplyEnv.
const (
	EnvEngine           = "TAILCALL_ENGINE"
	EnvCacheDir         = "TAILCALL_COMPILATION_CACHE_DIR"
	EnvDisableTailCalls = "TAILCALL_DISABLE_TAIL_CALLS"
	EnvStore            = "TAILCALL_STORE"
	EnvStorePath        = "TAILCALL_STORE_PATH"
	EnvLogLevel         = "TAILCALL_LOG_LEVEL"
)

// ApplyEnv overrides fields from the environment. lookup defaults to
// os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if v, ok := lookup(EnvEngine); ok {
		c.Engine.Kind = v
	}
	if v, ok := lookup(EnvCacheDir); ok {
		c.Engine.CompilationCacheDir = v
	}
	if v, ok := lookup(EnvDisableTailCalls); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
				Value(v).
				Cause(err).
				Detail("%s", EnvDisableTailCalls).
				Build()
		}
		c.Engine.DisableTailCalls = b
	}
	if v, ok := lookup(EnvStore); ok {
		c.Store.Kind = v
	}
	if v, ok := lookup(EnvStorePath); ok {
		c.Store.Path = v
	}
	if v, ok := lookup(EnvLogLevel); ok {
		c.Log.Level = v
	}
	return c.Validate()
}

// Validate checks the enumerated fields.
func (c *Config) Validate() error {
	if _, err := engine.ParseKind(c.Engine.Kind); err != nil {
		return err
	}
	switch store.Kind(strings.ToLower(c.Store.Kind)) {
	case "", store.KindMemory, store.KindFile:
	case store.KindSQLite:
		if c.Store.Path == "" {
			return errors.InvalidInput(errors.PhaseConfig, "sqlite store requires a path")
		}
	default:
		return errors.InvalidInput(errors.PhaseConfig, fmt.Sprintf("unknown store %q", c.Store.Kind))
	}
	if _, err := zapcore.ParseLevel(c.levelOrDefault()); err != nil {
		return errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "log level")
	}
	return nil
}

func (c *Config) levelOrDefault() string {
	if c.Log.Level == "" {
		return "warn"
	}
	return c.Log.Level
}

// Runtime converts the configuration into runtime options.
func (c *Config) Runtime(log *zap.Logger) (runtime.Config, error) {
	kind, err := engine.ParseKind(c.Engine.Kind)
	if err != nil {
		return runtime.Config{}, err
	}
	return runtime.Config{
		Logger: log,
		Engine: engine.Config{
			Engine:              kind,
			CompilationCacheDir: c.Engine.CompilationCacheDir,
			MemoryLimitPages:    c.Engine.MemoryLimitPages,
			DisableTailCalls:    c.Engine.DisableTailCalls,
		},
		StoreConfig: store.Config{
			Kind: store.Kind(c.Store.Kind),
			Path: c.Store.Path,
		},
	}, nil
}

// NewLogger builds a console logger writing to stderr at the configured
// level.
func (c *Config) NewLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.levelOrDefault())
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "log level")
	}

	zc := zap.NewProductionConfig()
	if c.Log.Development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.Encoding = "console"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zc.OutputPaths = []string{"stderr"}
	zc.ErrorOutputPaths = []string{"stderr"}

	log, err := zc.Build()
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "build logger")
	}
	return log, nil
}
