package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wippyai/wasm-tailcall/errors"
)

// Unit is a persisted rewritten module.
type Unit struct {
	CreatedAt time.Time `yaml:"created_at"`
	// Name is unique per rewrite, e.g. "rewritten-<uuid>".
	Name string `yaml:"name"`
	// Key identifies the input module and function, see Key.
	Key   string `yaml:"key"`
	Func  string `yaml:"func"`
	Wasm  []byte `yaml:"-"`
	Sites int    `yaml:"sites"`
}

// Store persists rewritten units so they can be reloaded by key.
type Store interface {
	// Put persists a unit. A unit with the same name is replaced.
	Put(ctx context.Context, u Unit) error
	// Lookup returns the most recent unit stored under key.
	Lookup(ctx context.Context, key string) (Unit, bool, error)
	// Load returns the unit with the given name.
	Load(ctx context.Context, name string) (Unit, error)
	// List returns every unit, oldest first.
	List(ctx context.Context) ([]Unit, error)
	Close() error
}

// Key derives the lookup key of a function in a module.
func Key(wasm []byte, funcName string) string {
	sum := sha256.Sum256(wasm)
	return hex.EncodeToString(sum[:]) + ":" + funcName
}

// NewUnitName returns a fresh unit name.
func NewUnitName() string {
	return "rewritten-" + uuid.NewString()
}

// Kind selects a store implementation.
type Kind string

const (
	KindMemory Kind = "memory"
	KindFile   Kind = "file"
	KindSQLite Kind = "sqlite"
)

// Config configures Open.
type Config struct {
	Kind Kind
	// Path is the directory of a file store or the database of a SQLite
	// store. An empty file store path uses a temporary directory that is
	// removed on Close.
	Path string
}

// Open creates the configured store. The zero Config is a memory store.
func Open(cfg Config) (Store, error) {
	switch Kind(strings.ToLower(string(cfg.Kind))) {
	case "", KindMemory:
		return NewMemory(), nil
	case KindFile:
		return OpenFile(cfg.Path)
	case KindSQLite:
		if cfg.Path == "" {
			return nil, errors.InvalidInput(errors.PhaseStore, "sqlite store requires a path")
		}
		return OpenSQLite(cfg.Path)
	default:
		return nil, errors.InvalidInput(errors.PhaseStore, fmt.Sprintf("unknown store %q", cfg.Kind))
	}
}

func validate(u Unit) error {
	if u.Name == "" {
		return errors.InvalidInput(errors.PhaseStore, "unit has no name")
	}
	if u.Key == "" {
		return errors.InvalidInput(errors.PhaseStore, fmt.Sprintf("unit %s has no key", u.Name))
	}
	if strings.ContainsAny(u.Name, `/\`) {
		return errors.InvalidInput(errors.PhaseStore, fmt.Sprintf("invalid unit name %q", u.Name))
	}
	return nil
}

func notFound(name string) error {
	return errors.NotFound(errors.PhaseStore, "unit", name)
}
