package store

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/wippyai/wasm-tailcall/errors"
)

const (
	wasmExt = ".wasm"
	metaExt = ".yaml"
)

// File stores each unit as <name>.wasm next to a <name>.yaml metadata file.
type File struct {
	dir       string
	temporary bool
	mu        sync.Mutex
}

// OpenFile opens a file store in dir, creating it if needed. An empty dir
// creates a temporary directory that Close removes.
func OpenFile(dir string) (*File, error) {
	if dir == "" {
		tmp, err := os.MkdirTemp("", "tailcall-")
		if err != nil {
			return nil, errors.Wrap(errors.PhaseStore, errors.KindInvalidInput, err, "create temporary directory")
		}
		return &File{dir: tmp, temporary: true}, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(errors.PhaseStore, errors.KindInvalidInput, err, "create store directory")
	}
	return &File{dir: dir}, nil
}

// Dir returns the store directory.
func (f *File) Dir() string {
	return f.dir
}

func (f *File) path(name, ext string) string {
	return filepath.Join(f.dir, name+ext)
}

func (f *File) Put(_ context.Context, u Unit) error {
	if err := validate(u); err != nil {
		return err
	}
	meta, err := yaml.Marshal(u)
	if err != nil {
		return errors.Wrap(errors.PhaseStore, errors.KindInvalidData, err, "encode metadata")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	// The module is written first so a visible metadata file always has
	// its module.
	if err := writeFile(f.path(u.Name, wasmExt), u.Wasm); err != nil {
		return err
	}
	return writeFile(f.path(u.Name, metaExt), meta)
}

func writeFile(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.Wrap(errors.PhaseStore, errors.KindInvalidData, err, "write "+filepath.Base(path))
	}
	if err := os.Rename(tmp, path); err != nil {
		return errors.Wrap(errors.PhaseStore, errors.KindInvalidData, err, "rename "+filepath.Base(path))
	}
	return nil
}

func (f *File) Lookup(ctx context.Context, key string) (Unit, bool, error) {
	units, err := f.List(ctx)
	if err != nil {
		return Unit{}, false, err
	}
	for i := len(units) - 1; i >= 0; i-- {
		if units[i].Key == key {
			u, err := f.Load(ctx, units[i].Name)
			return u, err == nil, err
		}
	}
	return Unit{}, false, nil
}

func (f *File) Load(_ context.Context, name string) (Unit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, err := f.readMeta(name)
	if err != nil {
		return Unit{}, err
	}
	u.Wasm, err = os.ReadFile(f.path(name, wasmExt))
	if err != nil {
		return Unit{}, errors.Wrap(errors.PhaseStore, errors.KindInvalidData, err, "read module of "+name)
	}
	return u, nil
}

func (f *File) readMeta(name string) (Unit, error) {
	data, err := os.ReadFile(f.path(name, metaExt))
	if os.IsNotExist(err) {
		return Unit{}, notFound(name)
	}
	if err != nil {
		return Unit{}, errors.Wrap(errors.PhaseStore, errors.KindInvalidData, err, "read metadata of "+name)
	}
	var u Unit
	if err := yaml.Unmarshal(data, &u); err != nil {
		return Unit{}, errors.Wrap(errors.PhaseStore, errors.KindInvalidData, err, "decode metadata of "+name)
	}
	return u, nil
}

// List returns unit metadata without module bytes, oldest first.
func (f *File) List(_ context.Context) ([]Unit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseStore, errors.KindInvalidData, err, "read store directory")
	}
	var units []Unit
	for _, e := range entries {
		name, ok := strings.CutSuffix(e.Name(), metaExt)
		if !ok || e.IsDir() {
			continue
		}
		u, err := f.readMeta(name)
		if err != nil {
			return nil, err
		}
		units = append(units, u)
	}
	sort.SliceStable(units, func(i, j int) bool {
		return units[i].CreatedAt.Before(units[j].CreatedAt)
	})
	return units, nil
}

// Close removes a temporary store directory.
func (f *File) Close() error {
	if !f.temporary {
		return nil
	}
	if err := os.RemoveAll(f.dir); err != nil {
		return errors.Wrap(errors.PhaseStore, errors.KindInvalidData, err, "remove temporary directory")
	}
	return nil
}
