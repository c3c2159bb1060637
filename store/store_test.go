package store

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/wasm-tailcall/errors"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	file, err := OpenFile(t.TempDir())
	require.NoError(t, err)
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "units.db"))
	require.NoError(t, err)

	all := map[string]Store{
		"memory": NewMemory(),
		"file":   file,
		"sqlite": db,
	}
	t.Cleanup(func() {
		for _, s := range all {
			s.Close()
		}
	})
	return all
}

func unit(key string, created time.Time, wasm string) Unit {
	return Unit{
		Name:      NewUnitName(),
		Key:       key,
		Func:      "sum",
		Wasm:      []byte(wasm),
		Sites:     1,
		CreatedAt: created,
	}
}

func TestStorePutLoad(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			u := unit("k1", base, "\x00asm")
			require.NoError(t, s.Put(ctx, u))

			got, err := s.Load(ctx, u.Name)
			require.NoError(t, err)
			assert.Equal(t, u.Name, got.Name)
			assert.Equal(t, u.Key, got.Key)
			assert.Equal(t, u.Func, got.Func)
			assert.Equal(t, u.Sites, got.Sites)
			assert.Equal(t, u.Wasm, got.Wasm)
			assert.True(t, u.CreatedAt.Equal(got.CreatedAt))

			_, err = s.Load(ctx, "rewritten-missing")
			var e *errors.Error
			require.ErrorAs(t, err, &e)
			assert.Equal(t, errors.KindNotFound, e.Kind)
		})
	}
}

func TestStoreLookupReturnsNewest(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			old := unit("k", base, "old")
			newer := unit("k", base.Add(time.Second), "new")
			other := unit("other", base.Add(2*time.Second), "other")
			for _, u := range []Unit{newer, old, other} {
				require.NoError(t, s.Put(ctx, u))
			}

			got, ok, err := s.Lookup(ctx, "k")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, newer.Name, got.Name)
			assert.Equal(t, []byte("new"), got.Wasm)

			_, ok, err = s.Lookup(ctx, "absent")
			require.NoError(t, err)
			assert.False(t, ok)

			units, err := s.List(ctx)
			require.NoError(t, err)
			require.Len(t, units, 3)
			assert.Equal(t, []string{old.Name, newer.Name, other.Name},
				[]string{units[0].Name, units[1].Name, units[2].Name})
		})
	}
}

func TestStoreReplace(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			u := unit("k", time.Now(), "v1")
			require.NoError(t, s.Put(ctx, u))
			u.Wasm = []byte("v2")
			require.NoError(t, s.Put(ctx, u))

			got, err := s.Load(ctx, u.Name)
			require.NoError(t, err)
			assert.Equal(t, []byte("v2"), got.Wasm)

			units, err := s.List(ctx)
			require.NoError(t, err)
			assert.Len(t, units, 1)
		})
	}
}

func TestStoreRejectsInvalidUnits(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, s.Put(ctx, Unit{Key: "k"}))
			assert.Error(t, s.Put(ctx, Unit{Name: "rewritten-x"}))
			assert.Error(t, s.Put(ctx, Unit{Name: "../escape", Key: "k"}))
		})
	}
}

func TestKey(t *testing.T) {
	a := Key([]byte("module"), "sum")
	assert.Equal(t, a, Key([]byte("module"), "sum"))
	assert.NotEqual(t, a, Key([]byte("module"), "other"))
	assert.NotEqual(t, a, Key([]byte("module2"), "sum"))
	assert.True(t, strings.HasSuffix(a, ":sum"))
	assert.Len(t, strings.TrimSuffix(a, ":sum"), 64)
}

func TestNewUnitName(t *testing.T) {
	a, b := NewUnitName(), NewUnitName()
	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(a, "rewritten-"))
}

func TestTemporaryFileStoreRemovedOnClose(t *testing.T) {
	f, err := OpenFile("")
	require.NoError(t, err)
	dir := f.Dir()
	require.NoError(t, f.Put(context.Background(), unit("k", time.Now(), "x")))
	_, err = os.Stat(filepath.Join(dir))
	require.NoError(t, err)

	require.NoError(t, f.Close())
	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err))
}

func TestFileStorePersistsAcrossOpen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	f, err := OpenFile(dir)
	require.NoError(t, err)
	u := unit("k", time.Now(), "bytes")
	require.NoError(t, f.Put(ctx, u))
	require.NoError(t, f.Close())

	_, err = os.Stat(filepath.Join(dir, u.Name+".wasm"))
	require.NoError(t, err)

	reopened, err := OpenFile(dir)
	require.NoError(t, err)
	got, ok, err := reopened.Lookup(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("bytes"), got.Wasm)
}

func TestSQLitePersistsAcrossOpen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "units.db")
	db, err := OpenSQLite(path)
	require.NoError(t, err)
	u := unit("k", time.Now(), "bytes")
	require.NoError(t, db.Put(ctx, u))
	require.NoError(t, db.Close())

	reopened, err := OpenSQLite(path)
	require.NoError(t, err)
	defer reopened.Close()
	got, err := reopened.Load(ctx, u.Name)
	require.NoError(t, err)
	assert.Equal(t, u.Key, got.Key)
}

func TestOpen(t *testing.T) {
	s, err := Open(Config{})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, s)

	s, err = Open(Config{Kind: KindFile, Path: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &File{}, s)

	s, err = Open(Config{Kind: "SQLite", Path: filepath.Join(t.TempDir(), "x.db")})
	require.NoError(t, err)
	assert.IsType(t, &SQLite{}, s)
	s.Close()

	_, err = Open(Config{Kind: KindSQLite})
	assert.Error(t, err)
	_, err = Open(Config{Kind: "redis"})
	assert.Error(t, err)
}
