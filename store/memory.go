package store

import (
	"context"
	"sort"
	"sync"
)

// Memory is a process-local store.
type Memory struct {
	units map[string]Unit
	mu    sync.RWMutex
}

// NewMemory creates an empty memory store.
func NewMemory() *Memory {
	return &Memory{units: make(map[string]Unit)}
}

func (m *Memory) Put(_ context.Context, u Unit) error {
	if err := validate(u); err != nil {
		return err
	}
	u.Wasm = append([]byte(nil), u.Wasm...)
	m.mu.Lock()
	m.units[u.Name] = u
	m.mu.Unlock()
	return nil
}

func (m *Memory) Lookup(_ context.Context, key string) (Unit, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var (
		found Unit
		ok    bool
	)
	for _, u := range m.units {
		if u.Key == key && (!ok || u.CreatedAt.After(found.CreatedAt)) {
			found, ok = u, true
		}
	}
	return found, ok, nil
}

func (m *Memory) Load(_ context.Context, name string) (Unit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.units[name]
	if !ok {
		return Unit{}, notFound(name)
	}
	return u, nil
}

func (m *Memory) List(_ context.Context) ([]Unit, error) {
	m.mu.RLock()
	units := make([]Unit, 0, len(m.units))
	for _, u := range m.units {
		units = append(units, u)
	}
	m.mu.RUnlock()
	sort.Slice(units, func(i, j int) bool {
		if units[i].CreatedAt.Equal(units[j].CreatedAt) {
			return units[i].Name < units[j].Name
		}
		return units[i].CreatedAt.Before(units[j].CreatedAt)
	})
	return units, nil
}

func (m *Memory) Close() error {
	return nil
}
