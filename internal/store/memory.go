package store

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
)

// Memory is an in-process Store for tests and single-node development runs.
// One RWMutex guards all sets; every mutation is serialized, which trivially
// satisfies the per-key linearizability AddAndGet requires.
type Memory struct {
	mu   sync.RWMutex
	sets map[string]map[string][]byte
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{sets: make(map[string]map[string][]byte)}
}

func (m *Memory) Put(ctx context.Context, set, key string, rec []byte) error {
	if err := ctx.Err(); err != nil {
		return &StoreError{Op: "put", Set: set, Key: key, Err: err}
	}
	cp := make([]byte, len(rec))
	copy(cp, rec)

	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sets[set]
	if !ok {
		s = make(map[string][]byte)
		m.sets[set] = s
	}
	s[key] = cp
	return nil
}

func (m *Memory) Get(ctx context.Context, set, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, &StoreError{Op: "get", Set: set, Key: key, Err: err}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.sets[set][key]
	if !ok {
		return nil, nil
	}
	cp := make([]byte, len(rec))
	copy(cp, rec)
	return cp, nil
}

func (m *Memory) Delete(ctx context.Context, set, key string) error {
	if err := ctx.Err(); err != nil {
		return &StoreError{Op: "delete", Set: set, Key: key, Err: err}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sets[set], key)
	return nil
}

// ScanAll visits a point-in-time copy of the set so visitors may call back
// into the store without deadlocking. Keys are visited in sorted order to
// keep test runs reproducible; callers must not rely on it.
func (m *Memory) ScanAll(ctx context.Context, set string, visit func(key string, rec []byte) error) error {
	m.mu.RLock()
	keys := make([]string, 0, len(m.sets[set]))
	recs := make(map[string][]byte, len(m.sets[set]))
	for k, v := range m.sets[set] {
		keys = append(keys, k)
		cp := make([]byte, len(v))
		copy(cp, v)
		recs[k] = cp
	}
	m.mu.RUnlock()
	sort.Strings(keys)

	for _, k := range keys {
		if err := ctx.Err(); err != nil {
			return &StoreError{Op: "scan", Set: set, Err: err}
		}
		if err := visit(k, recs[k]); err != nil {
			return err
		}
	}
	return nil
}

// AddAndGet increments an integer field within a record and returns the new
// value. Only counter records (all-integer fields) may be targeted.
func (m *Memory) AddAndGet(ctx context.Context, set, key, field string, delta int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, &StoreError{Op: "add", Set: set, Key: key, Err: err}
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sets[set]
	if !ok {
		s = make(map[string][]byte)
		m.sets[set] = s
	}

	fields := make(map[string]int64)
	if raw, ok := s[key]; ok {
		if err := json.Unmarshal(raw, &fields); err != nil {
			return 0, &StoreError{Op: "add", Set: set, Key: key, Err: err}
		}
	}
	fields[field] += delta

	raw, err := json.Marshal(fields)
	if err != nil {
		return 0, &StoreError{Op: "add", Set: set, Key: key, Err: err}
	}
	s[key] = raw
	return fields[field], nil
}

func (m *Memory) Close() {}
