// Package cache stores generated procedures by content key so unchanged
// declarations are not regenerated.
package cache

import (
	"context"
	"sync"

	"github.com/chazu/vmgen/vm"
)

// Store is a content-addressed procedure cache. Keys are opaque strings
// computed by the caller; a key must change whenever the code generated for
// it would.
type Store interface {
	// Get returns the procedure stored under key, if any.
	Get(ctx context.Context, key string) (*vm.Procedure, bool, error)
	// Put stores p under key, replacing any previous entry.
	Put(ctx context.Context, key string, p *vm.Procedure) error
	Close() error
}

// ---------------------------------------------------------------------------
// Memory: in-process store
// ---------------------------------------------------------------------------

// Memory keeps procedures in a map. Entries are copied in and out, so
// callers may modify what they get back.
type Memory struct {
	mu    sync.RWMutex
	procs map[string]*vm.Procedure
}

// NewMemory creates an empty in-process store.
func NewMemory() *Memory {
	return &Memory{procs: make(map[string]*vm.Procedure)}
}

// Get implements Store.
func (m *Memory) Get(_ context.Context, key string) (*vm.Procedure, bool, error) {
	m.mu.RLock()
	p, ok := m.procs[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	return p.Clone(), true, nil
}

// Put implements Store.
func (m *Memory) Put(_ context.Context, key string, p *vm.Procedure) error {
	c := p.Clone()
	m.mu.Lock()
	m.procs[key] = c
	m.mu.Unlock()
	return nil
}

// Len returns the number of stored procedures.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.procs)
}

// Close implements Store.
func (m *Memory) Close() error { return nil }
