// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package capability

import (
	"context"
	"maps"
	"sync"
	"time"
)

// Change describes one accepted capability write
type Change struct {
	Name  string
	Value any
	At    time.Time
}

// Memory is an in-process capability store.
type Memory struct {
	mu       sync.RWMutex
	values   map[string]any
	updated  map[string]time.Time
	watchers []func(Change)
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{
		values:  make(map[string]any),
		updated: make(map[string]time.Time),
	}
}

// Set stores the value; the last write wins.
func (m *Memory) Set(_ context.Context, name string, value any) error {
	if err := checkName(name); err != nil {
		return err
	}

	now := time.Now()
	m.mu.Lock()
	m.values[name] = value
	m.updated[name] = now
	watchers := m.watchers
	m.mu.Unlock()

	for _, fn := range watchers {
		fn(Change{Name: name, Value: value, At: now})
	}
	return nil
}

// Get returns a capability value and whether it has been set
func (m *Memory) Get(name string) (any, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[name]
	return v, ok
}

// UpdatedAt returns when the capability was last written
func (m *Memory) UpdatedAt(name string) time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.updated[name]
}

// Snapshot returns a copy of every set capability
func (m *Memory) Snapshot() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return maps.Clone(m.values)
}

// Watch registers fn to be called after every write.
// fn runs on the writer's goroutine and must not block.
func (m *Memory) Watch(fn func(Change)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.watchers = append(m.watchers, fn)
}
