// Package subscription tracks the desired set of instrument keys and encodes
// the control frames that add or remove them on the wire.
//
// The desired set is the single source of truth: whatever is subscribed on a
// live socket is derived from it, never the reverse. The Manager never writes
// to a socket.
package subscription

import (
	"sort"
	"strings"
	"sync"
)

// Manager owns the desired subscription set.
type Manager struct {
	mu   sync.RWMutex
	keys map[string]struct{}
}

// NewManager creates a Manager seeded with the given keys.
func NewManager(initial ...string) *Manager {
	m := &Manager{keys: make(map[string]struct{}, len(initial))}
	m.Subscribe(initial...)
	return m
}

// Subscribe adds keys to the desired set and returns the keys that were not
// already present, sorted. Blank keys are ignored.
func (m *Manager) Subscribe(keys ...string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var added []string
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		if _, ok := m.keys[k]; ok {
			continue
		}
		m.keys[k] = struct{}{}
		added = append(added, k)
	}
	sort.Strings(added)
	return added
}

// Unsubscribe removes keys from the desired set and returns the keys that
// were present, sorted.
func (m *Manager) Unsubscribe(keys ...string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var removed []string
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if _, ok := m.keys[k]; !ok {
			continue
		}
		delete(m.keys, k)
		removed = append(removed, k)
	}
	sort.Strings(removed)
	return removed
}

// DesiredSet returns a sorted copy of the desired set.
func (m *Manager) DesiredSet() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]string, 0, len(m.keys))
	for k := range m.keys {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Contains reports whether key is in the desired set.
func (m *Manager) Contains(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.keys[key]
	return ok
}

// Len returns the size of the desired set.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.keys)
}
