// Package keylock provides mutual exclusion per user id without a global lock.
package keylock

import "sync"

type entry struct {
	mu   sync.Mutex
	refs int
}

// Map hands out one mutex per key and drops it once no goroutine holds or waits on it.
type Map struct {
	mu      sync.Mutex
	entries map[int64]*entry
}

// New returns an empty lock map.
func New() *Map {
	return &Map{entries: make(map[int64]*entry)}
}

// Lock blocks until key is free and returns the matching unlock function.
func (m *Map) Lock(key int64) func() {
	m.mu.Lock()
	e, ok := m.entries[key]
	if !ok {
		e = &entry{}
		m.entries[key] = e
	}
	e.refs++
	m.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		m.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(m.entries, key)
		}
		m.mu.Unlock()
	}
}

// Len reports how many keys are currently held or awaited.
func (m *Map) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
