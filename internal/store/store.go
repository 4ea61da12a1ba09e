// Package store is the key-value persistence the agenda keeps on this
// machine: the task list, the id counter and the login session.
package store

import (
	"sort"
	"sync"
)

// Store reads and writes whole values by key. Set must have fully
// persisted the value when it returns.
type Store interface {
	// Get returns the value and whether the key exists.
	Get(key string) ([]byte, bool, error)
	Set(key string, value []byte) error
	// Delete of a missing key is not an error.
	Delete(key string) error
}

// Memory is an in-process Store, used by tests and throwaway sessions.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

func (m *Memory) Get(key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (m *Memory) Set(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), value...)
	return nil
}

func (m *Memory) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// Keys returns the stored keys, sorted.
func (m *Memory) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
