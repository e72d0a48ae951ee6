package rwmap

import (
	"sync"
)

type RWMap struct {
	sync.RWMutex
	m map[int64]any
}

func NewRWMap(n int) *RWMap {
	return &RWMap{
		m: make(map[int64]any, n),
	}
}

func (m *RWMap) Get(key int64) (any, bool) {
	m.RLock()
	defer m.RUnlock()
	v, existed := m.m[key]
	return v, existed
}

func (m *RWMap) Set(key int64, v any) {
	m.Lock()
	defer m.Unlock()
	m.m[key] = v
}

func (m *RWMap) Delete(key int64) {
	m.Lock()
	defer m.Unlock()
	delete(m.m, key)
}

func (m *RWMap) Clear() {
	m.Lock()
	defer m.Unlock()
	m.m = map[int64]any{}
}

func (m *RWMap) Len() int {
	m.RLock()
	defer m.RUnlock()
	return len(m.m)
}

// Each holds the read lock for the whole walk.
func (m *RWMap) Each(f func(key int64, v any) bool) {
	m.RLock()
	defer m.RUnlock()

	for key, v := range m.m {
		if !f(key, v) {
			return
		}
	}
}
