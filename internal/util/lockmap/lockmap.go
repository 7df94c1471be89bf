package lockmap

import "sync"

type entry struct {
	mu   sync.Mutex
	refs int
}

// Map hands out one mutex per key. Entries are dropped once nobody holds or waits for them.
type Map[K comparable] struct {
	mu sync.Mutex
	mp map[K]*entry
}

func (m *Map[K]) Lock(key K) func() {
	m.mu.Lock()
	if m.mp == nil {
		m.mp = make(map[K]*entry)
	}
	e, ok := m.mp[key]
	if !ok {
		e = &entry{}
		m.mp[key] = e
	}
	e.refs++
	m.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		m.mu.Lock()
		defer m.mu.Unlock()
		e.refs--
		if e.refs == 0 {
			delete(m.mp, key)
		}
	}
}

func (m *Map[K]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.mp)
}
