package cache

import (
	"container/list"
	"context"
	"sync"
)

// DefaultMemoryBudget is the byte budget used when [NewMemory] gets zero.
const DefaultMemoryBudget = 256 << 20

type memEntry struct {
	key  string
	data []byte
}

// Memory is a least-recently-used [Store] bounded by total blob size.
type Memory struct {
	mu     sync.Mutex
	budget int
	size   int
	order  *list.List
	items  map[string]*list.Element
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty cache holding at most budget bytes.
func NewMemory(budget int) *Memory {
	if budget <= 0 {
		budget = DefaultMemoryBudget
	}
	return &Memory{
		budget: budget,
		order:  list.New(),
		items:  make(map[string]*list.Element),
	}
}

// Get implements [Store].
func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	el, ok := m.items[key]
	if !ok {
		return nil, ErrMiss
	}
	m.order.MoveToFront(el)
	return el.Value.(*memEntry).data, nil
}

// Put implements [Store]. A blob larger than the whole budget is not kept.
func (m *Memory) Put(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if el, ok := m.items[key]; ok {
		m.size -= len(el.Value.(*memEntry).data)
		m.order.Remove(el)
		delete(m.items, key)
	}
	if len(data) > m.budget {
		return nil
	}
	m.items[key] = m.order.PushFront(&memEntry{key: key, data: data})
	m.size += len(data)
	for m.size > m.budget {
		oldest := m.order.Back()
		e := oldest.Value.(*memEntry)
		m.order.Remove(oldest)
		delete(m.items, e.key)
		m.size -= len(e.data)
	}
	return nil
}

// Has implements [Store].
func (m *Memory) Has(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.items[key]
	return ok, nil
}

// Len returns the number of cached blobs.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}
