package storage

import (
	"context"
	"sync"
)

// Memory keeps documents in process memory. All Store values created from the
// same Memory share documents and notifications, like tabs of one origin.
type Memory struct {
	mu   sync.RWMutex
	docs map[string][]byte
	hub  *hub
}

// NewMemory returns an empty in-process store.
func NewMemory() *Memory {
	return &Memory{
		docs: map[string][]byte{},
		hub:  newHub(),
	}
}

func (m *Memory) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.docs[key]
	if !ok {
		return nil, false, nil
	}
	return cloneBytes(value), true, nil
}

func (m *Memory) Set(ctx context.Context, key string, value []byte, origin string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	m.docs[key] = cloneBytes(value)
	m.mu.Unlock()

	m.hub.dispatch(Change{Key: key, Value: value, Origin: origin})
	return nil
}

func (m *Memory) Delete(ctx context.Context, key, origin string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	_, existed := m.docs[key]
	delete(m.docs, key)
	m.mu.Unlock()

	if existed {
		m.hub.dispatch(Change{Key: key, Deleted: true, Origin: origin})
	}
	return nil
}

func (m *Memory) Subscribe(key, origin string, fn Listener) func() {
	return m.hub.subscribe(key, origin, fn)
}

// Close stops every subscription.
func (m *Memory) Close() error {
	m.hub.closeAll()
	return nil
}
