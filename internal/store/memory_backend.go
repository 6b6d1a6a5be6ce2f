package store

import (
	"sync"

	"github.com/ledgerforge/ledgerd/internal/hash"
)

// MemoryBackend is an in-process Backend used by tests and by the
// simulation harness, where durability is irrelevant.
type MemoryBackend struct {
	mu   sync.RWMutex
	data map[hash.H256][]byte
}

func NewMemoryBackend(_ *Config) (Backend, error) {
	return &MemoryBackend{data: make(map[hash.H256][]byte)}, nil
}

func (m *MemoryBackend) Name() string { return "memory" }
func (m *MemoryBackend) Open(bool) error { return nil }
func (m *MemoryBackend) Close() error    { return nil }

func (m *MemoryBackend) Get(h hash.H256) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[h]
	if !ok {
		return nil, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (m *MemoryBackend) Put(h hash.H256, encoded []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(encoded))
	copy(cp, encoded)
	m.data[h] = cp
	return nil
}

func (m *MemoryBackend) PutBatch(entries map[hash.H256][]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for h, data := range entries {
		cp := make([]byte, len(data))
		copy(cp, data)
		m.data[h] = cp
	}
	return nil
}

func (m *MemoryBackend) ForEach(fn func(h hash.H256, encoded []byte) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for h, data := range m.data {
		if err := fn(h, data); err != nil {
			return err
		}
	}
	return nil
}

func init() {
	RegisterBackend("memory", NewMemoryBackend)
}
