package cas

import (
	"context"
	"sync"

	"github.com/vexvcs/vex/internal/codec"
)

// MemStore is an in-memory Store, used in tests to exercise writes without
// touching disk. `fake` does not use it: it runs the normal on-disk
// transaction and aborts it.
type MemStore struct {
	mu   sync.Mutex
	objs map[Hash][]byte
}

func NewMemStore() *MemStore {
	return &MemStore{objs: make(map[Hash][]byte)}
}

func (m *MemStore) Put(ctx context.Context, data []byte) (Hash, error) {
	h := hashOf(data)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objs[h]; !ok {
		cp := append([]byte(nil), data...)
		m.objs[h] = cp
	}
	return h, nil
}

func (m *MemStore) Get(ctx context.Context, h Hash) ([]byte, error) {
	m.mu.Lock()
	data, ok := m.objs[h]
	m.mu.Unlock()
	if !ok {
		return nil, fmtNotFound(h)
	}
	if err := codec.VerifyHash(data, h); err != nil {
		return nil, err
	}
	return data, nil
}

func (m *MemStore) Has(ctx context.Context, h Hash) (bool, error) {
	m.mu.Lock()
	_, ok := m.objs[h]
	m.mu.Unlock()
	return ok, nil
}

func (m *MemStore) List(ctx context.Context, fn func(Hash) error) error {
	m.mu.Lock()
	hashes := make([]Hash, 0, len(m.objs))
	for h := range m.objs {
		hashes = append(hashes, h)
	}
	m.mu.Unlock()
	for _, h := range hashes {
		if err := fn(h); err != nil {
			return err
		}
	}
	return nil
}
