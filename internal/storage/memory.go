package storage

import (
	"context"
	"sync"
)

type memoryStore struct {
	mu         sync.Mutex
	kv         map[string][]byte
	deliveries []DeliveryEntry
	keep       int
}

// NewMemory returns a process-local store. Values are copied on the way in
// and out.
func NewMemory(keep int) Store {
	if keep <= 0 {
		keep = 5000
	}
	return &memoryStore{kv: map[string][]byte{}, keep: keep}
}

func (m *memoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.kv[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *memoryStore) Put(ctx context.Context, key string, value []byte) error {
	m.mu.Lock()
	m.kv[key] = append([]byte(nil), value...)
	m.mu.Unlock()
	return nil
}

func (m *memoryStore) AppendDelivery(ctx context.Context, e DeliveryEntry) error {
	m.mu.Lock()
	m.deliveries = append(m.deliveries, e)
	if len(m.deliveries) > m.keep {
		m.deliveries = m.deliveries[len(m.deliveries)-m.keep:]
	}
	m.mu.Unlock()
	return nil
}

func (m *memoryStore) RecentDeliveries(ctx context.Context, limit int) ([]DeliveryEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return newestFirst(m.deliveries, limit), nil
}

func (m *memoryStore) Close() error { return nil }

func newestFirst(in []DeliveryEntry, limit int) []DeliveryEntry {
	if limit <= 0 || limit > len(in) {
		limit = len(in)
	}
	out := make([]DeliveryEntry, 0, limit)
	for i := len(in) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, in[i])
	}
	return out
}
