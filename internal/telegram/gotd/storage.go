package gotd

import (
	"context"
	"sync"

	"github.com/gotd/td/session"
)

// memoryStorage holds the session for one connection; the gateway persists it sealed between connections.
type memoryStorage struct {
	mu   sync.Mutex
	data []byte
}

func newMemoryStorage(data []byte) *memoryStorage {
	return &memoryStorage{data: append([]byte(nil), data...)}
}

func (s *memoryStorage) LoadSession(context.Context) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.data) == 0 {
		return nil, session.ErrNotFound
	}
	return append([]byte(nil), s.data...), nil
}

func (s *memoryStorage) StoreSession(_ context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = append(s.data[:0], data...)
	return nil
}
