package repository

import (
	"context"
	"errors"
	"sort"
	"sync"

	"tg-gateway/backend/internal/message/domain"
)

// ErrDuplicateID is returned by MemoryRepository.Create for a reused id.
var ErrDuplicateID = errors.New("message: duplicate id")

// MemoryRepository keeps messages in process memory. Used by tests and by the server when no database is configured.
type MemoryRepository struct {
	mu   sync.RWMutex
	rows []domain.Message
	ids  map[string]struct{}
	// Err, when set, fails every Create.
	Err error
}

// NewMemoryRepository returns an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{ids: make(map[string]struct{})}
}

func (r *MemoryRepository) Create(_ context.Context, m *domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	if _, ok := r.ids[m.ID]; ok {
		return ErrDuplicateID
	}
	r.ids[m.ID] = struct{}{}
	r.rows = append(r.rows, *m)
	return nil
}

func (r *MemoryRepository) ListByTenant(_ context.Context, tenantID string, limit int) ([]*domain.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*domain.Message
	for i := range r.rows {
		if r.rows[i].TenantID == tenantID {
			m := r.rows[i]
			out = append(out, &m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
