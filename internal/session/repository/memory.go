package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"tg-gateway/backend/internal/session/domain"
)

// MemoryRepository is an in-process Repository for tests and local runs without Postgres.
// callbackURL supplies the tenant join that ListDispatchTargets needs; nil means no tenant has one.
type MemoryRepository struct {
	mu          sync.RWMutex
	byTenant    map[string]*domain.AuthRecord
	callbackURL func(tenantID string) string
}

// NewMemoryRepository returns an empty MemoryRepository.
func NewMemoryRepository(callbackURL func(tenantID string) string) *MemoryRepository {
	return &MemoryRepository{byTenant: make(map[string]*domain.AuthRecord), callbackURL: callbackURL}
}

func (r *MemoryRepository) GetByTenant(_ context.Context, tenantID string) (*domain.AuthRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.byTenant[tenantID]
	if !ok {
		return nil, nil
	}
	return cloneRecord(rec), nil
}

func (r *MemoryRepository) GetOrCreate(_ context.Context, tenantID string) (*domain.AuthRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byTenant[tenantID]
	if !ok {
		rec = &domain.AuthRecord{ID: uuid.New().String(), TenantID: tenantID}
		r.byTenant[tenantID] = rec
	}
	return cloneRecord(rec), nil
}

// Update stores a copy of rec. Updating a tenant without a record inserts it.
func (r *MemoryRepository) Update(_ context.Context, rec *domain.AuthRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byTenant[rec.TenantID] = cloneRecord(rec)
	return nil
}

func (r *MemoryRepository) ListDispatchTargets(_ context.Context) ([]domain.DispatchTarget, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.DispatchTarget
	for id, rec := range r.byTenant {
		if rec.State() != domain.StateReady || r.callbackURL == nil {
			continue
		}
		if u := r.callbackURL(id); u != "" {
			out = append(out, domain.DispatchTarget{TenantID: id, CallbackURL: u})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TenantID < out[j].TenantID })
	return out, nil
}

func cloneRecord(rec *domain.AuthRecord) *domain.AuthRecord {
	cp := *rec
	if rec.CodeRequestedAt != nil {
		t := *rec.CodeRequestedAt
		cp.CodeRequestedAt = &t
	}
	return &cp
}
