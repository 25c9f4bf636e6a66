package repository

import (
	"context"

	"tg-gateway/backend/internal/session/domain"
)

// Repository defines persistence for per-tenant auth records.
type Repository interface {
	// GetByTenant returns the record for tenantID, or nil if none exists.
	GetByTenant(ctx context.Context, tenantID string) (*domain.AuthRecord, error)
	// GetOrCreate returns the record for tenantID, inserting an empty one if none exists.
	GetOrCreate(ctx context.Context, tenantID string) (*domain.AuthRecord, error)
	// Update overwrites every mutable field of the record identified by rec.TenantID.
	Update(ctx context.Context, rec *domain.AuthRecord) error
	// ListDispatchTargets returns authorized tenants that have a callback URL.
	ListDispatchTargets(ctx context.Context) ([]domain.DispatchTarget, error)
}
