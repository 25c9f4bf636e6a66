package repository

import (
	"context"

	"tg-gateway/backend/internal/tenant/domain"
)

// Repository defines persistence for tenants.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Tenant, error)
	List(ctx context.Context) ([]*domain.Tenant, error)
	Create(ctx context.Context, t *domain.Tenant) error
	UpdateCallbackURL(ctx context.Context, id, callbackURL string) error
}
