package repository

import (
	"context"

	"tg-gateway/backend/internal/message/domain"
)

// Repository defines persistence for audited messages.
type Repository interface {
	Create(ctx context.Context, m *domain.Message) error
	// ListByTenant returns the tenant's messages, newest first.
	ListByTenant(ctx context.Context, tenantID string, limit int) ([]*domain.Message, error)
}
