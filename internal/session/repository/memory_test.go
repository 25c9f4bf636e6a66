package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tg-gateway/backend/internal/session/domain"
)

func TestMemoryRepository_GetOrCreateIsStable(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository(nil)

	missing, err := repo.GetByTenant(ctx, "t1")
	require.NoError(t, err)
	assert.Nil(t, missing)

	first, err := repo.GetOrCreate(ctx, "t1")
	require.NoError(t, err)
	second, err := repo.GetOrCreate(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.NotEmpty(t, first.ID)
}

func TestMemoryRepository_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository(nil)
	rec, err := repo.GetOrCreate(ctx, "t1")
	require.NoError(t, err)
	rec.Phone = "+79001234567"

	stored, err := repo.GetByTenant(ctx, "t1")
	require.NoError(t, err)
	assert.Empty(t, stored.Phone, "mutation without Update must not leak")

	require.NoError(t, repo.Update(ctx, rec))
	stored, err = repo.GetByTenant(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "+79001234567", stored.Phone)
}

func TestMemoryRepository_ListDispatchTargets(t *testing.T) {
	ctx := context.Background()
	urls := map[string]string{"ready": "https://a.test/cb", "idle": "https://b.test/cb"}
	repo := NewMemoryRepository(func(id string) string { return urls[id] })

	require.NoError(t, repo.Update(ctx, &domain.AuthRecord{TenantID: "ready", SessionString: "s", Authorized: true}))
	require.NoError(t, repo.Update(ctx, &domain.AuthRecord{TenantID: "idle"}))
	require.NoError(t, repo.Update(ctx, &domain.AuthRecord{TenantID: "nourl", SessionString: "s", Authorized: true}))

	targets, err := repo.ListDispatchTargets(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.DispatchTarget{{TenantID: "ready", CallbackURL: "https://a.test/cb"}}, targets)
}
