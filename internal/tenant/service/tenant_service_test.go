package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tg-gateway/backend/internal/platform/apperr"
	"tg-gateway/backend/internal/tenant/domain"
)

type memTenantRepo struct {
	mu      sync.Mutex
	tenants map[string]*domain.Tenant
	err     error
}

func newMemTenantRepo() *memTenantRepo {
	return &memTenantRepo{tenants: make(map[string]*domain.Tenant)}
}

func (m *memTenantRepo) GetByID(ctx context.Context, id string) (*domain.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	t, ok := m.tenants[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (m *memTenantRepo) List(ctx context.Context) ([]*domain.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	var out []*domain.Tenant
	for _, t := range m.tenants {
		cp := *t
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memTenantRepo) Create(ctx context.Context, t *domain.Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	cp := *t
	m.tenants[t.ID] = &cp
	return nil
}

func (m *memTenantRepo) UpdateCallbackURL(ctx context.Context, id, callbackURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.tenants[id]; ok {
		t.CallbackURL = callbackURL
	}
	return nil
}

type fakeReady struct{ ready bool }

func (f fakeReady) IsReady(context.Context, string) (bool, error) { return f.ready, nil }

type fakeSupervisor struct {
	mu     sync.Mutex
	starts []string
	stops  []string
}

func (f *fakeSupervisor) Start(_ context.Context, tenantID, url string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts = append(f.starts, tenantID+"|"+url)
}

func (f *fakeSupervisor) Stop(_ context.Context, tenantID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops = append(f.stops, tenantID)
}

type fakeTester struct {
	ok     bool
	detail string
	urls   []string
}

func (f *fakeTester) SendTest(_ context.Context, url, _ string) (bool, string) {
	f.urls = append(f.urls, url)
	return f.ok, f.detail
}

func newTestService(repo *memTenantRepo, ready ReadyChecker, sup Supervisor, tester CallbackTester) (*Service, *clock.Mock) {
	clk := clock.NewMock()
	clk.Set(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	return NewService(repo, ready, sup, tester, clk, zerolog.Nop()), clk
}

func TestService_CreateGetList(t *testing.T) {
	repo := newMemTenantRepo()
	svc, clk := newTestService(repo, nil, nil, nil)
	ctx := context.Background()

	first, err := svc.Create(ctx, "  First ", "")
	require.NoError(t, err)
	assert.Equal(t, "First", first.Name)
	assert.Empty(t, first.CallbackURL)

	clk.Add(time.Minute)
	second, err := svc.Create(ctx, "Second", " https://hooks.test/cb ")
	require.NoError(t, err)
	assert.Equal(t, "https://hooks.test/cb", second.CallbackURL)

	got, err := svc.Get(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, got.ID)

	list, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, first.ID, list[1].ID)
}

func TestService_ListEmptyIsNonNil(t *testing.T) {
	svc, _ := newTestService(newMemTenantRepo(), nil, nil, nil)
	list, err := svc.List(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)
}

func TestService_CreateValidation(t *testing.T) {
	svc, _ := newTestService(newMemTenantRepo(), nil, nil, nil)
	_, err := svc.Create(context.Background(), " ", "")
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))

	_, err = svc.Create(context.Background(), "ok", "not a url")
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestService_GetNotFound(t *testing.T) {
	svc, _ := newTestService(newMemTenantRepo(), nil, nil, nil)
	for _, id := range []string{"not-a-uuid", "7f4df5c2-7d0b-4f0e-9b1c-111111111111"} {
		_, err := svc.Get(context.Background(), id)
		e, ok := apperr.As(err)
		require.True(t, ok)
		assert.Equal(t, "tenant_not_found", e.Code)
	}
}

func TestService_GetRepoError(t *testing.T) {
	repo := newMemTenantRepo()
	repo.err = errors.New("db down")
	svc, _ := newTestService(repo, nil, nil, nil)
	_, err := svc.Get(context.Background(), "7f4df5c2-7d0b-4f0e-9b1c-111111111111")
	assert.True(t, apperr.IsKind(err, apperr.KindInternal))
}

func TestService_UpdateCallbackURL_RestartsWhenReady(t *testing.T) {
	repo := newMemTenantRepo()
	sup := &fakeSupervisor{}
	svc, _ := newTestService(repo, fakeReady{ready: true}, sup, nil)
	ctx := context.Background()

	tn, err := svc.Create(ctx, "Acme", "https://old.test/cb")
	require.NoError(t, err)

	updated, err := svc.UpdateCallbackURL(ctx, tn.ID, "https://new.test/cb")
	require.NoError(t, err)
	assert.Equal(t, "https://new.test/cb", updated.CallbackURL)
	assert.Equal(t, []string{tn.ID}, sup.stops)
	assert.Equal(t, []string{tn.ID + "|https://new.test/cb"}, sup.starts)

	_, err = svc.UpdateCallbackURL(ctx, tn.ID, "https://new.test/cb")
	require.NoError(t, err)
	assert.Len(t, sup.stops, 1, "unchanged url is a no-op")

	_, err = svc.UpdateCallbackURL(ctx, tn.ID, "")
	require.NoError(t, err)
	assert.Len(t, sup.stops, 2)
	assert.Len(t, sup.starts, 1, "cleared url only stops")
}

func TestService_UpdateCallbackURL_NotReadyOnlyStops(t *testing.T) {
	sup := &fakeSupervisor{}
	svc, _ := newTestService(newMemTenantRepo(), fakeReady{ready: false}, sup, nil)
	ctx := context.Background()
	tn, err := svc.Create(ctx, "Acme", "")
	require.NoError(t, err)

	_, err = svc.UpdateCallbackURL(ctx, tn.ID, "https://new.test/cb")
	require.NoError(t, err)
	assert.Len(t, sup.stops, 1)
	assert.Empty(t, sup.starts)
}

func TestService_TestCallback(t *testing.T) {
	ctx := context.Background()

	t.Run("no callback url", func(t *testing.T) {
		svc, _ := newTestService(newMemTenantRepo(), nil, nil, &fakeTester{ok: true})
		tn, err := svc.Create(ctx, "Acme", "")
		require.NoError(t, err)
		e, ok := apperr.As(svc.TestCallback(ctx, tn.ID))
		require.True(t, ok)
		assert.Equal(t, "no_callback_url", e.Code)
	})

	t.Run("receiver rejects", func(t *testing.T) {
		tester := &fakeTester{ok: false, detail: "HTTP 404"}
		svc, _ := newTestService(newMemTenantRepo(), nil, nil, tester)
		tn, err := svc.Create(ctx, "Acme", "https://hooks.test/cb")
		require.NoError(t, err)
		e, ok := apperr.As(svc.TestCallback(ctx, tn.ID))
		require.True(t, ok)
		assert.Equal(t, "callback_failed", e.Code)
		assert.Contains(t, e.Message, "HTTP 404")
		assert.Equal(t, []string{"https://hooks.test/cb"}, tester.urls)
	})

	t.Run("success", func(t *testing.T) {
		svc, _ := newTestService(newMemTenantRepo(), nil, nil, &fakeTester{ok: true, detail: "HTTP 200"})
		tn, err := svc.Create(ctx, "Acme", "https://hooks.test/cb")
		require.NoError(t, err)
		assert.NoError(t, svc.TestCallback(ctx, tn.ID))
	})

	t.Run("unknown tenant", func(t *testing.T) {
		svc, _ := newTestService(newMemTenantRepo(), nil, nil, &fakeTester{ok: true})
		assert.True(t, apperr.IsKind(svc.TestCallback(ctx, "7f4df5c2-7d0b-4f0e-9b1c-111111111111"), apperr.KindNotFound))
	})
}
