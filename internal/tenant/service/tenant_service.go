// Package service implements the tenant registry: create, list, lookup, callback URL updates and callback tests.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tg-gateway/backend/internal/platform/apperr"
	"tg-gateway/backend/internal/tenant/domain"
	"tg-gateway/backend/internal/tenant/repository"
)

// ReadyChecker reports whether a tenant holds an authorized session.
type ReadyChecker interface {
	IsReady(ctx context.Context, tenantID string) (bool, error)
}

// Supervisor starts and stops a tenant's inbound dispatch loop.
type Supervisor interface {
	Start(ctx context.Context, tenantID, callbackURL string)
	Stop(ctx context.Context, tenantID string)
}

// CallbackTester sends a single test payload to a callback URL, without retries.
type CallbackTester interface {
	SendTest(ctx context.Context, url, tenantID string) (bool, string)
}

// Service is the tenant registry.
type Service struct {
	repo       repository.Repository
	ready      ReadyChecker
	supervisor Supervisor
	tester     CallbackTester
	clk        clock.Clock
	log        zerolog.Logger
}

// NewService returns a tenant service. ready, supervisor and tester may be nil; the features that need them are then skipped or fail with a configuration error.
func NewService(repo repository.Repository, ready ReadyChecker, supervisor Supervisor, tester CallbackTester, clk clock.Clock, log zerolog.Logger) *Service {
	if clk == nil {
		clk = clock.New()
	}
	return &Service{
		repo:       repo,
		ready:      ready,
		supervisor: supervisor,
		tester:     tester,
		clk:        clk,
		log:        log.With().Str("component", "tenant").Logger(),
	}
}

// Get returns the tenant or a not_found error. Malformed ids are reported as not found.
func (s *Service) Get(ctx context.Context, id string) (*domain.Tenant, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, apperr.TenantNotFound()
	}
	t, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("get tenant: %w", err))
	}
	if t == nil {
		return nil, apperr.TenantNotFound()
	}
	return t, nil
}

// List returns all tenants, newest first.
func (s *Service) List(ctx context.Context) ([]*domain.Tenant, error) {
	list, err := s.repo.List(ctx)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("list tenants: %w", err))
	}
	if list == nil {
		list = []*domain.Tenant{}
	}
	return list, nil
}

// Create validates and persists a new tenant.
func (s *Service) Create(ctx context.Context, name, callbackURL string) (*domain.Tenant, error) {
	t := &domain.Tenant{
		ID:          uuid.New().String(),
		Name:        name,
		CallbackURL: callbackURL,
		CreatedAt:   s.clk.Now().UTC(),
	}
	if err := t.Validate(); err != nil {
		return nil, apperr.Wrap(err, apperr.KindValidation, "validation_error", err.Error())
	}
	if err := s.repo.Create(ctx, t); err != nil {
		return nil, apperr.Internal(fmt.Errorf("create tenant: %w", err))
	}
	s.log.Info().Str("tenant_id", t.ID).Bool("callback", t.HasCallback()).Msg("tenant created")
	return t, nil
}

// UpdateCallbackURL replaces the callback URL (empty clears it) and restarts dispatch so the new URL takes effect.
func (s *Service) UpdateCallbackURL(ctx context.Context, id, callbackURL string) (*domain.Tenant, error) {
	t, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	cb, err := domain.NormalizeCallbackURL(callbackURL)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindValidation, "validation_error", err.Error())
	}
	if cb == t.CallbackURL {
		return t, nil
	}
	if err := s.repo.UpdateCallbackURL(ctx, id, cb); err != nil {
		return nil, apperr.Internal(fmt.Errorf("update callback url: %w", err))
	}
	t.CallbackURL = cb
	s.log.Info().Str("tenant_id", id).Bool("callback", t.HasCallback()).Msg("callback url updated")

	if s.supervisor == nil {
		return t, nil
	}
	s.supervisor.Stop(ctx, id)
	if !t.HasCallback() || s.ready == nil {
		return t, nil
	}
	ready, err := s.ready.IsReady(ctx, id)
	if err != nil {
		s.log.Warn().Err(err).Str("tenant_id", id).Msg("could not check session; dispatch not restarted")
		return t, nil
	}
	if ready {
		s.supervisor.Start(ctx, id, t.CallbackURL)
	}
	return t, nil
}

// TestCallback POSTs a fixed test payload once to the tenant's callback URL.
func (s *Service) TestCallback(ctx context.Context, id string) error {
	t, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !t.HasCallback() {
		return apperr.New(apperr.KindValidation, "no_callback_url", "Tenant has no callback_url configured.")
	}
	if s.tester == nil {
		return apperr.New(apperr.KindConfiguration, "callback_unavailable", "Callback dispatch is not configured.")
	}
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()
	ok, detail := s.tester.SendTest(ctx, t.CallbackURL, id)
	if !ok {
		return apperr.New(apperr.KindRejected, "callback_failed", "Callback failed: "+detail)
	}
	return nil
}
