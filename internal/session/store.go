// Package session is the Session Store: encrypted-at-rest persistence of one Auth Record per tenant.
// It has no protocol knowledge beyond reading a live connection's session and self phone.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"tg-gateway/backend/internal/platform/apperr"
	"tg-gateway/backend/internal/security"
	"tg-gateway/backend/internal/session/domain"
	"tg-gateway/backend/internal/session/repository"
	"tg-gateway/backend/internal/telegram"
)

// Cipher seals and opens session blobs.
type Cipher interface {
	Encrypt(plain []byte) (string, error)
	Decrypt(token string) ([]byte, error)
}

// Account is the part of a live connection Save reads from.
type Account interface {
	Session(ctx context.Context) ([]byte, error)
	Self(ctx context.Context) (telegram.User, error)
}

// Store persists Auth Records, sealing session blobs on the way in.
type Store struct {
	repo   repository.Repository
	cipher Cipher
	clk    clock.Clock
	log    zerolog.Logger
}

// NewStore returns a Store. A nil clk uses the wall clock.
func NewStore(repo repository.Repository, cipher Cipher, clk clock.Clock, log zerolog.Logger) *Store {
	if clk == nil {
		clk = clock.New()
	}
	return &Store{
		repo:   repo,
		cipher: cipher,
		clk:    clk,
		log:    log.With().Str("component", "session_store").Logger(),
	}
}

// Get returns the tenant's record, or nil if none exists yet.
func (s *Store) Get(ctx context.Context, tenantID string) (*domain.AuthRecord, error) {
	rec, err := s.repo.GetByTenant(ctx, tenantID)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("get auth record: %w", err))
	}
	return rec, nil
}

// GetOrCreate returns the tenant's record, creating an empty one on first use.
func (s *Store) GetOrCreate(ctx context.Context, tenantID string) (*domain.AuthRecord, error) {
	rec, err := s.repo.GetOrCreate(ctx, tenantID)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("get or create auth record: %w", err))
	}
	return rec, nil
}

// IsReady reports whether the tenant holds an authorized session.
func (s *Store) IsReady(ctx context.Context, tenantID string) (bool, error) {
	rec, err := s.Get(ctx, tenantID)
	if err != nil {
		return false, err
	}
	return rec.State() == domain.StateReady, nil
}

// Session opens the record's sealed session. It returns nil for a record without one.
// A key problem is a configuration error; a blob that will not open is session_corrupt.
func (s *Store) Session(rec *domain.AuthRecord) ([]byte, error) {
	if !rec.HasSession() {
		return nil, nil
	}
	plain, err := s.cipher.Decrypt(rec.SessionString)
	if err != nil {
		return nil, classifyCipherErr(err)
	}
	return plain, nil
}

// Save seals acct's current session into the tenant's record. With authorized set, the record is
// marked authorized and the phone is refreshed from the account when it can be read. Without it,
// prior authorized and phone values are left as they are. Save clears lastError.
func (s *Store) Save(ctx context.Context, tenantID string, acct Account, authorized bool) error {
	plain, err := acct.Session(ctx)
	if err != nil {
		return apperr.Internal(fmt.Errorf("serialize session: %w", err))
	}
	sealed, err := s.cipher.Encrypt(plain)
	if err != nil {
		return classifyCipherErr(err)
	}
	rec, err := s.GetOrCreate(ctx, tenantID)
	if err != nil {
		return err
	}
	rec.SessionString = sealed
	rec.LastError = ""
	if authorized {
		rec.Authorized = true
		rec.PasswordPending = false
		if me, err := acct.Self(ctx); err != nil {
			s.log.Warn().Err(err).Str("tenant_id", tenantID).Msg("could not read own phone after sign-in")
		} else if p := strings.TrimSpace(me.Phone); p != "" {
			if !strings.HasPrefix(p, "+") {
				p = "+" + p
			}
			rec.Phone = p
		}
	}
	return s.update(ctx, rec)
}

// SetLastError records a human-readable failure for status queries.
func (s *Store) SetLastError(ctx context.Context, tenantID, msg string) error {
	rec, err := s.GetOrCreate(ctx, tenantID)
	if err != nil {
		return err
	}
	rec.LastError = msg
	return s.update(ctx, rec)
}

// RecordCodeRequest stores a fresh code correlation hash and starts the resend cooldown at now.
func (s *Store) RecordCodeRequest(ctx context.Context, tenantID, phone, hash string, timeoutSeconds int) error {
	rec, err := s.GetOrCreate(ctx, tenantID)
	if err != nil {
		return err
	}
	now := s.clk.Now().UTC()
	rec.Phone = phone
	rec.PhoneCodeHash = hash
	rec.CodeRequestedAt = &now
	rec.CodeTimeoutSeconds = timeoutSeconds
	rec.PasswordPending = false
	return s.update(ctx, rec)
}

// ClearCodeHash drops the pending code hash and the cooldown that belongs to it.
func (s *Store) ClearCodeHash(ctx context.Context, tenantID string) error {
	rec, err := s.GetOrCreate(ctx, tenantID)
	if err != nil {
		return err
	}
	rec.PhoneCodeHash = ""
	rec.CodeRequestedAt = nil
	rec.CodeTimeoutSeconds = 0
	rec.PasswordPending = false
	return s.update(ctx, rec)
}

// MarkPasswordPending notes that the account is waiting for its cloud password.
func (s *Store) MarkPasswordPending(ctx context.Context, tenantID string) error {
	rec, err := s.GetOrCreate(ctx, tenantID)
	if err != nil {
		return err
	}
	rec.PasswordPending = true
	return s.update(ctx, rec)
}

// Clear resets every auth-flow field. It does not touch any live connection.
func (s *Store) Clear(ctx context.Context, tenantID string) error {
	rec, err := s.Get(ctx, tenantID)
	if err != nil {
		return err
	}
	if rec == nil {
		return nil
	}
	rec.Reset()
	return s.update(ctx, rec)
}

// ListDispatchTargets returns authorized tenants with a callback URL.
func (s *Store) ListDispatchTargets(ctx context.Context) ([]domain.DispatchTarget, error) {
	targets, err := s.repo.ListDispatchTargets(ctx)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("list dispatch targets: %w", err))
	}
	return targets, nil
}

func (s *Store) update(ctx context.Context, rec *domain.AuthRecord) error {
	rec.UpdatedAt = s.clk.Now().UTC()
	if err := s.repo.Update(ctx, rec); err != nil {
		return apperr.Internal(fmt.Errorf("update auth record: %w", err))
	}
	return nil
}

func classifyCipherErr(err error) error {
	switch {
	case errors.Is(err, security.ErrConfiguration):
		return apperr.Wrap(err, apperr.KindConfiguration, "session_key_missing",
			"SESSION_ENC_KEY is not set or is not a base64-encoded 32-byte key.")
	case errors.Is(err, security.ErrTamperedOrStaleKey):
		return apperr.Wrap(err, apperr.KindSessionCorrupt, "session_corrupt",
			"Failed to decrypt session string; SESSION_ENC_KEY may have changed.")
	default:
		return apperr.Internal(err)
	}
}
