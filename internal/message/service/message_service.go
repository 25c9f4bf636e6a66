// Package service sends outbound messages and read receipts on behalf of an authorized tenant.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"tg-gateway/backend/internal/audit"
	"tg-gateway/backend/internal/peer"
	"tg-gateway/backend/internal/platform/apperr"
	sessiondomain "tg-gateway/backend/internal/session/domain"
	"tg-gateway/backend/internal/telegram"
	tenantdomain "tg-gateway/backend/internal/tenant/domain"
)

// TenantGetter looks tenants up; unknown ids fail with tenant_not_found.
type TenantGetter interface {
	Get(ctx context.Context, id string) (*tenantdomain.Tenant, error)
}

// Limiter admits requests per tenant.
type Limiter interface {
	Allow(tenantID string) (bool, time.Duration)
}

// SessionSource reads stored sessions. Satisfied by *session.Store.
type SessionSource interface {
	Get(ctx context.Context, tenantID string) (*sessiondomain.AuthRecord, error)
	Session(rec *sessiondomain.AuthRecord) ([]byte, error)
}

// PeerResolver maps identifiers to peers. Satisfied by *peer.Resolver.
type PeerResolver interface {
	Resolve(ctx context.Context, conn telegram.Conn, tenantID, identifier string, allowImport bool) (peer.Resolved, error)
}

// OutboundRecorder keeps a best-effort log of sent messages. Satisfied by *audit.Logger.
type OutboundRecorder interface {
	RecordOutbound(ctx context.Context, tenantID string, out audit.Outbound)
}

// Sent is the result of a successful send.
type Sent struct {
	PeerResolved string
	MessageID    int
	Date         time.Time
}

// Service is the outbound message path: admission, session, peer resolution, send, audit.
type Service struct {
	tenants  TenantGetter
	limiter  Limiter
	sessions SessionSource
	dialer   telegram.Dialer
	peers    PeerResolver
	audit    OutboundRecorder
	log      zerolog.Logger
}

// NewService returns a message service. audit may be nil.
func NewService(tenants TenantGetter, limiter Limiter, sessions SessionSource, dialer telegram.Dialer, peers PeerResolver, audit OutboundRecorder, log zerolog.Logger) *Service {
	return &Service{
		tenants:  tenants,
		limiter:  limiter,
		sessions: sessions,
		dialer:   dialer,
		peers:    peers,
		audit:    audit,
		log:      log.With().Str("component", "messages").Logger(),
	}
}

// Send resolves peerID and sends text to it. Phone numbers missing from contacts are imported when allowImport is set.
func (s *Service) Send(ctx context.Context, tenantID, peerID, text string, allowImport bool) (Sent, error) {
	if err := required("peer", peerID); err != nil {
		return Sent{}, err
	}
	if err := required("text", text); err != nil {
		return Sent{}, err
	}
	conn, err := s.open(ctx, tenantID, "Too many send requests. Retry later.")
	if err != nil {
		return Sent{}, err
	}
	defer conn.Close()

	resolved, err := s.peers.Resolve(ctx, conn, tenantID, peerID, allowImport)
	if err != nil {
		return Sent{}, err
	}
	msg, err := conn.SendMessage(ctx, resolved.Peer, text)
	if err != nil {
		return Sent{}, s.sendFailed(tenantID, resolved.Display, err)
	}
	s.log.Info().
		Str("tenant_id", tenantID).
		Str("peer", resolved.Display).
		Int("message_id", msg.ID).
		Msg("message sent")

	if s.audit != nil {
		s.audit.RecordOutbound(ctx, tenantID, audit.Outbound{
			ChatID:    resolved.Peer.ID,
			MessageID: msg.ID,
			Username:  resolved.Peer.Username,
			Phone:     resolved.Peer.Phone,
			Text:      text,
			Date:      msg.Date,
		})
	}
	return Sent{PeerResolved: resolved.Display, MessageID: msg.ID, Date: msg.Date}, nil
}

// MarkRead marks the chat with peerID read up to maxID. Phone numbers are never imported here.
func (s *Service) MarkRead(ctx context.Context, tenantID, peerID string, maxID int) error {
	if err := required("peer", peerID); err != nil {
		return err
	}
	if maxID < 0 {
		return apperr.New(apperr.KindValidation, "invalid_body", "max_id must be zero or greater.")
	}
	conn, err := s.open(ctx, tenantID, "Too many requests. Retry later.")
	if err != nil {
		return err
	}
	defer conn.Close()

	resolved, err := s.peers.Resolve(ctx, conn, tenantID, peerID, false)
	if err != nil {
		return err
	}
	if err := conn.MarkRead(ctx, resolved.Peer, maxID); err != nil {
		if wait, ok := telegram.AsFloodWait(err); ok {
			s.log.Warn().Str("tenant_id", tenantID).Dur("wait", wait).Msg("read receipt flood wait")
			return apperr.FloodWait(telegram.Seconds(wait))
		}
		s.log.Error().Err(err).Str("tenant_id", tenantID).Str("peer", resolved.Display).Int("max_id", maxID).Msg("read receipt failed")
		return apperr.Wrap(err, apperr.KindRejected, "read_receipt_failed", errText(err))
	}
	return nil
}

// open admits the request, checks the tenant is signed in and returns a connection on its session.
func (s *Service) open(ctx context.Context, tenantID, limitedMsg string) (telegram.Conn, error) {
	if ok, wait := s.limiter.Allow(tenantID); !ok {
		return nil, apperr.New(apperr.KindRateLimited, "rate_limited", limitedMsg).WithRetryAfter(telegram.Seconds(wait))
	}
	if _, err := s.tenants.Get(ctx, tenantID); err != nil {
		return nil, err
	}
	rec, err := s.sessions.Get(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if rec.State() != sessiondomain.StateReady {
		return nil, notLoggedIn()
	}
	plain, err := s.sessions.Session(rec)
	if err != nil {
		return nil, err
	}
	conn, err := s.dialer.Dial(ctx, plain)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("connect to telegram: %w", err))
	}
	ok, err := conn.Authorized(ctx)
	if err != nil {
		_ = conn.Close()
		return nil, apperr.Internal(fmt.Errorf("check authorization: %w", err))
	}
	if !ok {
		_ = conn.Close()
		return nil, notLoggedIn()
	}
	return conn, nil
}

func (s *Service) sendFailed(tenantID, display string, err error) error {
	if wait, ok := telegram.AsFloodWait(err); ok {
		s.log.Warn().Str("tenant_id", tenantID).Dur("wait", wait).Msg("send flood wait")
		return apperr.FloodWait(telegram.Seconds(wait))
	}
	if errors.Is(err, telegram.ErrWriteForbidden) {
		s.log.Warn().Str("tenant_id", tenantID).Str("peer", display).Msg("write forbidden")
		return apperr.Wrap(err, apperr.KindRejected, "cannot_send", "Cannot write to this peer.")
	}
	s.log.Error().Err(err).Str("tenant_id", tenantID).Str("peer", display).Msg("send failed")
	return apperr.Wrap(err, apperr.KindRejected, "send_failed", errText(err))
}

func notLoggedIn() error {
	return apperr.New(apperr.KindUnauthorized, "unauthorized", "Tenant not logged in. Use /auth/start and /auth/verify.")
}

func errText(err error) string {
	if msg := err.Error(); msg != "" {
		return msg
	}
	return fmt.Sprintf("%T", err)
}

func required(field, v string) error {
	if strings.TrimSpace(v) == "" {
		return apperr.New(apperr.KindValidation, "invalid_body", field+" is required.")
	}
	return nil
}
