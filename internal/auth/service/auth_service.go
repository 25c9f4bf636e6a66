// Package service drives a tenant's Telegram account from unauthenticated to authorized:
// code delivery, resend with cooldown, the cloud password challenge and logout.
//
// Every operation rehydrates the tenant's persisted session on a fresh connection and closes it before
// returning; no connection is held across calls.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"tg-gateway/backend/internal/logging"
	"tg-gateway/backend/internal/platform/apperr"
	"tg-gateway/backend/internal/platform/phone"
	"tg-gateway/backend/internal/session"
	sessiondomain "tg-gateway/backend/internal/session/domain"
	"tg-gateway/backend/internal/telegram"
	tenantdomain "tg-gateway/backend/internal/tenant/domain"
)

// TenantGetter looks tenants up; unknown ids fail with tenant_not_found.
type TenantGetter interface {
	Get(ctx context.Context, id string) (*tenantdomain.Tenant, error)
}

// Supervisor starts and stops a tenant's inbound dispatch loop.
type Supervisor interface {
	Start(ctx context.Context, tenantID, callbackURL string)
	Stop(ctx context.Context, tenantID string)
}

// PeerCache drops a tenant's resolved peers.
type PeerCache interface {
	Forget(tenantID string)
}

// CodeSent describes a delivered one-time code for client UX.
type CodeSent struct {
	Delivery       telegram.Delivery
	TimeoutSeconds int
	Hint           string
}

// Status is the tenant's auth state as shown to operators.
type Status struct {
	Authorized      bool
	Phone           string
	LastError       string
	CooldownSeconds int
	State           sessiondomain.State
}

// Service is the auth state machine.
type Service struct {
	tenants    TenantGetter
	store      *session.Store
	dialer     telegram.Dialer
	supervisor Supervisor
	peers      PeerCache
	clk        clock.Clock
	uxDelay    time.Duration
	log        zerolog.Logger
}

// NewService returns an auth service. supervisor and peers may be nil. uxDelay is slept after every code
// send or resend before responding.
func NewService(tenants TenantGetter, store *session.Store, dialer telegram.Dialer, supervisor Supervisor, peers PeerCache, clk clock.Clock, uxDelay time.Duration, log zerolog.Logger) *Service {
	if clk == nil {
		clk = clock.New()
	}
	return &Service{
		tenants:    tenants,
		store:      store,
		dialer:     dialer,
		supervisor: supervisor,
		peers:      peers,
		clk:        clk,
		uxDelay:    uxDelay,
		log:        log.With().Str("component", "auth").Logger(),
	}
}

// Start requests a one-time code for rawPhone. IDLE -> WAIT_CODE.
func (s *Service) Start(ctx context.Context, tenantID, rawPhone string) (CodeSent, error) {
	if _, err := s.tenants.Get(ctx, tenantID); err != nil {
		return CodeSent{}, err
	}
	e164, err := phone.Normalize(rawPhone)
	if err != nil {
		return CodeSent{}, err
	}
	rec, err := s.store.GetOrCreate(ctx, tenantID)
	if err != nil {
		return CodeSent{}, err
	}
	plain, err := s.store.Session(rec)
	if apperr.IsKind(err, apperr.KindSessionCorrupt) {
		s.log.Warn().Str("tenant_id", tenantID).Msg("stored session unreadable; resetting auth record")
		if s.supervisor != nil {
			s.supervisor.Stop(ctx, tenantID)
		}
		if err := s.store.Clear(ctx, tenantID); err != nil {
			return CodeSent{}, err
		}
		plain, err = nil, nil
	}
	if err != nil {
		return CodeSent{}, err
	}

	conn, err := s.dial(ctx, plain)
	if err != nil {
		return CodeSent{}, err
	}
	defer conn.Close()

	res, err := conn.SendCode(ctx, e164)
	if err != nil {
		msg := errMessage(err)
		return CodeSent{}, s.fail(ctx, tenantID, "Send code failed: "+msg,
			apperr.Wrap(err, apperr.KindRejected, "send_code_failed", msg))
	}
	if res.Outcome != telegram.SendCodeSent {
		return CodeSent{}, s.sendCodeFailure(ctx, tenantID, res, false)
	}
	return s.codeSent(ctx, tenantID, conn, e164, res)
}

// Resend re-issues the code for the pending request once the cooldown has elapsed.
func (s *Service) Resend(ctx context.Context, tenantID string) (CodeSent, error) {
	if _, err := s.tenants.Get(ctx, tenantID); err != nil {
		return CodeSent{}, err
	}
	rec, err := s.store.Get(ctx, tenantID)
	if err != nil {
		return CodeSent{}, err
	}
	if !rec.HasSession() || rec.PhoneCodeHash == "" || rec.Phone == "" {
		return CodeSent{}, apperr.New(apperr.KindValidation, "no_code_request", "No code request found. Call POST /auth/start first.")
	}
	if cd := rec.Cooldown(s.clk.Now()); cd > 0 {
		return CodeSent{}, apperr.New(apperr.KindRateLimited, "cooldown",
			fmt.Sprintf("Wait %d seconds before resending.", cd)).WithRetryAfter(cd)
	}
	plain, err := s.store.Session(rec)
	if err != nil {
		return CodeSent{}, s.fail(ctx, tenantID, errMessage(err), err)
	}

	conn, err := s.dial(ctx, plain)
	if err != nil {
		return CodeSent{}, err
	}
	defer conn.Close()

	res, err := conn.ResendCode(ctx, rec.Phone, rec.PhoneCodeHash)
	if err != nil {
		msg := errMessage(err)
		return CodeSent{}, s.fail(ctx, tenantID, msg, apperr.Wrap(err, apperr.KindRejected, "resend_failed", msg))
	}
	if res.Outcome != telegram.SendCodeSent {
		return CodeSent{}, s.sendCodeFailure(ctx, tenantID, res, true)
	}
	return s.codeSent(ctx, tenantID, conn, rec.Phone, res)
}

func (s *Service) codeSent(ctx context.Context, tenantID string, conn telegram.Conn, e164 string, res telegram.SendCodeResult) (CodeSent, error) {
	// The unauthenticated session carries the auth key the code was issued to.
	if err := s.store.Save(ctx, tenantID, conn, false); err != nil {
		return CodeSent{}, err
	}
	if err := s.store.RecordCodeRequest(ctx, tenantID, e164, res.PhoneCodeHash, res.TimeoutSeconds); err != nil {
		return CodeSent{}, err
	}
	s.log.Info().
		Str("tenant_id", tenantID).
		Str("delivery", string(res.Delivery)).
		Int("timeout_seconds", res.TimeoutSeconds).
		Str("phone_code_hash", logging.MaskToken(res.PhoneCodeHash)).
		Msg("login code sent")
	s.pause(ctx)
	return CodeSent{Delivery: res.Delivery, TimeoutSeconds: res.TimeoutSeconds, Hint: Hint(res.Delivery)}, nil
}

func (s *Service) sendCodeFailure(ctx context.Context, tenantID string, res telegram.SendCodeResult, resend bool) error {
	switch res.Outcome {
	case telegram.SendCodeFloodWait:
		secs := telegram.Seconds(res.RetryAfter)
		return s.fail(ctx, tenantID, fmt.Sprintf("Flood wait: retry after %d seconds", secs),
			apperr.New(apperr.KindUpstreamRateLimited, "flood_wait",
				fmt.Sprintf("Too many attempts. Retry after %d seconds.", secs)).WithRetryAfter(secs))
	case telegram.SendCodePhoneInvalid:
		return s.fail(ctx, tenantID, "Invalid phone number",
			apperr.New(apperr.KindValidation, "invalid_phone", "Invalid phone number."))
	case telegram.SendCodePhoneBanned:
		return s.fail(ctx, tenantID, "Phone number banned",
			apperr.New(apperr.KindRejected, "phone_banned", "This phone number is banned by Telegram."))
	case telegram.SendCodePhoneFlood:
		return s.fail(ctx, tenantID, "Phone number flood",
			apperr.New(apperr.KindUpstreamRateLimited, "phone_flood",
				"Too many attempts for this phone. Wait before retrying.").WithRetryAfter(60))
	case telegram.SendCodeAuthRestart:
		return s.fail(ctx, tenantID, "Auth restart",
			apperr.New(apperr.KindRejected, "auth_restart", "Auth was restarted. Try again."))
	case telegram.SendCodeUnavailable:
		msg := "Code delivery unavailable. All options (app, SMS, call) exhausted. Try again later."
		if resend {
			msg = "Resend unavailable. All delivery options exhausted. Try /auth/start later."
		}
		return s.fail(ctx, tenantID, "Send code unavailable", apperr.New(apperr.KindRejected, "send_code_unavailable", msg))
	case telegram.SendCodeExpired:
		s.clearCodeHash(ctx, tenantID)
		return s.fail(ctx, tenantID, "Code expired",
			apperr.New(apperr.KindRejected, "code_expired", "Code expired. Call POST /auth/start again."))
	case telegram.SendCodeAlreadyAuthorized:
		return s.fail(ctx, tenantID, "Already logged in",
			apperr.New(apperr.KindRejected, "already_logged_in", "Session already authorized."))
	default:
		code := "send_code_failed"
		if resend {
			code = "resend_failed"
		}
		return s.fail(ctx, tenantID, "Send code failed", apperr.New(apperr.KindRejected, code, "Send code failed."))
	}
}

func codeRequired() error {
	return apperr.New(apperr.KindValidation, "invalid_body", "code is required.")
}

// Verify submits the code, then the cloud password when the account has one.
// WAIT_CODE -> READY, or WAIT_CODE -> WAIT_2FA -> READY.
// A missing code is only accepted when a password is pending and one is given.
func (s *Service) Verify(ctx context.Context, tenantID, rawPhone, code, password string) error {
	code = strings.TrimSpace(code)
	if strings.TrimSpace(rawPhone) == "" {
		return apperr.New(apperr.KindValidation, "invalid_body", "phone is required.")
	}
	if code == "" && password == "" {
		return codeRequired()
	}
	t, err := s.tenants.Get(ctx, tenantID)
	if err != nil {
		return err
	}
	e164, err := phone.Normalize(rawPhone)
	if err != nil {
		return err
	}
	rec, err := s.store.Get(ctx, tenantID)
	if err != nil {
		return err
	}
	if !rec.HasSession() || rec.PhoneCodeHash == "" {
		return apperr.New(apperr.KindValidation, "no_code_request", "No code request found. Call /auth/start first.")
	}
	if code == "" && !rec.PasswordPending {
		return codeRequired()
	}
	if rec.Phone != "" && !phone.Equal(rec.Phone, e164) {
		s.log.Warn().Str("tenant_id", tenantID).Msg("phone mismatch on verify")
		return apperr.New(apperr.KindValidation, "phone_mismatch",
			fmt.Sprintf("Phone number mismatch. Use the same phone number (%s) that was used in /auth/start.", rec.Phone))
	}
	plain, err := s.store.Session(rec)
	if err != nil {
		return s.fail(ctx, tenantID, errMessage(err), err)
	}

	conn, err := s.dial(ctx, plain)
	if err != nil {
		return err
	}
	defer conn.Close()

	if rec.PasswordPending && password != "" {
		return s.submitPassword(ctx, t, conn, password)
	}

	res, err := conn.SignIn(ctx, e164, code, rec.PhoneCodeHash)
	if err != nil {
		return s.signInFailed(ctx, tenantID, err)
	}
	switch res.Outcome {
	case telegram.SignInOK:
		return s.signedIn(ctx, t, conn)
	case telegram.SignInPasswordNeeded:
		if err := s.store.Save(ctx, tenantID, conn, false); err != nil {
			return err
		}
		if err := s.store.MarkPasswordPending(ctx, tenantID); err != nil {
			return err
		}
		if password == "" {
			return s.fail(ctx, tenantID, "2FA required", apperr.New(apperr.KindChallenge, "2fa_required",
				"Two-step verification is enabled. Provide 'password' in the request body."))
		}
		return s.submitPassword(ctx, t, conn, password)
	case telegram.SignInCodeInvalid:
		s.clearCodeHash(ctx, tenantID)
		return s.fail(ctx, tenantID, "Invalid code", apperr.New(apperr.KindValidation, "invalid_code",
			"Invalid OTP code. Please check the code and try again."))
	case telegram.SignInCodeExpired:
		s.clearCodeHash(ctx, tenantID)
		return s.fail(ctx, tenantID, "Code expired", apperr.New(apperr.KindRejected, "code_expired",
			"OTP code has expired. Request a new code via /auth/start and enter it immediately after receiving it."))
	case telegram.SignInFloodWait:
		return s.signInFlood(ctx, tenantID, res)
	default:
		return s.signInFailed(ctx, tenantID, fmt.Errorf("unexpected sign-in outcome %d", res.Outcome))
	}
}

func (s *Service) submitPassword(ctx context.Context, t *tenantdomain.Tenant, conn telegram.Conn, password string) error {
	res, err := conn.CheckPassword(ctx, password)
	if err != nil {
		return s.signInFailed(ctx, t.ID, err)
	}
	switch res.Outcome {
	case telegram.SignInOK:
		return s.signedIn(ctx, t, conn)
	case telegram.SignInPasswordInvalid:
		return s.fail(ctx, t.ID, "Invalid 2FA password",
			apperr.New(apperr.KindValidation, "invalid_password", "Invalid 2FA password."))
	case telegram.SignInFloodWait:
		return s.signInFlood(ctx, t.ID, res)
	default:
		return s.signInFailed(ctx, t.ID, fmt.Errorf("unexpected password outcome %d", res.Outcome))
	}
}

func (s *Service) signedIn(ctx context.Context, t *tenantdomain.Tenant, conn telegram.Conn) error {
	if err := s.store.Save(ctx, t.ID, conn, true); err != nil {
		return err
	}
	if err := s.store.ClearCodeHash(ctx, t.ID); err != nil {
		return err
	}
	s.log.Info().Str("tenant_id", t.ID).Msg("signed in")
	if t.HasCallback() && s.supervisor != nil {
		s.supervisor.Start(ctx, t.ID, t.CallbackURL)
	}
	return nil
}

func (s *Service) signInFlood(ctx context.Context, tenantID string, res telegram.SignInResult) error {
	secs := telegram.Seconds(res.RetryAfter)
	return s.fail(ctx, tenantID, fmt.Sprintf("Flood wait: retry after %d seconds", secs),
		apperr.New(apperr.KindUpstreamRateLimited, "flood_wait",
			fmt.Sprintf("Too many attempts. Retry after %d seconds.", secs)).WithRetryAfter(secs))
}

// signInFailed clears the pending code on an unclassified failure.
func (s *Service) signInFailed(ctx context.Context, tenantID string, err error) error {
	s.log.Error().Err(err).Str("tenant_id", tenantID).Msg("sign-in failed")
	s.clearCodeHash(ctx, tenantID)
	msg := errMessage(err)
	shown := msg
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "expire"):
		shown = "OTP code has expired. Request a new one via /auth/start."
	case strings.Contains(lower, "invalid") && strings.Contains(lower, "code"):
		shown = "Invalid OTP code. Please check the code and try again."
	}
	return s.fail(ctx, tenantID, msg, apperr.Wrap(err, apperr.KindRejected, "sign_in_failed", shown))
}

// Logout stops dispatch, signs the account out remotely when possible and clears the record. Any state -> IDLE.
func (s *Service) Logout(ctx context.Context, tenantID string) error {
	if _, err := s.tenants.Get(ctx, tenantID); err != nil {
		return err
	}
	if s.supervisor != nil {
		s.supervisor.Stop(ctx, tenantID)
	}
	if s.peers != nil {
		s.peers.Forget(tenantID)
	}
	s.remoteLogOut(ctx, tenantID)
	if err := s.store.Clear(ctx, tenantID); err != nil {
		return err
	}
	s.log.Info().Str("tenant_id", tenantID).Msg("logged out")
	return nil
}

// remoteLogOut is best-effort: every failure is logged and ignored.
func (s *Service) remoteLogOut(ctx context.Context, tenantID string) {
	rec, err := s.store.Get(ctx, tenantID)
	if err != nil || !rec.HasSession() {
		return
	}
	plain, err := s.store.Session(rec)
	if err != nil {
		s.log.Debug().Err(err).Str("tenant_id", tenantID).Msg("skip remote log out")
		return
	}
	conn, err := s.dialer.Dial(ctx, plain)
	if err != nil {
		s.log.Debug().Err(err).Str("tenant_id", tenantID).Msg("skip remote log out")
		return
	}
	defer conn.Close()
	if ok, err := conn.Authorized(ctx); err != nil || !ok {
		return
	}
	if err := conn.LogOut(ctx); err != nil {
		s.log.Debug().Err(err).Str("tenant_id", tenantID).Msg("remote log out failed")
	}
}

// Status reports the tenant's current auth state without contacting Telegram.
func (s *Service) Status(ctx context.Context, tenantID string) (Status, error) {
	if _, err := s.tenants.Get(ctx, tenantID); err != nil {
		return Status{}, err
	}
	rec, err := s.store.Get(ctx, tenantID)
	if err != nil {
		return Status{}, err
	}
	if rec == nil {
		return Status{State: sessiondomain.StateIdle}, nil
	}
	return Status{
		Authorized:      rec.Authorized,
		Phone:           rec.Phone,
		LastError:       rec.LastError,
		CooldownSeconds: rec.Cooldown(s.clk.Now()),
		State:           rec.State(),
	}, nil
}

// Hint is the operator-facing instruction for a delivery channel.
func Hint(d telegram.Delivery) string {
	switch d {
	case telegram.DeliveryApp:
		return "Check Telegram app (Saved Messages / Telegram login message). App notification requires Telegram logged in on another device and online."
	case telegram.DeliverySMS:
		return "Check your phone SMS messages for the login code."
	case telegram.DeliveryCall:
		return "Answer the incoming phone call to get the code."
	default:
		return "Check your Telegram app or phone messages for the login code."
	}
}

func (s *Service) dial(ctx context.Context, plain []byte) (telegram.Conn, error) {
	conn, err := s.dialer.Dial(ctx, plain)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("connect to telegram: %w", err))
	}
	return conn, nil
}

// fail writes lastError and returns e. A failed write is logged, never returned.
func (s *Service) fail(ctx context.Context, tenantID, lastError string, e error) error {
	if err := s.store.SetLastError(ctx, tenantID, lastError); err != nil {
		s.log.Warn().Err(err).Str("tenant_id", tenantID).Msg("could not record last error")
	}
	return e
}

func (s *Service) clearCodeHash(ctx context.Context, tenantID string) {
	if err := s.store.ClearCodeHash(ctx, tenantID); err != nil {
		s.log.Warn().Err(err).Str("tenant_id", tenantID).Msg("could not clear code hash")
	}
}

func (s *Service) pause(ctx context.Context) {
	if s.uxDelay <= 0 {
		return
	}
	select {
	case <-s.clk.After(s.uxDelay):
	case <-ctx.Done():
	}
}

func errMessage(err error) string {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return ae.Message
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return fmt.Sprintf("%T", err)
}
