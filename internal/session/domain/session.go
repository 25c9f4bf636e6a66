package domain

import "time"

// State is the tenant's position in the sign-in flow, derived from the Auth Record.
type State string

const (
	StateIdle     State = "IDLE"
	StateWaitCode State = "WAIT_CODE"
	StateWait2FA  State = "WAIT_2FA"
	StateReady    State = "READY"
)

// AuthRecord is the per-tenant Telegram sign-in state. At most one exists per tenant.
type AuthRecord struct {
	ID       string
	TenantID string
	Phone    string // E.164; empty until known
	// SessionString is the sealed protocol session; empty when absent.
	SessionString string
	Authorized    bool
	// PasswordPending is set while the account waits for its cloud password.
	PasswordPending    bool
	PhoneCodeHash      string // present only between code send and verify
	CodeRequestedAt    *time.Time
	CodeTimeoutSeconds int
	LastError          string
	UpdatedAt          time.Time
}

// HasSession reports whether a sealed session is stored.
func (r *AuthRecord) HasSession() bool {
	return r != nil && r.SessionString != ""
}

// State derives the flow state. A nil record is IDLE. A session with a known phone stays in WAIT_CODE
// after its code hash is invalidated, until a new code is requested or the record is cleared.
func (r *AuthRecord) State() State {
	switch {
	case r == nil:
		return StateIdle
	case r.Authorized && r.HasSession():
		return StateReady
	case r.PasswordPending && r.HasSession():
		return StateWait2FA
	case r.HasSession() && (r.PhoneCodeHash != "" || r.Phone != ""):
		return StateWaitCode
	default:
		return StateIdle
	}
}

// Cooldown returns how long until a resend is allowed at now, rounded up to whole seconds; zero when none applies.
func (r *AuthRecord) Cooldown(now time.Time) int {
	if r == nil || r.CodeRequestedAt == nil || r.CodeTimeoutSeconds <= 0 {
		return 0
	}
	until := r.CodeRequestedAt.Add(time.Duration(r.CodeTimeoutSeconds) * time.Second)
	left := until.Sub(now)
	if left <= 0 {
		return 0
	}
	secs := int(left / time.Second)
	if left%time.Second != 0 {
		secs++
	}
	return secs
}

// Reset clears every auth-flow field, as logout does.
func (r *AuthRecord) Reset() {
	r.Phone = ""
	r.SessionString = ""
	r.Authorized = false
	r.PasswordPending = false
	r.PhoneCodeHash = ""
	r.CodeRequestedAt = nil
	r.CodeTimeoutSeconds = 0
	r.LastError = ""
}

// DispatchTarget is an authorized tenant with a callback URL, as enumerated at start-up.
type DispatchTarget struct {
	TenantID    string
	CallbackURL string
}
