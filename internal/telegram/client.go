// Package telegram describes the protocol client capability the gateway consumes: one authenticated
// MTProto connection per tenant, rehydrated from a stored session for every operation.
//
// Provider failures that callers branch on are returned as closed result variants, never as
// error subtypes. The error return is reserved for unclassified failures.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Dialer opens connections. session is the plain serialized session, or nil for a fresh one.
type Dialer interface {
	Dial(ctx context.Context, session []byte) (Conn, error)
}

// Conn is one live connection. ctx arguments bound the single call; the connection itself lives until Close.
type Conn interface {
	// Authorized reports whether the session is signed in.
	Authorized(ctx context.Context) (bool, error)
	SendCode(ctx context.Context, phone string) (SendCodeResult, error)
	ResendCode(ctx context.Context, phone, phoneCodeHash string) (SendCodeResult, error)
	SignIn(ctx context.Context, phone, code, phoneCodeHash string) (SignInResult, error)
	// CheckPassword completes a sign-in that returned SignInPasswordNeeded.
	CheckPassword(ctx context.Context, password string) (SignInResult, error)
	LogOut(ctx context.Context) error
	Self(ctx context.Context) (User, error)

	ResolveSelf(ctx context.Context) (ResolveResult, error)
	// ResolveUsername resolves a public handle without the leading @.
	ResolveUsername(ctx context.Context, username string) (ResolveResult, error)
	ResolveID(ctx context.Context, id int64) (ResolveResult, error)
	// ResolvePhone looks an E.164 number up among existing contacts.
	ResolvePhone(ctx context.Context, phone string) (ResolveResult, error)
	// ImportContact imports phone as a contact. ResolveNotFound means no account was matched.
	ImportContact(ctx context.Context, clientID int64, phone string) (ResolveResult, error)

	// SendMessage returns ErrWriteForbidden or a *FloodWaitError for the failures callers distinguish.
	SendMessage(ctx context.Context, peer Peer, text string) (SentMessage, error)
	MarkRead(ctx context.Context, peer Peer, maxID int) error

	// Session serializes the current session state.
	Session(ctx context.Context) ([]byte, error)
	// Listen delivers incoming messages to handler until ctx is done or the connection ends.
	// handler runs on the connection's update goroutine and must not block.
	Listen(ctx context.Context, handler func(IncomingMessage)) error
	// Close disconnects. Safe to call more than once.
	Close() error
}

// User is an account on the platform.
type User struct {
	ID         int64
	AccessHash int64
	Username   string
	Phone      string // digits as reported by the provider, may be empty
}

// PeerKind distinguishes addressable endpoints.
type PeerKind int

const (
	PeerSelf PeerKind = iota
	PeerUser
	PeerChat
	PeerChannel
)

// Peer is an addressable endpoint resolved from a caller identifier.
type Peer struct {
	Kind       PeerKind
	ID         int64
	AccessHash int64
	Username   string
	Phone      string
}

// UserPeer addresses u.
func UserPeer(u User) Peer {
	return Peer{Kind: PeerUser, ID: u.ID, AccessHash: u.AccessHash, Username: u.Username, Phone: u.Phone}
}

// SentMessage identifies an outbound message.
type SentMessage struct {
	ID   int
	Date time.Time
}

// IncomingMessage is one pushed inbound message.
type IncomingMessage struct {
	ChatID         int64
	MessageID      int
	SenderID       int64
	SenderUsername string
	Text           string
	Date           time.Time
}

// Delivery is the channel a one-time code was sent over.
type Delivery string

const (
	DeliveryApp     Delivery = "telegram_app"
	DeliverySMS     Delivery = "sms"
	DeliveryCall    Delivery = "call"
	DeliveryUnknown Delivery = "unknown"
)

// SendCodeOutcome tags a SendCodeResult.
type SendCodeOutcome int

const (
	SendCodeSent SendCodeOutcome = iota
	SendCodeFloodWait
	SendCodePhoneInvalid
	SendCodePhoneBanned
	SendCodePhoneFlood
	SendCodeAuthRestart
	SendCodeUnavailable
	// SendCodeExpired is only produced by ResendCode.
	SendCodeExpired
	SendCodeAlreadyAuthorized
)

// SendCodeResult is the outcome of SendCode or ResendCode.
type SendCodeResult struct {
	Outcome SendCodeOutcome
	// Set for SendCodeSent.
	PhoneCodeHash  string
	Delivery       Delivery
	TimeoutSeconds int
	// Set for SendCodeFloodWait.
	RetryAfter time.Duration
}

// SignInOutcome tags a SignInResult.
type SignInOutcome int

const (
	SignInOK SignInOutcome = iota
	SignInPasswordNeeded
	SignInCodeInvalid
	SignInCodeExpired
	SignInPasswordInvalid
	SignInFloodWait
)

// SignInResult is the outcome of SignIn or CheckPassword.
type SignInResult struct {
	Outcome    SignInOutcome
	RetryAfter time.Duration
}

// ResolveOutcome tags a ResolveResult.
type ResolveOutcome int

const (
	ResolveFound ResolveOutcome = iota
	ResolveNotFound
	ResolveInvalid
	ResolveFloodWait
)

// ResolveResult is the outcome of a peer lookup.
type ResolveResult struct {
	Outcome    ResolveOutcome
	Peer       Peer
	RetryAfter time.Duration
	// Reason is the provider's description for ResolveInvalid.
	Reason string
}

// ErrWriteForbidden is returned by SendMessage when the account may not post to the chat.
var ErrWriteForbidden = errors.New("telegram: chat write forbidden")

// FloodWaitError is a provider-imposed wait on a non-tagged call.
type FloodWaitError struct {
	Wait time.Duration
}

func (e *FloodWaitError) Error() string {
	return fmt.Sprintf("telegram: flood wait %s", e.Wait)
}

// AsFloodWait reports the wait carried by err, if any.
func AsFloodWait(err error) (time.Duration, bool) {
	var fw *FloodWaitError
	if errors.As(err, &fw) {
		return fw.Wait, true
	}
	return 0, false
}

// Seconds rounds d up to whole seconds.
func Seconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	s := int(d / time.Second)
	if d%time.Second != 0 {
		s++
	}
	return s
}
