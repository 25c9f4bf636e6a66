package gotd

import (
	"errors"

	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tgerr"

	"tg-gateway/backend/internal/telegram"
)

// RPC error types the gateway branches on.
const (
	errPhoneNumberInvalid  = "PHONE_NUMBER_INVALID"
	errPhoneNumberBanned   = "PHONE_NUMBER_BANNED"
	errPhoneNumberFlood    = "PHONE_NUMBER_FLOOD"
	errAuthRestart         = "AUTH_RESTART"
	errSendCodeUnavailable = "SEND_CODE_UNAVAILABLE"
	errPhoneCodeInvalid    = "PHONE_CODE_INVALID"
	errPhoneCodeEmpty      = "PHONE_CODE_EMPTY"
	errPhoneCodeExpired    = "PHONE_CODE_EXPIRED"
	errUsernameNotOccupied = "USERNAME_NOT_OCCUPIED"
	errUsernameInvalid     = "USERNAME_INVALID"
	errPeerIDInvalid       = "PEER_ID_INVALID"
	errChatWriteForbidden  = "CHAT_WRITE_FORBIDDEN"
)

// sendCodeOutcome classifies an auth.sendCode or auth.resendCode failure. ok is false for unclassified errors.
func sendCodeOutcome(err error) (telegram.SendCodeResult, bool) {
	if d, ok := tgerr.AsFloodWait(err); ok {
		return telegram.SendCodeResult{Outcome: telegram.SendCodeFloodWait, RetryAfter: d}, true
	}
	var outcome telegram.SendCodeOutcome
	switch {
	case tgerr.Is(err, errPhoneNumberInvalid):
		outcome = telegram.SendCodePhoneInvalid
	case tgerr.Is(err, errPhoneNumberBanned):
		outcome = telegram.SendCodePhoneBanned
	case tgerr.Is(err, errPhoneNumberFlood):
		outcome = telegram.SendCodePhoneFlood
	case tgerr.Is(err, errAuthRestart):
		outcome = telegram.SendCodeAuthRestart
	case tgerr.Is(err, errSendCodeUnavailable):
		outcome = telegram.SendCodeUnavailable
	case tgerr.Is(err, errPhoneCodeExpired):
		outcome = telegram.SendCodeExpired
	default:
		return telegram.SendCodeResult{}, false
	}
	return telegram.SendCodeResult{Outcome: outcome}, true
}

// signInOutcome classifies a sign-in or password failure. ok is false for unclassified errors.
func signInOutcome(err error) (telegram.SignInResult, bool) {
	if d, ok := tgerr.AsFloodWait(err); ok {
		return telegram.SignInResult{Outcome: telegram.SignInFloodWait, RetryAfter: d}, true
	}
	var outcome telegram.SignInOutcome
	switch {
	case errors.Is(err, auth.ErrPasswordAuthNeeded):
		outcome = telegram.SignInPasswordNeeded
	case errors.Is(err, auth.ErrPasswordInvalid):
		outcome = telegram.SignInPasswordInvalid
	case tgerr.Is(err, errPhoneCodeInvalid, errPhoneCodeEmpty):
		outcome = telegram.SignInCodeInvalid
	case tgerr.Is(err, errPhoneCodeExpired):
		outcome = telegram.SignInCodeExpired
	default:
		return telegram.SignInResult{}, false
	}
	return telegram.SignInResult{Outcome: outcome}, true
}

// resolveOutcome classifies a lookup failure. ok is false for unclassified errors.
func resolveOutcome(err error) (telegram.ResolveResult, bool) {
	if d, ok := tgerr.AsFloodWait(err); ok {
		return telegram.ResolveResult{Outcome: telegram.ResolveFloodWait, RetryAfter: d}, true
	}
	switch {
	case tgerr.Is(err, errUsernameNotOccupied):
		return telegram.ResolveResult{Outcome: telegram.ResolveNotFound}, true
	case tgerr.Is(err, errUsernameInvalid, errPeerIDInvalid):
		return telegram.ResolveResult{Outcome: telegram.ResolveInvalid, Reason: err.Error()}, true
	default:
		return telegram.ResolveResult{}, false
	}
}

// callError maps failures of untagged calls onto the capability's error values.
func callError(err error) error {
	if d, ok := tgerr.AsFloodWait(err); ok {
		return &telegram.FloodWaitError{Wait: d}
	}
	if tgerr.Is(err, errChatWriteForbidden) {
		return telegram.ErrWriteForbidden
	}
	return err
}
