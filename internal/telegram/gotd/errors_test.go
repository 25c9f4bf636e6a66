package gotd

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/tgerr"
	"github.com/stretchr/testify/assert"

	"tg-gateway/backend/internal/telegram"
)

func TestSendCodeOutcome(t *testing.T) {
	testCases := []struct {
		rpc  string
		want telegram.SendCodeOutcome
	}{
		{"PHONE_NUMBER_INVALID", telegram.SendCodePhoneInvalid},
		{"PHONE_NUMBER_BANNED", telegram.SendCodePhoneBanned},
		{"PHONE_NUMBER_FLOOD", telegram.SendCodePhoneFlood},
		{"AUTH_RESTART", telegram.SendCodeAuthRestart},
		{"SEND_CODE_UNAVAILABLE", telegram.SendCodeUnavailable},
		{"PHONE_CODE_EXPIRED", telegram.SendCodeExpired},
	}
	for _, tc := range testCases {
		t.Run(tc.rpc, func(t *testing.T) {
			res, ok := sendCodeOutcome(fmt.Errorf("rpc: %w", tgerr.New(400, tc.rpc)))
			assert.True(t, ok)
			assert.Equal(t, tc.want, res.Outcome)
		})
	}

	res, ok := sendCodeOutcome(tgerr.New(420, "FLOOD_WAIT_30"))
	assert.True(t, ok)
	assert.Equal(t, telegram.SendCodeFloodWait, res.Outcome)
	assert.Equal(t, 30*time.Second, res.RetryAfter)

	_, ok = sendCodeOutcome(errors.New("network down"))
	assert.False(t, ok)
}

func TestSignInOutcome(t *testing.T) {
	res, ok := signInOutcome(auth.ErrPasswordAuthNeeded)
	assert.True(t, ok)
	assert.Equal(t, telegram.SignInPasswordNeeded, res.Outcome)

	res, ok = signInOutcome(fmt.Errorf("check: %w", auth.ErrPasswordInvalid))
	assert.True(t, ok)
	assert.Equal(t, telegram.SignInPasswordInvalid, res.Outcome)

	res, ok = signInOutcome(tgerr.New(400, "PHONE_CODE_INVALID"))
	assert.True(t, ok)
	assert.Equal(t, telegram.SignInCodeInvalid, res.Outcome)

	res, ok = signInOutcome(tgerr.New(400, "PHONE_CODE_EXPIRED"))
	assert.True(t, ok)
	assert.Equal(t, telegram.SignInCodeExpired, res.Outcome)

	res, ok = signInOutcome(tgerr.New(420, "FLOOD_WAIT_5"))
	assert.True(t, ok)
	assert.Equal(t, 5*time.Second, res.RetryAfter)

	_, ok = signInOutcome(tgerr.New(400, "SOMETHING_ELSE"))
	assert.False(t, ok)
}

func TestResolveOutcome(t *testing.T) {
	res, ok := resolveOutcome(tgerr.New(400, "USERNAME_NOT_OCCUPIED"))
	assert.True(t, ok)
	assert.Equal(t, telegram.ResolveNotFound, res.Outcome)

	res, ok = resolveOutcome(tgerr.New(400, "USERNAME_INVALID"))
	assert.True(t, ok)
	assert.Equal(t, telegram.ResolveInvalid, res.Outcome)
	assert.NotEmpty(t, res.Reason)

	res, ok = resolveOutcome(tgerr.New(420, "FLOOD_WAIT_12"))
	assert.True(t, ok)
	assert.Equal(t, telegram.ResolveFloodWait, res.Outcome)
	assert.Equal(t, 12*time.Second, res.RetryAfter)
}

func TestCallError(t *testing.T) {
	assert.ErrorIs(t, callError(tgerr.New(403, "CHAT_WRITE_FORBIDDEN")), telegram.ErrWriteForbidden)

	d, ok := telegram.AsFloodWait(callError(tgerr.New(420, "FLOOD_WAIT_7")))
	assert.True(t, ok)
	assert.Equal(t, 7*time.Second, d)

	plain := errors.New("boom")
	assert.Equal(t, plain, callError(plain))
}
