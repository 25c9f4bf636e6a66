package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAs_ThroughWrapping(t *testing.T) {
	base := New(KindValidation, "invalid_phone", "Phone number is required.")
	err := fmt.Errorf("start auth: %w", base)

	got, ok := As(err)
	require.True(t, ok)
	assert.Equal(t, "invalid_phone", got.Code)
	assert.True(t, IsKind(err, KindValidation))
	assert.False(t, IsKind(err, KindNotFound))

	_, ok = As(errors.New("plain"))
	assert.False(t, ok)
}

func TestWrap_Unwrap(t *testing.T) {
	cause := errors.New("db down")
	err := Internal(cause)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "db down")
}

func TestWithRetryAfter_Copies(t *testing.T) {
	base := New(KindRateLimited, "rate_limited", "Too many requests.")
	e := base.WithRetryAfter(12)
	assert.Equal(t, 12, e.RetryAfter)
	assert.Zero(t, base.RetryAfter)
	assert.Zero(t, base.WithRetryAfter(-3).RetryAfter)
}

func TestFloodWait(t *testing.T) {
	e := FloodWait(30)
	assert.Equal(t, KindUpstreamRateLimited, e.Kind)
	assert.Equal(t, 30, e.RetryAfter)
	assert.Equal(t, "Telegram rate limit. Retry after 30 seconds.", e.Message)
}

func TestHTTPStatus(t *testing.T) {
	testCases := []struct {
		kind Kind
		want int
	}{
		{KindValidation, http.StatusBadRequest},
		{KindPeerResolution, http.StatusBadRequest},
		{KindRejected, http.StatusBadRequest},
		{KindNotFound, http.StatusNotFound},
		{KindUnauthorized, http.StatusUnauthorized},
		{KindChallenge, http.StatusForbidden},
		{KindUpstreamRateLimited, http.StatusTooManyRequests},
		{KindRateLimited, http.StatusTooManyRequests},
		{KindSessionCorrupt, http.StatusConflict},
		{KindConfiguration, http.StatusInternalServerError},
		{KindInternal, http.StatusInternalServerError},
		{Kind("unknown"), http.StatusInternalServerError},
	}
	for _, tc := range testCases {
		t.Run(string(tc.kind), func(t *testing.T) {
			assert.Equal(t, tc.want, HTTPStatus(tc.kind))
		})
	}
}
