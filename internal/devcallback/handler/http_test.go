package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tg-gateway/backend/internal/devcallback"
)

func TestHandler_ReceiveAndList(t *testing.T) {
	clk := clock.NewMock()
	clk.Set(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	r := mux.NewRouter()
	NewHandler(devcallback.NewMemoryStore(clk), zerolog.Nop()).Register(r)

	for _, body := range []string{`{"event":"message"}`, `plain text`} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/dev/callback-receiver", strings.NewReader(body)))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"ok":true}`, rec.Body.String())
	}

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dev/callback-receiver", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[
		{"received_at":"2024-05-01T12:00:00Z","payload":{"_raw":"plain text"}},
		{"received_at":"2024-05-01T12:00:00Z","payload":{"event":"message"}}
	]`, rec.Body.String())
}

func TestHandler_ListEmpty(t *testing.T) {
	r := mux.NewRouter()
	NewHandler(devcallback.NewMemoryStore(nil), zerolog.Nop()).Register(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/dev/callback-receiver", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}
