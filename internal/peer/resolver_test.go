package peer

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tg-gateway/backend/internal/platform/apperr"
	"tg-gateway/backend/internal/telegram"
	"tg-gateway/backend/internal/telegram/telegramtest"
)

func setup(t *testing.T) (*Resolver, *telegramtest.Fake, telegram.Conn) {
	t.Helper()
	r, err := NewResolver(16, zerolog.Nop())
	require.NoError(t, err)
	f := telegramtest.New()
	f.Me = telegram.User{ID: 1, Username: "owner", Phone: "79000000001"}
	conn, err := f.Dial(context.Background(), nil)
	require.NoError(t, err)
	return r, f, conn
}

func codeOf(t *testing.T, err error) string {
	t.Helper()
	e, ok := apperr.As(err)
	require.True(t, ok, "want *apperr.Error, got %v", err)
	return e.Code
}

func TestResolve_Self(t *testing.T) {
	r, _, conn := setup(t)
	for _, id := range []string{"me", "SELF", " Me "} {
		got, err := r.Resolve(context.Background(), conn, "t1", id, true)
		require.NoError(t, err)
		assert.Equal(t, "me", got.Display)
		assert.Equal(t, telegram.PeerSelf, got.Peer.Kind)
	}
}

func TestResolve_Username(t *testing.T) {
	r, f, conn := setup(t)
	f.Users["alice"] = telegram.User{ID: 10, AccessHash: 99, Username: "alice"}

	got, err := r.Resolve(context.Background(), conn, "t1", "@Alice", true)
	require.NoError(t, err)
	assert.Equal(t, "@alice", got.Display)
	assert.Equal(t, int64(10), got.Peer.ID)

	_, err = r.Resolve(context.Background(), conn, "t1", "nobody", true)
	assert.Equal(t, CodePeerNotFound, codeOf(t, err))

	_, err = r.Resolve(context.Background(), conn, "t1", "bad-handle!", true)
	assert.Equal(t, CodeInvalidPeer, codeOf(t, err))
	assert.True(t, apperr.IsKind(err, apperr.KindValidation))
}

func TestResolve_NumericID(t *testing.T) {
	r, f, conn := setup(t)
	f.Users["bob"] = telegram.User{ID: 20, Username: "bob"}
	f.Contacts["+79001110000"] = telegram.User{ID: 21}

	got, err := r.Resolve(context.Background(), conn, "t1", "20", true)
	require.NoError(t, err)
	assert.Equal(t, "@bob", got.Display)

	got, err = r.Resolve(context.Background(), conn, "t1", "21", true)
	require.NoError(t, err)
	assert.Equal(t, "21", got.Display)

	_, err = r.Resolve(context.Background(), conn, "t1", "404", true)
	assert.Equal(t, CodeInvalidPeer, codeOf(t, err))
}

func TestResolve_PhoneInContacts(t *testing.T) {
	r, f, conn := setup(t)
	f.Contacts["+79001234567"] = telegram.User{ID: 30, Phone: "79001234567"}

	got, err := r.Resolve(context.Background(), conn, "t1", "+7 (900) 123-45-67", false)
	require.NoError(t, err)
	assert.Equal(t, int64(30), got.Peer.ID)
	assert.Equal(t, "+79001234567", got.Display)
	assert.Equal(t, "+79001234567", got.Phone)
	assert.Equal(t, 0, f.CallCount("ImportContact"))
}

func TestResolve_PhoneImportFallback(t *testing.T) {
	r, f, conn := setup(t)
	f.Importable["+79001234567"] = telegram.User{ID: 31}

	got, err := r.Resolve(context.Background(), conn, "t1", "+79001234567", true)
	require.NoError(t, err)
	assert.Equal(t, int64(31), got.Peer.ID)
	assert.Equal(t, "+79001234567", got.Display, "unknown account phone falls back to the normalized input")
	assert.Equal(t, 1, f.CallCount("ImportContact"))
}

func TestResolve_PhoneImportNoMatch(t *testing.T) {
	r, f, conn := setup(t)

	_, err := r.Resolve(context.Background(), conn, "t1", "+79001234567", true)
	assert.Equal(t, CodeNotInContactsOrNotOnTG, codeOf(t, err))
	assert.True(t, apperr.IsKind(err, apperr.KindPeerResolution))
	assert.Equal(t, 1, f.CallCount("ImportContact"))
}

func TestResolve_PhoneImportDisabled(t *testing.T) {
	r, f, conn := setup(t)
	f.Importable["+79001234567"] = telegram.User{ID: 31}

	_, err := r.Resolve(context.Background(), conn, "t1", "+79001234567", false)
	assert.Equal(t, CodeNotInContacts, codeOf(t, err))
	assert.Equal(t, 0, f.CallCount("ImportContact"), "import must not be attempted")
}

func TestResolve_PhoneInvalid(t *testing.T) {
	r, f, conn := setup(t)

	_, err := r.Resolve(context.Background(), conn, "t1", "+7900123", true)
	assert.Equal(t, "invalid_phone", codeOf(t, err))
	assert.Equal(t, 0, f.CallCount("ResolvePhone"))
}

func TestResolve_FloodWaitCarriesRetryAfter(t *testing.T) {
	r, f, conn := setup(t)
	f.ResolveFloodWait = 42 * time.Second

	for _, id := range []string{"me", "alice", "+79001234567"} {
		_, err := r.Resolve(context.Background(), conn, "t1", id, true)
		e, ok := apperr.As(err)
		require.True(t, ok, id)
		assert.Equal(t, apperr.KindUpstreamRateLimited, e.Kind, id)
		assert.Equal(t, 42, e.RetryAfter, id)
		assert.Equal(t, "Telegram rate limit. Retry after 42 seconds.", e.Message, id)
	}
}

func TestResolve_EmptyIdentifier(t *testing.T) {
	r, _, conn := setup(t)
	_, err := r.Resolve(context.Background(), conn, "t1", "   ", true)
	assert.Equal(t, CodeInvalidPeer, codeOf(t, err))
}

func TestResolver_CacheAndForget(t *testing.T) {
	r, f, conn := setup(t)
	f.Users["alice"] = telegram.User{ID: 10, Username: "alice"}
	ctx := context.Background()

	_, err := r.Resolve(ctx, conn, "t1", "alice", true)
	require.NoError(t, err)
	_, err = r.Resolve(ctx, conn, "t1", "@alice", true)
	require.NoError(t, err)
	assert.Equal(t, 1, f.CallCount("ResolveUsername"), "second lookup is served from cache")

	_, err = r.Resolve(ctx, conn, "t2", "alice", true)
	require.NoError(t, err)
	assert.Equal(t, 2, f.CallCount("ResolveUsername"), "cache is per tenant")

	r.Forget("t1")
	_, err = r.Resolve(ctx, conn, "t1", "alice", true)
	require.NoError(t, err)
	assert.Equal(t, 3, f.CallCount("ResolveUsername"))

	_, err = r.Resolve(ctx, conn, "t2", "alice", true)
	require.NoError(t, err)
	assert.Equal(t, 3, f.CallCount("ResolveUsername"), "forgetting t1 keeps t2")
}

func TestContactClientID(t *testing.T) {
	a := ContactClientID("+79001234567")
	assert.Equal(t, a, ContactClientID("+79001234567"))
	assert.NotEqual(t, a, ContactClientID("+79001234568"))
	assert.GreaterOrEqual(t, a, int64(0))
}
