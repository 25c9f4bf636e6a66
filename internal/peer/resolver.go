// Package peer maps tenant-supplied identifiers (me, handle, numeric id, phone) to addressable peers.
package peer

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"tg-gateway/backend/internal/platform/apperr"
	"tg-gateway/backend/internal/platform/phone"
	"tg-gateway/backend/internal/telegram"
)

// Error codes for resolution failures.
const (
	CodeNotInContacts          = "PHONE_NOT_IN_CONTACTS"
	CodeNotInContactsOrNotOnTG = "PHONE_NOT_IN_CONTACTS_OR_NOT_ON_TELEGRAM"
	CodePeerNotFound           = "peer_not_found"
	CodeInvalidPeer            = "invalid_peer"
)

const (
	msgNotInContacts          = "Phone number not in contacts and contact import is disabled."
	msgNotInContactsOrNotOnTG = "Number not in contacts and not on Telegram (or has privacy restrictions). Import failed."
	msgPeerNotFound           = "Username or peer not found."
	defaultCacheSize          = 1024
	displaySelf               = "me"
)

// clientIDMask keeps import client ids positive.
const clientIDMask uint64 = 0x7FFF_FFFF_FFFF_FFFF

// Resolved is a peer ready for sending, with the form shown back to the caller.
type Resolved struct {
	Peer    telegram.Peer
	Display string
	// Phone is the normalized E.164 input when the identifier was a phone number.
	Phone string
}

// Resolver resolves identifiers over a tenant's connection and caches hits per tenant.
type Resolver struct {
	cache *lru.Cache[string, Resolved]
	log   zerolog.Logger
}

// NewResolver returns a Resolver whose cache holds up to size entries across all tenants.
func NewResolver(size int, log zerolog.Logger) (*Resolver, error) {
	if size < 1 {
		size = defaultCacheSize
	}
	cache, err := lru.New[string, Resolved](size)
	if err != nil {
		return nil, fmt.Errorf("peer cache: %w", err)
	}
	return &Resolver{cache: cache, log: log.With().Str("component", "peer_resolver").Logger()}, nil
}

// Resolve dispatches on the identifier's shape: me/self, phone number, then handle or numeric id.
// Phone numbers missing from contacts are imported when allowImport is set.
func (r *Resolver) Resolve(ctx context.Context, conn telegram.Conn, tenantID, identifier string, allowImport bool) (Resolved, error) {
	id := strings.TrimSpace(identifier)
	if id == "" {
		return Resolved{}, apperr.New(apperr.KindValidation, CodeInvalidPeer, "Peer is required.")
	}
	lower := strings.ToLower(id)
	if lower == "me" || lower == "self" {
		res, err := conn.ResolveSelf(ctx)
		if err != nil {
			return Resolved{}, apperr.Internal(fmt.Errorf("resolve self: %w", err))
		}
		if res.Outcome != telegram.ResolveFound {
			return Resolved{}, r.classify(tenantID, id, res)
		}
		return Resolved{Peer: res.Peer, Display: displaySelf}, nil
	}

	if phone.LooksLikePhone(id) {
		return r.resolvePhone(ctx, conn, tenantID, id, allowImport)
	}

	key := cacheKey(tenantID, strings.TrimPrefix(lower, "@"))
	if hit, ok := r.cache.Get(key); ok {
		return hit, nil
	}
	var (
		res telegram.ResolveResult
		err error
	)
	if n, perr := strconv.ParseInt(id, 10, 64); perr == nil {
		res, err = conn.ResolveID(ctx, n)
	} else {
		res, err = conn.ResolveUsername(ctx, strings.TrimPrefix(id, "@"))
	}
	if err != nil {
		return Resolved{}, apperr.Internal(fmt.Errorf("resolve peer: %w", err))
	}
	if res.Outcome != telegram.ResolveFound {
		return Resolved{}, r.classify(tenantID, id, res)
	}
	out := Resolved{Peer: res.Peer, Display: display(res.Peer)}
	r.cache.Add(key, out)
	return out, nil
}

func (r *Resolver) resolvePhone(ctx context.Context, conn telegram.Conn, tenantID, raw string, allowImport bool) (Resolved, error) {
	e164, err := phone.Normalize(raw)
	if err != nil {
		r.log.Warn().Str("tenant_id", tenantID).Msg("invalid phone format in peer")
		return Resolved{}, err
	}
	key := cacheKey(tenantID, e164)
	if hit, ok := r.cache.Get(key); ok {
		return hit, nil
	}

	res, err := conn.ResolvePhone(ctx, e164)
	if err != nil {
		return Resolved{}, apperr.Internal(fmt.Errorf("resolve phone: %w", err))
	}
	switch res.Outcome {
	case telegram.ResolveFound:
		r.log.Info().Str("tenant_id", tenantID).Str("phone", e164).Msg("phone found in contacts")
		return r.remember(key, res.Peer, e164), nil
	case telegram.ResolveFloodWait:
		return Resolved{}, r.classify(tenantID, e164, res)
	}

	if !allowImport {
		r.log.Info().Str("tenant_id", tenantID).Str("phone", e164).Msg("phone not in contacts, import disabled")
		return Resolved{}, apperr.New(apperr.KindPeerResolution, CodeNotInContacts, msgNotInContacts)
	}

	res, err = conn.ImportContact(ctx, ContactClientID(e164), e164)
	if err != nil {
		return Resolved{}, apperr.Internal(fmt.Errorf("import contact: %w", err))
	}
	switch res.Outcome {
	case telegram.ResolveFound:
		r.log.Info().Str("tenant_id", tenantID).Str("phone", e164).Int64("user_id", res.Peer.ID).Msg("contact imported")
		return r.remember(key, res.Peer, e164), nil
	case telegram.ResolveFloodWait:
		return Resolved{}, r.classify(tenantID, e164, res)
	default:
		r.log.Info().Str("tenant_id", tenantID).Str("phone", e164).Msg("import matched no account")
		return Resolved{}, apperr.New(apperr.KindPeerResolution, CodeNotInContactsOrNotOnTG, msgNotInContactsOrNotOnTG)
	}
}

func (r *Resolver) remember(key string, p telegram.Peer, e164 string) Resolved {
	out := Resolved{Peer: p, Display: e164, Phone: e164}
	if p.Phone != "" {
		out.Display = "+" + strings.TrimPrefix(p.Phone, "+")
	}
	r.cache.Add(key, out)
	return out
}

func (r *Resolver) classify(tenantID, id string, res telegram.ResolveResult) error {
	switch res.Outcome {
	case telegram.ResolveFloodWait:
		secs := telegram.Seconds(res.RetryAfter)
		r.log.Warn().Str("tenant_id", tenantID).Int("seconds", secs).Msg("flood wait resolving peer")
		return apperr.FloodWait(secs)
	case telegram.ResolveNotFound:
		r.log.Warn().Str("tenant_id", tenantID).Str("peer", id).Msg("peer not found")
		return apperr.New(apperr.KindPeerResolution, CodePeerNotFound, msgPeerNotFound)
	default:
		r.log.Warn().Str("tenant_id", tenantID).Str("peer", id).Str("reason", res.Reason).Msg("invalid peer")
		msg := res.Reason
		if msg == "" {
			msg = "Invalid peer."
		}
		return apperr.New(apperr.KindValidation, CodeInvalidPeer, msg)
	}
}

// Forget evicts every cached peer of tenantID.
func (r *Resolver) Forget(tenantID string) {
	prefix := tenantID + "|"
	for _, k := range r.cache.Keys() {
		if strings.HasPrefix(k, prefix) {
			r.cache.Remove(k)
		}
	}
}

// ContactClientID derives the import correlation id from a phone number. Stable across restarts.
func ContactClientID(e164 string) int64 {
	return int64(xxhash.Sum64String(e164) & clientIDMask)
}

func display(p telegram.Peer) string {
	if p.Username != "" {
		return "@" + p.Username
	}
	return strconv.FormatInt(p.ID, 10)
}

func cacheKey(tenantID, id string) string {
	return tenantID + "|" + id
}
