package gotd

import (
	"context"
	"strings"

	"github.com/gotd/td/telegram/message/peer"
	"github.com/gotd/td/tg"

	"tg-gateway/backend/internal/telegram"
)

func (c *Conn) ResolveSelf(ctx context.Context) (telegram.ResolveResult, error) {
	me, err := c.client.Self(ctx)
	if err != nil {
		if res, ok := resolveOutcome(err); ok {
			return res, nil
		}
		return telegram.ResolveResult{}, err
	}
	p := telegram.UserPeer(toUser(me))
	p.Kind = telegram.PeerSelf
	return telegram.ResolveResult{Outcome: telegram.ResolveFound, Peer: p}, nil
}

func (c *Conn) ResolveUsername(ctx context.Context, username string) (telegram.ResolveResult, error) {
	ip, err := peer.DefaultResolver(c.api).ResolveDomain(ctx, username)
	if err != nil {
		if res, ok := resolveOutcome(err); ok {
			return res, nil
		}
		return telegram.ResolveResult{}, err
	}
	p, ok := fromInputPeer(ip, username)
	if !ok {
		return telegram.ResolveResult{Outcome: telegram.ResolveInvalid, Reason: "unsupported peer type"}, nil
	}
	return telegram.ResolveResult{Outcome: telegram.ResolveFound, Peer: p}, nil
}

// ResolveID looks a user up by id. Without a cached access hash only ids the server already
// associates with this account resolve.
func (c *Conn) ResolveID(ctx context.Context, id int64) (telegram.ResolveResult, error) {
	users, err := c.api.UsersGetUsers(ctx, []tg.InputUserClass{&tg.InputUser{UserID: id}})
	if err != nil {
		if res, ok := resolveOutcome(err); ok {
			return res, nil
		}
		return telegram.ResolveResult{}, err
	}
	u, ok := firstUser(users)
	if !ok {
		return telegram.ResolveResult{Outcome: telegram.ResolveInvalid, Reason: errPeerIDInvalid}, nil
	}
	return telegram.ResolveResult{Outcome: telegram.ResolveFound, Peer: telegram.UserPeer(toUser(u))}, nil
}

// ResolvePhone searches the account's contact list.
func (c *Conn) ResolvePhone(ctx context.Context, phone string) (telegram.ResolveResult, error) {
	res, err := c.api.ContactsGetContacts(ctx, 0)
	if err != nil {
		if r, ok := resolveOutcome(err); ok {
			return r, nil
		}
		return telegram.ResolveResult{}, err
	}
	contacts, ok := res.(*tg.ContactsContacts)
	if !ok {
		return telegram.ResolveResult{Outcome: telegram.ResolveNotFound}, nil
	}
	want := strings.TrimPrefix(phone, "+")
	for _, uc := range contacts.Users {
		if u, ok := uc.(*tg.User); ok && u.Phone == want {
			return telegram.ResolveResult{Outcome: telegram.ResolveFound, Peer: telegram.UserPeer(toUser(u))}, nil
		}
	}
	return telegram.ResolveResult{Outcome: telegram.ResolveNotFound}, nil
}

func (c *Conn) ImportContact(ctx context.Context, clientID int64, phone string) (telegram.ResolveResult, error) {
	imported, err := c.api.ContactsImportContacts(ctx, []tg.InputPhoneContact{{
		ClientID: clientID,
		Phone:    phone,
	}})
	if err != nil {
		if res, ok := resolveOutcome(err); ok {
			return res, nil
		}
		return telegram.ResolveResult{}, err
	}
	u, ok := firstUser(imported.Users)
	if !ok {
		return telegram.ResolveResult{Outcome: telegram.ResolveNotFound}, nil
	}
	return telegram.ResolveResult{Outcome: telegram.ResolveFound, Peer: telegram.UserPeer(toUser(u))}, nil
}
