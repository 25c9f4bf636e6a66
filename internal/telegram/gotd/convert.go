package gotd

import (
	"strings"
	"time"

	"github.com/gotd/td/tg"

	"tg-gateway/backend/internal/telegram"
)

// channelIDOffset marks channel ids the way Bot API style chat ids do (-100 prefix).
const channelIDOffset = 1_000_000_000_000

func markedID(p tg.PeerClass) int64 {
	switch p := p.(type) {
	case *tg.PeerUser:
		return p.UserID
	case *tg.PeerChat:
		return -p.ChatID
	case *tg.PeerChannel:
		return -(channelIDOffset + p.ChannelID)
	default:
		return 0
	}
}

func incoming(e tg.Entities, m *tg.Message) telegram.IncomingMessage {
	in := telegram.IncomingMessage{
		ChatID:    markedID(m.PeerID),
		MessageID: m.ID,
		Text:      m.Message,
		Date:      time.Unix(int64(m.Date), 0).UTC(),
	}
	from, ok := m.GetFromID()
	if !ok {
		from = m.PeerID
	}
	if pu, ok := from.(*tg.PeerUser); ok {
		in.SenderID = pu.UserID
		if u, ok := e.Users[pu.UserID]; ok {
			in.SenderUsername = u.Username
		}
	}
	return in
}

func toUser(u *tg.User) telegram.User {
	hash, _ := u.GetAccessHash()
	return telegram.User{ID: u.ID, AccessHash: hash, Username: u.Username, Phone: u.Phone}
}

func firstUser(users []tg.UserClass) (*tg.User, bool) {
	for _, uc := range users {
		if u, ok := uc.(*tg.User); ok {
			return u, true
		}
	}
	return nil, false
}

func inputPeer(p telegram.Peer) tg.InputPeerClass {
	switch p.Kind {
	case telegram.PeerSelf:
		return &tg.InputPeerSelf{}
	case telegram.PeerChat:
		return &tg.InputPeerChat{ChatID: p.ID}
	case telegram.PeerChannel:
		return &tg.InputPeerChannel{ChannelID: p.ID, AccessHash: p.AccessHash}
	default:
		return &tg.InputPeerUser{UserID: p.ID, AccessHash: p.AccessHash}
	}
}

func fromInputPeer(ip tg.InputPeerClass, username string) (telegram.Peer, bool) {
	switch ip := ip.(type) {
	case *tg.InputPeerSelf:
		return telegram.Peer{Kind: telegram.PeerSelf, Username: username}, true
	case *tg.InputPeerUser:
		return telegram.Peer{Kind: telegram.PeerUser, ID: ip.UserID, AccessHash: ip.AccessHash, Username: username}, true
	case *tg.InputPeerChat:
		return telegram.Peer{Kind: telegram.PeerChat, ID: ip.ChatID, Username: username}, true
	case *tg.InputPeerChannel:
		return telegram.Peer{Kind: telegram.PeerChannel, ID: ip.ChannelID, AccessHash: ip.AccessHash, Username: username}, true
	default:
		return telegram.Peer{}, false
	}
}

// delivery classifies the code type by its schema name.
func delivery(t tg.AuthSentCodeTypeClass) telegram.Delivery {
	if t == nil {
		return telegram.DeliveryUnknown
	}
	name := strings.ToLower(t.TypeName())
	switch {
	case strings.Contains(name, "app"):
		return telegram.DeliveryApp
	case strings.Contains(name, "sms"):
		return telegram.DeliverySMS
	case strings.Contains(name, "call"):
		return telegram.DeliveryCall
	default:
		return telegram.DeliveryUnknown
	}
}

func sentCode(sc tg.AuthSentCodeClass) telegram.SendCodeResult {
	code, ok := sc.(*tg.AuthSentCode)
	if !ok {
		return telegram.SendCodeResult{Outcome: telegram.SendCodeAlreadyAuthorized}
	}
	timeout, _ := code.GetTimeout()
	return telegram.SendCodeResult{
		Outcome:        telegram.SendCodeSent,
		PhoneCodeHash:  code.PhoneCodeHash,
		Delivery:       delivery(code.Type),
		TimeoutSeconds: timeout,
	}
}

// sentMessage pulls the new message's id and date out of a sendMessage response.
func sentMessage(u tg.UpdatesClass, now time.Time) telegram.SentMessage {
	switch u := u.(type) {
	case *tg.UpdateShortSentMessage:
		return telegram.SentMessage{ID: u.ID, Date: time.Unix(int64(u.Date), 0).UTC()}
	case *tg.Updates:
		out := telegram.SentMessage{Date: now.UTC()}
		for _, upd := range u.Updates {
			switch upd := upd.(type) {
			case *tg.UpdateMessageID:
				if out.ID == 0 {
					out.ID = upd.ID
				}
			case *tg.UpdateNewMessage:
				if m, ok := upd.Message.(*tg.Message); ok {
					out.ID, out.Date = m.ID, time.Unix(int64(m.Date), 0).UTC()
				}
			case *tg.UpdateNewChannelMessage:
				if m, ok := upd.Message.(*tg.Message); ok {
					out.ID, out.Date = m.ID, time.Unix(int64(m.Date), 0).UTC()
				}
			}
		}
		return out
	default:
		return telegram.SentMessage{Date: now.UTC()}
	}
}
