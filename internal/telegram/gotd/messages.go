package gotd

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/gotd/td/tg"

	"tg-gateway/backend/internal/telegram"
)

func (c *Conn) SendMessage(ctx context.Context, p telegram.Peer, text string) (telegram.SentMessage, error) {
	randomID, err := randomID()
	if err != nil {
		return telegram.SentMessage{}, err
	}
	u, err := c.api.MessagesSendMessage(ctx, &tg.MessagesSendMessageRequest{
		Peer:     inputPeer(p),
		Message:  text,
		RandomID: randomID,
	})
	if err != nil {
		return telegram.SentMessage{}, callError(err)
	}
	return sentMessage(u, time.Now()), nil
}

func (c *Conn) MarkRead(ctx context.Context, p telegram.Peer, maxID int) error {
	var err error
	if p.Kind == telegram.PeerChannel {
		_, err = c.api.ChannelsReadHistory(ctx, &tg.ChannelsReadHistoryRequest{
			Channel: &tg.InputChannel{ChannelID: p.ID, AccessHash: p.AccessHash},
			MaxID:   maxID,
		})
	} else {
		_, err = c.api.MessagesReadHistory(ctx, &tg.MessagesReadHistoryRequest{
			Peer:  inputPeer(p),
			MaxID: maxID,
		})
	}
	if err != nil {
		return callError(err)
	}
	return nil
}

func randomID() (int64, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("gotd: random id: %w", err)
	}
	return int64(binary.LittleEndian.Uint64(b[:])), nil
}
