package dispatch

import (
	"encoding/json"
	"strings"
	"time"

	"tg-gateway/backend/internal/telegram"
)

// EventMessage is the only event type delivered to callbacks.
const EventMessage = "message"

// DateLayout renders message dates as ISO-8601 with a numeric offset.
const DateLayout = "2006-01-02T15:04:05-07:00"

// Payload is the callback body. Field order is the wire key order.
type Payload struct {
	TenantID string  `json:"tenant_id"`
	Event    string  `json:"event"`
	Message  Message `json:"message"`
}

// Message is the inbound message inside a Payload.
type Message struct {
	ChatID         int64   `json:"chat_id"`
	MessageID      int     `json:"message_id"`
	SenderID       int64   `json:"sender_id"`
	SenderUsername *string `json:"sender_username"`
	Text           string  `json:"text"`
	Date           string  `json:"date"`
}

// NewPayload builds the callback body for an inbound message.
func NewPayload(tenantID string, msg telegram.IncomingMessage) Payload {
	p := Payload{
		TenantID: tenantID,
		Event:    EventMessage,
		Message: Message{
			ChatID:    msg.ChatID,
			MessageID: msg.MessageID,
			SenderID:  msg.SenderID,
			Text:      strings.TrimSpace(msg.Text),
			Date:      msg.Date.UTC().Format(DateLayout),
		},
	}
	if msg.SenderUsername != "" {
		u := msg.SenderUsername
		p.Message.SenderUsername = &u
	}
	return p
}

// TestPayload is the body sent by the callback connectivity check.
func TestPayload(tenantID string, now time.Time) Payload {
	u := "test"
	return Payload{
		TenantID: tenantID,
		Event:    EventMessage,
		Message: Message{
			SenderUsername: &u,
			Text:           "Test callback from Grey TG admin.",
			Date:           now.UTC().Format(DateLayout),
		},
	}
}

// Encode returns the compact JSON bytes that are signed and sent.
func (p Payload) Encode() ([]byte, error) {
	return json.Marshal(p)
}
