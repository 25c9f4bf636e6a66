package domain

import "time"

// Message is one audited message, inbound or outbound. Rows are written once and never updated.
type Message struct {
	ID        string
	TenantID  string
	ChatID    int64
	MessageID int64
	Username  string // empty when unknown
	Phone     string // E.164 without '+', as Telegram reports it; empty when unknown
	Text      string
	// SenderID is nil for outbound messages.
	SenderID  *int64
	Date      time.Time
	Incoming  bool
	CreatedAt time.Time
}
