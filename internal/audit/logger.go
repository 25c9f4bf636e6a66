// Package audit writes the best-effort message log: every inbound message dispatched to a callback and
// every outbound message sent through the API.
package audit

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"tg-gateway/backend/internal/message/domain"
	msgrepo "tg-gateway/backend/internal/message/repository"
	"tg-gateway/backend/internal/telegram"
)

// writeTimeout bounds one audit insert so a slow database never holds up delivery.
const writeTimeout = 5 * time.Second

// Outbound describes a sent message for the log.
type Outbound struct {
	ChatID    int64
	MessageID int
	Username  string
	Phone     string
	Text      string
	Date      time.Time
}

// Logger persists messages. Every method is best-effort: failures are logged at warn level and never returned.
type Logger struct {
	repo msgrepo.Repository
	clk  clock.Clock
	log  zerolog.Logger
}

// NewLogger returns a Logger over repo. A nil repo makes every call a no-op.
func NewLogger(repo msgrepo.Repository, clk clock.Clock, log zerolog.Logger) *Logger {
	if clk == nil {
		clk = clock.New()
	}
	return &Logger{repo: repo, clk: clk, log: log.With().Str("component", "audit").Logger()}
}

// RecordInbound logs a message received by a tenant's account.
func (l *Logger) RecordInbound(ctx context.Context, tenantID string, msg telegram.IncomingMessage) {
	sender := msg.SenderID
	l.write(ctx, &domain.Message{
		TenantID:  tenantID,
		ChatID:    msg.ChatID,
		MessageID: int64(msg.MessageID),
		Username:  msg.SenderUsername,
		Text:      msg.Text,
		SenderID:  &sender,
		Date:      msg.Date.UTC(),
		Incoming:  true,
	})
}

// RecordOutbound logs a message sent on the tenant's behalf. Outbound rows carry no sender.
func (l *Logger) RecordOutbound(ctx context.Context, tenantID string, out Outbound) {
	l.write(ctx, &domain.Message{
		TenantID:  tenantID,
		ChatID:    out.ChatID,
		MessageID: int64(out.MessageID),
		Username:  out.Username,
		Phone:     out.Phone,
		Text:      out.Text,
		Date:      out.Date.UTC(),
		Incoming:  false,
	})
}

func (l *Logger) write(ctx context.Context, m *domain.Message) {
	if l == nil || l.repo == nil {
		return
	}
	m.ID = uuid.New().String()
	m.CreatedAt = l.clk.Now().UTC()

	// Detached from the caller so a finished request does not abort the insert.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()
	if err := l.repo.Create(ctx, m); err != nil {
		l.log.Warn().Err(err).
			Str("tenant_id", m.TenantID).
			Bool("incoming", m.Incoming).
			Int64("chat_id", m.ChatID).
			Int64("message_id", m.MessageID).
			Msg("could not record message")
	}
}
