package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	msgrepo "tg-gateway/backend/internal/message/repository"
	"tg-gateway/backend/internal/telegram"
)

const tenantID = "7b0c7f0e-3a4b-4c55-9a61-2f1f5f0b8c11"

func TestLogger_RecordInbound(t *testing.T) {
	repo := msgrepo.NewMemoryRepository()
	clk := clock.NewMock()
	clk.Set(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	l := NewLogger(repo, clk, zerolog.Nop())

	l.RecordInbound(context.Background(), tenantID, telegram.IncomingMessage{
		ChatID:         42,
		MessageID:      7,
		SenderID:       42,
		SenderUsername: "alice",
		Text:           "hi",
		Date:           time.Unix(1700000000, 0),
	})

	rows, err := repo.ListByTenant(context.Background(), tenantID, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	m := rows[0]
	assert.NotEmpty(t, m.ID)
	assert.True(t, m.Incoming)
	assert.Equal(t, int64(42), m.ChatID)
	assert.Equal(t, int64(7), m.MessageID)
	require.NotNil(t, m.SenderID)
	assert.Equal(t, int64(42), *m.SenderID)
	assert.Equal(t, "alice", m.Username)
	assert.Equal(t, clk.Now().UTC(), m.CreatedAt)
	assert.Equal(t, time.UTC, m.Date.Location())
}

func TestLogger_RecordOutbound(t *testing.T) {
	repo := msgrepo.NewMemoryRepository()
	l := NewLogger(repo, clock.NewMock(), zerolog.Nop())

	l.RecordOutbound(context.Background(), tenantID, Outbound{ChatID: 99, MessageID: 3, Phone: "79001234567", Text: "hello"})

	rows, err := repo.ListByTenant(context.Background(), tenantID, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.False(t, rows[0].Incoming)
	assert.Nil(t, rows[0].SenderID)
	assert.Equal(t, "79001234567", rows[0].Phone)
}

func TestLogger_WriteFailureIsSwallowed(t *testing.T) {
	repo := msgrepo.NewMemoryRepository()
	repo.Err = errors.New("db down")
	l := NewLogger(repo, nil, zerolog.Nop())

	assert.NotPanics(t, func() {
		l.RecordOutbound(context.Background(), tenantID, Outbound{ChatID: 1, MessageID: 1})
	})
}

func TestLogger_CanceledCallerContextStillWrites(t *testing.T) {
	repo := msgrepo.NewMemoryRepository()
	l := NewLogger(repo, nil, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	l.RecordInbound(ctx, tenantID, telegram.IncomingMessage{ChatID: 1, MessageID: 1})

	rows, err := repo.ListByTenant(context.Background(), tenantID, 10)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestLogger_NilRepoIsNoop(t *testing.T) {
	l := NewLogger(nil, nil, zerolog.Nop())
	l.RecordInbound(context.Background(), tenantID, telegram.IncomingMessage{})
	var nilLogger *Logger
	nilLogger.RecordOutbound(context.Background(), tenantID, Outbound{})
}
