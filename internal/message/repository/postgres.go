package repository

import (
	"context"
	"database/sql"

	"tg-gateway/backend/internal/message/domain"
)

const (
	insertMessageSQL = `INSERT INTO messages
		(id, tenant_id, chat_id, message_id, username, phone_number, text, sender_id, date, incoming, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	listMessagesSQL = `SELECT id, tenant_id, chat_id, message_id, username, phone_number, text, sender_id, date, incoming, created_at
		FROM messages WHERE tenant_id = $1 ORDER BY created_at DESC LIMIT $2`
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a message repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts m. The message must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, m *domain.Message) error {
	sender := sql.NullInt64{}
	if m.SenderID != nil {
		sender = sql.NullInt64{Int64: *m.SenderID, Valid: true}
	}
	_, err := r.db.ExecContext(ctx, insertMessageSQL,
		m.ID, m.TenantID, m.ChatID, m.MessageID,
		stringToNull(m.Username), stringToNull(m.Phone), stringToNull(m.Text),
		sender, sql.NullTime{Time: m.Date, Valid: !m.Date.IsZero()}, m.Incoming, m.CreatedAt,
	)
	return err
}

// ListByTenant returns up to limit messages for tenantID, newest first.
func (r *PostgresRepository) ListByTenant(ctx context.Context, tenantID string, limit int) ([]*domain.Message, error) {
	rows, err := r.db.QueryContext(ctx, listMessagesSQL, tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Message
	for rows.Next() {
		var (
			m                     domain.Message
			username, phone, text sql.NullString
			sender                sql.NullInt64
			date                  sql.NullTime
		)
		if err := rows.Scan(&m.ID, &m.TenantID, &m.ChatID, &m.MessageID, &username, &phone, &text,
			&sender, &date, &m.Incoming, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.Username = username.String
		m.Phone = phone.String
		m.Text = text.String
		if sender.Valid {
			id := sender.Int64
			m.SenderID = &id
		}
		m.Date = date.Time
		out = append(out, &m)
	}
	return out, rows.Err()
}

func stringToNull(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
