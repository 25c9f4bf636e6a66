package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"tg-gateway/backend/internal/session/domain"
)

const authColumns = `id, tenant_id, phone, session_string, authorized, password_pending,
	phone_code_hash, code_requested_at, code_timeout_seconds, last_error, updated_at`

const (
	getAuthSQL    = `SELECT ` + authColumns + ` FROM tenant_auth WHERE tenant_id = $1`
	insertAuthSQL = `INSERT INTO tenant_auth (id, tenant_id, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT (tenant_id) DO NOTHING`
	updateAuthSQL = `UPDATE tenant_auth SET
		phone = $2, session_string = $3, authorized = $4, password_pending = $5,
		phone_code_hash = $6, code_requested_at = $7, code_timeout_seconds = $8,
		last_error = $9, updated_at = $10
		WHERE tenant_id = $1`
	listTargetsSQL = `SELECT t.id, t.callback_url FROM tenants t
		JOIN tenant_auth a ON a.tenant_id = t.id
		WHERE a.authorized AND a.session_string IS NOT NULL
		AND t.callback_url IS NOT NULL AND t.callback_url <> ''`
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an auth record repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetByTenant returns the record for tenantID, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByTenant(ctx context.Context, tenantID string) (*domain.AuthRecord, error) {
	rec, err := scanAuth(r.db.QueryRowContext(ctx, getAuthSQL, tenantID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return rec, nil
}

// GetOrCreate inserts an empty record when missing (racing inserts are absorbed by the unique tenant_id) and reads it back.
func (r *PostgresRepository) GetOrCreate(ctx context.Context, tenantID string) (*domain.AuthRecord, error) {
	if _, err := r.db.ExecContext(ctx, insertAuthSQL, uuid.New().String(), tenantID, time.Now().UTC()); err != nil {
		return nil, err
	}
	return scanAuth(r.db.QueryRowContext(ctx, getAuthSQL, tenantID))
}

// Update persists all mutable fields of rec.
func (r *PostgresRepository) Update(ctx context.Context, rec *domain.AuthRecord) error {
	_, err := r.db.ExecContext(ctx, updateAuthSQL,
		rec.TenantID,
		stringToNull(rec.Phone),
		stringToNull(rec.SessionString),
		rec.Authorized,
		rec.PasswordPending,
		stringToNull(rec.PhoneCodeHash),
		timeToNullTime(rec.CodeRequestedAt),
		intToNull(rec.CodeTimeoutSeconds, rec.CodeRequestedAt != nil),
		stringToNull(rec.LastError),
		rec.UpdatedAt,
	)
	return err
}

// ListDispatchTargets returns authorized tenants with a callback URL.
func (r *PostgresRepository) ListDispatchTargets(ctx context.Context) ([]domain.DispatchTarget, error) {
	rows, err := r.db.QueryContext(ctx, listTargetsSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.DispatchTarget
	for rows.Next() {
		var t domain.DispatchTarget
		if err := rows.Scan(&t.TenantID, &t.CallbackURL); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanAuth(row interface{ Scan(dest ...any) error }) (*domain.AuthRecord, error) {
	var (
		rec                           domain.AuthRecord
		phone, session, hash, lastErr sql.NullString
		requestedAt                   sql.NullTime
		timeout                       sql.NullInt32
	)
	err := row.Scan(&rec.ID, &rec.TenantID, &phone, &session, &rec.Authorized, &rec.PasswordPending,
		&hash, &requestedAt, &timeout, &lastErr, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	rec.Phone = phone.String
	rec.SessionString = session.String
	rec.PhoneCodeHash = hash.String
	rec.LastError = lastErr.String
	rec.CodeRequestedAt = nullTimeToPtr(requestedAt)
	rec.CodeTimeoutSeconds = int(timeout.Int32)
	return &rec, nil
}

func stringToNull(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func intToNull(n int, valid bool) sql.NullInt32 {
	return sql.NullInt32{Int32: int32(n), Valid: valid}
}

func timeToNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullTimeToPtr(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	return &n.Time
}
