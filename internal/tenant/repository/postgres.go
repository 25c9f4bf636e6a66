package repository

import (
	"context"
	"database/sql"
	"errors"

	"tg-gateway/backend/internal/tenant/domain"
)

const (
	getTenantSQL      = `SELECT id, name, callback_url, created_at FROM tenants WHERE id = $1`
	listTenantSQL     = `SELECT id, name, callback_url, created_at FROM tenants ORDER BY created_at DESC`
	createTenantSQL   = `INSERT INTO tenants (id, name, callback_url, created_at) VALUES ($1, $2, $3, $4)`
	updateCallbackSQL = `UPDATE tenants SET callback_url = $2 WHERE id = $1`
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a tenant repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetByID returns the tenant for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Tenant, error) {
	t, err := scanTenant(r.db.QueryRowContext(ctx, getTenantSQL, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return t, nil
}

// List returns all tenants, newest first.
func (r *PostgresRepository) List(ctx context.Context) ([]*domain.Tenant, error) {
	rows, err := r.db.QueryContext(ctx, listTenantSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Create persists the tenant. The tenant must have ID and CreatedAt set.
func (r *PostgresRepository) Create(ctx context.Context, t *domain.Tenant) error {
	_, err := r.db.ExecContext(ctx, createTenantSQL, t.ID, t.Name, stringToNull(t.CallbackURL), t.CreatedAt)
	return err
}

// UpdateCallbackURL sets or clears (empty string) the tenant's callback URL.
func (r *PostgresRepository) UpdateCallbackURL(ctx context.Context, id, callbackURL string) error {
	_, err := r.db.ExecContext(ctx, updateCallbackSQL, id, stringToNull(callbackURL))
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTenant(row rowScanner) (*domain.Tenant, error) {
	var (
		t  domain.Tenant
		cb sql.NullString
	)
	if err := row.Scan(&t.ID, &t.Name, &cb, &t.CreatedAt); err != nil {
		return nil, err
	}
	if cb.Valid {
		t.CallbackURL = cb.String
	}
	return &t, nil
}

func stringToNull(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
