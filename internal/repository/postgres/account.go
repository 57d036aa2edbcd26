package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ignite/outreach/internal/credentials"
	"github.com/ignite/outreach/internal/domain"
)

// AccountRepo implements credentials.Store against PostgreSQL.
type AccountRepo struct{ db *sql.DB }

// NewAccountRepo creates a Postgres-backed mail account repository.
func NewAccountRepo(db *sql.DB) *AccountRepo { return &AccountRepo{db: db} }

func (r *AccountRepo) AccountForOwner(ctx context.Context, ownerID string) (*domain.MailAccount, error) {
	a := &domain.MailAccount{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, owner_id, provider, email,
		       COALESCE(access_token,''), COALESCE(refresh_token,''), token_expiry,
		       COALESCE(api_key,''),
		       COALESCE(smtp_host,''), COALESCE(smtp_port,0),
		       COALESCE(smtp_username,''), COALESCE(smtp_password,''),
		       created_at, updated_at
		FROM mail_accounts
		WHERE owner_id = $1
		ORDER BY updated_at DESC
		LIMIT 1
	`, ownerID).Scan(
		&a.ID, &a.OwnerID, &a.Provider, &a.Email,
		&a.Credentials.AccessToken, &a.Credentials.RefreshToken, &a.Credentials.Expiry,
		&a.Credentials.APIKey,
		&a.Credentials.SMTPHost, &a.Credentials.SMTPPort,
		&a.Credentials.SMTPUser, &a.Credentials.SMTPPass,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, credentials.ErrNoAccount
	}
	if err != nil {
		return nil, fmt.Errorf("get mail account: %w", err)
	}
	return a, nil
}

func (r *AccountRepo) UpdateCredentials(ctx context.Context, accountID string, creds domain.Credentials) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE mail_accounts
		SET access_token = $2, refresh_token = $3, token_expiry = $4, updated_at = NOW()
		WHERE id = $1
	`, accountID, creds.AccessToken, creds.RefreshToken, creds.Expiry)
	if err != nil {
		return fmt.Errorf("update credentials: %w", err)
	}
	return nil
}
