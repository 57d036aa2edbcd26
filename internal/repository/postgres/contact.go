package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/outreach/internal/domain"
)

// ContactRepo implements contact persistence against PostgreSQL. It serves
// both the dispatch loop's state transitions and the reminder engine's
// eligibility queries.
type ContactRepo struct{ db *sql.DB }

// NewContactRepo creates a Postgres-backed contact repository.
func NewContactRepo(db *sql.DB) *ContactRepo { return &ContactRepo{db: db} }

const contactCols = `id, owner_id, campaign_id, email, COALESCE(company,''), status,
	       COALESCE(error,''), tracking_token, sent_at, opened_at, open_count,
	       created_at, updated_at`

func scanContact(row interface{ Scan(...interface{}) error }) (*domain.Contact, error) {
	c := &domain.Contact{}
	err := row.Scan(
		&c.ID, &c.OwnerID, &c.CampaignID, &c.Email, &c.Company, &c.Status,
		&c.Error, &c.TrackingToken, &c.SentAt, &c.OpenedAt, &c.OpenCount,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (r *ContactRepo) Get(ctx context.Context, id string) (*domain.Contact, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+contactCols+` FROM contacts WHERE id = $1
	`, id)
	c, err := scanContact(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("contact %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get contact: %w", err)
	}
	return c, nil
}

// ListByCampaign returns the campaign's contacts in ascending email order.
// The dispatch loop relies on this ordering being stable.
func (r *ContactRepo) ListByCampaign(ctx context.Context, campaignID string) ([]domain.Contact, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+contactCols+`
		FROM contacts
		WHERE campaign_id = $1
		ORDER BY email ASC
	`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	defer rows.Close()
	return collectContacts(rows)
}

// ListSent returns the campaign's contacts with status sent, the reminder
// engine's eligibility set.
func (r *ContactRepo) ListSent(ctx context.Context, campaignID string) ([]domain.Contact, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+contactCols+`
		FROM contacts
		WHERE campaign_id = $1 AND status = $2
		ORDER BY email ASC
	`, campaignID, domain.ContactSent)
	if err != nil {
		return nil, fmt.Errorf("list sent contacts: %w", err)
	}
	defer rows.Close()
	return collectContacts(rows)
}

func collectContacts(rows *sql.Rows) ([]domain.Contact, error) {
	var out []domain.Contact
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (r *ContactRepo) Create(ctx context.Context, c *domain.Contact) (string, error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.Status == "" {
		c.Status = domain.ContactPending
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO contacts (id, owner_id, campaign_id, email, company, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
	`, c.ID, c.OwnerID, c.CampaignID, c.Email, c.Company, c.Status)
	if err != nil {
		return "", fmt.Errorf("create contact: %w", err)
	}
	return c.ID, nil
}

func (r *ContactRepo) MarkQueued(ctx context.Context, contactID, token string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE contacts
		SET status = $2, tracking_token = $3, updated_at = NOW()
		WHERE id = $1
	`, contactID, domain.ContactQueued, token)
	if err != nil {
		return fmt.Errorf("mark contact queued: %w", err)
	}
	return nil
}

func (r *ContactRepo) MarkSent(ctx context.Context, contactID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE contacts
		SET status = $2, sent_at = $3, error = NULL, updated_at = NOW()
		WHERE id = $1
	`, contactID, domain.ContactSent, at)
	if err != nil {
		return fmt.Errorf("mark contact sent: %w", err)
	}
	return nil
}

func (r *ContactRepo) MarkFailed(ctx context.Context, contactID, message string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE contacts
		SET status = $2, error = $3, updated_at = NOW()
		WHERE id = $1
	`, contactID, domain.ContactFailed, message)
	if err != nil {
		return fmt.Errorf("mark contact failed: %w", err)
	}
	return nil
}

func (r *ContactRepo) ResetToPending(ctx context.Context, contactID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE contacts
		SET status = $2, error = NULL, sent_at = NULL, updated_at = NOW()
		WHERE id = $1
	`, contactID, domain.ContactPending)
	if err != nil {
		return fmt.Errorf("reset contact: %w", err)
	}
	return nil
}

// ResetUnsent puts every non-sent contact of the campaign back to pending.
// Sent rows are deliberately untouched so a retry never double-sends.
func (r *ContactRepo) ResetUnsent(ctx context.Context, campaignID string) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE contacts
		SET status = $2, error = NULL, sent_at = NULL, updated_at = NOW()
		WHERE campaign_id = $1 AND status <> $3
	`, campaignID, domain.ContactPending, domain.ContactSent)
	if err != nil {
		return 0, fmt.Errorf("reset unsent contacts: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
