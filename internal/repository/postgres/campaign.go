package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/outreach/internal/domain"
	"github.com/ignite/outreach/internal/service/dispatch"
)

// CampaignRepo implements the campaign persistence used by the dispatch
// and reminder services against PostgreSQL.
type CampaignRepo struct{ db *sql.DB }

// NewCampaignRepo creates a Postgres-backed campaign repository.
func NewCampaignRepo(db *sql.DB) *CampaignRepo { return &CampaignRepo{db: db} }

const campaignCols = `id, owner_id, name, subject, COALESCE(html_body,''), COALESCE(text_body,''),
	       from_name, from_email, delay_seconds, COALESCE(cc,''),
	       status, scheduled_at, sent_at, completed_at, created_at, updated_at`

func scanCampaign(row interface{ Scan(...interface{}) error }) (*domain.Campaign, error) {
	c := &domain.Campaign{}
	err := row.Scan(
		&c.ID, &c.OwnerID, &c.Name, &c.Subject, &c.HTMLBody, &c.TextBody,
		&c.FromName, &c.FromEmail, &c.Settings.DelaySeconds, &c.Settings.CC,
		&c.Status, &c.ScheduledAt, &c.SentAt, &c.CompletedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (r *CampaignRepo) Get(ctx context.Context, ownerID, id string) (*domain.Campaign, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+campaignCols+`
		FROM campaigns
		WHERE id = $1 AND owner_id = $2
	`, id, ownerID)
	c, err := scanCampaign(row)
	if err == sql.ErrNoRows {
		return nil, dispatch.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get campaign: %w", err)
	}
	return c, nil
}

func (r *CampaignRepo) List(ctx context.Context, ownerID string) ([]domain.Campaign, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+campaignCols+`
		FROM campaigns
		WHERE owner_id = $1
		ORDER BY created_at DESC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list campaigns: %w", err)
	}
	defer rows.Close()

	var out []domain.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (r *CampaignRepo) Create(ctx context.Context, c *domain.Campaign) (string, error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.Status == "" {
		c.Status = domain.CampaignDraft
	}
	if c.Settings.DelaySeconds == 0 {
		c.Settings.DelaySeconds = 5
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO campaigns
			(id, owner_id, name, subject, html_body, text_body,
			 from_name, from_email, delay_seconds, cc, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW())
	`, c.ID, c.OwnerID, c.Name, c.Subject, c.HTMLBody, c.TextBody,
		c.FromName, c.FromEmail, c.Settings.DelaySeconds, c.Settings.CC, c.Status)
	if err != nil {
		return "", fmt.Errorf("create campaign: %w", err)
	}
	return c.ID, nil
}

func (r *CampaignRepo) Schedule(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE campaigns SET scheduled_at = $2, updated_at = NOW() WHERE id = $1
	`, id, at)
	if err != nil {
		return fmt.Errorf("schedule campaign: %w", err)
	}
	return nil
}

func (r *CampaignRepo) MarkSending(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE campaigns
		SET status = $2, sent_at = $3, scheduled_at = NULL, updated_at = NOW()
		WHERE id = $1
	`, id, domain.CampaignSending, at)
	if err != nil {
		return fmt.Errorf("mark campaign sending: %w", err)
	}
	return nil
}

func (r *CampaignRepo) Finish(ctx context.Context, id string, status domain.CampaignStatus, at time.Time) error {
	var err error
	if status == domain.CampaignCompleted {
		_, err = r.db.ExecContext(ctx, `
			UPDATE campaigns SET status = $2, completed_at = $3, updated_at = NOW() WHERE id = $1
		`, id, status, at)
	} else {
		_, err = r.db.ExecContext(ctx, `
			UPDATE campaigns SET status = $2, updated_at = NOW() WHERE id = $1
		`, id, status)
	}
	if err != nil {
		return fmt.Errorf("finish campaign: %w", err)
	}
	return nil
}

func (r *CampaignRepo) Reopen(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE campaigns
		SET status = $2, completed_at = NULL, updated_at = NOW()
		WHERE id = $1
	`, id, domain.CampaignDraft)
	if err != nil {
		return fmt.Errorf("reopen campaign: %w", err)
	}
	return nil
}

// DueScheduled returns draft campaigns across all owners whose scheduled_at
// has elapsed. Consumed by the scheduled-campaign sweeper.
func (r *CampaignRepo) DueScheduled(ctx context.Context, now time.Time) ([]domain.Campaign, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+campaignCols+`
		FROM campaigns
		WHERE status = $1 AND scheduled_at IS NOT NULL AND scheduled_at <= $2
		ORDER BY scheduled_at ASC
	`, domain.CampaignDraft, now)
	if err != nil {
		return nil, fmt.Errorf("list due campaigns: %w", err)
	}
	defer rows.Close()

	var out []domain.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("scan due campaign: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// FailScheduled marks a scheduled campaign failed and clears scheduled_at,
// used when the sweeper finds no usable transport at fire time.
func (r *CampaignRepo) FailScheduled(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE campaigns
		SET status = $2, scheduled_at = NULL, updated_at = NOW()
		WHERE id = $1
	`, id, domain.CampaignFailed)
	if err != nil {
		return fmt.Errorf("fail scheduled campaign: %w", err)
	}
	return nil
}
