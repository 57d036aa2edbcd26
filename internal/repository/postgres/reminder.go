package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/outreach/internal/domain"
	"github.com/ignite/outreach/internal/service/reminder"
)

// ReminderRuleRepo implements reminder.RuleRepository against PostgreSQL.
type ReminderRuleRepo struct{ db *sql.DB }

// NewReminderRuleRepo creates a Postgres-backed rule repository.
func NewReminderRuleRepo(db *sql.DB) *ReminderRuleRepo { return &ReminderRuleRepo{db: db} }

const ruleCols = `id, owner_id, name, trigger_type, trigger_days,
	       source_campaign_id, reminder_campaign_id, is_active, max_reminders,
	       created_at, updated_at`

func scanRule(row interface{ Scan(...interface{}) error }) (*domain.ReminderRule, error) {
	r := &domain.ReminderRule{}
	err := row.Scan(
		&r.ID, &r.OwnerID, &r.Name, &r.TriggerType, &r.TriggerDays,
		&r.SourceCampaignID, &r.ReminderCampaignID, &r.IsActive, &r.MaxReminders,
		&r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (r *ReminderRuleRepo) Create(ctx context.Context, rule *domain.ReminderRule) error {
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO reminder_rules
			(id, owner_id, name, trigger_type, trigger_days,
			 source_campaign_id, reminder_campaign_id, is_active, max_reminders,
			 created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())
	`, rule.ID, rule.OwnerID, rule.Name, rule.TriggerType, rule.TriggerDays,
		rule.SourceCampaignID, rule.ReminderCampaignID, rule.IsActive, rule.MaxReminders)
	if err != nil {
		return fmt.Errorf("create reminder rule: %w", err)
	}
	return nil
}

func (r *ReminderRuleRepo) Update(ctx context.Context, rule *domain.ReminderRule) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE reminder_rules
		SET name = $3, trigger_type = $4, trigger_days = $5,
		    source_campaign_id = $6, reminder_campaign_id = $7,
		    is_active = $8, max_reminders = $9, updated_at = NOW()
		WHERE id = $1 AND owner_id = $2
	`, rule.ID, rule.OwnerID, rule.Name, rule.TriggerType, rule.TriggerDays,
		rule.SourceCampaignID, rule.ReminderCampaignID, rule.IsActive, rule.MaxReminders)
	if err != nil {
		return fmt.Errorf("update reminder rule: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return reminder.ErrRuleNotFound
	}
	return nil
}

func (r *ReminderRuleRepo) Delete(ctx context.Context, ownerID, id string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM reminder_rules WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete reminder rule: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return reminder.ErrRuleNotFound
	}
	return nil
}

func (r *ReminderRuleRepo) Get(ctx context.Context, ownerID, id string) (*domain.ReminderRule, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+ruleCols+` FROM reminder_rules WHERE id = $1 AND owner_id = $2
	`, id, ownerID)
	rule, err := scanRule(row)
	if err == sql.ErrNoRows {
		return nil, reminder.ErrRuleNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get reminder rule: %w", err)
	}
	return rule, nil
}

func (r *ReminderRuleRepo) ListByOwner(ctx context.Context, ownerID string) ([]domain.ReminderRule, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+ruleCols+`
		FROM reminder_rules
		WHERE owner_id = $1
		ORDER BY created_at DESC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list reminder rules: %w", err)
	}
	defer rows.Close()
	return collectRules(rows)
}

func (r *ReminderRuleRepo) ListActiveBySource(ctx context.Context, campaignID string) ([]domain.ReminderRule, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+ruleCols+`
		FROM reminder_rules
		WHERE source_campaign_id = $1 AND is_active = true
	`, campaignID)
	if err != nil {
		return nil, fmt.Errorf("list rules by source: %w", err)
	}
	defer rows.Close()
	return collectRules(rows)
}

func collectRules(rows *sql.Rows) ([]domain.ReminderRule, error) {
	var out []domain.ReminderRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reminder rule: %w", err)
		}
		out = append(out, *rule)
	}
	return out, rows.Err()
}

// ReminderQueueRepo implements reminder.QueueRepository against PostgreSQL.
type ReminderQueueRepo struct{ db *sql.DB }

// NewReminderQueueRepo creates a Postgres-backed queue repository.
func NewReminderQueueRepo(db *sql.DB) *ReminderQueueRepo { return &ReminderQueueRepo{db: db} }

func (r *ReminderQueueRepo) InsertBatch(ctx context.Context, items []domain.ReminderQueueItem) error {
	if len(items) == 0 {
		return nil
	}

	var (
		values []string
		args   []interface{}
	)
	for i, it := range items {
		if it.ID == "" {
			it.ID = uuid.New().String()
		}
		base := i * 8
		values = append(values, fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, NOW())",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8))
		args = append(args, it.ID, it.OwnerID, it.ContactID, it.ReminderRuleID,
			it.CampaignID, it.ScheduledFor, it.Status, it.ReminderCount)
	}

	q := `
		INSERT INTO reminder_queue
			(id, owner_id, contact_id, reminder_rule_id, campaign_id,
			 scheduled_for, status, reminder_count, created_at)
		VALUES ` + strings.Join(values, ", ")
	if _, err := r.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("insert reminder batch: %w", err)
	}
	return nil
}

func (r *ReminderQueueRepo) Due(ctx context.Context, now time.Time, limit int) ([]domain.ReminderQueueItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, owner_id, contact_id, reminder_rule_id, campaign_id,
		       scheduled_for, status, reminder_count, tracking_token,
		       COALESCE(last_error,''), sent_at, opened_at, open_count, created_at
		FROM reminder_queue
		WHERE status = $1 AND scheduled_for <= $2
		ORDER BY scheduled_for ASC
		LIMIT $3
	`, domain.QueuePending, now, limit)
	if err != nil {
		return nil, fmt.Errorf("select due reminders: %w", err)
	}
	defer rows.Close()

	var out []domain.ReminderQueueItem
	for rows.Next() {
		var it domain.ReminderQueueItem
		if err := rows.Scan(
			&it.ID, &it.OwnerID, &it.ContactID, &it.ReminderRuleID, &it.CampaignID,
			&it.ScheduledFor, &it.Status, &it.ReminderCount, &it.TrackingToken,
			&it.LastError, &it.SentAt, &it.OpenedAt, &it.OpenCount, &it.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan reminder item: %w", err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (r *ReminderQueueRepo) CountForContactRule(ctx context.Context, contactID, ruleID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM reminder_queue WHERE contact_id = $1 AND reminder_rule_id = $2
	`, contactID, ruleID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count reminder items: %w", err)
	}
	return n, nil
}

func (r *ReminderQueueRepo) MarkSent(ctx context.Context, itemID, token string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE reminder_queue
		SET status = $2, sent_at = $3, tracking_token = $4,
		    reminder_count = reminder_count + 1, last_error = NULL
		WHERE id = $1
	`, itemID, domain.QueueSent, at, token)
	if err != nil {
		return fmt.Errorf("mark reminder sent: %w", err)
	}
	return nil
}

func (r *ReminderQueueRepo) MarkFailed(ctx context.Context, itemID, message string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE reminder_queue SET status = $2, last_error = $3 WHERE id = $1
	`, itemID, domain.QueueFailed, message)
	if err != nil {
		return fmt.Errorf("mark reminder failed: %w", err)
	}
	return nil
}
