package reminder

import (
	"context"
	"time"

	"github.com/ignite/outreach/internal/domain"
)

// RuleRepository defines reminder-rule persistence.
type RuleRepository interface {
	Create(ctx context.Context, rule *domain.ReminderRule) error
	Update(ctx context.Context, rule *domain.ReminderRule) error
	Delete(ctx context.Context, ownerID, id string) error

	// Get returns a rule owned by ownerID, ErrRuleNotFound otherwise.
	Get(ctx context.Context, ownerID, id string) (*domain.ReminderRule, error)

	ListByOwner(ctx context.Context, ownerID string) ([]domain.ReminderRule, error)

	// ListActiveBySource returns the active rules whose source campaign is
	// campaignID.
	ListActiveBySource(ctx context.Context, campaignID string) ([]domain.ReminderRule, error)
}

// QueueRepository defines reminder-queue persistence.
type QueueRepository interface {
	// InsertBatch creates the given pending items in one statement.
	InsertBatch(ctx context.Context, items []domain.ReminderQueueItem) error

	// Due returns at most limit pending items with scheduled_for <= now,
	// oldest first.
	Due(ctx context.Context, now time.Time, limit int) ([]domain.ReminderQueueItem, error)

	// CountForContactRule returns how many queue items already exist for
	// the (contact, rule) pair, regardless of status. Used to enforce
	// max_reminders at enqueue time.
	CountForContactRule(ctx context.Context, contactID, ruleID string) (int, error)

	// MarkSent records a successful delivery: status sent, sent_at, the
	// fresh tracking token, and reminder_count incremented by one.
	MarkSent(ctx context.Context, itemID, token string, at time.Time) error

	// MarkFailed records a permanent failure; failed items are never
	// retried automatically.
	MarkFailed(ctx context.Context, itemID, message string) error
}

// CampaignSource loads campaigns for rule validation and item processing.
// The postgres campaign repository satisfies this.
type CampaignSource interface {
	Get(ctx context.Context, ownerID, id string) (*domain.Campaign, error)
}

// ContactSource loads contacts for rule evaluation and item processing.
type ContactSource interface {
	// ListSent returns the contacts of a campaign with status sent.
	ListSent(ctx context.Context, campaignID string) ([]domain.Contact, error)

	Get(ctx context.Context, id string) (*domain.Contact, error)
}
