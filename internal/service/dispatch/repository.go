package dispatch

import (
	"context"
	"time"

	"github.com/ignite/outreach/internal/domain"
)

// CampaignRepository defines the campaign data access the dispatcher needs.
// Implementations must be safe for concurrent use.
type CampaignRepository interface {
	// Get returns a campaign owned by ownerID. Returns ErrNotFound if it
	// doesn't exist or belongs to someone else.
	Get(ctx context.Context, ownerID, id string) (*domain.Campaign, error)

	// Schedule persists scheduled_at on a draft campaign without changing
	// its status.
	Schedule(ctx context.Context, id string, at time.Time) error

	// MarkSending transitions the campaign to sending, sets sent_at, and
	// clears scheduled_at.
	MarkSending(ctx context.Context, id string, at time.Time) error

	// Finish records the terminal status; completed_at is set for
	// completed campaigns.
	Finish(ctx context.Context, id string, status domain.CampaignStatus, at time.Time) error

	// Reopen puts a terminal campaign back into draft for a retry run.
	Reopen(ctx context.Context, id string) error
}

// ContactRepository defines the contact data access the dispatcher needs.
type ContactRepository interface {
	// ListByCampaign returns every contact row of a campaign in a stable
	// order (ascending email). Dispatch order must be deterministic.
	ListByCampaign(ctx context.Context, campaignID string) ([]domain.Contact, error)

	// MarkQueued sets status queued and stores the tracking token.
	MarkQueued(ctx context.Context, contactID, token string) error

	// MarkSent sets status sent and sent_at, and clears any prior error.
	MarkSent(ctx context.Context, contactID string, at time.Time) error

	// MarkFailed sets status failed and records the failure message.
	MarkFailed(ctx context.Context, contactID, message string) error

	// ResetToPending puts one contact back to pending, clearing error and
	// sent_at. Used when an auth abort interrupts an in-flight contact.
	ResetToPending(ctx context.Context, contactID string) error

	// ResetUnsent resets every non-sent contact of the campaign to
	// pending, clearing error and sent_at. Returns the number of rows
	// touched. Sent contacts are never reset.
	ResetUnsent(ctx context.Context, campaignID string) (int, error)
}
