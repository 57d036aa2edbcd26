package domain

import "time"

// CampaignStatus enumerates the lifecycle states of a campaign.
type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignSending   CampaignStatus = "sending"
	CampaignCompleted CampaignStatus = "completed"
	CampaignFailed    CampaignStatus = "failed"
	CampaignArchived  CampaignStatus = "archived"
)

// CampaignSettings holds the per-campaign delivery knobs.
type CampaignSettings struct {
	// DelaySeconds is the pause between consecutive contact sends.
	// Valid range is 1-300. This is rate limiting against provider
	// throughput caps, not a performance knob.
	DelaySeconds int    `json:"delay_seconds" db:"delay_seconds"`
	CC           string `json:"cc,omitempty" db:"cc"`
}

// Campaign represents a single email blast: content, sender, and delivery
// configuration for a list of contacts.
type Campaign struct {
	ID          string           `json:"id" db:"id"`
	OwnerID     string           `json:"owner_id" db:"owner_id"`
	Name        string           `json:"name" db:"name"`
	Subject     string           `json:"subject" db:"subject"`
	HTMLBody    string           `json:"html_body" db:"html_body"`
	TextBody    string           `json:"text_body" db:"text_body"`
	FromName    string           `json:"from_name" db:"from_name"`
	FromEmail   string           `json:"from_email" db:"from_email"`
	Settings    CampaignSettings `json:"settings"`
	Status      CampaignStatus   `json:"status" db:"status"`
	ScheduledAt *time.Time       `json:"scheduled_at" db:"scheduled_at"`
	SentAt      *time.Time       `json:"sent_at" db:"sent_at"`
	CompletedAt *time.Time       `json:"completed_at" db:"completed_at"`
	CreatedAt   time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at" db:"updated_at"`
}

// IsTerminal returns true if the campaign is in a final state.
func (c *Campaign) IsTerminal() bool {
	return c.Status == CampaignCompleted || c.Status == CampaignFailed || c.Status == CampaignArchived
}

// Delay returns the configured inter-send delay, clamped to the valid range.
func (c *Campaign) Delay() time.Duration {
	d := c.Settings.DelaySeconds
	if d < 1 {
		d = 1
	}
	if d > 300 {
		d = 300
	}
	return time.Duration(d) * time.Second
}
