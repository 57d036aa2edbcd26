package domain

import "time"

// ReminderTrigger enumerates when a reminder rule fires relative to its
// source campaign.
type ReminderTrigger string

const (
	// TriggerDaysAfterCampaign anchors on the source campaign's completion.
	TriggerDaysAfterCampaign ReminderTrigger = "days_after_campaign"
	// TriggerDaysAfterLastEmail anchors on each contact's own sent_at.
	TriggerDaysAfterLastEmail ReminderTrigger = "days_after_last_email"
	// TriggerNoResponse anchors on campaign completion like
	// TriggerDaysAfterCampaign, but contacts who opened the email by the
	// time the item is due are skipped.
	TriggerNoResponse ReminderTrigger = "no_response"
)

// Valid reports whether t is a known trigger type.
func (t ReminderTrigger) Valid() bool {
	switch t {
	case TriggerDaysAfterCampaign, TriggerDaysAfterLastEmail, TriggerNoResponse:
		return true
	}
	return false
}

// ReminderRule links a source campaign to a follow-up campaign and says
// when the follow-up goes out. Source and reminder campaigns always belong
// to the same owner.
type ReminderRule struct {
	ID                 string          `json:"id" db:"id"`
	OwnerID            string          `json:"owner_id" db:"owner_id"`
	Name               string          `json:"name" db:"name"`
	TriggerType        ReminderTrigger `json:"trigger_type" db:"trigger_type"`
	TriggerDays        int             `json:"trigger_days" db:"trigger_days"`
	SourceCampaignID   string          `json:"source_campaign_id" db:"source_campaign_id"`
	ReminderCampaignID string          `json:"reminder_campaign_id" db:"reminder_campaign_id"`
	IsActive           bool            `json:"is_active" db:"is_active"`
	MaxReminders       int             `json:"max_reminders" db:"max_reminders"`
	CreatedAt          time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at" db:"updated_at"`
}

// QueueStatus enumerates the states of a reminder queue item.
type QueueStatus string

const (
	QueuePending QueueStatus = "pending"
	QueueSent    QueueStatus = "sent"
	// QueueFailed items are never retried automatically.
	QueueFailed QueueStatus = "failed"
)

// ReminderQueueItem is one scheduled follow-up send for one contact,
// produced in bulk when a rule fires and consumed by the periodic
// processor.
type ReminderQueueItem struct {
	ID             string      `json:"id" db:"id"`
	OwnerID        string      `json:"owner_id" db:"owner_id"`
	ContactID      string      `json:"contact_id" db:"contact_id"`
	ReminderRuleID string      `json:"reminder_rule_id" db:"reminder_rule_id"`
	CampaignID     string      `json:"campaign_id" db:"campaign_id"`
	ScheduledFor   time.Time   `json:"scheduled_for" db:"scheduled_for"`
	Status         QueueStatus `json:"status" db:"status"`
	ReminderCount  int         `json:"reminder_count" db:"reminder_count"`
	TrackingToken  *string     `json:"tracking_token,omitempty" db:"tracking_token"`
	LastError      string      `json:"last_error,omitempty" db:"last_error"`
	SentAt         *time.Time  `json:"sent_at" db:"sent_at"`
	OpenedAt       *time.Time  `json:"opened_at" db:"opened_at"`
	OpenCount      int         `json:"open_count" db:"open_count"`
	CreatedAt      time.Time   `json:"created_at" db:"created_at"`
}
