package domain

import "time"

// ContactStatus enumerates the send states of a contact within a campaign.
type ContactStatus string

const (
	ContactPending ContactStatus = "pending"
	ContactQueued  ContactStatus = "queued"
	ContactSent    ContactStatus = "sent"
	ContactFailed  ContactStatus = "failed"
	// ContactBounced is set only by an external bounce signal, never by the
	// dispatch loop.
	ContactBounced ContactStatus = "bounced"
)

// Contact is one recipient row. A nil CampaignID means the contact sits in
// the owner's library and is not part of any campaign's send list; rows are
// never shared across campaigns.
type Contact struct {
	ID         string        `json:"id" db:"id"`
	OwnerID    string        `json:"owner_id" db:"owner_id"`
	CampaignID *string       `json:"campaign_id" db:"campaign_id"`
	Email      string        `json:"email" db:"email"`
	Company    string        `json:"company" db:"company"`
	Status     ContactStatus `json:"status" db:"status"`
	// Error holds the last failure message; cleared on retry and on a
	// successful send.
	Error         string     `json:"error,omitempty" db:"error"`
	TrackingToken *string    `json:"tracking_token,omitempty" db:"tracking_token"`
	SentAt        *time.Time `json:"sent_at" db:"sent_at"`
	OpenedAt      *time.Time `json:"opened_at" db:"opened_at"`
	OpenCount     int        `json:"open_count" db:"open_count"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
}

// Sendable reports whether the dispatch loop should pick this contact up.
// Already-sent contacts are always skipped so re-dispatch never double-sends.
func (c *Contact) Sendable() bool {
	return c.Status == ContactPending || c.Status == ContactFailed
}

// Resolved reports whether the contact has reached a terminal send state.
func (c *Contact) Resolved() bool {
	return c.Status == ContactSent || c.Status == ContactFailed || c.Status == ContactBounced
}

// Opened reports whether the recipient has opened the campaign email.
func (c *Contact) Opened() bool {
	return c.OpenedAt != nil
}
