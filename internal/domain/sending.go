package domain

import "time"

// ProviderType identifies the mechanism used to deliver mail for an account.
type ProviderType string

const (
	ProviderGmail     ProviderType = "gmail"
	ProviderMicrosoft ProviderType = "microsoft"
	ProviderSendGrid  ProviderType = "sendgrid"
	ProviderSMTP      ProviderType = "smtp"
)

// Credentials holds the secrets needed to send through a provider. OAuth
// providers use the token triple; ESP providers use APIKey; SMTP uses the
// host/user/pass block. Last-writer-wins on refresh is acceptable because
// token rotation converges to the newest valid token.
type Credentials struct {
	AccessToken  string     `json:"-" db:"access_token"`
	RefreshToken string     `json:"-" db:"refresh_token"`
	Expiry       *time.Time `json:"expiry,omitempty" db:"token_expiry"`
	APIKey       string     `json:"-" db:"api_key"`
	SMTPHost     string     `json:"smtp_host,omitempty" db:"smtp_host"`
	SMTPPort     int        `json:"smtp_port,omitempty" db:"smtp_port"`
	SMTPUser     string     `json:"-" db:"smtp_username"`
	SMTPPass     string     `json:"-" db:"smtp_password"`
}

// Expired reports whether the OAuth access token needs a refresh.
func (c *Credentials) Expired(now time.Time) bool {
	return c.Expiry != nil && !c.Expiry.After(now)
}

// MailAccount is a connected sending mailbox or ESP key owned by a user.
// Which provider is configured decides the transport; an owner with no
// account at all is the no-transport-configured condition the dispatch
// controller must detect before mutating any state.
type MailAccount struct {
	ID          string       `json:"id" db:"id"`
	OwnerID     string       `json:"owner_id" db:"owner_id"`
	Provider    ProviderType `json:"provider" db:"provider"`
	Email       string       `json:"email" db:"email"`
	Credentials Credentials  `json:"-"`
	CreatedAt   time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at" db:"updated_at"`
}

// EmailMessage is the fully-resolved message ready for a transport.
// By the time a message reaches this struct, all placeholder substitution
// and tracking injection is complete.
type EmailMessage struct {
	ID        string `json:"id"`
	To        string `json:"to"`
	CC        string `json:"cc,omitempty"`
	FromName  string `json:"from_name"`
	FromEmail string `json:"from_email"`
	Subject   string `json:"subject"`
	HTMLBody  string `json:"html_body"`
	TextBody  string `json:"text_body"`
}

// SendResult is returned by a transport after attempting delivery.
type SendResult struct {
	MessageID string       `json:"message_id"`
	Provider  ProviderType `json:"provider"`
	SentAt    time.Time    `json:"sent_at"`
}
