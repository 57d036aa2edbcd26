// Package transport delivers fully-resolved email messages through a
// provider-specific mechanism: an OAuth mailbox API (Gmail, Microsoft
// Graph), an ESP HTTP API (SendGrid), or plain SMTP.
//
// Providers are selected by a factory from the sending account's provider
// type rather than switched on at call sites.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ignite/outreach/internal/domain"
)

// Sender delivers one email. Implementations must honor ctx cancellation
// and return a StatusError for HTTP-level provider rejections so callers
// can distinguish terminal auth failures from transient ones.
type Sender interface {
	Send(ctx context.Context, msg *domain.EmailMessage, creds *domain.Credentials) (*domain.SendResult, error)
}

// ErrNoTransport is returned when no sender exists for an account's provider.
var ErrNoTransport = errors.New("transport: no sender configured for provider")

// StatusError is an HTTP-level rejection from a mail provider.
type StatusError struct {
	Provider domain.ProviderType
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Provider, e.Code, e.Body)
}

// IsAuthError reports whether err is a terminal authentication failure
// (revoked grant, expired refresh token, bad API key). Auth failures abort
// the whole dispatch loop instead of failing contacts one at a time.
func IsAuthError(err error) bool {
	if err == nil {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code == http.StatusUnauthorized || se.Code == http.StatusForbidden
	}
	// oauth2 surfaces revoked grants as a retrieve error mentioning
	// invalid_grant; match on the message since the type is internal.
	msg := err.Error()
	return strings.Contains(msg, "invalid_grant") || strings.Contains(msg, "unauthorized")
}

// Factory builds senders per provider type with a shared HTTP timeout.
type Factory struct {
	client   *http.Client
	sendgrid *SendGridSender
	gmail    *GmailSender
	graph    *GraphSender
	smtp     *SMTPSender
}

// NewFactory creates a transport factory. sendgridBaseURL lets tests point
// the ESP adapter at a local server.
func NewFactory(timeout time.Duration, sendgridBaseURL string) *Factory {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := &http.Client{Timeout: timeout}
	return &Factory{
		client:   client,
		sendgrid: NewSendGridSender(client, sendgridBaseURL),
		gmail:    NewGmailSender(client),
		graph:    NewGraphSender(client),
		smtp:     NewSMTPSender(),
	}
}

// ForAccount returns the sender matching the account's provider.
func (f *Factory) ForAccount(account *domain.MailAccount) (Sender, error) {
	switch account.Provider {
	case domain.ProviderGmail:
		return f.gmail, nil
	case domain.ProviderMicrosoft:
		return f.graph, nil
	case domain.ProviderSendGrid:
		return f.sendgrid, nil
	case domain.ProviderSMTP:
		return f.smtp, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrNoTransport, account.Provider)
	}
}
