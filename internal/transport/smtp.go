package transport

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gopkg.in/gomail.v2"

	"github.com/ignite/outreach/internal/domain"
)

// SMTPSender delivers mail over plain SMTP with the account's host
// credentials. Used for mailboxes that expose neither an OAuth API nor an
// ESP key.
type SMTPSender struct {
	// dial is swapped in tests.
	dial func(host string, port int, user, pass string) (gomail.SendCloser, error)
}

// NewSMTPSender creates an SMTP sender.
func NewSMTPSender() *SMTPSender {
	return &SMTPSender{
		dial: func(host string, port int, user, pass string) (gomail.SendCloser, error) {
			return gomail.NewDialer(host, port, user, pass).Dial()
		},
	}
}

// Send connects, submits the message, and closes the connection. gomail has
// no context support, so the dial+send runs in a goroutine and ctx
// cancellation abandons the attempt.
func (s *SMTPSender) Send(ctx context.Context, msg *domain.EmailMessage, creds *domain.Credentials) (*domain.SendResult, error) {
	if creds.SMTPHost == "" {
		return nil, fmt.Errorf("smtp: host not configured")
	}

	m := gomail.NewMessage()
	m.SetAddressHeader("From", msg.FromEmail, msg.FromName)
	m.SetHeader("To", msg.To)
	if msg.CC != "" {
		m.SetHeader("Cc", msg.CC)
	}
	m.SetHeader("Subject", msg.Subject)
	if msg.TextBody != "" {
		m.SetBody("text/plain", msg.TextBody)
		m.AddAlternative("text/html", msg.HTMLBody)
	} else {
		m.SetBody("text/html", msg.HTMLBody)
	}

	done := make(chan error, 1)
	go func() {
		sc, err := s.dial(creds.SMTPHost, creds.SMTPPort, creds.SMTPUser, creds.SMTPPass)
		if err != nil {
			done <- fmt.Errorf("smtp: dial: %w", err)
			return
		}
		defer sc.Close()
		done <- gomail.Send(sc, m)
	}()

	select {
	case err := <-done:
		if err != nil {
			return nil, err
		}
	case <-ctx.Done():
		return nil, fmt.Errorf("smtp: %w", ctx.Err())
	}

	return &domain.SendResult{
		MessageID: uuid.New().String(),
		Provider:  domain.ProviderSMTP,
		SentAt:    time.Now().UTC(),
	}, nil
}
