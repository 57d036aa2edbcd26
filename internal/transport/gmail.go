package transport

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/outreach/internal/domain"
)

// GmailSender delivers mail through the Gmail REST API
// (users/me/messages/send) using the account's OAuth access token.
type GmailSender struct {
	client  *http.Client
	baseURL string
}

// NewGmailSender creates a Gmail API sender.
func NewGmailSender(client *http.Client) *GmailSender {
	return &GmailSender{
		client:  client,
		baseURL: "https://gmail.googleapis.com/gmail/v1",
	}
}

// Send submits the RFC 822 message, base64url-encoded, to the Gmail API.
func (s *GmailSender) Send(ctx context.Context, msg *domain.EmailMessage, creds *domain.Credentials) (*domain.SendResult, error) {
	raw, err := buildRFC822(msg)
	if err != nil {
		return nil, fmt.Errorf("gmail: build message: %w", err)
	}

	payload, err := json.Marshal(map[string]string{
		"raw": base64.URLEncoding.EncodeToString(raw),
	})
	if err != nil {
		return nil, fmt.Errorf("gmail: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.baseURL+"/users/me/messages/send", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("gmail: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+creds.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gmail: send: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	if resp.StatusCode >= 400 {
		return nil, &StatusError{Provider: domain.ProviderGmail, Code: resp.StatusCode, Body: string(body)}
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &out); err != nil || out.ID == "" {
		out.ID = uuid.New().String()
	}

	return &domain.SendResult{
		MessageID: out.ID,
		Provider:  domain.ProviderGmail,
		SentAt:    time.Now().UTC(),
	}, nil
}

// buildRFC822 assembles a multipart/alternative message with text and HTML
// parts. Gmail requires the full RFC 822 envelope; Graph and SendGrid take
// structured JSON instead.
func buildRFC822(msg *domain.EmailMessage) ([]byte, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fmt.Fprintf(&buf, "From: %s <%s>\r\n", msg.FromName, msg.FromEmail)
	fmt.Fprintf(&buf, "To: %s\r\n", msg.To)
	if msg.CC != "" {
		fmt.Fprintf(&buf, "Cc: %s\r\n", msg.CC)
	}
	fmt.Fprintf(&buf, "Subject: %s\r\n", msg.Subject)
	fmt.Fprintf(&buf, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&buf, "Content-Type: multipart/alternative; boundary=%s\r\n\r\n", w.Boundary())

	if msg.TextBody != "" {
		part, err := w.CreatePart(textproto.MIMEHeader{
			"Content-Type": {"text/plain; charset=UTF-8"},
		})
		if err != nil {
			return nil, err
		}
		part.Write([]byte(msg.TextBody))
	}

	part, err := w.CreatePart(textproto.MIMEHeader{
		"Content-Type": {"text/html; charset=UTF-8"},
	})
	if err != nil {
		return nil, err
	}
	part.Write([]byte(msg.HTMLBody))

	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
