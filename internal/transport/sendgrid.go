package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/outreach/internal/domain"
)

// SendGridSender delivers mail via the SendGrid v3 Mail Send API using the
// account's API key.
type SendGridSender struct {
	client  *http.Client
	baseURL string
}

// NewSendGridSender creates a SendGrid sender. baseURL defaults to the
// public API when empty.
func NewSendGridSender(client *http.Client, baseURL string) *SendGridSender {
	if baseURL == "" {
		baseURL = "https://api.sendgrid.com/v3"
	}
	return &SendGridSender{client: client, baseURL: baseURL}
}

// Send delivers a single email through SendGrid.
func (s *SendGridSender) Send(ctx context.Context, msg *domain.EmailMessage, creds *domain.Credentials) (*domain.SendResult, error) {
	if creds.APIKey == "" {
		return nil, &StatusError{Provider: domain.ProviderSendGrid, Code: http.StatusUnauthorized, Body: "api key not configured"}
	}

	to := []map[string]string{{"email": msg.To}}
	personalization := map[string]interface{}{"to": to}
	if msg.CC != "" {
		personalization["cc"] = []map[string]string{{"email": msg.CC}}
	}

	content := []map[string]string{}
	if msg.TextBody != "" {
		content = append(content, map[string]string{"type": "text/plain", "value": msg.TextBody})
	}
	content = append(content, map[string]string{"type": "text/html", "value": msg.HTMLBody})

	payload := map[string]interface{}{
		"personalizations": []map[string]interface{}{personalization},
		"from":             map[string]string{"email": msg.FromEmail, "name": msg.FromName},
		"subject":          msg.Subject,
		"content":          content,
		"tracking_settings": map[string]interface{}{
			// Open tracking is handled by our own pixel; disable SendGrid's
			// so open counts aren't double-recorded.
			"open_tracking":  map[string]bool{"enable": false},
			"click_tracking": map[string]bool{"enable": false},
		},
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("sendgrid: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/mail/send", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("sendgrid: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+creds.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sendgrid: send: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	if resp.StatusCode >= 400 {
		return nil, &StatusError{Provider: domain.ProviderSendGrid, Code: resp.StatusCode, Body: string(body)}
	}

	messageID := resp.Header.Get("X-Message-Id")
	if messageID == "" {
		messageID = uuid.New().String()
	}

	return &domain.SendResult{
		MessageID: messageID,
		Provider:  domain.ProviderSendGrid,
		SentAt:    time.Now().UTC(),
	}, nil
}
