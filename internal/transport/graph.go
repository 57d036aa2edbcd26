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

// GraphSender delivers mail through the Microsoft Graph sendMail endpoint
// using the account's OAuth access token.
type GraphSender struct {
	client  *http.Client
	baseURL string
}

// NewGraphSender creates a Microsoft Graph sender.
func NewGraphSender(client *http.Client) *GraphSender {
	return &GraphSender{
		client:  client,
		baseURL: "https://graph.microsoft.com/v1.0",
	}
}

type graphRecipient struct {
	EmailAddress struct {
		Address string `json:"address"`
	} `json:"emailAddress"`
}

func toGraphRecipients(addrs ...string) []graphRecipient {
	out := make([]graphRecipient, 0, len(addrs))
	for _, a := range addrs {
		if a == "" {
			continue
		}
		var r graphRecipient
		r.EmailAddress.Address = a
		out = append(out, r)
	}
	return out
}

// Send posts the message to /me/sendMail. Graph returns 202 with an empty
// body on success, so the message ID is generated locally.
func (s *GraphSender) Send(ctx context.Context, msg *domain.EmailMessage, creds *domain.Credentials) (*domain.SendResult, error) {
	payload := map[string]interface{}{
		"message": map[string]interface{}{
			"subject": msg.Subject,
			"body": map[string]string{
				"contentType": "HTML",
				"content":     msg.HTMLBody,
			},
			"toRecipients": toGraphRecipients(msg.To),
			"ccRecipients": toGraphRecipients(msg.CC),
			"from": map[string]interface{}{
				"emailAddress": map[string]string{
					"address": msg.FromEmail,
					"name":    msg.FromName,
				},
			},
		},
		"saveToSentItems": true,
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("graph: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.baseURL+"/me/sendMail", bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("graph: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+creds.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("graph: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{Provider: domain.ProviderMicrosoft, Code: resp.StatusCode, Body: string(body)}
	}

	return &domain.SendResult{
		MessageID: uuid.New().String(),
		Provider:  domain.ProviderMicrosoft,
		SentAt:    time.Now().UTC(),
	}, nil
}
