package transport

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ignite/outreach/internal/domain"
)

func testMessage() *domain.EmailMessage {
	return &domain.EmailMessage{
		ID:        "msg-1",
		To:        "jane@acme.test",
		FromName:  "Sales",
		FromEmail: "sales@example.com",
		Subject:   "Hello",
		HTMLBody:  "<p>Hi</p>",
		TextBody:  "Hi",
	}
}

func TestSendGridSend(t *testing.T) {
	var gotAuth string
	var gotPayload map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &gotPayload)
		w.Header().Set("X-Message-Id", "sg-123")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	s := NewSendGridSender(srv.Client(), srv.URL)
	res, err := s.Send(context.Background(), testMessage(), &domain.Credentials{APIKey: "sg-key"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if res.MessageID != "sg-123" {
		t.Errorf("message id = %q, want sg-123", res.MessageID)
	}
	if res.Provider != domain.ProviderSendGrid {
		t.Errorf("provider = %q", res.Provider)
	}
	if gotAuth != "Bearer sg-key" {
		t.Errorf("auth header = %q", gotAuth)
	}
	if gotPayload["subject"] != "Hello" {
		t.Errorf("subject = %v", gotPayload["subject"])
	}
}

func TestSendGridRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"errors":[{"message":"bad request"}]}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	s := NewSendGridSender(srv.Client(), srv.URL)
	_, err := s.Send(context.Background(), testMessage(), &domain.Credentials{APIKey: "k"})
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if se.Code != http.StatusBadRequest {
		t.Errorf("code = %d", se.Code)
	}
	if IsAuthError(err) {
		t.Error("400 should not classify as auth error")
	}
}

func TestSendGridMissingKeyIsAuthError(t *testing.T) {
	s := NewSendGridSender(http.DefaultClient, "http://unused.invalid")
	_, err := s.Send(context.Background(), testMessage(), &domain.Credentials{})
	if !IsAuthError(err) {
		t.Fatalf("expected auth error, got %v", err)
	}
}

func TestGmailSend(t *testing.T) {
	var raw string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/users/me/messages/send") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var body struct {
			Raw string `json:"raw"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		raw = body.Raw
		json.NewEncoder(w).Encode(map[string]string{"id": "gm-1"})
	}))
	defer srv.Close()

	s := NewGmailSender(srv.Client())
	s.baseURL = srv.URL
	res, err := s.Send(context.Background(), testMessage(), &domain.Credentials{AccessToken: "tok"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if res.MessageID != "gm-1" {
		t.Errorf("message id = %q", res.MessageID)
	}

	decoded, err := base64.URLEncoding.DecodeString(raw)
	if err != nil {
		t.Fatalf("raw not base64url: %v", err)
	}
	rfc822 := string(decoded)
	for _, want := range []string{"To: jane@acme.test", "Subject: Hello", "multipart/alternative", "<p>Hi</p>"} {
		if !strings.Contains(rfc822, want) {
			t.Errorf("rfc822 missing %q", want)
		}
	}
}

func TestGmailUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":401,"status":"UNAUTHENTICATED"}}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	s := NewGmailSender(srv.Client())
	s.baseURL = srv.URL
	_, err := s.Send(context.Background(), testMessage(), &domain.Credentials{AccessToken: "expired"})
	if !IsAuthError(err) {
		t.Fatalf("expected auth error, got %v", err)
	}
}

func TestGraphSend(t *testing.T) {
	var gotPayload map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotPayload)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	s := NewGraphSender(srv.Client())
	s.baseURL = srv.URL
	msg := testMessage()
	msg.CC = "boss@example.com"
	res, err := s.Send(context.Background(), msg, &domain.Credentials{AccessToken: "tok"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if res.Provider != domain.ProviderMicrosoft {
		t.Errorf("provider = %q", res.Provider)
	}
	message := gotPayload["message"].(map[string]interface{})
	cc := message["ccRecipients"].([]interface{})
	if len(cc) != 1 {
		t.Errorf("cc recipients = %d, want 1", len(cc))
	}
}

func TestIsAuthErrorInvalidGrant(t *testing.T) {
	err := errors.New(`oauth2: "invalid_grant" "Token has been expired or revoked."`)
	if !IsAuthError(err) {
		t.Error("invalid_grant should classify as auth error")
	}
	if IsAuthError(nil) {
		t.Error("nil should not classify as auth error")
	}
	if IsAuthError(errors.New("connection refused")) {
		t.Error("network error should not classify as auth error")
	}
}

func TestFactoryForAccount(t *testing.T) {
	f := NewFactory(10*time.Second, "")

	for provider, want := range map[domain.ProviderType]any{
		domain.ProviderGmail:     f.gmail,
		domain.ProviderMicrosoft: f.graph,
		domain.ProviderSendGrid:  f.sendgrid,
		domain.ProviderSMTP:      f.smtp,
	} {
		got, err := f.ForAccount(&domain.MailAccount{Provider: provider})
		if err != nil {
			t.Fatalf("%s: %v", provider, err)
		}
		if got != want {
			t.Errorf("%s: wrong sender", provider)
		}
	}

	_, err := f.ForAccount(&domain.MailAccount{Provider: "carrier-pigeon"})
	if !errors.Is(err, ErrNoTransport) {
		t.Fatalf("expected ErrNoTransport, got %v", err)
	}
}
