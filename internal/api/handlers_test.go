package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ignite/outreach/internal/domain"
	"github.com/ignite/outreach/internal/service/dispatch"
	"github.com/ignite/outreach/internal/service/reminder"
)

type fakeCampaignStore struct {
	campaigns map[string]*domain.Campaign
	created   []*domain.Campaign
}

func (f *fakeCampaignStore) Create(_ context.Context, c *domain.Campaign) (string, error) {
	c.ID = "camp-new"
	f.created = append(f.created, c)
	return c.ID, nil
}

func (f *fakeCampaignStore) List(_ context.Context, ownerID string) ([]domain.Campaign, error) {
	var out []domain.Campaign
	for _, c := range f.campaigns {
		if c.OwnerID == ownerID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *fakeCampaignStore) Get(_ context.Context, ownerID, id string) (*domain.Campaign, error) {
	c, ok := f.campaigns[id]
	if !ok || c.OwnerID != ownerID {
		return nil, dispatch.ErrNotFound
	}
	return c, nil
}

type fakeContactStore struct{ contacts []domain.Contact }

func (f *fakeContactStore) Create(_ context.Context, c *domain.Contact) (string, error) {
	c.ID = "contact-new"
	f.contacts = append(f.contacts, *c)
	return c.ID, nil
}

func (f *fakeContactStore) ListByCampaign(_ context.Context, campaignID string) ([]domain.Contact, error) {
	var out []domain.Contact
	for _, c := range f.contacts {
		if c.CampaignID != nil && *c.CampaignID == campaignID {
			out = append(out, c)
		}
	}
	return out, nil
}

type fakeDispatch struct {
	receipt  dispatch.Receipt
	sendErr  error
	retryN   int
	retryErr error
	testErr  error

	sendCalls      []string
	abortCalls     []string
	testRecipients []string
}

func (f *fakeDispatch) Send(_ context.Context, _, campaignID string, _ *time.Time) (dispatch.Receipt, error) {
	f.sendCalls = append(f.sendCalls, campaignID)
	return f.receipt, f.sendErr
}

func (f *fakeDispatch) Abort(_ context.Context, _, campaignID string) error {
	f.abortCalls = append(f.abortCalls, campaignID)
	return nil
}

func (f *fakeDispatch) Retry(_ context.Context, _, _ string) (int, error) {
	return f.retryN, f.retryErr
}

func (f *fakeDispatch) TestSend(_ context.Context, _, _ string, recipients []string) error {
	f.testRecipients = recipients
	return f.testErr
}

type fakeLauncher struct {
	launched []string
	err      error
}

func (f *fakeLauncher) Dispatch(_ context.Context, _, campaignID string) error {
	if f.err != nil {
		return f.err
	}
	f.launched = append(f.launched, campaignID)
	return nil
}

type fakeReminders struct {
	rules map[string]*domain.ReminderRule
}

func (f *fakeReminders) CreateRule(_ context.Context, rule *domain.ReminderRule) (*domain.ReminderRule, error) {
	if !rule.TriggerType.Valid() {
		return nil, reminder.ErrInvalidTrigger
	}
	rule.ID = "rule-new"
	f.rules[rule.ID] = rule
	return rule, nil
}

func (f *fakeReminders) UpdateRule(_ context.Context, rule *domain.ReminderRule) (*domain.ReminderRule, error) {
	if _, ok := f.rules[rule.ID]; !ok {
		return nil, reminder.ErrRuleNotFound
	}
	f.rules[rule.ID] = rule
	return rule, nil
}

func (f *fakeReminders) DeleteRule(_ context.Context, _, id string) error {
	if _, ok := f.rules[id]; !ok {
		return reminder.ErrRuleNotFound
	}
	delete(f.rules, id)
	return nil
}

func (f *fakeReminders) GetRule(_ context.Context, _, id string) (*domain.ReminderRule, error) {
	r, ok := f.rules[id]
	if !ok {
		return nil, reminder.ErrRuleNotFound
	}
	return r, nil
}

func (f *fakeReminders) ListRules(_ context.Context, _ string) ([]domain.ReminderRule, error) {
	var out []domain.ReminderRule
	for _, r := range f.rules {
		out = append(out, *r)
	}
	return out, nil
}

type testEnv struct {
	srv       *httptest.Server
	api       *Server
	campaigns *fakeCampaignStore
	dispatch  *fakeDispatch
	launcher  *fakeLauncher
	reminders *fakeReminders
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	e := &testEnv{
		campaigns: &fakeCampaignStore{campaigns: map[string]*domain.Campaign{
			"camp-1": {ID: "camp-1", OwnerID: "user-1", Name: "Launch", Status: domain.CampaignDraft},
		}},
		dispatch:  &fakeDispatch{},
		launcher:  &fakeLauncher{},
		reminders: &fakeReminders{rules: map[string]*domain.ReminderRule{}},
	}
	e.api = NewServer(e.campaigns, &fakeContactStore{}, e.dispatch, e.launcher, e.reminders,
		nil, StaticTokens{"secret-1": "user-1"})
	e.srv = httptest.NewServer(e.api.Routes())
	t.Cleanup(e.srv.Close)
	return e
}

func (e *testEnv) do(t *testing.T, method, path, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, e.srv.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Authorization", "Bearer secret-1")
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func TestAuthRequired(t *testing.T) {
	e := newTestEnv(t)

	resp, err := http.Get(e.srv.URL + "/api/v1/campaigns")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestAuthRejectsUnknownToken(t *testing.T) {
	e := newTestEnv(t)

	req, _ := http.NewRequest(http.MethodGet, e.srv.URL+"/api/v1/campaigns", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestHealthIsPublic(t *testing.T) {
	e := newTestEnv(t)
	resp, err := http.Get(e.srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestSendCampaignStartsDispatch(t *testing.T) {
	e := newTestEnv(t)
	e.dispatch.receipt = dispatch.Receipt{Started: true, TotalContacts: 3}

	resp := e.do(t, http.MethodPost, "/api/v1/campaigns/camp-1/send", "")
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if body["status"] != "started" || body["total_contacts"] != float64(3) {
		t.Errorf("body = %v", body)
	}
	if len(e.launcher.launched) != 1 || e.launcher.launched[0] != "camp-1" {
		t.Errorf("launched = %v", e.launcher.launched)
	}
}

func TestSendCampaignScheduled(t *testing.T) {
	e := newTestEnv(t)
	e.dispatch.receipt = dispatch.Receipt{Started: false, TotalContacts: 2}

	future := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
	resp := e.do(t, http.MethodPost, "/api/v1/campaigns/camp-1/send",
		`{"scheduled_at":"`+future+`"}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if body["status"] != "scheduled" {
		t.Errorf("status = %v, want scheduled", body["status"])
	}
	if len(e.launcher.launched) != 0 {
		t.Errorf("scheduled send must not launch the loop: %v", e.launcher.launched)
	}
}

func TestSendCampaignErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", dispatch.ErrNotFound, http.StatusNotFound},
		{"no contacts", dispatch.ErrNoContacts, http.StatusBadRequest},
		{"no transport", dispatch.ErrNoTransport, http.StatusBadRequest},
		{"past schedule", dispatch.ErrScheduleInPast, http.StatusBadRequest},
		{"already sending", dispatch.ErrAlreadySending, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newTestEnv(t)
			e.dispatch.sendErr = tt.err
			resp := e.do(t, http.MethodPost, "/api/v1/campaigns/camp-1/send", "")
			defer resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}

func TestSendCampaignInFlightConflict(t *testing.T) {
	e := newTestEnv(t)
	e.dispatch.receipt = dispatch.Receipt{Started: true, TotalContacts: 1}
	e.launcher.err = dispatch.ErrInFlight

	resp := e.do(t, http.MethodPost, "/api/v1/campaigns/camp-1/send", "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("status = %d, want 409", resp.StatusCode)
	}
	// Another process owns the loop; the campaign must not be reverted.
	if len(e.dispatch.abortCalls) != 0 {
		t.Errorf("abort called for an in-flight campaign: %v", e.dispatch.abortCalls)
	}
}

func TestSendCampaignLauncherFailureAborts(t *testing.T) {
	e := newTestEnv(t)
	e.dispatch.receipt = dispatch.Receipt{Started: true, TotalContacts: 1}
	e.launcher.err = errors.New("lock backend unavailable")

	resp := e.do(t, http.MethodPost, "/api/v1/campaigns/camp-1/send", "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", resp.StatusCode)
	}
	if len(e.dispatch.abortCalls) != 1 || e.dispatch.abortCalls[0] != "camp-1" {
		t.Errorf("abort calls = %v, want [camp-1]", e.dispatch.abortCalls)
	}
}

func TestCreateCampaignValidation(t *testing.T) {
	e := newTestEnv(t)
	resp := e.do(t, http.MethodPost, "/api/v1/campaigns", `{"name":"x"}`)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestCreateCampaign(t *testing.T) {
	e := newTestEnv(t)
	resp := e.do(t, http.MethodPost, "/api/v1/campaigns",
		`{"name":"Launch","subject":"Hi","from_email":"s@example.com","delay_seconds":10}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if body["id"] != "camp-new" {
		t.Errorf("body = %v", body)
	}
	if e.campaigns.created[0].OwnerID != "user-1" {
		t.Errorf("owner = %s, want the token's owner", e.campaigns.created[0].OwnerID)
	}
}

func TestRetryCampaign(t *testing.T) {
	e := newTestEnv(t)
	e.dispatch.retryN = 4

	resp := e.do(t, http.MethodPost, "/api/v1/campaigns/camp-1/retry", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	body := decodeBody(t, resp)
	if body["contacts_reset"] != float64(4) {
		t.Errorf("body = %v", body)
	}
}

func TestRetryNonTerminalCampaign(t *testing.T) {
	e := newTestEnv(t)
	e.dispatch.retryErr = dispatch.ErrNotRetryable

	resp := e.do(t, http.MethodPost, "/api/v1/campaigns/camp-1/retry", "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestTestSendRequiresRecipients(t *testing.T) {
	e := newTestEnv(t)
	resp := e.do(t, http.MethodPost, "/api/v1/campaigns/camp-1/test-send", `{}`)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestTestSendFallsBackToConfiguredRecipients(t *testing.T) {
	e := newTestEnv(t)
	e.api.WithTestRecipients([]string{"qa@example.com"})

	resp := e.do(t, http.MethodPost, "/api/v1/campaigns/camp-1/test-send", `{}`)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if len(e.dispatch.testRecipients) != 1 || e.dispatch.testRecipients[0] != "qa@example.com" {
		t.Errorf("recipients = %v, want the configured default", e.dispatch.testRecipients)
	}
}

func TestReminderRuleLifecycle(t *testing.T) {
	e := newTestEnv(t)

	resp := e.do(t, http.MethodPost, "/api/v1/reminder-rules",
		`{"name":"nudge","trigger_type":"no_response","trigger_days":3,
		  "source_campaign_id":"camp-1","reminder_campaign_id":"camp-2","max_reminders":2}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d", resp.StatusCode)
	}
	created := decodeBody(t, resp)
	id, _ := created["id"].(string)
	if id == "" {
		t.Fatalf("create body = %v", created)
	}

	resp = e.do(t, http.MethodGet, "/api/v1/reminder-rules/"+id, "")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("get status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = e.do(t, http.MethodDelete, "/api/v1/reminder-rules/"+id, "")
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("delete status = %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = e.do(t, http.MethodGet, "/api/v1/reminder-rules/"+id, "")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("get after delete = %d, want 404", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestCreateRuleBadTrigger(t *testing.T) {
	e := newTestEnv(t)
	resp := e.do(t, http.MethodPost, "/api/v1/reminder-rules",
		`{"name":"x","trigger_type":"whenever","trigger_days":1,
		  "source_campaign_id":"a","reminder_campaign_id":"b"}`)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}
