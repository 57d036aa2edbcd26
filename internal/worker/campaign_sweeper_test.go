package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ignite/outreach/internal/domain"
)

type fakeScheduledStore struct {
	mu      sync.Mutex
	due     []domain.Campaign
	dueErr  error
	sending []string
	failed  []string
}

func (f *fakeScheduledStore) DueScheduled(_ context.Context, _ time.Time) ([]domain.Campaign, error) {
	return f.due, f.dueErr
}

func (f *fakeScheduledStore) MarkSending(_ context.Context, id string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sending = append(f.sending, id)
	return nil
}

func (f *fakeScheduledStore) FailScheduled(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed = append(f.failed, id)
	return nil
}

type fakeChecker struct {
	missing map[string]bool
}

func (f *fakeChecker) Resolve(_ context.Context, ownerID string) (*domain.MailAccount, error) {
	if f.missing[ownerID] {
		return nil, errors.New("no mail account configured")
	}
	return &domain.MailAccount{ID: "acct-1", OwnerID: ownerID, Provider: domain.ProviderSMTP}, nil
}

type fakeLauncher struct {
	mu         sync.Mutex
	dispatched []string
	err        error
}

func (f *fakeLauncher) Dispatch(_ context.Context, _, campaignID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dispatched = append(f.dispatched, campaignID)
	return f.err
}

func scheduled(id, owner string) domain.Campaign {
	at := time.Now().Add(-time.Minute)
	return domain.Campaign{
		ID: id, OwnerID: owner, Status: domain.CampaignDraft, ScheduledAt: &at,
	}
}

func TestSweepPromotesDueCampaigns(t *testing.T) {
	store := &fakeScheduledStore{due: []domain.Campaign{scheduled("camp-1", "user-1")}}
	launcher := &fakeLauncher{}
	s := NewCampaignSweeper(store, &fakeChecker{}, launcher, time.Minute)

	s.Sweep(context.Background())

	if len(store.sending) != 1 || store.sending[0] != "camp-1" {
		t.Errorf("sending = %v", store.sending)
	}
	if len(launcher.dispatched) != 1 || launcher.dispatched[0] != "camp-1" {
		t.Errorf("dispatched = %v", launcher.dispatched)
	}
	if len(store.failed) != 0 {
		t.Errorf("failed = %v", store.failed)
	}
}

func TestSweepFailsCampaignWithoutTransport(t *testing.T) {
	store := &fakeScheduledStore{due: []domain.Campaign{scheduled("camp-1", "user-1")}}
	launcher := &fakeLauncher{}
	checker := &fakeChecker{missing: map[string]bool{"user-1": true}}
	s := NewCampaignSweeper(store, checker, launcher, time.Minute)

	s.Sweep(context.Background())

	if len(store.failed) != 1 || store.failed[0] != "camp-1" {
		t.Errorf("failed = %v, want the transport-less campaign", store.failed)
	}
	if len(store.sending) != 0 || len(launcher.dispatched) != 0 {
		t.Errorf("campaign promoted without a transport: sending=%v dispatched=%v",
			store.sending, launcher.dispatched)
	}
}

func TestSweepIsolatesPerCampaign(t *testing.T) {
	store := &fakeScheduledStore{due: []domain.Campaign{
		scheduled("camp-bad", "user-gone"),
		scheduled("camp-good", "user-1"),
	}}
	launcher := &fakeLauncher{}
	checker := &fakeChecker{missing: map[string]bool{"user-gone": true}}
	s := NewCampaignSweeper(store, checker, launcher, time.Minute)

	s.Sweep(context.Background())

	if len(store.failed) != 1 || store.failed[0] != "camp-bad" {
		t.Errorf("failed = %v", store.failed)
	}
	if len(launcher.dispatched) != 1 || launcher.dispatched[0] != "camp-good" {
		t.Errorf("dispatched = %v, want the healthy campaign despite the bad one", launcher.dispatched)
	}
}

type countingProcessor struct {
	passes chan struct{}
}

func (c *countingProcessor) ProcessQueue(_ context.Context) (int, error) {
	c.passes <- struct{}{}
	return 0, nil
}

func TestReminderProcessorRunsImmediatelyAndPeriodically(t *testing.T) {
	proc := &countingProcessor{passes: make(chan struct{}, 16)}
	p := NewReminderProcessor(proc, 20*time.Millisecond)
	p.Start()
	defer p.Stop()

	for i := 0; i < 2; i++ {
		select {
		case <-proc.passes:
		case <-time.After(2 * time.Second):
			t.Fatalf("pass %d never ran", i+1)
		}
	}
}

func TestReminderProcessorStopIsIdempotent(t *testing.T) {
	proc := &countingProcessor{passes: make(chan struct{}, 16)}
	p := NewReminderProcessor(proc, time.Hour)
	p.Start()
	p.Stop()
	p.Stop()
}
