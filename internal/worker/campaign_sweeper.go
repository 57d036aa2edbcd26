package worker

import (
	"context"
	"sync"
	"time"

	"github.com/ignite/outreach/internal/domain"
	"github.com/ignite/outreach/internal/pkg/logger"
)

// DefaultSweepInterval is how often scheduled campaigns are checked.
const DefaultSweepInterval = 5 * time.Minute

// ScheduledCampaignStore is the campaign access the sweeper needs. The
// postgres campaign repository satisfies this.
type ScheduledCampaignStore interface {
	DueScheduled(ctx context.Context, now time.Time) ([]domain.Campaign, error)
	MarkSending(ctx context.Context, id string, at time.Time) error
	FailScheduled(ctx context.Context, id string) error
}

// CredentialChecker verifies a transport exists before a scheduled
// campaign is promoted to sending.
type CredentialChecker interface {
	Resolve(ctx context.Context, ownerID string) (*domain.MailAccount, error)
}

// Launcher hands a promoted campaign to the dispatcher.
type Launcher interface {
	Dispatch(ctx context.Context, ownerID, campaignID string) error
}

// CampaignSweeper promotes draft campaigns whose scheduled_at has elapsed.
// A campaign whose owner lost their transport by fire time is failed with
// the schedule cleared; every campaign is handled independently.
type CampaignSweeper struct {
	store    ScheduledCampaignStore
	creds    CredentialChecker
	launcher Launcher
	interval time.Duration

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool

	now func() time.Time
}

// NewCampaignSweeper creates the periodic scheduled-campaign worker.
func NewCampaignSweeper(store ScheduledCampaignStore, creds CredentialChecker, launcher Launcher, interval time.Duration) *CampaignSweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &CampaignSweeper{
		store:    store,
		creds:    creds,
		launcher: launcher,
		interval: interval,
		now:      time.Now,
	}
}

// Start launches the sweep loop.
func (s *CampaignSweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.Sweep(s.ctx)
			}
		}
	}()
	logger.Info("campaign sweeper started", "interval", s.interval.String())
}

// Stop cancels the loop and waits for an in-progress sweep.
func (s *CampaignSweeper) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.cancel()
	s.mu.Unlock()
	s.wg.Wait()
}

// Sweep runs one pass: every due campaign either starts sending or is
// failed. One campaign's error never stops the rest.
func (s *CampaignSweeper) Sweep(ctx context.Context) {
	now := s.now()
	due, err := s.store.DueScheduled(ctx, now)
	if err != nil {
		logger.Error("sweeper: list due campaigns", "error", err.Error())
		return
	}

	for i := range due {
		c := &due[i]
		if err := s.promote(ctx, c, now); err != nil {
			logger.Error("sweeper: promote campaign",
				"campaign_id", c.ID, "error", err.Error())
		}
	}
}

func (s *CampaignSweeper) promote(ctx context.Context, c *domain.Campaign, now time.Time) error {
	if _, err := s.creds.Resolve(ctx, c.OwnerID); err != nil {
		// No usable transport at fire time: the schedule is consumed,
		// not silently retried forever.
		logger.Warn("sweeper: no transport for scheduled campaign",
			"campaign_id", c.ID, "error", err.Error())
		return s.store.FailScheduled(ctx, c.ID)
	}

	if err := s.store.MarkSending(ctx, c.ID, now); err != nil {
		return err
	}
	logger.Info("sweeper: scheduled campaign started", "campaign_id", c.ID)
	return s.launcher.Dispatch(ctx, c.OwnerID, c.ID)
}
