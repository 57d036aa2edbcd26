package worker

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/outreach/internal/pkg/distlock"
	"github.com/ignite/outreach/internal/pkg/logger"
	"github.com/ignite/outreach/internal/service/dispatch"
)

// CampaignRunner executes one campaign's send loop to completion.
type CampaignRunner interface {
	Run(ctx context.Context, ownerID, campaignID string)
}

// Dispatcher launches campaign send loops as detached goroutines. A
// per-campaign guard (local map plus a distributed lock) serializes
// concurrent dispatch attempts on the same campaign; different campaigns
// run fully in parallel.
type Dispatcher struct {
	runner  CampaignRunner
	redis   *redis.Client // optional; nil falls back to PG advisory locks
	db      *sql.DB
	lockTTL time.Duration

	// heartbeat is how often a running loop re-extends its TTL-based lock;
	// zero means lockTTL/3.
	heartbeat time.Duration

	mu       sync.Mutex
	inflight map[string]struct{}
	wg       sync.WaitGroup
}

// extendable is implemented by TTL-based locks (Redis). Advisory locks are
// session-scoped and need no extension.
type extendable interface {
	Extend(ctx context.Context, ttl time.Duration) error
}

// NewDispatcher creates a dispatcher. lockTTL bounds how long a crashed
// process can hold a campaign's redis lock; a live loop keeps extending
// its lock, so the TTL only has to cover the gap between heartbeats.
func NewDispatcher(runner CampaignRunner, redisClient *redis.Client, db *sql.DB, lockTTL time.Duration) *Dispatcher {
	if lockTTL <= 0 {
		lockTTL = 30 * time.Minute
	}
	return &Dispatcher{
		runner:   runner,
		redis:    redisClient,
		db:       db,
		lockTTL:  lockTTL,
		inflight: make(map[string]struct{}),
	}
}

// Dispatch starts the campaign's send loop in the background. Returns
// dispatch.ErrInFlight when a loop for this campaign is already running
// here or in another process. The ctx only covers lock acquisition; the
// loop itself runs detached so an HTTP caller going away cannot cancel an
// in-progress send.
func (d *Dispatcher) Dispatch(ctx context.Context, ownerID, campaignID string) error {
	d.mu.Lock()
	if _, busy := d.inflight[campaignID]; busy {
		d.mu.Unlock()
		return dispatch.ErrInFlight
	}
	d.inflight[campaignID] = struct{}{}
	d.mu.Unlock()

	lock := distlock.NewLock(d.redis, d.db, "dispatch:"+campaignID, d.lockTTL)
	ok, err := lock.Acquire(ctx)
	if err != nil || !ok {
		d.clear(campaignID)
		if err != nil {
			return err
		}
		return dispatch.ErrInFlight
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer d.clear(campaignID)
		defer func() {
			rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := lock.Release(rctx); err != nil {
				logger.Warn("dispatcher: release lock", "campaign_id", campaignID, "error", err.Error())
			}
		}()

		// A loop with a large inter-send delay can outlive the lock TTL,
		// so keep the lock alive for as long as the loop runs.
		if ext, ok := lock.(extendable); ok {
			done := make(chan struct{})
			defer close(done)
			d.wg.Add(1)
			go d.keepAlive(ext, campaignID, done)
		}

		d.runner.Run(context.Background(), ownerID, campaignID)
	}()
	return nil
}

func (d *Dispatcher) keepAlive(ext extendable, campaignID string, done <-chan struct{}) {
	defer d.wg.Done()
	interval := d.heartbeat
	if interval <= 0 {
		interval = d.lockTTL / 3
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-done:
			return
		case <-t.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := ext.Extend(ctx, d.lockTTL); err != nil {
				logger.Warn("dispatcher: extend lock", "campaign_id", campaignID, "error", err.Error())
			}
			cancel()
		}
	}
}

func (d *Dispatcher) clear(campaignID string) {
	d.mu.Lock()
	delete(d.inflight, campaignID)
	d.mu.Unlock()
}

// Wait blocks until every in-flight loop has finished, used on shutdown.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
