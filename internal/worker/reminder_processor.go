package worker

import (
	"context"
	"sync"
	"time"

	"github.com/ignite/outreach/internal/pkg/logger"
)

// DefaultReminderInterval is how often the reminder queue is drained.
const DefaultReminderInterval = 15 * time.Minute

// QueueProcessor handles one batch of due reminder items.
type QueueProcessor interface {
	ProcessQueue(ctx context.Context) (int, error)
}

// ReminderProcessor drives the reminder service on a fixed interval. One
// pass runs at a time; a slow batch simply delays the next tick.
type ReminderProcessor struct {
	proc     QueueProcessor
	interval time.Duration

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewReminderProcessor creates the periodic reminder worker.
func NewReminderProcessor(proc QueueProcessor, interval time.Duration) *ReminderProcessor {
	if interval <= 0 {
		interval = DefaultReminderInterval
	}
	return &ReminderProcessor{proc: proc, interval: interval}
}

// Start launches the processing loop. An immediate pass runs before the
// first tick so items due while the process was down don't wait a full
// interval.
func (p *ReminderProcessor) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	p.running = true
	p.ctx, p.cancel = context.WithCancel(context.Background())

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.pass()

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-p.ctx.Done():
				return
			case <-ticker.C:
				p.pass()
			}
		}
	}()
	logger.Info("reminder processor started", "interval", p.interval.String())
}

func (p *ReminderProcessor) pass() {
	if _, err := p.proc.ProcessQueue(p.ctx); err != nil {
		logger.Error("reminder processor: pass failed", "error", err.Error())
	}
}

// Stop cancels the loop and waits for an in-progress pass to finish.
func (p *ReminderProcessor) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.cancel()
	p.mu.Unlock()
	p.wg.Wait()
}
