package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/outreach/internal/service/dispatch"
)

// blockingRunner blocks inside Run until released, so tests can hold a
// dispatch in flight.
type blockingRunner struct {
	started chan string
	release chan struct{}

	mu   sync.Mutex
	runs []string
}

func newBlockingRunner() *blockingRunner {
	return &blockingRunner{
		started: make(chan string, 8),
		release: make(chan struct{}),
	}
}

func (r *blockingRunner) Run(_ context.Context, _, campaignID string) {
	r.mu.Lock()
	r.runs = append(r.runs, campaignID)
	r.mu.Unlock()
	r.started <- campaignID
	<-r.release
}

func (r *blockingRunner) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.runs)
}

func redisClient(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestDispatcherSerializesSameCampaign(t *testing.T) {
	runner := newBlockingRunner()
	d := NewDispatcher(runner, redisClient(t), nil, time.Minute)

	if err := d.Dispatch(context.Background(), "user-1", "camp-1"); err != nil {
		t.Fatalf("first dispatch: %v", err)
	}
	<-runner.started

	if err := d.Dispatch(context.Background(), "user-1", "camp-1"); !errors.Is(err, dispatch.ErrInFlight) {
		t.Fatalf("second dispatch: got %v, want ErrInFlight", err)
	}

	close(runner.release)
	d.Wait()
	if runner.count() != 1 {
		t.Errorf("runner invoked %d times, want 1", runner.count())
	}
}

func TestDispatcherAllowsDifferentCampaigns(t *testing.T) {
	runner := newBlockingRunner()
	d := NewDispatcher(runner, redisClient(t), nil, time.Minute)

	if err := d.Dispatch(context.Background(), "user-1", "camp-1"); err != nil {
		t.Fatalf("camp-1: %v", err)
	}
	if err := d.Dispatch(context.Background(), "user-1", "camp-2"); err != nil {
		t.Fatalf("camp-2: %v", err)
	}
	<-runner.started
	<-runner.started

	close(runner.release)
	d.Wait()
	if runner.count() != 2 {
		t.Errorf("runner invoked %d times, want 2", runner.count())
	}
}

func TestDispatcherReleasesLockAfterRun(t *testing.T) {
	runner := newBlockingRunner()
	d := NewDispatcher(runner, redisClient(t), nil, time.Minute)

	if err := d.Dispatch(context.Background(), "user-1", "camp-1"); err != nil {
		t.Fatalf("first dispatch: %v", err)
	}
	<-runner.started
	close(runner.release)
	d.Wait()

	// The guard is gone; the campaign can be dispatched again.
	runner.release = make(chan struct{})
	if err := d.Dispatch(context.Background(), "user-1", "camp-1"); err != nil {
		t.Fatalf("re-dispatch after completion: %v", err)
	}
	<-runner.started
	close(runner.release)
	d.Wait()
}

func TestDispatcherKeepsLockAliveDuringLongRuns(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	runner := newBlockingRunner()
	d := NewDispatcher(runner, client, nil, time.Minute)
	d.heartbeat = 10 * time.Millisecond

	if err := d.Dispatch(context.Background(), "user-1", "camp-1"); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	<-runner.started

	// Age the lock close to expiry twice. Heartbeats between the two
	// fast-forwards reset the TTL, so the key survives a total age well
	// past the original minute.
	for i := 0; i < 2; i++ {
		time.Sleep(50 * time.Millisecond)
		mr.FastForward(50 * time.Second)
	}
	if !mr.Exists("lock:dispatch:camp-1") {
		t.Fatal("lock expired while the loop was still running")
	}
	if err := d.Dispatch(context.Background(), "user-1", "camp-1"); !errors.Is(err, dispatch.ErrInFlight) {
		t.Fatalf("got %v, want ErrInFlight while the loop runs", err)
	}

	close(runner.release)
	d.Wait()
	if mr.Exists("lock:dispatch:camp-1") {
		t.Error("lock not released after the loop finished")
	}
}

func TestDispatcherHonorsForeignLock(t *testing.T) {
	client := redisClient(t)
	// Simulate another process holding the campaign's lock.
	if err := client.Set(context.Background(), "lock:dispatch:camp-1", "other", time.Minute).Err(); err != nil {
		t.Fatalf("seed lock: %v", err)
	}

	runner := newBlockingRunner()
	d := NewDispatcher(runner, client, nil, time.Minute)

	if err := d.Dispatch(context.Background(), "user-1", "camp-1"); !errors.Is(err, dispatch.ErrInFlight) {
		t.Fatalf("got %v, want ErrInFlight", err)
	}
	if runner.count() != 0 {
		t.Errorf("runner invoked despite foreign lock")
	}
}
