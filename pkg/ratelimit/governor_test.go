package ratelimit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"redscrape/pkg/logger"
)

func testGovernor(perMinute, perBurst, globalMinute, globalBurst int) *Governor {
	return NewGovernor(Config{
		PerIdentityPerMinute: perMinute,
		PerIdentityBurst:     perBurst,
		GlobalPerMinute:      globalMinute,
		GlobalBurst:          globalBurst,
	}, logger.NewTestLogger())
}

func TestBucketBurst(t *testing.T) {
	b := newBucket(60, 5)

	// Full burst is available immediately
	for i := 0; i < 5; i++ {
		ok, _ := b.take(time.Now())
		if !ok {
			t.Errorf("expected token %d to be available", i+1)
		}
	}

	// Next take must report a wait close to one refill interval (1s at 60/min)
	ok, wait := b.take(time.Now())
	if ok {
		t.Error("expected bucket to be empty after burst")
	}
	if wait < 900*time.Millisecond || wait > 1100*time.Millisecond {
		t.Errorf("expected wait near 1s, got %v", wait)
	}
}

func TestBucketRefill(t *testing.T) {
	b := newBucket(600, 1) // one token every 100ms

	if ok, _ := b.take(time.Now()); !ok {
		t.Fatal("expected initial token")
	}
	if ok, _ := b.take(time.Now()); ok {
		t.Fatal("expected bucket to be empty")
	}

	time.Sleep(150 * time.Millisecond)
	if ok, _ := b.take(time.Now()); !ok {
		t.Error("expected token to be refilled after waiting")
	}
}

func TestAcquireImmediate(t *testing.T) {
	g := testGovernor(60, 5, 60, 5)

	waited, err := g.Acquire(context.Background(), "proxy-a", time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if waited > 50*time.Millisecond {
		t.Errorf("expected no significant wait, waited %v", waited)
	}
}

func TestAcquirePatienceExceeded(t *testing.T) {
	g := testGovernor(1, 1, 60, 10) // per-identity: one token a minute

	if _, err := g.Acquire(context.Background(), "proxy-a", time.Second); err != nil {
		t.Fatalf("first acquire should succeed: %v", err)
	}

	// Second acquire would wait ~60s, far past a 100ms patience
	_, err := g.Acquire(context.Background(), "proxy-a", 100*time.Millisecond)
	if !errors.Is(err, ErrPatienceExceeded) {
		t.Errorf("expected ErrPatienceExceeded, got %v", err)
	}
}

func TestAcquireSuspendsForRefill(t *testing.T) {
	g := testGovernor(600, 1, 600, 10) // per-identity refill every 100ms

	if _, err := g.Acquire(context.Background(), "proxy-a", time.Second); err != nil {
		t.Fatalf("first acquire should succeed: %v", err)
	}

	start := time.Now()
	waited, err := g.Acquire(context.Background(), "proxy-a", time.Second)
	if err != nil {
		t.Fatalf("second acquire should succeed after waiting: %v", err)
	}
	elapsed := time.Since(start)
	if elapsed < 80*time.Millisecond {
		t.Errorf("expected to wait at least the refill duration, waited %v", elapsed)
	}
	if waited < 80*time.Millisecond {
		t.Errorf("reported wait %v shorter than refill duration", waited)
	}
}

func TestAcquireCancellation(t *testing.T) {
	g := testGovernor(1, 1, 60, 10)

	if _, err := g.Acquire(context.Background(), "proxy-a", time.Minute); err != nil {
		t.Fatalf("first acquire should succeed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := g.Acquire(ctx, "proxy-a", 2*time.Minute)
		done <- err
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("acquire did not observe cancellation")
	}
}

func TestGlobalBoundsAggregate(t *testing.T) {
	// 5 identities with generous per-identity budgets, but a global burst of
	// 10 and a slow refill: only 10 immediate grants regardless of identity.
	g := testGovernor(60, 10, 1, 10)

	var granted int64
	var wg sync.WaitGroup
	identities := []string{"a", "b", "c", "d", "e"}

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := identities[i%len(identities)]
			if _, err := g.Acquire(context.Background(), Global, 0); err != nil {
				return
			}
			if _, err := g.Acquire(context.Background(), id, 0); err != nil {
				return
			}
			atomic.AddInt64(&granted, 1)
		}(i)
	}
	wg.Wait()

	if granted > 10 {
		t.Errorf("global bucket allowed %d dispatches, want at most 10", granted)
	}
	if granted < 9 {
		t.Errorf("expected the full burst to be granted, got %d", granted)
	}
}

func TestGlobalTokens(t *testing.T) {
	g := testGovernor(60, 5, 60, 10)

	if got := g.GlobalTokens(); got < 9.9 {
		t.Errorf("expected a full global bucket, got %f", got)
	}

	if _, err := g.Acquire(context.Background(), Global, 0); err != nil {
		t.Fatalf("acquire failed: %v", err)
	}
	if got := g.GlobalTokens(); got > 9.5 {
		t.Errorf("expected a consumed token to be visible, got %f", got)
	}
}
