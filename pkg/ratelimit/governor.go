package ratelimit

import (
	"context"
	"sync"
	"time"

	"redscrape/pkg/errors"
	"redscrape/pkg/logger"
)

// Global is the identity passed to Acquire for the shared budget that bounds
// aggregate throughput across all identities.
const Global = ""

// ErrPatienceExceeded is returned when the wait for a token would exceed the
// caller's patience.
var ErrPatienceExceeded = errors.New(errors.ErrorTypeRateLimited, "rate limit wait exceeds patience", 0)

// bucket is a continuously refilled token bucket
type bucket struct {
	mu         sync.Mutex
	capacity   float64
	tokens     float64
	ratePerSec float64
	last       time.Time
}

func newBucket(perMinute, burst int) *bucket {
	return &bucket{
		capacity:   float64(burst),
		tokens:     float64(burst),
		ratePerSec: float64(perMinute) / 60.0,
		last:       time.Now(),
	}
}

// peek refills and reports whether a token is available without consuming it.
// When no token is available it returns the exact duration until one is.
func (b *bucket) peek(now time.Time) (bool, time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked(now)
	if b.tokens >= 1 {
		return true, 0
	}
	missing := 1 - b.tokens
	wait := time.Duration(missing / b.ratePerSec * float64(time.Second))
	return false, wait
}

// take refills and consumes one token if available, otherwise returns the
// duration until the next token.
func (b *bucket) take(now time.Time) (bool, time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked(now)
	if b.tokens >= 1 {
		b.tokens--
		return true, 0
	}
	missing := 1 - b.tokens
	wait := time.Duration(missing / b.ratePerSec * float64(time.Second))
	return false, wait
}

func (b *bucket) refillLocked(now time.Time) {
	elapsed := now.Sub(b.last).Seconds()
	if elapsed <= 0 {
		return
	}
	b.tokens += elapsed * b.ratePerSec
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
	b.last = now
}

func (b *bucket) available(now time.Time) float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refillLocked(now)
	return b.tokens
}

// Config holds the per-identity and global rate budgets
type Config struct {
	PerIdentityPerMinute int
	PerIdentityBurst     int
	GlobalPerMinute      int
	GlobalBurst          int
}

// Governor enforces a maximum request rate per identity and globally. A
// caller acquires clearance before each dispatch; the governor either grants
// it immediately, suspends the caller until a token is available, or reports
// that the wait would exceed the caller's patience.
type Governor struct {
	mu         sync.Mutex
	global     *bucket
	identities map[string]*bucket
	cfg        Config
	log        logger.Logger
}

// NewGovernor creates a governor with the given budgets
func NewGovernor(cfg Config, log logger.Logger) *Governor {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Governor{
		global:     newBucket(cfg.GlobalPerMinute, cfg.GlobalBurst),
		identities: make(map[string]*bucket),
		cfg:        cfg,
		log:        log,
	}
}

func (g *Governor) bucketFor(identity string) *bucket {
	if identity == Global {
		return g.global
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	b, ok := g.identities[identity]
	if !ok {
		b = newBucket(g.cfg.PerIdentityPerMinute, g.cfg.PerIdentityBurst)
		g.identities[identity] = b
	}
	return b
}

// Acquire consumes one token from the budget for the given identity (use
// Global for the shared budget), suspending until a token is available.
// It returns the total time spent waiting. If the computed wait would exceed
// patience, it returns ErrPatienceExceeded without waiting; a patience of
// zero means the caller is only willing to dispatch immediately. Cancellation
// of ctx is observed while suspended.
func (g *Governor) Acquire(ctx context.Context, identity string, patience time.Duration) (time.Duration, error) {
	b := g.bucketFor(identity)
	start := time.Now()

	for {
		ok, wait := b.take(time.Now())
		if ok {
			return time.Since(start), nil
		}

		if time.Since(start)+wait > patience {
			logger.LogRateLimit(identityLabel(identity), wait.Milliseconds())
			return time.Since(start), ErrPatienceExceeded
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			if !timer.Stop() {
				<-timer.C
			}
			return time.Since(start), ctx.Err()
		case <-timer.C:
		}
	}
}

// Wait reports whether a token for the identity is immediately available and,
// if not, how long the caller would need to wait. Nothing is consumed.
func (g *Governor) Wait(identity string) (bool, time.Duration) {
	return g.bucketFor(identity).peek(time.Now())
}

// GlobalTokens returns the number of tokens currently available in the
// global bucket.
func (g *Governor) GlobalTokens() float64 {
	return g.global.available(time.Now())
}

func identityLabel(identity string) string {
	if identity == Global {
		return "global"
	}
	return identity
}
