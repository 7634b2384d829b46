package dispatch

import (
	"context"
	"time"

	"redscrape/pkg/challenge"
	errs "redscrape/pkg/errors"
	"redscrape/pkg/logger"
	"redscrape/pkg/proxy"
	"redscrape/pkg/ratelimit"
	"redscrape/pkg/retry"
)

// Config bounds the dispatch state machine.
type Config struct {
	// MaxAttempts caps selection/send/classify cycles per dispatch.
	MaxAttempts int
	// Backoff spaces out consecutive attempts.
	Backoff retry.BackoffStrategy
	// Patience is the longest a dispatch will suspend waiting for rate
	// clearance before giving up with a RateLimited outcome.
	Patience time.Duration
	// SendTimeout bounds a single HTTP send.
	SendTimeout time.Duration
	// TokenHeader carries a challenge solution token on the re-issued
	// request.
	TokenHeader string
}

// DefaultConfig returns moderate dispatch bounds.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		Backoff:     retry.DefaultExponentialBackoff(),
		Patience:    30 * time.Second,
		SendTimeout: 30 * time.Second,
		TokenHeader: "X-Captcha-Token",
	}
}

// Dispatcher is the single entry point every scraping operation routes
// through. One logical fetch becomes a bounded sequence of attempts,
// each wrapped in rate clearance, proxy selection, sending,
// classification, and health bookkeeping.
type Dispatcher struct {
	pool        *proxy.Pool
	monitor     *proxy.Monitor
	governor    *ratelimit.Governor
	coordinator *challenge.Coordinator
	sender      Sender
	cfg         Config
	log         logger.Logger
}

// NewDispatcher wires the dispatch core together. A nil sender gets
// the default per-identity HTTP client.
func NewDispatcher(pool *proxy.Pool, monitor *proxy.Monitor, governor *ratelimit.Governor, coordinator *challenge.Coordinator, sender Sender, cfg Config, log logger.Logger) *Dispatcher {
	if log == nil {
		log = logger.GetLogger()
	}
	if sender == nil {
		sender = NewSender(cfg.SendTimeout)
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.Backoff == nil {
		cfg.Backoff = retry.DefaultExponentialBackoff()
	}
	if cfg.TokenHeader == "" {
		cfg.TokenHeader = "X-Captcha-Token"
	}
	return &Dispatcher{
		pool:        pool,
		monitor:     monitor,
		governor:    governor,
		coordinator: coordinator,
		sender:      sender,
		cfg:         cfg,
		log:         log,
	}
}

// Dispatch runs one logical fetch to a terminal outcome. Health
// bookkeeping happens exactly once per attempt no matter which branch
// produced the result, and cancellation is observed at every
// suspension point.
func (d *Dispatcher) Dispatch(ctx context.Context, req *Request) Outcome {
	if err := req.validate(); err != nil {
		return Outcome{Kind: OutcomeFatalFailure, Err: err}
	}

	var (
		excluded []string
		lastErr  error
		proxyLbl string
	)

	for attempt := 1; attempt <= d.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			delay := d.cfg.Backoff.NextDelay(attempt - 1)
			if err := retry.Wait(ctx, delay); err != nil {
				return Outcome{Kind: OutcomeTransientFailure, Err: err, Attempts: attempt - 1, Proxy: proxyLbl}
			}
		}

		out, done := d.attempt(ctx, req, attempt, &excluded, &lastErr, &proxyLbl)
		if done {
			out.Attempts = attempt
			return out
		}
	}

	return d.exhausted(lastErr, proxyLbl)
}

// attempt runs one full cycle. It returns done=false when the
// dispatcher should advance to the next attempt.
func (d *Dispatcher) attempt(ctx context.Context, req *Request, attempt int, excluded *[]string, lastErr *error, proxyLbl *string) (Outcome, bool) {
	// Rate clearance for the aggregate budget first; a saturated global
	// bucket means no identity may dispatch.
	if _, err := d.governor.Acquire(ctx, ratelimit.Global, d.cfg.Patience); err != nil {
		if err == ratelimit.ErrPatienceExceeded {
			return Outcome{Kind: OutcomeRateLimited, Err: err}, true
		}
		return Outcome{Kind: OutcomeTransientFailure, Err: err}, true
	}

	entry, token, err := d.pool.Select(*excluded...)
	if err != nil {
		if *lastErr != nil && len(*excluded) > 0 {
			// Every viable identity was already tried this dispatch;
			// report the cause that burned them, not an empty pool.
			return d.exhausted(*lastErr, *proxyLbl), true
		}
		// Retrying cannot repair an empty pool.
		return Outcome{Kind: OutcomeFatalFailure, Err: err}, true
	}
	label := entry.Identity.Label()
	*proxyLbl = label

	if _, err := d.governor.Acquire(ctx, label, d.cfg.Patience); err != nil {
		// The proxy itself did nothing wrong; its budget is just spent.
		d.pool.MarkResult(token, proxy.ResultNeutral, 0)
		if err == ratelimit.ErrPatienceExceeded {
			return Outcome{Kind: OutcomeRateLimited, Err: err, Proxy: label}, true
		}
		return Outcome{Kind: OutcomeTransientFailure, Err: err, Proxy: label}, true
	}

	start := time.Now()
	resp, err := d.sender.Send(ctx, req, entry.Identity)
	latency := time.Since(start)
	if err != nil {
		if ctx.Err() != nil {
			d.pool.MarkResult(token, proxy.ResultNeutral, 0)
			return Outcome{Kind: OutcomeTransientFailure, Err: ctx.Err(), Proxy: label}, true
		}
		d.pool.MarkResult(token, proxy.ResultFailure, latency)
		*lastErr = err
		d.log.WithError(err).WithFields(map[string]interface{}{
			"attempt": attempt,
			"proxy":   label,
		}).Warn("Dispatch attempt failed")
		return Outcome{}, false
	}

	class := d.coordinator.Classify(resp.Status, resp.Header, resp.Body)
	if class.Challenge {
		resp, err = d.resolveAndReissue(ctx, req, entry, class)
		if err != nil {
			// A proxy that draws challenges is failing, whatever the
			// solver said. Rotate away from it.
			d.pool.MarkResult(token, proxy.ResultFailure, latency)
			*excluded = append(*excluded, label)
			*lastErr = err
			if ctx.Err() != nil {
				return Outcome{Kind: OutcomeTransientFailure, Err: ctx.Err(), Proxy: label}, true
			}
			return Outcome{}, false
		}
	}

	logger.LogRequest(req.method(), req.URL, label, resp.Status, float64(latency.Milliseconds()))

	if resp.Status >= 200 && resp.Status < 300 {
		d.pool.MarkResult(token, proxy.ResultSuccess, latency)
		return Outcome{
			Kind:   OutcomeSuccess,
			Status: resp.Status,
			Header: resp.Header,
			Body:   resp.Body,
			Proxy:  label,
		}, true
	}

	// Non-2xx, including rate-limit responses, counts against health.
	d.pool.MarkResult(token, proxy.ResultFailure, latency)
	*lastErr = statusError(resp.Status)
	return Outcome{}, false
}

// resolveAndReissue spends one solve on the challenge and re-issues
// the request with the solution attached, all within the current
// attempt. The re-issued response is never solved again; if it is
// still gated the attempt fails.
func (d *Dispatcher) resolveAndReissue(ctx context.Context, req *Request, entry *proxy.Entry, class challenge.Classification) (*Response, error) {
	rec, err := d.coordinator.NewRecord(class, req.URL)
	if err != nil {
		return nil, err
	}

	solution, err := d.coordinator.Resolve(ctx, rec)
	if err != nil {
		return nil, err
	}

	resp, err := d.sender.Send(ctx, req.withHeader(d.cfg.TokenHeader, solution), entry.Identity)
	if err != nil {
		return nil, err
	}
	if d.coordinator.Classify(resp.Status, resp.Header, resp.Body).Challenge {
		return nil, errs.New(errs.ErrorTypeChallenge, "challenge persisted after solve", resp.Status)
	}
	return resp, nil
}

// exhausted classifies the terminal outcome after the attempt bound.
func (d *Dispatcher) exhausted(lastErr error, proxyLbl string) Outcome {
	kind := OutcomeTransientFailure
	switch {
	case errs.IsFatal(errs.TypeOf(lastErr)):
		kind = OutcomeFatalFailure
	case errs.IsType(lastErr, errs.ErrorTypeChallenge):
		kind = OutcomeChallengeRequired
	}
	return Outcome{
		Kind:     kind,
		Err:      lastErr,
		Attempts: d.cfg.MaxAttempts,
		Proxy:    proxyLbl,
	}
}

// statusError maps a terminal HTTP status onto the error taxonomy.
func statusError(status int) error {
	switch {
	case status == 404:
		return errs.New(errs.ErrorTypeNotFound, "resource not found", status)
	case status == 429:
		return errs.New(errs.ErrorTypeRateLimited, "target rate limited the request", status)
	case status >= 500:
		return errs.Newf(errs.ErrorTypeServerError, status, "server returned status %d", status)
	default:
		return errs.Newf(errs.ErrorTypeTransport, status, "request failed with status %d", status)
	}
}

// Status summarizes the dispatch core for operators.
type Status struct {
	TotalProxies          int
	HealthyProxies        int
	DegradedProxies       int
	UnhealthyProxies      int
	UnknownProxies        int
	GlobalTokensAvailable float64
}

// Status reports pool health and remaining global rate budget.
func (d *Dispatcher) Status() Status {
	counts := d.pool.Counts()
	return Status{
		TotalProxies:          counts.Total,
		HealthyProxies:        counts.Healthy,
		DegradedProxies:       counts.Degraded,
		UnhealthyProxies:      counts.Unhealthy,
		UnknownProxies:        counts.Unknown,
		GlobalTokensAvailable: d.governor.GlobalTokens(),
	}
}

// ForceProbeAll probes every pool entry immediately, ignoring
// freshness and cooldown.
func (d *Dispatcher) ForceProbeAll(ctx context.Context) {
	if d.monitor != nil {
		d.monitor.ForceProbeAll(ctx)
	}
}
