package proxy

import (
	"context"
	"net/http"
	"sync"
	"time"

	"redscrape/pkg/logger"
)

// MonitorConfig controls background probing.
type MonitorConfig struct {
	// ProbeURL is a stable, low-cost target fetched through each proxy.
	ProbeURL string
	// ProbeTimeout bounds a single probe round trip.
	ProbeTimeout time.Duration
	// FreshnessWindow is how long a probe result stays fresh. Entries
	// checked within the window are skipped on the next sweep.
	FreshnessWindow time.Duration
	// Cooldown is how long an unhealthy entry sits out before it earns
	// another probe.
	Cooldown time.Duration
	// Interval is the delay between background sweeps.
	Interval time.Duration
	// Concurrency caps how many probes run at once.
	Concurrency int
}

// DefaultMonitorConfig returns conservative probing defaults.
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		ProbeURL:        "https://httpbin.org/ip",
		ProbeTimeout:    10 * time.Second,
		FreshnessWindow: 5 * time.Minute,
		Cooldown:        2 * time.Minute,
		Interval:        30 * time.Second,
		Concurrency:     10,
	}
}

// Monitor probes pool entries in the background, independent of live
// traffic. It never blocks selection; probes mutate entry state through
// the same short critical sections as live results.
type Monitor struct {
	pool *Pool
	cfg  MonitorConfig
	log  logger.Logger

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewMonitor creates a monitor over the given pool.
func NewMonitor(pool *Pool, cfg MonitorConfig, log logger.Logger) *Monitor {
	if log == nil {
		log = logger.GetLogger()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &Monitor{
		pool:   pool,
		cfg:    cfg,
		log:    log,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start launches the background sweep loop. It runs an immediate sweep
// so a fresh pool gets classified before traffic arrives.
func (m *Monitor) Start(ctx context.Context) {
	go func() {
		defer close(m.doneCh)

		m.sweep(ctx, false)

		ticker := time.NewTicker(m.cfg.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stopCh:
				return
			case <-ticker.C:
				m.sweep(ctx, false)
			}
		}
	}()
}

// Stop halts the background loop and waits for in-flight probes.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
	<-m.doneCh
}

// ForceProbeAll probes every entry regardless of freshness or cooldown
// and waits for all probes to finish.
func (m *Monitor) ForceProbeAll(ctx context.Context) {
	m.sweep(ctx, true)
}

// sweep probes due entries with bounded concurrency.
func (m *Monitor) sweep(ctx context.Context, force bool) {
	entries := m.pool.AllEntries()
	sem := make(chan struct{}, m.cfg.Concurrency)
	var wg sync.WaitGroup

	for _, e := range entries {
		if !force && !e.probeDue(m.cfg.FreshnessWindow, m.cfg.Cooldown) {
			continue
		}
		wg.Add(1)
		go func(e *Entry) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			m.ProbeOnce(ctx, e)
		}(e)
	}
	wg.Wait()
}

// ProbeOnce issues one lightweight request through the entry and folds
// the outcome into its health state. A timeout or non-2xx response
// counts as a failure.
func (m *Monitor) ProbeOnce(ctx context.Context, e *Entry) HealthState {
	success, latency := m.probe(ctx, e)
	e.applyProbe(success, latency)

	state := e.State()
	logger.LogProbe(e.Identity.Label(), success, latency.Milliseconds(), state.String())
	return state
}

func (m *Monitor) probe(ctx context.Context, e *Entry) (bool, time.Duration) {
	client, err := NewHTTPClient(e.Identity, m.cfg.ProbeTimeout)
	if err != nil {
		return false, 0
	}

	probeCtx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(probeCtx, http.MethodGet, m.cfg.ProbeURL, nil)
	if err != nil {
		return false, 0
	}

	start := time.Now()
	resp, err := client.Do(req)
	latency := time.Since(start)
	if err != nil {
		return false, latency
	}
	defer resp.Body.Close()

	return resp.StatusCode >= 200 && resp.StatusCode < 300, latency
}
