package proxy

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"redscrape/pkg/logger"
)

// proxyIdentityFor points an HTTP proxy identity at a test server. The
// server plays the proxy role: it receives absolute-URI requests and
// answers with whatever handler it was given.
func proxyIdentityFor(t *testing.T, srv *httptest.Server) Identity {
	t.Helper()
	host, portStr, err := net.SplitHostPort(srv.Listener.Addr().String())
	if err != nil {
		t.Fatalf("split listener addr: %v", err)
	}
	port, _ := strconv.Atoi(portStr)
	return Identity{Host: host, Port: port, Kind: KindHTTP}
}

func testMonitorConfig(probeURL string) MonitorConfig {
	cfg := DefaultMonitorConfig()
	cfg.ProbeURL = probeURL
	cfg.ProbeTimeout = 2 * time.Second
	cfg.FreshnessWindow = time.Hour
	cfg.Cooldown = 0
	return cfg
}

func TestProbeOncePromotesOnSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	pool := NewPool(logger.NewTestLogger())
	e := pool.AddEntry(proxyIdentityFor(t, srv))

	m := NewMonitor(pool, testMonitorConfig("http://upstream.invalid/ip"), logger.NewTestLogger())
	if state := m.ProbeOnce(context.Background(), e); state != StateHealthy {
		t.Errorf("expected healthy after passing probe, got %v", state)
	}
	if e.Stats().LastChecked.IsZero() {
		t.Error("probe should stamp LastChecked")
	}
}

func TestProbeOnceCountsNon2xxAsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	pool := NewPool(logger.NewTestLogger())
	e := pool.AddEntry(proxyIdentityFor(t, srv))
	markHealthy(e)

	m := NewMonitor(pool, testMonitorConfig("http://upstream.invalid/ip"), logger.NewTestLogger())
	if state := m.ProbeOnce(context.Background(), e); state != StateDegraded {
		t.Errorf("expected degraded after failing probe, got %v", state)
	}
}

func TestProbeOnceUnreachableProxy(t *testing.T) {
	pool := NewPool(logger.NewTestLogger())
	// Port 1 on localhost refuses connections.
	e := pool.AddEntry(Identity{Host: "127.0.0.1", Port: 1, Kind: KindHTTP})
	markHealthy(e)

	cfg := testMonitorConfig("http://upstream.invalid/ip")
	cfg.ProbeTimeout = 500 * time.Millisecond

	m := NewMonitor(pool, cfg, logger.NewTestLogger())
	if state := m.ProbeOnce(context.Background(), e); state != StateDegraded {
		t.Errorf("expected degraded after unreachable probe, got %v", state)
	}
}

func TestForceProbeAllVisitsEveryEntry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	pool := NewPool(logger.NewTestLogger())
	id := proxyIdentityFor(t, srv)
	e1 := pool.AddEntry(id)
	id2 := id
	id2.Host = "localhost" // same listener, distinct label
	e2 := pool.AddEntry(id2)

	m := NewMonitor(pool, testMonitorConfig("http://upstream.invalid/ip"), logger.NewTestLogger())
	m.ForceProbeAll(context.Background())

	if e1.Stats().LastChecked.IsZero() || e2.Stats().LastChecked.IsZero() {
		t.Error("ForceProbeAll should probe every entry")
	}
}

func TestSweepSkipsFreshEntries(t *testing.T) {
	probes := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		probes++
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	pool := NewPool(logger.NewTestLogger())
	e := pool.AddEntry(proxyIdentityFor(t, srv))

	m := NewMonitor(pool, testMonitorConfig("http://upstream.invalid/ip"), logger.NewTestLogger())
	m.ProbeOnce(context.Background(), e)
	if probes != 1 {
		t.Fatalf("expected 1 probe, saw %d", probes)
	}

	// Entry is fresh; a normal sweep must leave it alone.
	m.sweep(context.Background(), false)
	if probes != 1 {
		t.Errorf("sweep probed a fresh entry: %d probes", probes)
	}
}

func TestMonitorStartStop(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	pool := NewPool(logger.NewTestLogger())
	e := pool.AddEntry(proxyIdentityFor(t, srv))

	cfg := testMonitorConfig("http://upstream.invalid/ip")
	cfg.Interval = time.Hour // only the startup sweep should run

	m := NewMonitor(pool, cfg, logger.NewTestLogger())
	m.Start(context.Background())
	m.Stop()

	if e.Stats().LastChecked.IsZero() {
		t.Error("startup sweep should have probed the entry")
	}
}
