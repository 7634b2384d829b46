package proxy

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"sync"
	"time"
)

// Kind identifies the transport a proxy speaks.
type Kind string

const (
	KindHTTP   Kind = "http"
	KindSOCKS5 Kind = "socks5"
)

// Identity describes one egress proxy: where it lives, how to
// authenticate, and which transport it speaks.
type Identity struct {
	Host     string
	Port     int
	Username string
	Password string
	Kind     Kind
}

// Label returns the host:port form used as the identity's stable key.
func (id Identity) Label() string {
	return net.JoinHostPort(id.Host, strconv.Itoa(id.Port))
}

// URL returns the proxy URL suitable for http.ProxyURL. Only meaningful
// for HTTP proxies; SOCKS5 identities dial directly via a socks dialer.
func (id Identity) URL() *url.URL {
	u := &url.URL{
		Scheme: "http",
		Host:   id.Label(),
	}
	if id.Username != "" || id.Password != "" {
		u.User = url.UserPassword(id.Username, id.Password)
	}
	return u
}

func (id Identity) String() string {
	return fmt.Sprintf("%s://%s", id.Kind, id.Label())
}

// HealthState is the explicit health FSM for a proxy entry.
//
// Downward transitions never skip a state: a healthy entry passes
// through degraded before it can reach unhealthy. Upward transitions
// from unhealthy always land on degraded first; only a passing probe
// or a second consecutive success promotes degraded back to healthy.
type HealthState int

const (
	StateUnknown HealthState = iota
	StateHealthy
	StateDegraded
	StateUnhealthy
)

func (s HealthState) String() string {
	switch s {
	case StateHealthy:
		return "healthy"
	case StateDegraded:
		return "degraded"
	case StateUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// Result is the outcome reported back for one dispatch through an entry.
type Result int

const (
	// ResultSuccess counts toward promotion.
	ResultSuccess Result = iota
	// ResultFailure counts toward demotion. Challenge and rate-limit
	// responses are reported as failures too.
	ResultFailure
	// ResultNeutral records nothing. Used when the caller was cancelled
	// before the proxy had a chance to prove itself either way.
	ResultNeutral
)

// emaWeight is the per-sample weight of the rolling success ratio.
const emaWeight = 0.2

// unhealthyAfter is how many consecutive failures demote an entry to
// unhealthy.
const unhealthyAfter = 3

// Entry is one proxy identity plus its live statistics. All mutable
// fields are guarded by mu; critical sections are short and never held
// across network calls.
type Entry struct {
	Identity Identity

	mu                   sync.Mutex
	state                HealthState
	consecutiveFailures  int
	consecutiveSuccesses int
	successRatio         float64
	latency              time.Duration
	lastChecked          time.Time
	unhealthySince       time.Time
}

// NewEntry creates an entry in the unknown state with an optimistic
// success ratio so fresh proxies are not starved by the selector.
func NewEntry(id Identity) *Entry {
	return &Entry{
		Identity:     id,
		state:        StateUnknown,
		successRatio: 1.0,
	}
}

// Stats is a point-in-time snapshot of an entry's statistics.
type Stats struct {
	State                HealthState
	ConsecutiveFailures  int
	ConsecutiveSuccesses int
	SuccessRatio         float64
	Latency              time.Duration
	LastChecked          time.Time
}

// Stats returns a consistent snapshot of the entry's statistics.
func (e *Entry) Stats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Stats{
		State:                e.state,
		ConsecutiveFailures:  e.consecutiveFailures,
		ConsecutiveSuccesses: e.consecutiveSuccesses,
		SuccessRatio:         e.successRatio,
		Latency:              e.latency,
		LastChecked:          e.lastChecked,
	}
}

// State returns the current health state.
func (e *Entry) State() HealthState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// applyResult folds one dispatch outcome into the entry's statistics
// and advances the health FSM.
func (e *Entry) applyResult(res Result, latency time.Duration) {
	if res == ResultNeutral {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if res == ResultSuccess {
		e.recordSuccessLocked(latency)
		switch e.state {
		case StateUnknown:
			e.state = StateHealthy
		case StateUnhealthy:
			// One success never jumps straight back to healthy.
			e.state = StateDegraded
		case StateDegraded:
			if e.consecutiveSuccesses >= 2 {
				e.state = StateHealthy
			}
		}
		return
	}

	e.recordFailureLocked()
	switch e.state {
	case StateUnknown, StateHealthy:
		e.state = StateDegraded
	case StateDegraded:
		if e.consecutiveFailures >= unhealthyAfter {
			e.state = StateUnhealthy
			e.unhealthySince = time.Now()
		}
	}
}

// applyProbe folds one probe outcome into the entry. A passing probe
// promotes degraded directly to healthy; an unhealthy entry must pass
// through degraded first.
func (e *Entry) applyProbe(success bool, latency time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.lastChecked = time.Now()

	if success {
		e.recordSuccessLocked(latency)
		switch e.state {
		case StateUnknown, StateDegraded:
			e.state = StateHealthy
		case StateUnhealthy:
			e.state = StateDegraded
		}
		return
	}

	e.recordFailureLocked()
	switch e.state {
	case StateUnknown, StateHealthy:
		e.state = StateDegraded
	case StateDegraded:
		if e.consecutiveFailures >= unhealthyAfter {
			e.state = StateUnhealthy
			e.unhealthySince = time.Now()
		}
	}
}

func (e *Entry) recordSuccessLocked(latency time.Duration) {
	e.consecutiveFailures = 0
	e.consecutiveSuccesses++
	e.successRatio = (1-emaWeight)*e.successRatio + emaWeight
	if latency > 0 {
		e.latency = latency
	}
}

func (e *Entry) recordFailureLocked() {
	e.consecutiveSuccesses = 0
	e.consecutiveFailures++
	e.successRatio = (1 - emaWeight) * e.successRatio
}

// weight favors entries with a high recent success ratio and low
// latency so fast proxies are not starved behind slow ones.
func (e *Entry) weight() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	w := 0.1 + e.successRatio
	if e.latency > 0 {
		w /= 1 + e.latency.Seconds()
	}
	return w
}

// probeDue reports whether the monitor should probe this entry now.
// Fresh entries are skipped; unhealthy entries wait out the cooldown
// before they earn another probe.
func (e *Entry) probeDue(freshness, cooldown time.Duration) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := time.Now()
	if !e.lastChecked.IsZero() && now.Sub(e.lastChecked) < freshness {
		return false
	}
	if e.state == StateUnhealthy && now.Sub(e.unhealthySince) < cooldown {
		return false
	}
	return true
}
