package proxy

import (
	"sync"
	"time"

	"github.com/google/uuid"

	errs "redscrape/pkg/errors"
	"redscrape/pkg/logger"
)

// ErrNoProxy is returned by Select when neither healthy nor fallback
// entries are available. Callers must not retry it blindly; the pool
// only recovers through probing.
var ErrNoProxy = errs.New(errs.ErrorTypeNoHealthyProxy, "no healthy or degraded proxies available", 0)

// Pool owns every proxy entry for the lifetime of the process. Entries
// are added at configuration load and never removed, only demoted.
type Pool struct {
	mu      sync.Mutex
	entries []*Entry
	byLabel map[string]*Entry

	// current per-label weights for smooth weighted round-robin
	rrWeight map[string]float64

	// pending correlates dispatch tokens with the entry they selected
	// so MarkResult applies exactly once per token.
	pending map[string]*Entry

	log logger.Logger
}

// NewPool returns an empty pool.
func NewPool(log logger.Logger) *Pool {
	if log == nil {
		log = logger.GetLogger()
	}
	return &Pool{
		byLabel:  make(map[string]*Entry),
		rrWeight: make(map[string]float64),
		pending:  make(map[string]*Entry),
		log:      log,
	}
}

// AddEntry registers a new identity. Adding the same label twice
// returns the existing entry unchanged.
func (p *Pool) AddEntry(id Identity) *Entry {
	p.mu.Lock()
	defer p.mu.Unlock()

	label := id.Label()
	if e, ok := p.byLabel[label]; ok {
		return e
	}
	e := NewEntry(id)
	p.entries = append(p.entries, e)
	p.byLabel[label] = e
	return e
}

// AllEntries returns the entries in insertion order. The slice is a
// copy; the entries themselves are shared.
func (p *Pool) AllEntries() []*Entry {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Entry, len(p.entries))
	copy(out, p.entries)
	return out
}

// Len returns the number of registered entries.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// Select picks the next entry by smooth weighted round-robin over
// healthy entries, excluding the given labels. If no healthy entry
// remains it falls back to degraded entries, and to entries not yet
// probed, before giving up with ErrNoProxy.
//
// The returned token correlates this selection with the eventual
// MarkResult call so outcomes always land on the identity that
// produced them.
func (p *Pool) Select(exclude ...string) (*Entry, string, error) {
	excluded := make(map[string]bool, len(exclude))
	for _, label := range exclude {
		excluded[label] = true
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	candidates := p.candidatesLocked(StateHealthy, excluded)
	if len(candidates) == 0 {
		candidates = p.candidatesLocked(StateDegraded, excluded)
	}
	if len(candidates) == 0 {
		candidates = p.candidatesLocked(StateUnknown, excluded)
	}
	if len(candidates) == 0 {
		return nil, "", ErrNoProxy
	}

	chosen := p.pickLocked(candidates)
	token := uuid.NewString()
	p.pending[token] = chosen
	return chosen, token, nil
}

func (p *Pool) candidatesLocked(state HealthState, excluded map[string]bool) []*Entry {
	var out []*Entry
	for _, e := range p.entries {
		if excluded[e.Identity.Label()] {
			continue
		}
		if e.State() == state {
			out = append(out, e)
		}
	}
	return out
}

// pickLocked implements smooth weighted round-robin: every candidate
// accumulates its weight, the largest accumulator wins and pays back
// the total.
func (p *Pool) pickLocked(candidates []*Entry) *Entry {
	var (
		total  float64
		best   *Entry
		bestCW float64
	)
	for _, e := range candidates {
		label := e.Identity.Label()
		w := e.weight()
		total += w
		p.rrWeight[label] += w
		if best == nil || p.rrWeight[label] > bestCW {
			best = e
			bestCW = p.rrWeight[label]
		}
	}
	p.rrWeight[best.Identity.Label()] -= total
	return best
}

// MarkResult reports the outcome of the dispatch identified by token.
// Each token is consumed on first use; reporting twice, or with an
// unknown token, is a no-op.
func (p *Pool) MarkResult(token string, res Result, latency time.Duration) {
	p.mu.Lock()
	e, ok := p.pending[token]
	if ok {
		delete(p.pending, token)
	}
	p.mu.Unlock()

	if !ok {
		return
	}

	before := e.State()
	e.applyResult(res, latency)
	after := e.State()
	if before != after {
		p.log.InfoWithFields("proxy health transition", map[string]interface{}{
			"proxy": e.Identity.Label(),
			"from":  before.String(),
			"to":    after.String(),
		})
	}
}

// Counts summarizes the pool by health state.
type Counts struct {
	Total     int
	Healthy   int
	Degraded  int
	Unhealthy int
	Unknown   int
}

// Counts tallies entries per health state.
func (p *Pool) Counts() Counts {
	p.mu.Lock()
	entries := make([]*Entry, len(p.entries))
	copy(entries, p.entries)
	p.mu.Unlock()

	c := Counts{Total: len(entries)}
	for _, e := range entries {
		switch e.State() {
		case StateHealthy:
			c.Healthy++
		case StateDegraded:
			c.Degraded++
		case StateUnhealthy:
			c.Unhealthy++
		default:
			c.Unknown++
		}
	}
	return c
}
