// Package useragent rotates the browser identity string attached to
// outbound requests.
package useragent

import "sync"

// defaultAgents are current desktop browser strings. Overridable via
// configuration.
var defaultAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:128.0) Gecko/20100101 Firefox/128.0",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Safari/605.1.15",
}

// Rotator hands out user agent strings round-robin. Safe for
// concurrent use.
type Rotator struct {
	mu     sync.Mutex
	agents []string
	next   int
}

// NewRotator creates a rotator. With no agents given it falls back to
// the built-in list.
func NewRotator(agents ...string) *Rotator {
	if len(agents) == 0 {
		agents = defaultAgents
	}
	return &Rotator{agents: agents}
}

// Next returns the next user agent string.
func (r *Rotator) Next() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ua := r.agents[r.next%len(r.agents)]
	r.next++
	return ua
}
