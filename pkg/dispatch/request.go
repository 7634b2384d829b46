package dispatch

import (
	"net/http"
	"net/url"
	"strings"

	errs "redscrape/pkg/errors"
)

// Request describes one logical fetch. Only idempotent, safely
// retryable requests are issued; anything else is rejected before a
// proxy is touched.
type Request struct {
	URL    string
	Method string
	Header http.Header
}

// NewRequest builds a GET request descriptor.
func NewRequest(rawURL string) *Request {
	return &Request{URL: rawURL, Method: http.MethodGet}
}

// validate rejects descriptors that can never succeed. These are
// malformed-request failures: not retried and not counted against any
// proxy.
func (r *Request) validate() error {
	if r.URL == "" {
		return errs.New(errs.ErrorTypeMalformed, "request URL is empty", 0)
	}
	u, err := url.Parse(r.URL)
	if err != nil {
		return errs.Newf(errs.ErrorTypeMalformed, 0, "invalid request URL: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errs.Newf(errs.ErrorTypeMalformed, 0, "unsupported URL scheme %q", u.Scheme)
	}
	switch strings.ToUpper(r.Method) {
	case http.MethodGet, http.MethodHead, "":
	default:
		return errs.Newf(errs.ErrorTypeMalformed, 0, "method %s is not safely retryable", r.Method)
	}
	return nil
}

func (r *Request) method() string {
	if r.Method == "" {
		return http.MethodGet
	}
	return strings.ToUpper(r.Method)
}

// withHeader returns a copy of the request carrying one extra header.
// The original is never mutated; a solution token must not leak into
// later attempts.
func (r *Request) withHeader(key, value string) *Request {
	clone := &Request{URL: r.URL, Method: r.Method, Header: make(http.Header, len(r.Header)+1)}
	for k, vs := range r.Header {
		clone.Header[k] = append([]string(nil), vs...)
	}
	clone.Header.Set(key, value)
	return clone
}

// OutcomeKind tags the terminal result of a dispatch.
type OutcomeKind int

const (
	// OutcomeSuccess carries the response body and status.
	OutcomeSuccess OutcomeKind = iota
	// OutcomeRateLimited means the wait for rate clearance exceeded the
	// caller's patience. Recoverable by waiting.
	OutcomeRateLimited
	// OutcomeChallengeRequired means every attempt ended gated behind a
	// challenge that could not be resolved. Recoverable by rotation or
	// quota repair, not by immediate retry.
	OutcomeChallengeRequired
	// OutcomeTransientFailure means attempts were exhausted on causes
	// that may clear up; the caller may retry the whole operation later.
	OutcomeTransientFailure
	// OutcomeFatalFailure means retrying cannot help: no proxies,
	// depleted solver quota, or a malformed request.
	OutcomeFatalFailure
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeRateLimited:
		return "rate_limited"
	case OutcomeChallengeRequired:
		return "challenge_required"
	case OutcomeTransientFailure:
		return "transient_failure"
	default:
		return "fatal_failure"
	}
}

// Outcome is the tagged result every dispatch terminates with. No
// layer swallows the retryable/fatal distinction; it is all here.
type Outcome struct {
	Kind     OutcomeKind
	Status   int
	Header   http.Header
	Body     []byte
	Err      error
	Attempts int
	// Proxy is the label of the identity that produced the terminal
	// result, when one was involved.
	Proxy string
}

// OK reports whether the dispatch succeeded.
func (o Outcome) OK() bool {
	return o.Kind == OutcomeSuccess
}
