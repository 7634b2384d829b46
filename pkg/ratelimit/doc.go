// Package ratelimit implements the rate governor that bounds outbound
// request volume per egress identity and globally.
//
// Each identity gets its own token bucket (capacity = burst allowance,
// refilled continuously at the configured requests-per-minute rate) and one
// global bucket bounds aggregate throughput regardless of identity count.
// Acquire either consumes a token immediately, suspends the caller for the
// exact refill duration, or fails fast when the wait would exceed the
// caller's patience.
package ratelimit
