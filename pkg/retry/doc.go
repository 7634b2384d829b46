// Package retry provides bounded retry with pluggable backoff strategies.
//
// The dispatch orchestrator drives its own attempt loop and uses only the
// backoff strategies and Wait; higher-level scraping operations wrap whole
// logical fetches in Do / DoWithResult.
package retry
