// Package dispatch implements the request-dispatch core: every
// scraping operation routes one logical fetch through rate governing,
// proxy selection, challenge resolution, and bounded retry, and gets a
// tagged outcome back.
package dispatch
