// Package proxy manages the pool of egress identities: health tracking
// via an explicit finite-state machine, background probing, and
// weighted round-robin selection correlated to outcomes by dispatch
// tokens.
package proxy
