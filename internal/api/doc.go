// Package api is the operations facade for editorial and operator actions.
//
// It is a plain Go service layer, not an HTTP surface: request and response
// shaping stays with whatever transport embeds it. Every mutating operation
// requires a caller-supplied idempotency token and routes through the
// idempotency ledger, so a replayed call returns its original response and a
// token reuse with a different body is rejected.
package api
