// Package idempotency makes mutating operations safely replayable.
//
// Callers supply an opaque token per logical endpoint; the ledger caches the
// response of the first completed run and replays it byte-for-byte on
// retries. A token reused with a different request body is a conflict, never
// a second execution.
package idempotency
