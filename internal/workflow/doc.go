// Package workflow coordinates the daemon's background loops: draining the
// stage pipeline, polling content sources on a schedule, and sweeping expired
// idempotency records.
package workflow
