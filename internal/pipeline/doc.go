// Package pipeline orchestrates the editorial document lifecycle.
//
// The orchestrator accepts fetched items from ingestion, creates documents,
// and advances them one stage at a time: triage, analysis, verification. Each
// stage calls the configured candidate executor outside any transaction, then
// commits the stage run record, the status transition, and the daily metric
// bump atomically. A failed stage rolls back, writes a dead letter, and leaves
// the document at its previous status for operator review.
package pipeline
