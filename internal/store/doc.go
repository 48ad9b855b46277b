// Package store persists the editorial content model in SQLite.
//
// It owns sources, raw fetch results, documents and their lifecycle status,
// insights with claims/citations/protocols, stage provenance, dedup edges,
// the idempotency ledger, dead letters, daily metrics, and publication
// bundles. Multi-row operations that must land atomically (stage commits,
// analysis replacement, ledger writes) take a *sql.Tx via the Tx-suffixed
// methods and run under Store.WithTx.
package store
