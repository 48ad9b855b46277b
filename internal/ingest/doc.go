// Package ingest fetches raw documents from configured sources.
//
// Each source method (rss, html) has a Fetcher; the Poller schedules active
// sources, honours per-source cooldowns and a shared outbound rate limit,
// and isolates per-source failures so one broken feed never blocks the rest
// of a poll run. Fetched items flow to the pipeline through the Ingestor
// contract.
package ingest
