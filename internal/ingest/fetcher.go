package ingest

import (
	"context"
	"time"

	"newsdesk/internal/store"
)

// Item is one fetched entry from an external source.
type Item struct {
	ExternalID  string
	URL         string
	Title       string
	PublishedAt *time.Time
	RawText     string
	RawHTML     string
	HTTPMeta    map[string]string
}

// Cursor carries incremental-fetch state back from a fetcher.
type Cursor struct {
	ETag         string
	LastModified string
	CursorJSON   string
}

// FetchResult is one poll's worth of items plus the cursor for the next poll.
// NotModified reports a conditional-GET hit: nothing changed upstream.
type FetchResult struct {
	Items       []Item
	Cursor      *Cursor
	NotModified bool
}

// Fetcher retrieves items for one source method.
type Fetcher interface {
	Fetch(ctx context.Context, source *store.Source, cursor *store.SourceCursor) (*FetchResult, error)
}
