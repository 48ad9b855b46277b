package ingest_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"newsdesk/internal/config"
	"newsdesk/internal/ingest"
	"newsdesk/internal/store"
)

func TestNormalize(t *testing.T) {
	got := ingest.Normalize("  A   study\n\non\trapamycin  ")
	if got != "A study on rapamycin" {
		t.Fatalf("unexpected normalization: %q", got)
	}
	// Decomposed é must match its composed form after NFC.
	composed := ingest.Normalize("café")
	decomposed := ingest.Normalize("café")
	if composed != decomposed {
		t.Fatalf("NFC mismatch: %q vs %q", composed, decomposed)
	}
}

const sampleRSS = `<?xml version="1.0"?>
<rss version="2.0">
  <channel>
    <title>Longevity Weekly</title>
    <item>
      <guid>item-1</guid>
      <link>https://example.com/1</link>
      <title>Rapamycin extends lifespan</title>
      <description>Mouse study results.</description>
      <pubDate>Mon, 02 Jan 2006 15:04:05 -0700</pubDate>
    </item>
    <item>
      <guid>item-2</guid>
      <link>https://example.com/2</link>
      <title>NAD+ trial</title>
      <description>Phase 2 data.</description>
    </item>
  </channel>
</rss>`

func TestRSSFetcherParsesFeedAndCursor(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(sampleRSS))
	}))
	defer server.Close()

	fetcher := ingest.NewRSSFetcher(5*time.Second, nil, "newsdesk-test")
	source := &store.Source{Name: "feed", Method: store.MethodRSS, URL: server.URL}

	result, err := fetcher.Fetch(context.Background(), source, nil)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(result.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(result.Items))
	}
	if result.Items[0].ExternalID != "item-1" || result.Items[0].Title != "Rapamycin extends lifespan" {
		t.Fatalf("unexpected first item: %+v", result.Items[0])
	}
	if result.Items[0].PublishedAt == nil {
		t.Fatal("expected pubDate to parse")
	}
	if result.Cursor == nil || result.Cursor.ETag != `"v1"` {
		t.Fatalf("expected etag cursor, got %+v", result.Cursor)
	}

	// Second fetch with the stored cursor hits the conditional GET path.
	again, err := fetcher.Fetch(context.Background(), source, &store.SourceCursor{SourceID: 1, ETag: `"v1"`})
	if err != nil {
		t.Fatalf("conditional fetch: %v", err)
	}
	if !again.NotModified || len(again.Items) != 0 {
		t.Fatalf("expected not-modified result, got %+v", again)
	}
}

const samplePage = `<html><body>
<div class="post"><h2 class="title">Senolytics update</h2><a class="more" href="/posts/1">read</a><p class="body">Details one.</p></div>
<div class="post"><h2 class="title">Telomere paper</h2><a class="more" href="/posts/2">read</a><p class="body">Details two.</p></div>
</body></html>`

func TestHTMLFetcherExtractsConfiguredSelectors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(samplePage))
	}))
	defer server.Close()

	fetcher := ingest.NewHTMLFetcher(5*time.Second, nil, "newsdesk-test")
	source := &store.Source{
		Name:       "scrape",
		Method:     store.MethodHTML,
		URL:        server.URL,
		ConfigJSON: `{"item_selector":"div.post","title_selector":"h2.title","link_selector":"a.more","text_selector":"p.body"}`,
	}

	result, err := fetcher.Fetch(context.Background(), source, nil)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(result.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(result.Items))
	}
	first := result.Items[0]
	if first.Title != "Senolytics update" || first.RawText != "Details one." {
		t.Fatalf("unexpected item: %+v", first)
	}
	if first.URL != server.URL+"/posts/1" || first.ExternalID != first.URL {
		t.Fatalf("expected absolute link as external id, got %+v", first)
	}
}

func TestHTMLFetcherRequiresItemSelector(t *testing.T) {
	fetcher := ingest.NewHTMLFetcher(time.Second, nil, "")
	source := &store.Source{Name: "bad", Method: store.MethodHTML, URL: "https://example.com", ConfigJSON: `{}`}
	if _, err := fetcher.Fetch(context.Background(), source, nil); err == nil {
		t.Fatal("expected configuration error")
	}
}

type recordingIngestor struct {
	items []ingest.Item
}

func (r *recordingIngestor) IngestItem(_ context.Context, _ *store.Source, item ingest.Item) (*store.Document, bool, error) {
	r.items = append(r.items, item)
	return nil, true, nil
}

type scriptedFetcher struct {
	result *ingest.FetchResult
	err    error
	calls  int
}

func (f *scriptedFetcher) Fetch(context.Context, *store.Source, *store.SourceCursor) (*ingest.FetchResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func pollerFixture(t *testing.T) (*store.Store, *ingest.Poller, *recordingIngestor) {
	t.Helper()
	s, err := store.OpenPath(filepath.Join(t.TempDir(), "newsdesk.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	cfg := config.Default()
	ingestor := &recordingIngestor{}
	poller := ingest.NewPoller(&cfg, s, ingestor, nil)
	return s, poller, ingestor
}

func TestPollAllIsolatesFailingSources(t *testing.T) {
	s, poller, ingestor := pollerFixture(t)
	ctx := context.Background()

	if _, err := s.CreateSource(ctx, &store.Source{Name: "broken", Method: store.MethodRSS, URL: "https://example.com/a", Active: true}); err != nil {
		t.Fatalf("create source: %v", err)
	}
	healthy, err := s.CreateSource(ctx, &store.Source{Name: "healthy", Method: store.MethodHTML, URL: "https://example.com/b", Active: true})
	if err != nil {
		t.Fatalf("create source: %v", err)
	}

	poller.SetFetcher(store.MethodRSS, &scriptedFetcher{err: errors.New("connection refused")})
	poller.SetFetcher(store.MethodHTML, &scriptedFetcher{result: &ingest.FetchResult{
		Items: []ingest.Item{{ExternalID: "x", RawText: "text"}},
	}})

	stats, err := poller.PollAll(ctx)
	if err != nil {
		t.Fatalf("poll all: %v", err)
	}
	if stats.SourcesFailed != 1 || stats.SourcesPolled != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if len(ingestor.items) != 1 {
		t.Fatalf("healthy source should still ingest, got %d items", len(ingestor.items))
	}

	broken, err := s.GetSourceByName(ctx, "broken")
	if err != nil {
		t.Fatalf("get source: %v", err)
	}
	if broken.FailureCount != 1 || broken.LastError == "" {
		t.Fatalf("expected failure bookkeeping, got %+v", broken)
	}

	letters, err := s.ListDeadLetters(ctx, 10)
	if err != nil {
		t.Fatalf("list dead letters: %v", err)
	}
	if len(letters) != 1 || letters[0].SourceID == nil || *letters[0].SourceID != broken.ID {
		t.Fatalf("expected dead letter with source linkage, got %+v", letters)
	}

	healthyRow, err := s.GetSource(ctx, healthy.ID)
	if err != nil {
		t.Fatalf("get healthy source: %v", err)
	}
	if healthyRow.LastSuccessAt == nil || healthyRow.FailureCount != 0 {
		t.Fatalf("expected success bookkeeping, got %+v", healthyRow)
	}
}

func TestPollAllHonoursCooldown(t *testing.T) {
	s, poller, _ := pollerFixture(t)
	ctx := context.Background()

	source, err := s.CreateSource(ctx, &store.Source{
		Name: "cooled", Method: store.MethodRSS, URL: "https://example.com/a",
		Active: true, CooldownSeconds: 3600,
	})
	if err != nil {
		t.Fatalf("create source: %v", err)
	}
	if err := s.RecordSourceSuccess(ctx, source.ID, time.Now()); err != nil {
		t.Fatalf("record success: %v", err)
	}

	fetcher := &scriptedFetcher{result: &ingest.FetchResult{}}
	poller.SetFetcher(store.MethodRSS, fetcher)

	stats, err := poller.PollAll(ctx)
	if err != nil {
		t.Fatalf("poll all: %v", err)
	}
	if stats.SourcesSkipped != 1 || fetcher.calls != 0 {
		t.Fatalf("expected cooldown skip, stats=%+v calls=%d", stats, fetcher.calls)
	}
}

func TestPollAllSkipsManualSources(t *testing.T) {
	s, poller, _ := pollerFixture(t)
	ctx := context.Background()

	if _, err := s.CreateSource(ctx, &store.Source{Name: "inbox", Method: store.MethodManual, Active: true}); err != nil {
		t.Fatalf("create source: %v", err)
	}

	stats, err := poller.PollAll(ctx)
	if err != nil {
		t.Fatalf("poll all: %v", err)
	}
	if stats.SourcesSkipped != 1 || stats.SourcesPolled != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}
