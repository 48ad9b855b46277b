package ingest

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"newsdesk/internal/services"
	"newsdesk/internal/store"
)

// RSSFetcher polls RSS and Atom feeds with conditional GET support.
type RSSFetcher struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	userAgent  string
}

// NewRSSFetcher constructs an RSS fetcher. The limiter is shared across
// sources to keep outbound politeness global.
func NewRSSFetcher(timeout time.Duration, limiter *rate.Limiter, userAgent string) *RSSFetcher {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &RSSFetcher{
		httpClient: &http.Client{Timeout: timeout},
		limiter:    limiter,
		userAgent:  userAgent,
	}
}

type rssFeed struct {
	Channel struct {
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
	// Atom fallback.
	Entries []atomEntry `xml:"entry"`
}

type rssItem struct {
	GUID        string `xml:"guid"`
	Link        string `xml:"link"`
	Title       string `xml:"title"`
	Description string `xml:"description"`
	PubDate     string `xml:"pubDate"`
}

type atomEntry struct {
	ID    string `xml:"id"`
	Title string `xml:"title"`
	Links []struct {
		Href string `xml:"href,attr"`
		Rel  string `xml:"rel,attr"`
	} `xml:"link"`
	Summary string `xml:"summary"`
	Content string `xml:"content"`
	Updated string `xml:"updated"`
}

// Fetch implements Fetcher.
func (f *RSSFetcher) Fetch(ctx context.Context, source *store.Source, cursor *store.SourceCursor) (*FetchResult, error) {
	if strings.TrimSpace(source.URL) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "", "poll source",
			fmt.Sprintf("source %q has no feed url", source.Name), nil)
	}
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build feed request: %w", err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	if cursor != nil {
		if cursor.ETag != "" {
			req.Header.Set("If-None-Match", cursor.ETag)
		}
		if cursor.LastModified != "" {
			req.Header.Set("If-Modified-Since", cursor.LastModified)
		}
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "", "poll source", "feed request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		return &FetchResult{NotModified: true}, nil
	}
	if resp.StatusCode != http.StatusOK {
		marker := services.ErrTransient
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			marker = services.ErrValidation
		}
		return nil, services.Wrap(marker, "", "poll source",
			fmt.Sprintf("feed returned http %d", resp.StatusCode), nil)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "", "poll source", "read feed body", err)
	}

	var feed rssFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, services.Wrap(services.ErrValidation, "", "poll source", "feed is not valid XML", err)
	}

	result := &FetchResult{
		Cursor: &Cursor{
			ETag:         resp.Header.Get("ETag"),
			LastModified: resp.Header.Get("Last-Modified"),
		},
	}
	for _, item := range feed.Channel.Items {
		externalID := strings.TrimSpace(item.GUID)
		if externalID == "" {
			externalID = strings.TrimSpace(item.Link)
		}
		if externalID == "" {
			continue
		}
		entry := Item{
			ExternalID: externalID,
			URL:        strings.TrimSpace(item.Link),
			Title:      strings.TrimSpace(item.Title),
			RawText:    strings.TrimSpace(item.Description),
		}
		if published, err := parseFeedTime(item.PubDate); err == nil {
			entry.PublishedAt = &published
		}
		result.Items = append(result.Items, entry)
	}
	for _, entry := range feed.Entries {
		externalID := strings.TrimSpace(entry.ID)
		if externalID == "" {
			continue
		}
		text := strings.TrimSpace(entry.Content)
		if text == "" {
			text = strings.TrimSpace(entry.Summary)
		}
		item := Item{
			ExternalID: externalID,
			Title:      strings.TrimSpace(entry.Title),
			RawText:    text,
		}
		for _, link := range entry.Links {
			if link.Rel == "" || link.Rel == "alternate" {
				item.URL = link.Href
				break
			}
		}
		if published, err := parseFeedTime(entry.Updated); err == nil {
			item.PublishedAt = &published
		}
		result.Items = append(result.Items, item)
	}
	return result, nil
}

var feedTimeLayouts = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC3339,
	"Mon, 2 Jan 2006 15:04:05 -0700",
}

func parseFeedTime(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("empty time")
	}
	for _, layout := range feedTimeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", value)
}
