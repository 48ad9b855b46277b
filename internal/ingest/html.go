package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"newsdesk/internal/services"
	"newsdesk/internal/store"
)

// htmlSelectors is the per-source scrape configuration stored in
// sources.config_json for html-method sources.
type htmlSelectors struct {
	ItemSelector  string `json:"item_selector"`
	TitleSelector string `json:"title_selector"`
	LinkSelector  string `json:"link_selector"`
	TextSelector  string `json:"text_selector"`
}

// HTMLFetcher scrapes listing pages with configured CSS selectors.
type HTMLFetcher struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	userAgent  string
}

// NewHTMLFetcher constructs an HTML fetcher.
func NewHTMLFetcher(timeout time.Duration, limiter *rate.Limiter, userAgent string) *HTMLFetcher {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &HTMLFetcher{
		httpClient: &http.Client{Timeout: timeout},
		limiter:    limiter,
		userAgent:  userAgent,
	}
}

// Fetch implements Fetcher.
func (f *HTMLFetcher) Fetch(ctx context.Context, source *store.Source, _ *store.SourceCursor) (*FetchResult, error) {
	if strings.TrimSpace(source.URL) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "", "poll source",
			fmt.Sprintf("source %q has no page url", source.Name), nil)
	}
	var selectors htmlSelectors
	if strings.TrimSpace(source.ConfigJSON) != "" {
		if err := json.Unmarshal([]byte(source.ConfigJSON), &selectors); err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "", "poll source",
				fmt.Sprintf("source %q has invalid selector config", source.Name), err)
		}
	}
	if selectors.ItemSelector == "" {
		return nil, services.Wrap(services.ErrConfiguration, "", "poll source",
			fmt.Sprintf("source %q is missing item_selector", source.Name), nil)
	}

	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build page request: %w", err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "", "poll source", "page request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		marker := services.ErrTransient
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			marker = services.ErrValidation
		}
		return nil, services.Wrap(marker, "", "poll source",
			fmt.Sprintf("page returned http %d", resp.StatusCode), nil)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "", "poll source", "page is not parseable HTML", err)
	}

	base, _ := url.Parse(source.URL)
	result := &FetchResult{}
	doc.Find(selectors.ItemSelector).Each(func(_ int, selection *goquery.Selection) {
		item := Item{}
		if selectors.TitleSelector != "" {
			item.Title = strings.TrimSpace(selection.Find(selectors.TitleSelector).First().Text())
		}
		linkSel := selection
		if selectors.LinkSelector != "" {
			linkSel = selection.Find(selectors.LinkSelector).First()
		}
		if href, ok := linkSel.Attr("href"); ok {
			item.URL = resolveURL(base, href)
		}
		if selectors.TextSelector != "" {
			item.RawText = strings.TrimSpace(selection.Find(selectors.TextSelector).First().Text())
		}
		if item.RawText == "" {
			item.RawText = strings.TrimSpace(selection.Text())
		}
		if html, err := goquery.OuterHtml(selection); err == nil {
			item.RawHTML = html
		}

		// A scraped item has no feed GUID; the resolved link is the stable
		// external identity, falling back to the title.
		item.ExternalID = item.URL
		if item.ExternalID == "" {
			item.ExternalID = item.Title
		}
		if item.ExternalID == "" {
			return
		}
		result.Items = append(result.Items, item)
	})
	return result, nil
}

func resolveURL(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	parsed, err := url.Parse(href)
	if err != nil {
		return href
	}
	if base == nil {
		return parsed.String()
	}
	return base.ResolveReference(parsed).String()
}
