package publish_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"newsdesk/internal/config"
	"newsdesk/internal/publish"
	"newsdesk/internal/services"
	"newsdesk/internal/store"
)

func sampleInsights() []*store.Insight {
	return []*store.Insight{
		{Headline: "Rapamycin trial shows benefit", ConfidenceLabel: "medium", NoveltyScore: 8, SummaryMarkdown: "Trial summary."},
		{Headline: "NAD+ phase 2 data", ConfidenceLabel: "low", NoveltyScore: 5, SummaryMarkdown: "Second summary."},
	}
}

func TestRenderBuildsNewsletterAndSocialText(t *testing.T) {
	start := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)

	rendered, err := publish.Render(start, end, sampleInsights())
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if !strings.Contains(rendered.NewsletterHTML, "Rapamycin trial shows benefit") ||
		!strings.Contains(rendered.NewsletterHTML, "NAD+ phase 2 data") {
		t.Fatalf("newsletter missing headlines: %s", rendered.NewsletterHTML)
	}
	if !strings.Contains(rendered.Subject, "Aug 24") || !strings.Contains(rendered.Subject, "Aug 31, 2026") {
		t.Fatalf("unexpected subject: %q", rendered.Subject)
	}
	if !strings.Contains(rendered.SocialText, "Rapamycin trial shows benefit") ||
		!strings.Contains(rendered.SocialText, "plus 1 more") {
		t.Fatalf("unexpected social text: %q", rendered.SocialText)
	}
}

func TestRenderEscapesMarkup(t *testing.T) {
	insights := []*store.Insight{
		{Headline: "<script>alert(1)</script>", ConfidenceLabel: "low", NoveltyScore: 3, SummaryMarkdown: "Summary."},
	}
	rendered, err := publish.Render(time.Now(), time.Now(), insights)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if strings.Contains(rendered.NewsletterHTML, "<script>") {
		t.Fatal("headline markup must be escaped")
	}
}

func TestRenderRejectsEmptyBundle(t *testing.T) {
	if _, err := publish.Render(time.Now(), time.Now(), nil); err == nil {
		t.Fatal("expected error for empty bundle")
	}
}

func publisherFixture(url, key string) *publish.HTTPPublisher {
	cfg := config.Default()
	cfg.Publish.APIURL = url
	cfg.Publish.APIKey = key
	return publish.NewHTTPPublisher(&cfg)
}

func sampleBundle() *store.Bundle {
	return &store.Bundle{
		ID:             1,
		PeriodStart:    time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC),
		PeriodEnd:      time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC),
		NewsletterHTML: "<html><body>digest</body></html>",
		SocialText:     "Top stories this week",
	}
}

func TestPublishDeliversBundle(t *testing.T) {
	var got map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			t.Errorf("missing auth header, got %q", r.Header.Get("Authorization"))
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "post-42", "url": "https://news.example.com/post-42"})
	}))
	defer server.Close()

	result, err := publisherFixture(server.URL, "secret").Publish(context.Background(), sampleBundle())
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if result.Status != publish.StatusOK || result.ExternalPostID != "post-42" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if got["body_html"] == "" || !strings.Contains(got["subject"], "Longevity Digest") {
		t.Fatalf("unexpected request payload: %+v", got)
	}
}

func TestPublishSkipsWithoutAPIURL(t *testing.T) {
	result, err := publisherFixture("", "").Publish(context.Background(), sampleBundle())
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if result.Status != publish.StatusSkipped {
		t.Fatalf("expected skipped, got %+v", result)
	}
}

func TestPublishClassifiesServerErrorsAsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	result, err := publisherFixture(server.URL, "").Publish(context.Background(), sampleBundle())
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if result == nil || result.Status != publish.StatusError || result.Error == "" {
		t.Fatalf("expected error result, got %+v", result)
	}
}

func TestPublishClassifiesClientErrorsAsPermanent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer server.Close()

	_, err := publisherFixture(server.URL, "").Publish(context.Background(), sampleBundle())
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
