package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"newsdesk/internal/api"
	"newsdesk/internal/config"
	"newsdesk/internal/ingest"
	"newsdesk/internal/lifecycle"
	"newsdesk/internal/llm"
	"newsdesk/internal/pipeline"
	"newsdesk/internal/publish"
	"newsdesk/internal/services"
	"newsdesk/internal/store"
)

const triageJSON = `{"is_relevant": true, "urgency": 6}`
const verificationJSON = `{"passed": true, "contradiction_risk": "low", "notes": []}`

const analysisJSON = `{
  "is_novel": true, "novelty_score": 8, "headline": "Senolytics clear aged cells",
  "confidence_label": "medium", "summary_markdown": "Trial summary.",
  "needs_human_verification": false, "claims": [], "protocols": []
}`

const flaggedAnalysisJSON = `{
  "is_novel": true, "novelty_score": 4, "headline": "Extraordinary lifespan claim",
  "confidence_label": "low", "summary_markdown": "Needs a human look.",
  "needs_human_verification": true, "claims": [], "protocols": []
}`

type scriptedProvider struct {
	response string
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Complete(context.Context, string, string, string) (*llm.Completion, error) {
	return &llm.Completion{Content: p.response, LatencyMS: 2}, nil
}

type fakePublisher struct {
	result *publish.Result
	err    error
	calls  int
}

func (p *fakePublisher) Publish(context.Context, *store.Bundle) (*publish.Result, error) {
	p.calls++
	return p.result, p.err
}

type fixture struct {
	store        *store.Store
	service      *api.Service
	orchestrator *pipeline.Orchestrator
	publisher    *fakePublisher
	source       *store.Source
}

func newFixture(t *testing.T, analysis string) *fixture {
	t.Helper()
	s, err := store.OpenPath(filepath.Join(t.TempDir(), "newsdesk.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	cfg := config.Default()
	executor := llm.NewExecutor(&cfg, nil,
		llm.WithCandidates(llm.StageTriage, []llm.Candidate{{Provider: &scriptedProvider{response: triageJSON}, Model: "test"}}),
		llm.WithCandidates(llm.StageAnalysis, []llm.Candidate{{Provider: &scriptedProvider{response: analysis}, Model: "test"}}),
		llm.WithCandidates(llm.StageVerification, []llm.Candidate{{Provider: &scriptedProvider{response: verificationJSON}, Model: "test"}}),
		llm.WithSleeper(func(context.Context, time.Duration) error { return nil }),
	)
	orchestrator := pipeline.New(s, executor, nil)
	poller := ingest.NewPoller(&cfg, s, orchestrator, nil)
	publisher := &fakePublisher{result: &publish.Result{
		Status: publish.StatusOK, ExternalPostID: "post-1", ExternalURL: "https://news.example.com/post-1",
	}}
	service := api.New(s, poller, orchestrator, publisher, nil)

	source, err := s.CreateSource(context.Background(), &store.Source{
		Name: "feed", Method: store.MethodRSS, URL: "https://example.com/feed", Active: true,
	})
	if err != nil {
		t.Fatalf("create source: %v", err)
	}
	return &fixture{store: s, service: service, orchestrator: orchestrator, publisher: publisher, source: source}
}

// reviewedInsight drives one document to ready_for_review and returns its insight.
func (f *fixture) reviewedInsight(t *testing.T, externalID string) *store.Insight {
	t.Helper()
	ctx := context.Background()
	doc, err := f.orchestrator.ManualIngest(ctx, f.source.ID, externalID, "title", "Body text for "+externalID+".")
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := f.orchestrator.ProcessDocument(ctx, doc.ID); err != nil {
			t.Fatalf("stage %d: %v", i, err)
		}
	}
	insight, err := f.store.GetInsightByDocument(ctx, doc.ID)
	if err != nil {
		t.Fatalf("get insight: %v", err)
	}
	return insight
}

func TestMutationsRequireIdempotencyToken(t *testing.T) {
	f := newFixture(t, analysisJSON)
	_, err := f.service.CreateSource(context.Background(), "", api.CreateSourceRequest{
		Name: "x", Method: "rss", URL: "https://example.com", Active: true,
	})
	if !errors.Is(err, services.ErrMissingIdempotencyKey) {
		t.Fatalf("expected missing-token error, got %v", err)
	}
}

func TestCreateSourceReplaySemantics(t *testing.T) {
	f := newFixture(t, analysisJSON)
	ctx := context.Background()
	req := api.CreateSourceRequest{Name: "replayed", Method: "rss", URL: "https://example.com/r", Active: true}

	first, err := f.service.CreateSource(ctx, "tok-1", req)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Same token and body returns the original response without a second row.
	again, err := f.service.CreateSource(ctx, "tok-1", req)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if again.ID != first.ID {
		t.Fatalf("replay returned different source: %d vs %d", again.ID, first.ID)
	}

	// Same token, different body is a conflict.
	req.URL = "https://example.com/other"
	if _, err := f.service.CreateSource(ctx, "tok-1", req); !errors.Is(err, services.ErrConflict) {
		t.Fatalf("expected conflict on body mismatch, got %v", err)
	}
}

func TestTransitionDocumentOptimisticCheck(t *testing.T) {
	f := newFixture(t, analysisJSON)
	ctx := context.Background()
	doc, err := f.orchestrator.ManualIngest(ctx, f.source.ID, "doc-1", "t", "Body text.")
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}

	_, err = f.service.TransitionDocument(ctx, "tok-t1", api.TransitionDocumentRequest{
		DocumentID: doc.ID, Current: "triaged", Target: "analyzed",
	})
	if !errors.Is(err, services.ErrConflict) {
		t.Fatalf("expected conflict on stale current status, got %v", err)
	}

	moved, err := f.service.TransitionDocument(ctx, "tok-t2", api.TransitionDocumentRequest{
		DocumentID: doc.ID, Current: "ingested", Target: "rejected",
	})
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if moved.Status != lifecycle.StatusRejected {
		t.Fatalf("expected rejected, got %s", moved.Status)
	}
}

func TestApproveInsightAdvancesDocument(t *testing.T) {
	f := newFixture(t, analysisJSON)
	ctx := context.Background()
	insight := f.reviewedInsight(t, "item-1")

	approved, err := f.service.ApproveInsight(ctx, "tok-a1", api.ApproveInsightRequest{InsightID: insight.ID})
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approved.EditorStatus != store.EditorApproved {
		t.Fatalf("expected approved verdict, got %s", approved.EditorStatus)
	}
	doc, err := f.store.GetDocument(ctx, insight.DocumentID)
	if err != nil {
		t.Fatalf("get document: %v", err)
	}
	if doc.Status != lifecycle.StatusApproved {
		t.Fatalf("expected approved document, got %s", doc.Status)
	}

	// A fresh token against the settled verdict is a conflict; the original
	// token replays cleanly.
	if _, err := f.service.ApproveInsight(ctx, "tok-a2", api.ApproveInsightRequest{InsightID: insight.ID}); !errors.Is(err, services.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	replayed, err := f.service.ApproveInsight(ctx, "tok-a1", api.ApproveInsightRequest{InsightID: insight.ID})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if replayed.EditorStatus != store.EditorApproved {
		t.Fatalf("replay returned %s", replayed.EditorStatus)
	}
}

// requireSameResponse fails unless two responses encode to the same bytes,
// the contract for replaying an idempotency token.
func requireSameResponse(t *testing.T, first, replayed any) {
	t.Helper()
	firstJSON, err := json.Marshal(first)
	if err != nil {
		t.Fatalf("encode first response: %v", err)
	}
	replayJSON, err := json.Marshal(replayed)
	if err != nil {
		t.Fatalf("encode replayed response: %v", err)
	}
	if !bytes.Equal(firstJSON, replayJSON) {
		t.Fatalf("replay diverged from original response:\nfirst:  %s\nreplay: %s", firstJSON, replayJSON)
	}
}

func TestApproveInsightReplayIsByteIdentical(t *testing.T) {
	f := newFixture(t, analysisJSON)
	ctx := context.Background()
	insight := f.reviewedInsight(t, "item-1")

	first, err := f.service.ApproveInsight(ctx, "tok-a1", api.ApproveInsightRequest{InsightID: insight.ID})
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	replayed, err := f.service.ApproveInsight(ctx, "tok-a1", api.ApproveInsightRequest{InsightID: insight.ID})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	requireSameResponse(t, first, replayed)
}

func TestTransitionDocumentReplayIsByteIdentical(t *testing.T) {
	f := newFixture(t, analysisJSON)
	ctx := context.Background()
	doc, err := f.orchestrator.ManualIngest(ctx, f.source.ID, "doc-1", "t", "Body text.")
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}

	req := api.TransitionDocumentRequest{DocumentID: doc.ID, Current: "ingested", Target: "rejected"}
	first, err := f.service.TransitionDocument(ctx, "tok-t1", req)
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	replayed, err := f.service.TransitionDocument(ctx, "tok-t1", req)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	requireSameResponse(t, first, replayed)

	// The replay is served from the ledger, not by re-running the
	// transition: the optimistic check would reject rejected -> rejected.
	stored, err := f.store.GetDocument(ctx, doc.ID)
	if err != nil {
		t.Fatalf("get document: %v", err)
	}
	if stored.Status != lifecycle.StatusRejected {
		t.Fatalf("expected rejected, got %s", stored.Status)
	}
}

func TestPatchInsightReplayIsByteIdentical(t *testing.T) {
	f := newFixture(t, analysisJSON)
	ctx := context.Background()
	insight := f.reviewedInsight(t, "item-1")

	headline := "Edited headline"
	req := api.PatchInsightRequest{InsightID: insight.ID, Headline: &headline}
	first, err := f.service.PatchInsight(ctx, "tok-p1", req)
	if err != nil {
		t.Fatalf("patch: %v", err)
	}
	replayed, err := f.service.PatchInsight(ctx, "tok-p1", req)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	requireSameResponse(t, first, replayed)
}

func TestApproveInsightGatedByHumanVerification(t *testing.T) {
	f := newFixture(t, flaggedAnalysisJSON)
	ctx := context.Background()
	insight := f.reviewedInsight(t, "item-1")

	_, err := f.service.ApproveInsight(ctx, "tok-h1", api.ApproveInsightRequest{InsightID: insight.ID})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error while flagged, got %v", err)
	}

	approved, err := f.service.ApproveInsight(ctx, "tok-h2", api.ApproveInsightRequest{
		InsightID: insight.ID, HumanVerified: true,
	})
	if err != nil {
		t.Fatalf("approve with verification: %v", err)
	}
	if approved.NeedsHumanVerification {
		t.Fatal("flag should clear on verified approval")
	}
}

func TestRejectInsightCountsRejection(t *testing.T) {
	f := newFixture(t, analysisJSON)
	ctx := context.Background()
	insight := f.reviewedInsight(t, "item-1")

	rejected, err := f.service.RejectInsight(ctx, "tok-r1", api.RejectInsightRequest{InsightID: insight.ID})
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if rejected.EditorStatus != store.EditorRejected {
		t.Fatalf("expected rejected verdict, got %s", rejected.EditorStatus)
	}
	doc, err := f.store.GetDocument(ctx, insight.DocumentID)
	if err != nil {
		t.Fatalf("get document: %v", err)
	}
	if doc.Status != lifecycle.StatusRejected {
		t.Fatalf("expected rejected document, got %s", doc.Status)
	}
	metric, err := f.service.PipelineMetrics(ctx)
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	if metric.Rejected != 1 {
		t.Fatalf("expected one rejection counted, got %d", metric.Rejected)
	}
}

func TestPatchInsightEditsFields(t *testing.T) {
	f := newFixture(t, analysisJSON)
	ctx := context.Background()
	insight := f.reviewedInsight(t, "item-1")

	headline := "Edited headline"
	patched, err := f.service.PatchInsight(ctx, "tok-p1", api.PatchInsightRequest{
		InsightID: insight.ID, Headline: &headline,
	})
	if err != nil {
		t.Fatalf("patch: %v", err)
	}
	if patched.Headline != headline || patched.SummaryMarkdown != insight.SummaryMarkdown {
		t.Fatalf("unexpected patch result: %+v", patched)
	}
}

func TestInboxListsReviewQueue(t *testing.T) {
	f := newFixture(t, analysisJSON)
	ctx := context.Background()
	f.reviewedInsight(t, "item-1")
	f.reviewedInsight(t, "item-2")

	entries, err := f.service.Inbox(ctx, api.InboxRequest{SortByScore: true})
	if err != nil {
		t.Fatalf("inbox: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Status != lifecycle.StatusReadyForReview {
		t.Fatalf("unexpected entry: %+v", entries[0])
	}
}

func TestBundleBuildAndPublish(t *testing.T) {
	f := newFixture(t, analysisJSON)
	ctx := context.Background()
	insight := f.reviewedInsight(t, "item-1")
	if _, err := f.service.ApproveInsight(ctx, "tok-a1", api.ApproveInsightRequest{InsightID: insight.ID}); err != nil {
		t.Fatalf("approve: %v", err)
	}

	window := api.BuildBundleRequest{
		PeriodStart: time.Now().Add(-time.Hour),
		PeriodEnd:   time.Now().Add(time.Hour),
	}
	bundle, err := f.service.BuildBundle(ctx, "tok-b1", window)
	if err != nil {
		t.Fatalf("build bundle: %v", err)
	}
	if bundle.Status != store.BundleDraft || len(bundle.InsightIDs) != 1 {
		t.Fatalf("unexpected bundle: %+v", bundle)
	}
	doc, err := f.store.GetDocument(ctx, insight.DocumentID)
	if err != nil {
		t.Fatalf("get document: %v", err)
	}
	if doc.Status != lifecycle.StatusBundled {
		t.Fatalf("expected bundled document, got %s", doc.Status)
	}

	published, err := f.service.PublishBundle(ctx, "tok-pub1", api.PublishBundleRequest{BundleID: bundle.ID})
	if err != nil {
		t.Fatalf("publish bundle: %v", err)
	}
	if published.Status != store.BundlePublished || published.ExternalPostID != "post-1" {
		t.Fatalf("unexpected published bundle: %+v", published)
	}
	doc, err = f.store.GetDocument(ctx, insight.DocumentID)
	if err != nil {
		t.Fatalf("get document: %v", err)
	}
	if doc.Status != lifecycle.StatusPublished {
		t.Fatalf("expected published document, got %s", doc.Status)
	}
	metric, err := f.service.PipelineMetrics(ctx)
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	if metric.Published != 1 {
		t.Fatalf("expected one publication counted, got %d", metric.Published)
	}

	// Replaying the publish token serves the stored response without hitting
	// the publisher again.
	replayed, err := f.service.PublishBundle(ctx, "tok-pub1", api.PublishBundleRequest{BundleID: bundle.ID})
	if err != nil {
		t.Fatalf("replay publish: %v", err)
	}
	requireSameResponse(t, published, replayed)
	if f.publisher.calls != 1 {
		t.Fatalf("publisher called %d times", f.publisher.calls)
	}
}

func TestPublishBundleRecordsDeliveryError(t *testing.T) {
	f := newFixture(t, analysisJSON)
	ctx := context.Background()
	insight := f.reviewedInsight(t, "item-1")
	if _, err := f.service.ApproveInsight(ctx, "tok-a1", api.ApproveInsightRequest{InsightID: insight.ID}); err != nil {
		t.Fatalf("approve: %v", err)
	}
	bundle, err := f.service.BuildBundle(ctx, "tok-b1", api.BuildBundleRequest{
		PeriodStart: time.Now().Add(-time.Hour),
		PeriodEnd:   time.Now().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("build bundle: %v", err)
	}

	f.publisher.result = &publish.Result{Status: publish.StatusError, Error: "http 502"}
	f.publisher.err = services.Wrap(services.ErrTransient, "", "publish bundle", "http 502", nil)

	if _, err := f.service.PublishBundle(ctx, "tok-pub1", api.PublishBundleRequest{BundleID: bundle.ID}); !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient error, got %v", err)
	}

	stored, err := f.store.GetBundle(ctx, bundle.ID)
	if err != nil {
		t.Fatalf("get bundle: %v", err)
	}
	if stored.Status != store.BundleDraft || stored.PublishError == "" {
		t.Fatalf("expected draft with recorded error, got %+v", stored)
	}
	doc, err := f.store.GetDocument(ctx, insight.DocumentID)
	if err != nil {
		t.Fatalf("get document: %v", err)
	}
	if doc.Status != lifecycle.StatusBundled {
		t.Fatalf("documents must stay bundled on delivery failure, got %s", doc.Status)
	}
}

func TestManualIngestThroughFacade(t *testing.T) {
	f := newFixture(t, analysisJSON)
	ctx := context.Background()

	doc, err := f.service.ManualIngest(ctx, "tok-m1", api.ManualIngestRequest{
		SourceID: f.source.ID, ExternalID: "tip-1", Title: "tip", Text: "A reader tip.",
	})
	if err != nil {
		t.Fatalf("manual ingest: %v", err)
	}
	if doc.Status != lifecycle.StatusIngested {
		t.Fatalf("expected ingested, got %s", doc.Status)
	}

	// Replay returns the original document instead of a conflict.
	replayed, err := f.service.ManualIngest(ctx, "tok-m1", api.ManualIngestRequest{
		SourceID: f.source.ID, ExternalID: "tip-1", Title: "tip", Text: "A reader tip.",
	})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if replayed.ID != doc.ID {
		t.Fatalf("replay returned different document: %d vs %d", replayed.ID, doc.ID)
	}
}
