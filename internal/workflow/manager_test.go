package workflow_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"newsdesk/internal/config"
	"newsdesk/internal/ingest"
	"newsdesk/internal/lifecycle"
	"newsdesk/internal/llm"
	"newsdesk/internal/pipeline"
	"newsdesk/internal/store"
	"newsdesk/internal/workflow"
)

type scriptedProvider struct {
	response string
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Complete(context.Context, string, string, string) (*llm.Completion, error) {
	return &llm.Completion{Content: p.response, LatencyMS: 1}, nil
}

// failingProvider errors whenever the prompt carries the marker text and
// otherwise answers like scriptedProvider.
type failingProvider struct {
	marker   string
	response string
}

func (p *failingProvider) Name() string { return "flaky" }

func (p *failingProvider) Complete(_ context.Context, _, _, userPrompt string) (*llm.Completion, error) {
	if strings.Contains(userPrompt, p.marker) {
		return nil, errors.New("provider outage")
	}
	return &llm.Completion{Content: p.response, LatencyMS: 1}, nil
}

func managerFixture(t *testing.T) (*store.Store, *pipeline.Orchestrator, *workflow.Manager) {
	t.Helper()
	return managerFixtureWithTriage(t, []llm.Candidate{
		{Provider: &scriptedProvider{response: `{"is_relevant": true, "urgency": 5}`}, Model: "test"},
	})
}

func managerFixtureWithTriage(t *testing.T, triage []llm.Candidate) (*store.Store, *pipeline.Orchestrator, *workflow.Manager) {
	t.Helper()
	s, err := store.OpenPath(filepath.Join(t.TempDir(), "newsdesk.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	cfg := config.Default()
	cfg.Workflow.PipelinePollInterval = 1

	executor := llm.NewExecutor(&cfg, nil,
		llm.WithCandidates(llm.StageTriage, triage),
		llm.WithCandidates(llm.StageAnalysis, []llm.Candidate{
			{Provider: &scriptedProvider{response: `{"is_novel": true, "novelty_score": 5, "headline": "H", "confidence_label": "low", "summary_markdown": "S", "needs_human_verification": false, "claims": [], "protocols": []}`}, Model: "test"},
		}),
		llm.WithCandidates(llm.StageVerification, []llm.Candidate{
			{Provider: &scriptedProvider{response: `{"passed": true, "contradiction_risk": "low", "notes": []}`}, Model: "test"},
		}),
		llm.WithSleeper(func(context.Context, time.Duration) error { return nil }),
	)
	orchestrator := pipeline.New(s, executor, nil)
	poller := ingest.NewPoller(&cfg, s, orchestrator, nil)
	manager := workflow.NewManager(&cfg, s, orchestrator, poller, nil)
	return s, orchestrator, manager
}

func TestManagerDrainsPipelineInBackground(t *testing.T) {
	s, orchestrator, manager := managerFixture(t)
	ctx := context.Background()

	source, err := s.CreateSource(ctx, &store.Source{Name: "feed", Method: store.MethodManual, Active: true})
	if err != nil {
		t.Fatalf("create source: %v", err)
	}
	doc, err := orchestrator.ManualIngest(ctx, source.ID, "item-1", "title", "Document body text.")
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}

	if err := manager.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer manager.Stop()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		current, err := s.GetDocument(ctx, doc.ID)
		if err != nil {
			t.Fatalf("get document: %v", err)
		}
		if current.Status == lifecycle.StatusReadyForReview {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("document never reached ready_for_review")
}

func TestManagerHoldsBackFailingDocument(t *testing.T) {
	s, orchestrator, manager := managerFixtureWithTriage(t, []llm.Candidate{
		{Provider: &failingProvider{marker: "poison", response: `{"is_relevant": true, "urgency": 5}`}, Model: "test"},
	})
	ctx := context.Background()

	source, err := s.CreateSource(ctx, &store.Source{Name: "feed", Method: store.MethodManual, Active: true})
	if err != nil {
		t.Fatalf("create source: %v", err)
	}
	// The failing document is older, so without the hold-back it would be
	// claimed first on every pass and starve the healthy one.
	bad, err := orchestrator.ManualIngest(ctx, source.ID, "item-bad", "title", "poison pill body.")
	if err != nil {
		t.Fatalf("ingest bad: %v", err)
	}
	good, err := orchestrator.ManualIngest(ctx, source.ID, "item-good", "title", "Healthy document body.")
	if err != nil {
		t.Fatalf("ingest good: %v", err)
	}

	if err := manager.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer manager.Stop()

	deadline := time.Now().Add(5 * time.Second)
	for {
		current, err := s.GetDocument(ctx, good.ID)
		if err != nil {
			t.Fatalf("get document: %v", err)
		}
		if current.Status == lifecycle.StatusReadyForReview {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("healthy document never reached ready_for_review")
		}
		time.Sleep(50 * time.Millisecond)
	}

	held, err := s.GetDocument(ctx, bad.ID)
	if err != nil {
		t.Fatalf("get held document: %v", err)
	}
	if held.Status != lifecycle.StatusIngested {
		t.Fatalf("failing document should keep its pre-stage status, got %s", held.Status)
	}
	letters, err := s.ListDeadLetters(ctx, 10)
	if err != nil {
		t.Fatalf("list dead letters: %v", err)
	}
	if len(letters) == 0 {
		t.Fatal("expected the failed stage to be dead-lettered")
	}
}

func TestManagerStartIsExclusiveAndStopIsIdempotent(t *testing.T) {
	_, _, manager := managerFixture(t)
	ctx := context.Background()

	if err := manager.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := manager.Start(ctx); err == nil {
		t.Fatal("second start must fail while running")
	}
	if !manager.Running() {
		t.Fatal("expected running state")
	}

	manager.Stop()
	manager.Stop()
	if manager.Running() {
		t.Fatal("expected stopped state")
	}

	// A stopped manager can start again.
	if err := manager.Start(ctx); err != nil {
		t.Fatalf("restart: %v", err)
	}
	manager.Stop()
}
