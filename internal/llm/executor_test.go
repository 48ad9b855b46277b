package llm_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"newsdesk/internal/config"
	"newsdesk/internal/llm"
	"newsdesk/internal/services"
)

type scriptedProvider struct {
	name      string
	responses []func() (*llm.Completion, error)
	calls     int
}

func (p *scriptedProvider) Name() string { return p.name }

func (p *scriptedProvider) Complete(context.Context, string, string, string) (*llm.Completion, error) {
	if p.calls >= len(p.responses) {
		return nil, errors.New("no scripted response left")
	}
	response := p.responses[p.calls]
	p.calls++
	return response()
}

func succeed(content string) func() (*llm.Completion, error) {
	return func() (*llm.Completion, error) {
		return &llm.Completion{Content: content, InputTokens: 10, OutputTokens: 5, LatencyMS: 3}, nil
	}
}

func failTransient() func() (*llm.Completion, error) {
	return func() (*llm.Completion, error) {
		return nil, services.Wrap(services.ErrTransient, "", "provider call", "rate limited", nil)
	}
}

func newExecutor(t *testing.T, stage llm.Stage, chain []llm.Candidate) *llm.Executor {
	t.Helper()
	cfg := config.Default()
	cfg.Providers.MaxAttempts = 3
	cfg.Providers.BackoffSeconds = 1
	return llm.NewExecutor(&cfg, nil,
		llm.WithCandidates(stage, chain),
		llm.WithSleeper(func(context.Context, time.Duration) error { return nil }),
	)
}

func triageJSON(relevant bool, urgency int) string {
	out, _ := json.Marshal(llm.TriageOutput{IsRelevant: relevant, Urgency: urgency})
	return string(out)
}

func TestRunRetriesTransientFailuresThenSucceeds(t *testing.T) {
	provider := &scriptedProvider{
		name:      "fake",
		responses: []func() (*llm.Completion, error){failTransient(), failTransient(), succeed(triageJSON(true, 7))},
	}
	executor := newExecutor(t, llm.StageTriage, []llm.Candidate{{Provider: provider, Model: "fake-1"}})

	result, err := executor.Run(context.Background(), llm.StageTriage, "rapamycin study")
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if provider.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", provider.calls)
	}
	if result.Triage == nil || !result.Triage.IsRelevant || result.Triage.Urgency != 7 {
		t.Fatalf("unexpected triage output: %+v", result.Triage)
	}
	if result.Provenance.Provider != "fake" || result.Provenance.Model != "fake-1" {
		t.Fatalf("unexpected provenance: %+v", result.Provenance)
	}
	if result.Provenance.PromptVersion != "triage_v1" || result.Provenance.PromptChecksum == "" {
		t.Fatalf("expected prompt provenance, got %+v", result.Provenance)
	}
}

func TestRunSchemaFailureMovesToNextCandidateWithoutRetry(t *testing.T) {
	bad := &scriptedProvider{
		name:      "bad",
		responses: []func() (*llm.Completion, error){succeed(`{"is_relevant": true, "urgency": 99}`)},
	}
	good := &scriptedProvider{
		name:      "good",
		responses: []func() (*llm.Completion, error){succeed(triageJSON(true, 5))},
	}
	executor := newExecutor(t, llm.StageTriage, []llm.Candidate{
		{Provider: bad, Model: "bad-1"},
		{Provider: good, Model: "good-1"},
	})

	result, err := executor.Run(context.Background(), llm.StageTriage, "text")
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if bad.calls != 1 {
		t.Fatalf("schema failure must not retry the same candidate, got %d calls", bad.calls)
	}
	if result.Provenance.Provider != "good" {
		t.Fatalf("expected fallback candidate to win, got %+v", result.Provenance)
	}
}

func TestRunExhaustionCarriesFailureTrail(t *testing.T) {
	first := &scriptedProvider{
		name:      "first",
		responses: []func() (*llm.Completion, error){failTransient(), failTransient(), failTransient()},
	}
	second := &scriptedProvider{
		name:      "second",
		responses: []func() (*llm.Completion, error){succeed(`not json`)},
	}
	executor := newExecutor(t, llm.StageTriage, []llm.Candidate{
		{Provider: first, Model: "a"},
		{Provider: second, Model: "b"},
	})

	_, err := executor.Run(context.Background(), llm.StageTriage, "text")
	if !errors.Is(err, services.ErrCandidatesExhausted) {
		t.Fatalf("expected exhaustion error, got %v", err)
	}
	message := err.Error()
	if !strings.Contains(message, "first/a") || !strings.Contains(message, "second/b") {
		t.Fatalf("expected per-candidate trail in error, got %q", message)
	}
	if first.calls != 3 {
		t.Fatalf("expected bounded retries on transient candidate, got %d", first.calls)
	}
}

func TestStubBacksEveryStageWithoutCredentials(t *testing.T) {
	cfg := config.Default()
	executor := llm.NewExecutor(&cfg, nil)
	ctx := context.Background()

	triage, err := executor.Run(ctx, llm.StageTriage, "A new rapamycin lifespan study in mice.")
	if err != nil {
		t.Fatalf("triage: %v", err)
	}
	if triage.Triage == nil || !triage.Triage.IsRelevant {
		t.Fatalf("expected keyword-relevant triage, got %+v", triage.Triage)
	}
	if triage.Provenance.Provider != "stub" || triage.Provenance.Model != llm.StubModel {
		t.Fatalf("expected stub provenance, got %+v", triage.Provenance)
	}

	irrelevant, err := executor.Run(ctx, llm.StageTriage, "Quarterly earnings for a retail chain.")
	if err != nil {
		t.Fatalf("triage: %v", err)
	}
	if irrelevant.Triage.IsRelevant {
		t.Fatal("expected off-topic text to be irrelevant")
	}

	analysis, err := executor.Run(ctx, llm.StageAnalysis, "NAD+ precursor trial results.")
	if err != nil {
		t.Fatalf("analysis: %v", err)
	}
	if analysis.Analysis == nil || len(analysis.Analysis.Claims) == 0 {
		t.Fatalf("expected stub analysis claims, got %+v", analysis.Analysis)
	}

	verification, err := executor.Run(ctx, llm.StageVerification, "analysis payload")
	if err != nil {
		t.Fatalf("verification: %v", err)
	}
	if verification.Verification == nil || !verification.Verification.Passed {
		t.Fatalf("expected stub verification pass, got %+v", verification.Verification)
	}
}

func TestStubAnalysisHeadlineTruncatesOnRuneBoundary(t *testing.T) {
	cfg := config.Default()
	executor := llm.NewExecutor(&cfg, nil)

	// 79 ASCII bytes followed by multibyte runes, so a byte-indexed cut at 80
	// would land inside the first é.
	text := strings.Repeat("a", 79) + "ééé rapamycin"
	result, err := executor.Run(context.Background(), llm.StageAnalysis, text)
	if err != nil {
		t.Fatalf("analysis: %v", err)
	}
	headline := result.Analysis.Headline
	if !utf8.ValidString(headline) {
		t.Fatalf("headline is not valid UTF-8: %q", headline)
	}
	if got := len([]rune(headline)); got != 80 {
		t.Fatalf("expected 80-rune headline, got %d", got)
	}
	if !strings.HasSuffix(headline, "é") {
		t.Fatalf("expected headline to end on the first é, got %q", headline)
	}
}

func TestParseValidation(t *testing.T) {
	if _, err := llm.ParseTriage(`{"is_relevant":true,"urgency":0}`); !errors.Is(err, services.ErrSchemaInvalid) {
		t.Fatalf("expected schema error for urgency bound, got %v", err)
	}
	if _, err := llm.ParseAnalysis(`{"novelty_score":5,"summary_markdown":"s","claims":[{"text":"c","confidence":2,"evidence_strength":"weak"}]}`); !errors.Is(err, services.ErrSchemaInvalid) {
		t.Fatalf("expected schema error for confidence bound, got %v", err)
	}
	if _, err := llm.ParseVerification(`{"passed":true,"contradiction_risk":"severe"}`); !errors.Is(err, services.ErrSchemaInvalid) {
		t.Fatalf("expected schema error for contradiction risk, got %v", err)
	}
	out, err := llm.ParseVerification("```json\n{\"passed\":false,\"contradiction_risk\":\"high\",\"notes\":[\"overstated\"]}\n```")
	if err != nil {
		t.Fatalf("fenced JSON should parse: %v", err)
	}
	if out.Passed || out.ContradictionRisk != "high" {
		t.Fatalf("unexpected output: %+v", out)
	}
}
