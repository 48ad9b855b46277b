package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// StubModel is the model identity reported by the deterministic stub.
const StubModel = "stub-v1"

// StubClient is a deterministic in-process provider used when no real
// credentials are configured, so the pipeline stays exercisable end to end.
type StubClient struct{}

// NewStubClient constructs the stub provider.
func NewStubClient() *StubClient { return &StubClient{} }

// Name implements Provider.
func (c *StubClient) Name() string { return "stub" }

var relevanceKeywords = []string{
	"longevity", "aging", "ageing", "lifespan", "healthspan", "senescence",
	"rapamycin", "metformin", "nad", "autophagy", "geroscience", "telomere",
}

// Complete implements Provider. The stage is inferred from the system prompt
// version markers embedded by the executor's prompts.
func (c *StubClient) Complete(_ context.Context, _, systemPrompt, userPrompt string) (*Completion, error) {
	start := time.Now()
	var output any
	switch {
	case strings.Contains(systemPrompt, "triage editor"):
		output = c.triage(userPrompt)
	case strings.Contains(systemPrompt, "research analyst"):
		output = c.analysis(userPrompt)
	case strings.Contains(systemPrompt, "fact-checking editor"):
		output = VerificationOutput{Passed: true, ContradictionRisk: "low", Notes: []string{"stub verification"}}
	default:
		return nil, fmt.Errorf("stub: unrecognized prompt")
	}
	content, err := json.Marshal(output)
	if err != nil {
		return nil, fmt.Errorf("stub: marshal output: %w", err)
	}
	return &Completion{
		Content:      string(content),
		InputTokens:  int64(len(userPrompt) / 4),
		OutputTokens: int64(len(content) / 4),
		LatencyMS:    elapsedMS(start),
	}, nil
}

func (c *StubClient) triage(text string) TriageOutput {
	lowered := strings.ToLower(text)
	for _, keyword := range relevanceKeywords {
		if strings.Contains(lowered, keyword) {
			return TriageOutput{IsRelevant: true, Urgency: 5}
		}
	}
	return TriageOutput{IsRelevant: false, Urgency: 1}
}

func (c *StubClient) analysis(text string) AnalysisOutput {
	headline := strings.TrimSpace(text)
	if runes := []rune(headline); len(runes) > 80 {
		headline = string(runes[:80])
	}
	if headline == "" {
		headline = "Untitled finding"
	}
	return AnalysisOutput{
		IsNovel:         true,
		NoveltyScore:    5,
		Headline:        headline,
		ConfidenceLabel: "medium",
		SummaryMarkdown: "Deterministic stub summary of the source document.",
		Claims: []ClaimOutput{{
			Text:             "Stub claim extracted from the document.",
			Type:             "observational",
			Confidence:       0.5,
			EvidenceStrength: "moderate",
		}},
	}
}
