package llm

import (
	"time"

	"newsdesk/internal/config"
)

// Candidate is one provider/model pair capable of attempting a stage.
type Candidate struct {
	Provider Provider
	Model    string
}

// ID names the candidate for failure trails and provenance.
func (c Candidate) ID() string {
	return c.Provider.Name() + "/" + c.Model
}

const (
	openAIFastModel     = "gpt-4o-mini"
	openAIAnalysisModel = "gpt-4o"
	anthropicFastModel  = "claude-3-5-haiku-latest"
	anthropicDeepModel  = "claude-3-5-sonnet-latest"
)

// BuildCandidates derives per-stage candidate chains from configured
// credentials. Triage and verification prefer fast models, analysis prefers
// the stronger Anthropic model. With no credentials at all, every stage gets
// the deterministic stub.
func BuildCandidates(cfg *config.Config) map[Stage][]Candidate {
	timeout := time.Duration(cfg.Providers.TimeoutSeconds) * time.Second

	var openai, anthropic Provider
	if cfg.HasOpenAI() {
		openai = NewOpenAIClient(cfg.Providers.OpenAIAPIKey, cfg.Providers.OpenAIBaseURL, timeout)
	}
	if cfg.HasAnthropic() {
		anthropic = NewAnthropicClient(cfg.Providers.AnthropicAPIKey, cfg.Providers.AnthropicBaseURL, timeout)
	}

	chains := map[Stage][]Candidate{
		StageTriage:       {},
		StageAnalysis:     {},
		StageVerification: {},
	}
	if openai != nil {
		chains[StageTriage] = append(chains[StageTriage], Candidate{Provider: openai, Model: openAIFastModel})
		chains[StageVerification] = append(chains[StageVerification], Candidate{Provider: openai, Model: openAIFastModel})
	}
	if anthropic != nil {
		chains[StageTriage] = append(chains[StageTriage], Candidate{Provider: anthropic, Model: anthropicFastModel})
		chains[StageVerification] = append(chains[StageVerification], Candidate{Provider: anthropic, Model: anthropicFastModel})
		chains[StageAnalysis] = append(chains[StageAnalysis], Candidate{Provider: anthropic, Model: anthropicDeepModel})
	}
	if openai != nil {
		chains[StageAnalysis] = append(chains[StageAnalysis], Candidate{Provider: openai, Model: openAIAnalysisModel})
	}

	stub := NewStubClient()
	for stage, chain := range chains {
		if len(chain) == 0 {
			chains[stage] = []Candidate{{Provider: stub, Model: StubModel}}
		}
	}
	return chains
}
