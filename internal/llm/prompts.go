package llm

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Prompt couples a versioned system prompt with its integrity checksum.
type Prompt struct {
	Version string
	Text    string
}

// Checksum returns the sha256 of the prompt text, persisted with every stage
// run so output can be traced back to the exact prompt that produced it.
func (p Prompt) Checksum() string {
	sum := sha256.Sum256([]byte(p.Text))
	return hex.EncodeToString(sum[:])
}

const triagePromptText = `You are a triage editor for a longevity research newsletter.
Decide whether the document below is relevant to human longevity, healthspan,
aging biology, or geroscience interventions.

Respond with JSON only, matching exactly:
{"is_relevant": <bool>, "urgency": <int 1-10>}

urgency reflects how time-sensitive coverage would be: 10 for major trial
results or safety recalls, 1 for background reviews.`

const analysisPromptText = `You are a research analyst for a longevity newsletter.
Extract the substance of the document below for expert readers.

Respond with JSON only, matching exactly:
{
  "is_novel": <bool>,
  "novelty_score": <int 1-10>,
  "headline": "<one-line hook>",
  "confidence_label": "<low|medium|high>",
  "summary_markdown": "<2-4 paragraph summary>",
  "needs_human_verification": <bool>,
  "claims": [
    {
      "text": "<assertion>",
      "type": "<mechanism|intervention|observational|safety>",
      "confidence": <float 0-1>,
      "evidence_strength": "<weak|moderate|strong>",
      "risk_flags": ["<flag>"],
      "citations": [
        {"title": "", "url": "", "source_name": "", "published_at": ""}
      ]
    }
  ],
  "protocols": [
    {"name": "", "dose": "", "frequency": "", "duration": "", "safety_notes": ""}
  ]
}

Set needs_human_verification true for any claim involving dosing, drug
interactions, or contested findings. Every protocol dose must state a numeric
quantity and every protocol must carry safety notes.`

const verificationPromptText = `You are a fact-checking editor for a longevity newsletter.
Assess whether the analysis below faithfully represents its source document
and whether its claims contradict established evidence.

Respond with JSON only, matching exactly:
{"passed": <bool>, "contradiction_risk": "<low|medium|high>", "notes": ["<note>"]}

Fail the check when claims overstate the evidence, misquote the source, or
present preliminary findings as established.`

var stagePrompts = map[Stage]Prompt{
	StageTriage:       {Version: "triage_v1", Text: triagePromptText},
	StageAnalysis:     {Version: "analysis_v1", Text: analysisPromptText},
	StageVerification: {Version: "verification_v1", Text: verificationPromptText},
}

// PromptFor returns the current prompt for a stage.
func PromptFor(stage Stage) (Prompt, error) {
	prompt, ok := stagePrompts[stage]
	if !ok {
		return Prompt{}, fmt.Errorf("no prompt registered for stage %q", stage)
	}
	return prompt, nil
}
