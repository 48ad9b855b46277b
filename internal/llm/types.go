package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"newsdesk/internal/services"
)

// Stage names one pipeline analysis step.
type Stage string

const (
	StageTriage       Stage = "triage"
	StageAnalysis     Stage = "analysis"
	StageVerification Stage = "verification"
)

// TriageOutput is the structured result of the triage stage.
type TriageOutput struct {
	IsRelevant bool `json:"is_relevant"`
	Urgency    int  `json:"urgency"`
}

// Validate checks the triage schema bounds.
func (o *TriageOutput) Validate() error {
	if o.Urgency < 1 || o.Urgency > 10 {
		return schemaErr(StageTriage, fmt.Sprintf("urgency %d out of range 1..10", o.Urgency))
	}
	return nil
}

// CitationOutput is one supporting reference inside an analysis claim.
type CitationOutput struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	SourceName  string `json:"source_name"`
	PublishedAt string `json:"published_at"`
}

// ClaimOutput is one extracted assertion from the analysis stage.
type ClaimOutput struct {
	Text             string           `json:"text"`
	Type             string           `json:"type"`
	Confidence       float64          `json:"confidence"`
	EvidenceStrength string           `json:"evidence_strength"`
	RiskFlags        []string         `json:"risk_flags"`
	Citations        []CitationOutput `json:"citations"`
}

// ProtocolOutput is one actionable regimen from the analysis stage.
type ProtocolOutput struct {
	Name        string `json:"name"`
	Dose        string `json:"dose"`
	Frequency   string `json:"frequency"`
	Duration    string `json:"duration"`
	SafetyNotes string `json:"safety_notes"`
}

// AnalysisOutput is the structured result of the analysis stage.
type AnalysisOutput struct {
	IsNovel                bool             `json:"is_novel"`
	NoveltyScore           int              `json:"novelty_score"`
	Headline               string           `json:"headline"`
	ConfidenceLabel        string           `json:"confidence_label"`
	SummaryMarkdown        string           `json:"summary_markdown"`
	NeedsHumanVerification bool             `json:"needs_human_verification"`
	Claims                 []ClaimOutput    `json:"claims"`
	Protocols              []ProtocolOutput `json:"protocols"`
}

var evidenceStrengths = map[string]struct{}{
	"weak":     {},
	"moderate": {},
	"strong":   {},
}

// Validate checks the analysis schema bounds.
func (o *AnalysisOutput) Validate() error {
	if o.NoveltyScore < 1 || o.NoveltyScore > 10 {
		return schemaErr(StageAnalysis, fmt.Sprintf("novelty_score %d out of range 1..10", o.NoveltyScore))
	}
	if strings.TrimSpace(o.SummaryMarkdown) == "" {
		return schemaErr(StageAnalysis, "summary_markdown is empty")
	}
	for i, claim := range o.Claims {
		if strings.TrimSpace(claim.Text) == "" {
			return schemaErr(StageAnalysis, fmt.Sprintf("claim %d has empty text", i))
		}
		if claim.Confidence < 0 || claim.Confidence > 1 {
			return schemaErr(StageAnalysis, fmt.Sprintf("claim %d confidence %.2f out of range 0..1", i, claim.Confidence))
		}
		if _, ok := evidenceStrengths[claim.EvidenceStrength]; !ok {
			return schemaErr(StageAnalysis, fmt.Sprintf("claim %d evidence strength %q not in weak|moderate|strong", i, claim.EvidenceStrength))
		}
	}
	return nil
}

var contradictionRisks = map[string]struct{}{
	"low":    {},
	"medium": {},
	"high":   {},
}

// VerificationOutput is the structured result of the verification stage.
type VerificationOutput struct {
	Passed            bool     `json:"passed"`
	ContradictionRisk string   `json:"contradiction_risk"`
	Notes             []string `json:"notes"`
}

// Validate checks the verification schema bounds.
func (o *VerificationOutput) Validate() error {
	if _, ok := contradictionRisks[o.ContradictionRisk]; !ok {
		return schemaErr(StageVerification, fmt.Sprintf("contradiction_risk %q not in low|medium|high", o.ContradictionRisk))
	}
	return nil
}

func schemaErr(stage Stage, message string) error {
	return services.Wrap(services.ErrSchemaInvalid, string(stage), "validate output", message, nil)
}

// decodeStrict unmarshals raw model output, tolerating fenced code blocks but
// rejecting anything that is not a single JSON object.
func decodeStrict(stage Stage, raw string, target any) error {
	cleaned := strings.TrimSpace(raw)
	if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.TrimPrefix(cleaned, "```json")
		cleaned = strings.TrimPrefix(cleaned, "```")
		cleaned = strings.TrimSuffix(cleaned, "```")
		cleaned = strings.TrimSpace(cleaned)
	}
	if err := json.Unmarshal([]byte(cleaned), target); err != nil {
		return services.Wrap(services.ErrSchemaInvalid, string(stage), "parse output", "model output is not valid JSON", err)
	}
	return nil
}

// ParseTriage decodes and validates triage output.
func ParseTriage(raw string) (*TriageOutput, error) {
	var out TriageOutput
	if err := decodeStrict(StageTriage, raw, &out); err != nil {
		return nil, err
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return &out, nil
}

// ParseAnalysis decodes and validates analysis output.
func ParseAnalysis(raw string) (*AnalysisOutput, error) {
	var out AnalysisOutput
	if err := decodeStrict(StageAnalysis, raw, &out); err != nil {
		return nil, err
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return &out, nil
}

// ParseVerification decodes and validates verification output.
func ParseVerification(raw string) (*VerificationOutput, error) {
	var out VerificationOutput
	if err := decodeStrict(StageVerification, raw, &out); err != nil {
		return nil, err
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	return &out, nil
}
