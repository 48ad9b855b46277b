package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"newsdesk/internal/config"
	"newsdesk/internal/logging"
	"newsdesk/internal/services"
)

// Provenance records which candidate produced a stage result and at what cost.
type Provenance struct {
	Provider       string
	Model          string
	PromptVersion  string
	PromptChecksum string
	InputTokens    int64
	OutputTokens   int64
	LatencyMS      int64
	CostUSD        float64
}

// Result is the typed outcome of one successful stage execution. Exactly one
// of the stage-specific fields is set, matching Stage.
type Result struct {
	Stage        Stage
	Raw          string
	Triage       *TriageOutput
	Analysis     *AnalysisOutput
	Verification *VerificationOutput
	Provenance   Provenance
}

// Executor runs pipeline stages through ordered candidate chains.
type Executor struct {
	candidates  map[Stage][]Candidate
	maxAttempts int
	baseBackoff time.Duration
	sleeper     func(context.Context, time.Duration) error
	logger      *slog.Logger
}

// ExecutorOption customizes an Executor.
type ExecutorOption func(*Executor)

// WithCandidates replaces the candidate chain for a stage.
func WithCandidates(stage Stage, chain []Candidate) ExecutorOption {
	return func(e *Executor) {
		e.candidates[stage] = chain
	}
}

// WithSleeper overrides how backoff sleeps are performed.
func WithSleeper(sleeper func(context.Context, time.Duration) error) ExecutorOption {
	return func(e *Executor) {
		if sleeper != nil {
			e.sleeper = sleeper
		}
	}
}

// NewExecutor builds an executor with candidate chains derived from config.
func NewExecutor(cfg *config.Config, logger *slog.Logger, opts ...ExecutorOption) *Executor {
	if logger == nil {
		logger = logging.NewNop()
	}
	executor := &Executor{
		candidates:  BuildCandidates(cfg),
		maxAttempts: cfg.Providers.MaxAttempts,
		baseBackoff: time.Duration(cfg.Providers.BackoffSeconds) * time.Second,
		sleeper: func(ctx context.Context, d time.Duration) error {
			select {
			case <-time.After(d):
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
		logger: logger.With(logging.String(logging.FieldComponent, "llm")),
	}
	if executor.maxAttempts <= 0 {
		executor.maxAttempts = 3
	}
	if executor.baseBackoff <= 0 {
		executor.baseBackoff = time.Second
	}
	for _, opt := range opts {
		opt(executor)
	}
	return executor
}

// Run executes one stage against the document text. Candidates are tried in
// order; transient failures retry on the same candidate with exponential
// backoff, schema failures move to the next candidate immediately. When every
// candidate is exhausted the error carries the full per-candidate failure
// trail.
func (e *Executor) Run(ctx context.Context, stage Stage, documentText string) (*Result, error) {
	prompt, err := PromptFor(stage)
	if err != nil {
		return nil, err
	}
	chain := e.candidates[stage]
	if len(chain) == 0 {
		return nil, services.Wrap(services.ErrConfiguration, string(stage), "run stage", "no candidates configured", nil)
	}

	var trail []string
	for _, candidate := range chain {
		completion, candidateErr := e.attemptCandidate(ctx, stage, candidate, prompt, documentText)
		if candidateErr != nil {
			trail = append(trail, fmt.Sprintf("%s: %v", candidate.ID(), candidateErr))
			continue
		}

		result, parseErr := e.parse(stage, completion.Content)
		if parseErr != nil {
			// Schema failure: no retry on this candidate, move along.
			trail = append(trail, fmt.Sprintf("%s: %v", candidate.ID(), parseErr))
			e.logger.Warn("candidate output failed schema validation",
				logging.String(logging.FieldStage, string(stage)),
				logging.String(logging.FieldProvider, candidate.Provider.Name()),
				logging.String(logging.FieldModel, candidate.Model),
			)
			continue
		}

		result.Raw = completion.Content
		result.Provenance = Provenance{
			Provider:       candidate.Provider.Name(),
			Model:          candidate.Model,
			PromptVersion:  prompt.Version,
			PromptChecksum: prompt.Checksum(),
			InputTokens:    completion.InputTokens,
			OutputTokens:   completion.OutputTokens,
			LatencyMS:      completion.LatencyMS,
			CostUSD:        completion.CostUSD,
		}
		return result, nil
	}

	return nil, services.Wrap(services.ErrCandidatesExhausted, string(stage), "run stage",
		"all candidates exhausted: "+strings.Join(trail, "; "), nil)
}

func (e *Executor) attemptCandidate(ctx context.Context, stage Stage, candidate Candidate, prompt Prompt, documentText string) (*Completion, error) {
	var lastErr error
	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		completion, err := candidate.Provider.Complete(ctx, candidate.Model, prompt.Text, documentText)
		if err == nil {
			return completion, nil
		}
		lastErr = err
		if !services.Retryable(err) {
			break
		}
		if attempt == e.maxAttempts {
			break
		}
		delay := e.baseBackoff * (1 << (attempt - 1))
		e.logger.Debug("transient provider failure, backing off",
			logging.String(logging.FieldStage, string(stage)),
			logging.String(logging.FieldProvider, candidate.Provider.Name()),
			logging.Int("attempt", attempt),
			logging.Duration("delay", delay),
		)
		if err := e.sleeper(ctx, delay); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

func (e *Executor) parse(stage Stage, raw string) (*Result, error) {
	result := &Result{Stage: stage}
	switch stage {
	case StageTriage:
		output, err := ParseTriage(raw)
		if err != nil {
			return nil, err
		}
		result.Triage = output
	case StageAnalysis:
		output, err := ParseAnalysis(raw)
		if err != nil {
			return nil, err
		}
		result.Analysis = output
	case StageVerification:
		output, err := ParseVerification(raw)
		if err != nil {
			return nil, err
		}
		result.Verification = output
	default:
		return nil, fmt.Errorf("unknown stage %q", stage)
	}
	return result, nil
}
