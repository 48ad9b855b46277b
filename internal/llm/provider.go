package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"newsdesk/internal/services"
)

// Completion is one raw model response plus usage accounting.
type Completion struct {
	Content      string
	InputTokens  int64
	OutputTokens int64
	LatencyMS    int64
	CostUSD      float64
}

// Provider issues one chat completion attempt. Implementations do not retry;
// the executor owns retry and fallback policy.
type Provider interface {
	Name() string
	Complete(ctx context.Context, model, systemPrompt, userPrompt string) (*Completion, error)
}

// classifyHTTPError tags provider failures. Rate limits and server errors are
// transient and retried on the same candidate; anything else is permanent for
// that candidate.
func classifyHTTPError(provider string, statusCode int, body string) error {
	message := fmt.Sprintf("%s returned http %d: %s", provider, statusCode, strings.TrimSpace(body))
	if statusCode == 429 || statusCode >= 500 {
		return services.Wrap(services.ErrTransient, "", "provider call", message, nil)
	}
	return services.Wrap(services.ErrValidation, "", "provider call", message, nil)
}

// Network-level faults and timeouts are always transient.
func classifyTransportError(provider string, err error) error {
	return services.Wrap(services.ErrTransient, "", "provider call",
		fmt.Sprintf("%s request failed", provider), err)
}

func elapsedMS(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}
