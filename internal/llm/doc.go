// Package llm runs pipeline stages against language-model providers.
//
// Each stage (triage, analysis, verification) carries a versioned prompt, a
// typed output schema, and an ordered chain of candidate provider/model
// pairs. The executor tries candidates in order, retrying transient failures
// with bounded exponential backoff and skipping to the next candidate on
// schema-invalid output. A deterministic stub provider backs every stage when
// no credentials are configured.
package llm
