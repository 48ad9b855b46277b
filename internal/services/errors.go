package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidation marks malformed input rejected before any state change.
	ErrValidation = errors.New("validation error")
	// ErrNotFound marks a referenced entity that does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict marks an optimistic-concurrency or idempotency-key conflict.
	ErrConflict = errors.New("conflict")
	// ErrTransient marks a retryable provider failure.
	ErrTransient = errors.New("transient failure")
	// ErrSchemaInvalid marks stage output that failed structured validation.
	// It is never retried on the same candidate.
	ErrSchemaInvalid = errors.New("schema invalid")
	// ErrCandidatesExhausted marks a stage whose every candidate executor failed.
	ErrCandidatesExhausted = errors.New("all candidates exhausted")
	// ErrInvalidTransition marks an illegal document status edge.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrMissingIdempotencyKey marks a mutating call made without a token.
	ErrMissingIdempotencyKey = errors.New("missing idempotency key")
	// ErrConfiguration marks settings that prevent an operation from running.
	ErrConfiguration = errors.New("configuration error")
)

// Wrap builds an error message that includes stage context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Retryable reports whether the stage executor may retry the same candidate.
func Retryable(err error) bool {
	return errors.Is(err, ErrTransient)
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
