package services_test

import (
	"errors"
	"strings"
	"testing"

	"newsdesk/internal/services"
)

func TestWrapTagsMarker(t *testing.T) {
	cause := errors.New("connection reset")
	err := services.Wrap(services.ErrTransient, "triage", "call provider", "openai unavailable", cause)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to be wrapped, got %v", err)
	}
	for _, fragment := range []string{"triage", "call provider", "openai unavailable"} {
		if !strings.Contains(err.Error(), fragment) {
			t.Fatalf("expected %q in error message %q", fragment, err.Error())
		}
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected default transient marker, got %v", err)
	}
}

func TestRetryable(t *testing.T) {
	if !services.Retryable(services.Wrap(services.ErrTransient, "analysis", "", "timeout", nil)) {
		t.Fatal("transient errors should be retryable")
	}
	if services.Retryable(services.Wrap(services.ErrSchemaInvalid, "analysis", "", "bad JSON", nil)) {
		t.Fatal("schema failures must not retry on the same candidate")
	}
	if services.Retryable(services.Wrap(services.ErrValidation, "", "", "bad dose", nil)) {
		t.Fatal("validation failures are never retried")
	}
}
