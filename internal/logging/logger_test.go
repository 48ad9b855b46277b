package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"newsdesk/internal/services"
)

func TestConsoleHandlerFormatsRecord(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	logger := slog.New(newConsoleHandler(&buf, lvl, false))

	logger.Info("stage completed",
		String(FieldComponent, "pipeline"),
		String(FieldStage, "triage"),
		Int64(FieldDocumentID, 42),
	)

	out := buf.String()
	if !strings.Contains(out, "INFO pipeline: stage completed") {
		t.Fatalf("unexpected console output: %q", out)
	}
	if !strings.Contains(out, "stage=triage") || !strings.Contains(out, "document_id=42") {
		t.Fatalf("expected flattened attrs in output: %q", out)
	}
}

func TestConsoleHandlerQuotesValuesWithSpaces(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	logger := slog.New(newConsoleHandler(&buf, lvl, false))

	logger.Warn("poll failed", String("last_error", "connection reset by peer"))

	if !strings.Contains(buf.String(), `last_error="connection reset by peer"`) {
		t.Fatalf("expected quoted value, got %q", buf.String())
	}
}

func TestWithContextAddsFields(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	base := slog.New(newConsoleHandler(&buf, lvl, false))

	ctx := services.WithDocumentID(context.Background(), 7)
	ctx = services.WithStage(ctx, "analysis")
	ctx = services.WithRequestID(ctx, "req-123")

	WithContext(ctx, base).Info("stage started")

	out := buf.String()
	for _, fragment := range []string{"document_id=7", "stage=analysis", "correlation_id=req-123"} {
		if !strings.Contains(out, fragment) {
			t.Fatalf("expected %q in output %q", fragment, out)
		}
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := New(Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}
