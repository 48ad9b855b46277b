package lifecycle_test

import (
	"errors"
	"math/rand"
	"testing"

	"newsdesk/internal/lifecycle"
	"newsdesk/internal/services"
)

func TestHappyPathEdgesAreLegal(t *testing.T) {
	path := []lifecycle.Status{
		lifecycle.StatusIngested,
		lifecycle.StatusTriaged,
		lifecycle.StatusAnalyzed,
		lifecycle.StatusVerified,
		lifecycle.StatusReadyForReview,
		lifecycle.StatusApproved,
		lifecycle.StatusBundled,
		lifecycle.StatusPublished,
	}
	for i := 0; i < len(path)-1; i++ {
		if err := lifecycle.EnforceTransition(path[i], path[i+1]); err != nil {
			t.Fatalf("expected %s -> %s to be legal: %v", path[i], path[i+1], err)
		}
	}
}

func TestRejectionEdges(t *testing.T) {
	rejectable := []lifecycle.Status{
		lifecycle.StatusIngested,
		lifecycle.StatusTriaged,
		lifecycle.StatusAnalyzed,
		lifecycle.StatusVerified,
		lifecycle.StatusReadyForReview,
		lifecycle.StatusApproved,
	}
	for _, from := range rejectable {
		if !lifecycle.CanTransition(from, lifecycle.StatusRejected) {
			t.Fatalf("expected %s -> rejected to be legal", from)
		}
	}
	if lifecycle.CanTransition(lifecycle.StatusBundled, lifecycle.StatusRejected) {
		t.Fatal("bundled must not reject")
	}
}

func TestIllegalEdgesRejected(t *testing.T) {
	cases := []struct {
		from, to lifecycle.Status
	}{
		{lifecycle.StatusIngested, lifecycle.StatusIngested},
		{lifecycle.StatusIngested, lifecycle.StatusAnalyzed},
		{lifecycle.StatusTriaged, lifecycle.StatusVerified},
		{lifecycle.StatusRejected, lifecycle.StatusIngested},
		{lifecycle.StatusPublished, lifecycle.StatusBundled},
		{lifecycle.StatusVerified, lifecycle.StatusApproved},
	}
	for _, tc := range cases {
		err := lifecycle.EnforceTransition(tc.from, tc.to)
		if err == nil {
			t.Fatalf("expected %s -> %s to be rejected", tc.from, tc.to)
		}
		if !errors.Is(err, services.ErrInvalidTransition) {
			t.Fatalf("expected invalid transition marker for %s -> %s, got %v", tc.from, tc.to, err)
		}
	}
}

func TestTerminalStatesHaveNoEdges(t *testing.T) {
	for _, terminal := range []lifecycle.Status{lifecycle.StatusRejected, lifecycle.StatusPublished} {
		if !terminal.IsTerminal() {
			t.Fatalf("expected %s to be terminal", terminal)
		}
		if edges := lifecycle.Next(terminal); len(edges) != 0 {
			t.Fatalf("expected no outgoing edges from %s, got %v", terminal, edges)
		}
	}
}

func TestRandomWalkStaysInDefinedStates(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for walk := 0; walk < 100; walk++ {
		current := lifecycle.StatusIngested
		for steps := 0; steps < 16; steps++ {
			edges := lifecycle.Next(current)
			if len(edges) == 0 {
				if !current.IsTerminal() {
					t.Fatalf("non-terminal status %s has no edges", current)
				}
				break
			}
			next := edges[rng.Intn(len(edges))]
			if err := lifecycle.EnforceTransition(current, next); err != nil {
				t.Fatalf("legal edge %s -> %s rejected: %v", current, next, err)
			}
			if !next.IsValid() {
				t.Fatalf("walked into undefined status %q", next)
			}
			current = next
		}
	}
}

func TestParse(t *testing.T) {
	status, err := lifecycle.Parse("  Ready_For_Review ")
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if status != lifecycle.StatusReadyForReview {
		t.Fatalf("unexpected status: %q", status)
	}

	if _, err := lifecycle.Parse("limbo"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
