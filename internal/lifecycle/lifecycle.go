package lifecycle

import (
	"fmt"
	"strings"

	"newsdesk/internal/services"
)

// Status represents the lifecycle position of a document.
type Status string

const (
	StatusIngested       Status = "ingested"
	StatusTriaged        Status = "triaged"
	StatusAnalyzed       Status = "analyzed"
	StatusVerified       Status = "verified"
	StatusReadyForReview Status = "ready_for_review"
	StatusApproved       Status = "approved"
	StatusBundled        Status = "bundled"
	StatusPublished      Status = "published"
	StatusRejected       Status = "rejected"
)

var allStatuses = []Status{
	StatusIngested,
	StatusTriaged,
	StatusAnalyzed,
	StatusVerified,
	StatusReadyForReview,
	StatusApproved,
	StatusBundled,
	StatusPublished,
	StatusRejected,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// transitions is the single source of truth for legal lifecycle edges.
// Anything absent here is illegal, including same-state moves and stage
// skips. rejected and published have no outgoing edges.
var transitions = map[Status][]Status{
	StatusIngested:       {StatusTriaged, StatusRejected},
	StatusTriaged:        {StatusAnalyzed, StatusRejected},
	StatusAnalyzed:       {StatusVerified, StatusRejected},
	StatusVerified:       {StatusReadyForReview, StatusRejected},
	StatusReadyForReview: {StatusApproved, StatusRejected},
	StatusApproved:       {StatusBundled, StatusRejected},
	StatusBundled:        {StatusPublished},
}

// All returns every defined status in pipeline order.
func All() []Status {
	out := make([]Status, len(allStatuses))
	copy(out, allStatuses)
	return out
}

// Parse converts a raw string to a Status, rejecting unknown values.
func Parse(raw string) (Status, error) {
	candidate := Status(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := statusSet[candidate]; !ok {
		return "", services.Wrap(services.ErrValidation, "", "parse status", fmt.Sprintf("unknown status %q", raw), nil)
	}
	return candidate, nil
}

// IsValid reports whether the status is one of the defined lifecycle states.
func (s Status) IsValid() bool {
	_, ok := statusSet[s]
	return ok
}

// IsTerminal reports whether the status has no outgoing edges.
func (s Status) IsTerminal() bool {
	return s == StatusRejected || s == StatusPublished
}

// String returns the persisted representation.
func (s Status) String() string {
	return string(s)
}

// CanTransition reports whether the edge current -> target is legal.
func CanTransition(current, target Status) bool {
	for _, next := range transitions[current] {
		if next == target {
			return true
		}
	}
	return false
}

// EnforceTransition validates the edge current -> target, returning an
// InvalidTransition error when the edge is not in the table. Every mutation
// path that changes a document's status must pass through here before
// persisting.
func EnforceTransition(current, target Status) error {
	if !current.IsValid() {
		return services.Wrap(services.ErrInvalidTransition, "", "enforce transition", fmt.Sprintf("unknown current status %q", current), nil)
	}
	if !target.IsValid() {
		return services.Wrap(services.ErrInvalidTransition, "", "enforce transition", fmt.Sprintf("unknown target status %q", target), nil)
	}
	if !CanTransition(current, target) {
		return services.Wrap(services.ErrInvalidTransition, "", "enforce transition", fmt.Sprintf("illegal transition %s -> %s", current, target), nil)
	}
	return nil
}

// Next returns the statuses reachable from current in one step.
func Next(current Status) []Status {
	edges := transitions[current]
	out := make([]Status, len(edges))
	copy(out, edges)
	return out
}
