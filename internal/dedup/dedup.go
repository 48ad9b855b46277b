package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"

	"newsdesk/internal/logging"
	"newsdesk/internal/store"
)

// MethodHashExact tags edges produced by exact fingerprint matching.
const MethodHashExact = "hash_exact"

// Fingerprint computes the content fingerprint of normalized document text.
func Fingerprint(normalizedText string) string {
	sum := sha256.Sum256([]byte(normalizedText))
	return hex.EncodeToString(sum[:])
}

// Matcher locates a prior document considered a duplicate of the given
// fingerprint. Implementations other than exact hashing can plug in without
// changing the edge schema.
type Matcher interface {
	Method() string
	Match(ctx context.Context, fingerprint string, excludeDocumentID int64) (*store.Document, float64, error)
}

type exactMatcher struct {
	store *store.Store
}

func (m *exactMatcher) Method() string { return MethodHashExact }

func (m *exactMatcher) Match(ctx context.Context, fingerprint string, excludeDocumentID int64) (*store.Document, float64, error) {
	match, err := m.store.FindDocumentByFingerprint(ctx, fingerprint, excludeDocumentID)
	if err != nil {
		return nil, 0, err
	}
	if match == nil {
		return nil, 0, nil
	}
	return match, 1.0, nil
}

// Detector computes fingerprints and records duplicate edges.
type Detector struct {
	store   *store.Store
	matcher Matcher
	logger  *slog.Logger
}

// NewDetector builds a detector with exact-hash matching.
func NewDetector(st *store.Store, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Detector{
		store:   st,
		matcher: &exactMatcher{store: st},
		logger:  logger.With(logging.String(logging.FieldComponent, "dedup")),
	}
}

// Run fingerprints the document, stores the fingerprint on its raw record,
// and records at most one duplicate edge against the earliest prior match.
// Returns the edge when a duplicate was found.
func (d *Detector) Run(ctx context.Context, doc *store.Document) (*store.DocumentDuplicate, error) {
	if doc == nil {
		return nil, fmt.Errorf("document is nil")
	}
	fingerprint := Fingerprint(doc.NormalizedText)
	if err := d.store.SetRawFingerprint(ctx, doc.RawDocumentID, fingerprint); err != nil {
		return nil, fmt.Errorf("store fingerprint: %w", err)
	}

	match, similarity, err := d.matcher.Match(ctx, fingerprint, doc.ID)
	if err != nil {
		return nil, fmt.Errorf("match fingerprint: %w", err)
	}
	if match == nil {
		return nil, nil
	}

	edge := &store.DocumentDuplicate{
		DocumentID:  doc.ID,
		DuplicateOf: match.ID,
		Similarity:  similarity,
		Method:      d.matcher.Method(),
	}
	if err := d.store.RecordDuplicate(ctx, edge); err != nil {
		return nil, fmt.Errorf("record duplicate: %w", err)
	}
	d.logger.Info("duplicate detected",
		logging.Int64(logging.FieldDocumentID, doc.ID),
		logging.Int64("duplicate_of", match.ID),
		logging.String("method", d.matcher.Method()),
	)
	return edge, nil
}
