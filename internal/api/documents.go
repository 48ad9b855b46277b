package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"newsdesk/internal/lifecycle"
	"newsdesk/internal/store"
)

// ManualIngestRequest injects an operator-supplied document.
type ManualIngestRequest struct {
	SourceID   int64  `json:"source_id"`
	ExternalID string `json:"external_id"`
	Title      string `json:"title,omitempty"`
	Text       string `json:"text"`
}

// ManualIngest creates a document from operator-supplied text and runs the
// normal ingestion path, dedup included.
func (s *Service) ManualIngest(ctx context.Context, token string, req ManualIngestRequest) (*store.Document, error) {
	cached, hash, err := s.resolve(ctx, token, "manual_ingest", req)
	if err != nil {
		return nil, err
	}
	if cached != nil {
		return decodeCached[store.Document](cached)
	}

	doc, err := s.orchestrator.ManualIngest(ctx, req.SourceID, req.ExternalID, req.Title, req.Text)
	if err != nil {
		return nil, err
	}
	if err := s.recordResponse(ctx, token, "manual_ingest", hash, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// TransitionDocumentRequest moves a document along the lifecycle. Current is
// the caller's believed status; a mismatch with the stored status rejects the
// call.
type TransitionDocumentRequest struct {
	DocumentID int64  `json:"document_id"`
	Current    string `json:"current"`
	Target     string `json:"target"`
}

// TransitionDocument applies one lifecycle edge with an optimistic
// concurrency check against the caller's believed current status.
func (s *Service) TransitionDocument(ctx context.Context, token string, req TransitionDocumentRequest) (*store.Document, error) {
	cached, hash, err := s.resolve(ctx, token, "transition_document", req)
	if err != nil {
		return nil, err
	}
	if cached != nil {
		return decodeCached[store.Document](cached)
	}

	current, err := lifecycle.Parse(req.Current)
	if err != nil {
		return nil, err
	}
	target, err := lifecycle.Parse(req.Target)
	if err != nil {
		return nil, err
	}

	doc, err := s.store.GetDocument(ctx, req.DocumentID)
	if err != nil {
		return nil, err
	}
	moved := *doc
	moved.Status = target
	response, err := json.Marshal(&moved)
	if err != nil {
		return nil, fmt.Errorf("encode transition_document response: %w", err)
	}

	// The transition and its ledger row land in one commit.
	err = s.store.WithTx(ctx, func(tx *sql.Tx) error {
		if err := s.store.TransitionDocumentTx(ctx, tx, req.DocumentID, current, target); err != nil {
			return err
		}
		return s.ledger.StoreTx(ctx, tx, token, "transition_document", hash, string(response))
	})
	if err != nil {
		return nil, err
	}
	return &moved, nil
}

// GetDocument fetches a document by identifier.
func (s *Service) GetDocument(ctx context.Context, id int64) (*store.Document, error) {
	return s.store.GetDocument(ctx, id)
}
