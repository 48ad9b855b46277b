package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"newsdesk/internal/lifecycle"
	"newsdesk/internal/logging"
	"newsdesk/internal/services"
	"newsdesk/internal/store"
)

// ApproveInsightRequest records the human verdict. HumanVerified must be set
// when the insight is flagged for human verification; approval is blocked
// otherwise.
type ApproveInsightRequest struct {
	InsightID     int64 `json:"insight_id"`
	HumanVerified bool  `json:"human_verified,omitempty"`
}

// ApproveInsight marks the insight approved and moves its document from
// ready_for_review to approved in one transaction.
func (s *Service) ApproveInsight(ctx context.Context, token string, req ApproveInsightRequest) (*store.Insight, error) {
	cached, hash, err := s.resolve(ctx, token, "approve_insight", req)
	if err != nil {
		return nil, err
	}
	if cached != nil {
		return decodeCached[store.Insight](cached)
	}

	insight, err := s.store.GetInsight(ctx, req.InsightID)
	if err != nil {
		return nil, err
	}
	if insight.EditorStatus != store.EditorPending {
		return nil, services.Wrap(services.ErrConflict, "", "approve insight",
			fmt.Sprintf("insight %d already has verdict %s", insight.ID, insight.EditorStatus), nil)
	}
	if insight.NeedsHumanVerification && !req.HumanVerified {
		return nil, services.Wrap(services.ErrValidation, "", "approve insight",
			fmt.Sprintf("insight %d requires explicit human verification", insight.ID), nil)
	}

	approved := *insight
	approved.EditorStatus = store.EditorApproved
	approved.NeedsHumanVerification = false
	response, err := json.Marshal(&approved)
	if err != nil {
		return nil, fmt.Errorf("encode approve_insight response: %w", err)
	}

	err = s.store.WithTx(ctx, func(tx *sql.Tx) error {
		if insight.NeedsHumanVerification {
			if err := s.store.ClearHumanVerificationTx(ctx, tx, insight.ID); err != nil {
				return err
			}
		}
		if err := s.store.SetEditorStatusTx(ctx, tx, insight.ID, store.EditorApproved); err != nil {
			return err
		}
		if err := s.store.TransitionDocumentTx(ctx, tx, insight.DocumentID, lifecycle.StatusReadyForReview, lifecycle.StatusApproved); err != nil {
			return err
		}
		return s.ledger.StoreTx(ctx, tx, token, "approve_insight", hash, string(response))
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("insight approved",
		logging.Int64("insight_id", insight.ID),
		logging.Int64(logging.FieldDocumentID, insight.DocumentID),
	)
	// Return the same value the ledger stored so replays are byte-identical.
	return &approved, nil
}

// RejectInsightRequest records a human rejection.
type RejectInsightRequest struct {
	InsightID int64 `json:"insight_id"`
}

// RejectInsight marks the insight rejected and moves its document to the
// terminal rejected status, counting the rejection for the day.
func (s *Service) RejectInsight(ctx context.Context, token string, req RejectInsightRequest) (*store.Insight, error) {
	cached, hash, err := s.resolve(ctx, token, "reject_insight", req)
	if err != nil {
		return nil, err
	}
	if cached != nil {
		return decodeCached[store.Insight](cached)
	}

	insight, err := s.store.GetInsight(ctx, req.InsightID)
	if err != nil {
		return nil, err
	}
	if insight.EditorStatus != store.EditorPending {
		return nil, services.Wrap(services.ErrConflict, "", "reject insight",
			fmt.Sprintf("insight %d already has verdict %s", insight.ID, insight.EditorStatus), nil)
	}

	rejected := *insight
	rejected.EditorStatus = store.EditorRejected
	response, err := json.Marshal(&rejected)
	if err != nil {
		return nil, fmt.Errorf("encode reject_insight response: %w", err)
	}

	err = s.store.WithTx(ctx, func(tx *sql.Tx) error {
		if err := s.store.SetEditorStatusTx(ctx, tx, insight.ID, store.EditorRejected); err != nil {
			return err
		}
		if err := s.store.TransitionDocumentTx(ctx, tx, insight.DocumentID, lifecycle.StatusReadyForReview, lifecycle.StatusRejected); err != nil {
			return err
		}
		if err := s.store.BumpMetricTx(ctx, tx, store.MetricDate(time.Now()), store.MetricRejected); err != nil {
			return err
		}
		return s.ledger.StoreTx(ctx, tx, token, "reject_insight", hash, string(response))
	})
	if err != nil {
		return nil, err
	}
	return &rejected, nil
}

// PatchInsightRequest edits human-facing fields. Nil pointers leave the
// stored value unchanged.
type PatchInsightRequest struct {
	InsightID       int64   `json:"insight_id"`
	Headline        *string `json:"headline,omitempty"`
	SummaryMarkdown *string `json:"summary_markdown,omitempty"`
	ConfidenceLabel *string `json:"confidence_label,omitempty"`
}

// PatchInsight edits the headline, summary, or confidence label.
func (s *Service) PatchInsight(ctx context.Context, token string, req PatchInsightRequest) (*store.Insight, error) {
	cached, hash, err := s.resolve(ctx, token, "patch_insight", req)
	if err != nil {
		return nil, err
	}
	if cached != nil {
		return decodeCached[store.Insight](cached)
	}

	insight, err := s.store.GetInsight(ctx, req.InsightID)
	if err != nil {
		return nil, err
	}
	patched := *insight
	if req.Headline != nil {
		patched.Headline = *req.Headline
	}
	if req.SummaryMarkdown != nil {
		patched.SummaryMarkdown = *req.SummaryMarkdown
	}
	if req.ConfidenceLabel != nil {
		patched.ConfidenceLabel = *req.ConfidenceLabel
	}
	response, err := json.Marshal(&patched)
	if err != nil {
		return nil, fmt.Errorf("encode patch_insight response: %w", err)
	}

	err = s.store.WithTx(ctx, func(tx *sql.Tx) error {
		if err := s.store.PatchInsightTx(ctx, tx, req.InsightID, store.InsightPatch{
			Headline:        req.Headline,
			SummaryMarkdown: req.SummaryMarkdown,
			ConfidenceLabel: req.ConfidenceLabel,
		}); err != nil {
			return err
		}
		return s.ledger.StoreTx(ctx, tx, token, "patch_insight", hash, string(response))
	})
	if err != nil {
		return nil, err
	}
	return &patched, nil
}

// InboxRequest filters the review queue listing.
type InboxRequest struct {
	Status       string `json:"status,omitempty"`
	EditorStatus string `json:"editor_status,omitempty"`
	MinNovelty   int    `json:"min_novelty,omitempty"`
	SourceID     int64  `json:"source_id,omitempty"`
	Limit        int    `json:"limit,omitempty"`
	SortByScore  bool   `json:"sort_by_score,omitempty"`
}

// Inbox lists documents awaiting editorial review.
func (s *Service) Inbox(ctx context.Context, req InboxRequest) ([]*store.InboxEntry, error) {
	filter := store.InboxFilter{
		EditorStatus: store.EditorStatus(req.EditorStatus),
		MinNovelty:   req.MinNovelty,
		SourceID:     req.SourceID,
		Limit:        req.Limit,
		SortByScore:  req.SortByScore,
	}
	if req.Status != "" {
		status, err := lifecycle.Parse(req.Status)
		if err != nil {
			return nil, err
		}
		filter.Status = status
	}
	return s.store.Inbox(ctx, filter)
}

// GetInsight fetches an insight with its claims and protocols left to the
// dedicated store accessors.
func (s *Service) GetInsight(ctx context.Context, id int64) (*store.Insight, error) {
	return s.store.GetInsight(ctx, id)
}
