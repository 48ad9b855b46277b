package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"newsdesk/internal/lifecycle"
	"newsdesk/internal/logging"
	"newsdesk/internal/publish"
	"newsdesk/internal/services"
	"newsdesk/internal/store"
)

// BuildBundleRequest assembles approved insights for publication. Explicit
// InsightIDs override the window query.
type BuildBundleRequest struct {
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
	InsightIDs  []int64   `json:"insight_ids,omitempty"`
}

// BuildBundle renders a draft bundle from approved insights and moves their
// documents from approved to bundled in one transaction.
func (s *Service) BuildBundle(ctx context.Context, token string, req BuildBundleRequest) (*store.Bundle, error) {
	cached, hash, err := s.resolve(ctx, token, "build_bundle", req)
	if err != nil {
		return nil, err
	}
	if cached != nil {
		return decodeCached[store.Bundle](cached)
	}
	if !req.PeriodEnd.After(req.PeriodStart) {
		return nil, services.Wrap(services.ErrValidation, "", "build bundle", "period end must be after period start", nil)
	}

	insights, err := s.collectInsights(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(insights) == 0 {
		return nil, services.Wrap(services.ErrValidation, "", "build bundle", "no approved insights in window", nil)
	}
	// Highest novelty leads the newsletter.
	sort.SliceStable(insights, func(i, j int) bool {
		return insights[i].NoveltyScore > insights[j].NoveltyScore
	})

	rendered, err := publish.Render(req.PeriodStart, req.PeriodEnd, insights)
	if err != nil {
		return nil, err
	}

	bundle := &store.Bundle{
		PeriodStart:    req.PeriodStart,
		PeriodEnd:      req.PeriodEnd,
		NewsletterHTML: rendered.NewsletterHTML,
		SocialText:     rendered.SocialText,
	}
	for _, insight := range insights {
		bundle.InsightIDs = append(bundle.InsightIDs, insight.ID)
	}

	err = s.store.WithTx(ctx, func(tx *sql.Tx) error {
		id, err := s.store.CreateBundleTx(ctx, tx, bundle)
		if err != nil {
			return err
		}
		bundle.ID = id
		for _, insight := range insights {
			if err := s.store.TransitionDocumentTx(ctx, tx, insight.DocumentID, lifecycle.StatusApproved, lifecycle.StatusBundled); err != nil {
				return err
			}
		}
		bundle.Status = store.BundleDraft
		response, err := json.Marshal(bundle)
		if err != nil {
			return fmt.Errorf("encode build_bundle response: %w", err)
		}
		return s.ledger.StoreTx(ctx, tx, token, "build_bundle", hash, string(response))
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("bundle built",
		logging.Int64("bundle_id", bundle.ID),
		logging.Int("insights", len(insights)),
	)
	// Return the same value the ledger stored so replays are byte-identical.
	return bundle, nil
}

func (s *Service) collectInsights(ctx context.Context, req BuildBundleRequest) ([]*store.Insight, error) {
	if len(req.InsightIDs) == 0 {
		return s.store.ApprovedInsightsInWindow(ctx, req.PeriodStart, req.PeriodEnd)
	}
	insights := make([]*store.Insight, 0, len(req.InsightIDs))
	for _, id := range req.InsightIDs {
		insight, err := s.store.GetInsight(ctx, id)
		if err != nil {
			return nil, err
		}
		if insight.EditorStatus != store.EditorApproved {
			return nil, services.Wrap(services.ErrValidation, "", "build bundle",
				fmt.Sprintf("insight %d is %s, not approved", insight.ID, insight.EditorStatus), nil)
		}
		insights = append(insights, insight)
	}
	return insights, nil
}

// PublishBundleRequest delivers a draft bundle.
type PublishBundleRequest struct {
	BundleID int64 `json:"bundle_id"`
}

// PublishBundle posts the bundle to the newsletter platform. Success marks
// the bundle published and moves every bundled document to published; a
// delivery failure is recorded on the bundle and the documents stay bundled.
// The external call runs outside any transaction.
func (s *Service) PublishBundle(ctx context.Context, token string, req PublishBundleRequest) (*store.Bundle, error) {
	cached, hash, err := s.resolve(ctx, token, "publish_bundle", req)
	if err != nil {
		return nil, err
	}
	if cached != nil {
		return decodeCached[store.Bundle](cached)
	}

	bundle, err := s.store.GetBundle(ctx, req.BundleID)
	if err != nil {
		return nil, err
	}
	if bundle.Status == store.BundlePublished {
		return nil, services.Wrap(services.ErrConflict, "", "publish bundle",
			fmt.Sprintf("bundle %d is already published", bundle.ID), nil)
	}

	result, pubErr := s.publisher.Publish(ctx, bundle)
	if pubErr != nil {
		message := pubErr.Error()
		if result != nil && result.Error != "" {
			message = result.Error
		}
		if recordErr := s.store.RecordBundlePublishError(ctx, bundle.ID, message); recordErr != nil {
			s.logger.Error("record publish error", logging.Error(recordErr))
		}
		return nil, pubErr
	}

	documents, err := s.store.DocumentsForBundle(ctx, bundle.ID)
	if err != nil {
		return nil, err
	}
	date := store.MetricDate(time.Now())
	err = s.store.WithTx(ctx, func(tx *sql.Tx) error {
		if err := s.store.MarkBundlePublishedTx(ctx, tx, bundle.ID, result.ExternalPostID, result.ExternalURL); err != nil {
			return err
		}
		for _, documentID := range documents {
			if err := s.store.TransitionDocumentTx(ctx, tx, documentID, lifecycle.StatusBundled, lifecycle.StatusPublished); err != nil {
				return err
			}
			if err := s.store.BumpMetricTx(ctx, tx, date, store.MetricPublished); err != nil {
				return err
			}
		}
		bundle.Status = store.BundlePublished
		bundle.ExternalPostID = result.ExternalPostID
		bundle.ExternalURL = result.ExternalURL
		response, err := json.Marshal(bundle)
		if err != nil {
			return fmt.Errorf("encode publish_bundle response: %w", err)
		}
		return s.ledger.StoreTx(ctx, tx, token, "publish_bundle", hash, string(response))
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("bundle published",
		logging.Int64("bundle_id", bundle.ID),
		logging.String("external_post_id", result.ExternalPostID),
	)
	return bundle, nil
}

// GetBundle fetches a bundle with its membership.
func (s *Service) GetBundle(ctx context.Context, id int64) (*store.Bundle, error) {
	return s.store.GetBundle(ctx, id)
}
