package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"newsdesk/internal/services"
)

// CreateBundleTx inserts a draft bundle and its insight membership inside the
// caller's transaction.
func (s *Store) CreateBundleTx(ctx context.Context, tx *sql.Tx, bundle *Bundle) (int64, error) {
	if bundle == nil {
		return 0, errors.New("bundle is nil")
	}
	timestamp := formatTime(time.Now())
	res, err := tx.ExecContext(
		ctx,
		`INSERT INTO bundles (
            period_start, period_end, newsletter_html, social_text,
            status, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		formatTime(bundle.PeriodStart),
		formatTime(bundle.PeriodEnd),
		nullableString(bundle.NewsletterHTML),
		nullableString(bundle.SocialText),
		string(BundleDraft),
		timestamp,
		timestamp,
	)
	if err != nil {
		return 0, fmt.Errorf("insert bundle: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("bundle insert id: %w", err)
	}
	for position, insightID := range bundle.InsightIDs {
		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO bundle_insights (bundle_id, insight_id, position) VALUES (?, ?, ?)`,
			id, insightID, position,
		); err != nil {
			return 0, fmt.Errorf("insert bundle insight: %w", err)
		}
	}
	return id, nil
}

// GetBundle fetches a bundle with its insight membership.
func (s *Store) GetBundle(ctx context.Context, id int64) (*Bundle, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, period_start, period_end, newsletter_html, social_text, status,
                external_post_id, external_url, publish_error, created_at, updated_at
         FROM bundles WHERE id = ?`,
		id,
	)
	var (
		bundle       Bundle
		startRaw     string
		endRaw       string
		html         sql.NullString
		social       sql.NullString
		statusStr    string
		externalID   sql.NullString
		externalURL  sql.NullString
		publishError sql.NullString
		createdRaw   string
		updatedRaw   string
	)
	err := row.Scan(
		&bundle.ID, &startRaw, &endRaw, &html, &social, &statusStr,
		&externalID, &externalURL, &publishError, &createdRaw, &updatedRaw,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Wrap(services.ErrNotFound, "", "get bundle", fmt.Sprintf("bundle %d not found", id), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("get bundle: %w", err)
	}
	bundle.NewsletterHTML = html.String
	bundle.SocialText = social.String
	bundle.Status = BundleStatus(statusStr)
	bundle.ExternalPostID = externalID.String
	bundle.ExternalURL = externalURL.String
	bundle.PublishError = publishError.String
	if start, err := parseTimeString(startRaw); err == nil {
		bundle.PeriodStart = start
	}
	if end, err := parseTimeString(endRaw); err == nil {
		bundle.PeriodEnd = end
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		bundle.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		bundle.UpdatedAt = updated
	}

	rows, err := s.db.QueryContext(
		ctx,
		`SELECT insight_id FROM bundle_insights WHERE bundle_id = ? ORDER BY position`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("list bundle insights: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var insightID int64
		if err := rows.Scan(&insightID); err != nil {
			return nil, fmt.Errorf("scan bundle insight: %w", err)
		}
		bundle.InsightIDs = append(bundle.InsightIDs, insightID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &bundle, nil
}

// ApprovedInsightsInWindow returns approved insights whose documents sit at
// approved status and whose analysis landed inside the window, oldest first.
func (s *Store) ApprovedInsightsInWindow(ctx context.Context, start, end time.Time) ([]*Insight, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+prefixedInsightColumns+`
         FROM insights i
         JOIN documents d ON d.id = i.document_id
         WHERE i.editor_status = 'approved'
           AND d.status = 'approved'
           AND i.updated_at >= ? AND i.updated_at < ?
         ORDER BY i.id`,
		formatTime(start), formatTime(end),
	)
	if err != nil {
		return nil, fmt.Errorf("list approved insights: %w", err)
	}
	defer rows.Close()

	var insights []*Insight
	for rows.Next() {
		insight, err := scanInsight(rows)
		if err != nil {
			return nil, fmt.Errorf("scan insight: %w", err)
		}
		insights = append(insights, insight)
	}
	return insights, rows.Err()
}

const prefixedInsightColumns = "i.id, i.document_id, i.is_relevant, i.novelty_score, i.headline, i.confidence_label, i.summary_markdown, i.editor_status, i.needs_human_verification, i.created_at, i.updated_at"

// MarkBundlePublishedTx records a successful publish inside the caller's
// transaction.
func (s *Store) MarkBundlePublishedTx(ctx context.Context, tx *sql.Tx, bundleID int64, externalPostID, externalURL string) error {
	res, err := tx.ExecContext(
		ctx,
		`UPDATE bundles SET status = ?, external_post_id = ?, external_url = ?,
            publish_error = NULL, updated_at = ? WHERE id = ?`,
		string(BundlePublished),
		nullableString(externalPostID),
		nullableString(externalURL),
		formatTime(time.Now()),
		bundleID,
	)
	if err != nil {
		return fmt.Errorf("mark bundle published: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return services.Wrap(services.ErrNotFound, "", "publish bundle", fmt.Sprintf("bundle %d not found", bundleID), nil)
	}
	return nil
}

// RecordBundlePublishError stores a delivery failure on the bundle.
func (s *Store) RecordBundlePublishError(ctx context.Context, bundleID int64, message string) error {
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE bundles SET publish_error = ?, updated_at = ? WHERE id = ?`,
		message, formatTime(time.Now()), bundleID,
	); err != nil {
		return fmt.Errorf("record bundle publish error: %w", err)
	}
	return nil
}

// DocumentsForBundle returns the document IDs whose insights belong to a bundle.
func (s *Store) DocumentsForBundle(ctx context.Context, bundleID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT i.document_id
         FROM bundle_insights b
         JOIN insights i ON i.id = b.insight_id
         WHERE b.bundle_id = ? ORDER BY b.position`,
		bundleID,
	)
	if err != nil {
		return nil, fmt.Errorf("list bundle documents: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan bundle document: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
