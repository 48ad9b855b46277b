package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"newsdesk/internal/lifecycle"
	"newsdesk/internal/services"
)

const rawDocumentColumns = "id, source_id, external_id, url, title, published_at, raw_text, raw_html, http_meta_json, fingerprint, fetched_at"

const documentColumns = "id, raw_document_id, normalized_text, status, created_at, updated_at"

func scanRawDocument(scanner interface{ Scan(dest ...any) error }) (*RawDocument, error) {
	var (
		id           int64
		sourceID     int64
		externalID   string
		url          sql.NullString
		title        sql.NullString
		publishedRaw sql.NullString
		rawText      sql.NullString
		rawHTML      sql.NullString
		httpMeta     sql.NullString
		fingerprint  sql.NullString
		fetchedRaw   string
	)
	if err := scanner.Scan(
		&id, &sourceID, &externalID, &url, &title, &publishedRaw,
		&rawText, &rawHTML, &httpMeta, &fingerprint, &fetchedRaw,
	); err != nil {
		return nil, err
	}
	raw := &RawDocument{
		ID:           id,
		SourceID:     sourceID,
		ExternalID:   externalID,
		URL:          url.String,
		Title:        title.String,
		PublishedAt:  parseTimePtr(publishedRaw),
		RawText:      rawText.String,
		RawHTML:      rawHTML.String,
		HTTPMetaJSON: httpMeta.String,
		Fingerprint:  fingerprint.String,
	}
	if fetched, err := parseTimeString(fetchedRaw); err == nil {
		raw.FetchedAt = fetched
	}
	return raw, nil
}

func scanDocument(scanner interface{ Scan(dest ...any) error }) (*Document, error) {
	var (
		id         int64
		rawID      int64
		text       string
		statusStr  string
		createdRaw string
		updatedRaw string
	)
	if err := scanner.Scan(&id, &rawID, &text, &statusStr, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}
	doc := &Document{
		ID:             id,
		RawDocumentID:  rawID,
		NormalizedText: text,
		Status:         lifecycle.Status(statusStr),
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		doc.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		doc.UpdatedAt = updated
	}
	return doc, nil
}

// FindRawDocument returns the raw row for (source, external id), or nil when absent.
func (s *Store) FindRawDocument(ctx context.Context, sourceID int64, externalID string) (*RawDocument, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+rawDocumentColumns+` FROM raw_documents WHERE source_id = ? AND external_id = ?`,
		sourceID, externalID,
	)
	raw, err := scanRawDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find raw document: %w", err)
	}
	return raw, nil
}

// InsertRawDocument stores a fetched item. Callers check FindRawDocument first;
// a UNIQUE violation here still maps to a conflict so concurrent ingests of the
// same item stay idempotent.
func (s *Store) InsertRawDocument(ctx context.Context, raw *RawDocument) (*RawDocument, error) {
	if raw == nil {
		return nil, errors.New("raw document is nil")
	}
	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO raw_documents (
            source_id, external_id, url, title, published_at,
            raw_text, raw_html, http_meta_json, fingerprint, fetched_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		raw.SourceID,
		raw.ExternalID,
		nullableString(raw.URL),
		nullableString(raw.Title),
		nullableTime(raw.PublishedAt),
		nullableString(raw.RawText),
		nullableString(raw.RawHTML),
		nullableString(raw.HTTPMetaJSON),
		nullableString(raw.Fingerprint),
		formatTime(time.Now()),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, services.Wrap(services.ErrConflict, "", "insert raw document",
				fmt.Sprintf("item %q already ingested for source %d", raw.ExternalID, raw.SourceID), err)
		}
		return nil, fmt.Errorf("insert raw document: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	raw.ID = id
	return raw, nil
}

// SetRawFingerprint records the immutable content fingerprint after dedup runs.
func (s *Store) SetRawFingerprint(ctx context.Context, rawID int64, fingerprint string) error {
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE raw_documents SET fingerprint = ? WHERE id = ? AND fingerprint IS NULL`,
		fingerprint, rawID,
	); err != nil {
		return fmt.Errorf("set raw fingerprint: %w", err)
	}
	return nil
}

// CreateDocument inserts a document at the start of the lifecycle.
func (s *Store) CreateDocument(ctx context.Context, rawDocumentID int64, normalizedText string) (*Document, error) {
	timestamp := formatTime(time.Now())
	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO documents (raw_document_id, normalized_text, status, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?)`,
		rawDocumentID,
		normalizedText,
		lifecycle.StatusIngested.String(),
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert document: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetDocument(ctx, id)
}

// GetDocument fetches a document by identifier.
func (s *Store) GetDocument(ctx context.Context, id int64) (*Document, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Wrap(services.ErrNotFound, "", "get document", fmt.Sprintf("document %d not found", id), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	return doc, nil
}

// NextDocumentByStatus returns the oldest document in one of the given
// statuses, or nil when none is waiting. The pipeline manager uses this to
// claim the next unit of work.
func (s *Store) NextDocumentByStatus(ctx context.Context, statuses ...lifecycle.Status) (*Document, error) {
	return s.NextDocumentByStatusExcluding(ctx, nil, statuses...)
}

// NextDocumentByStatusExcluding is NextDocumentByStatus with a hold-back
// list: excluded documents are skipped even when they are oldest, so one
// failing document cannot starve the rest of the queue.
func (s *Store) NextDocumentByStatusExcluding(ctx context.Context, exclude []int64, statuses ...lifecycle.Status) (*Document, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	placeholders := make([]byte, 0, len(statuses)*2)
	args := make([]any, 0, len(statuses)+len(exclude))
	for i, status := range statuses {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
		args = append(args, status.String())
	}
	query := `SELECT ` + documentColumns + ` FROM documents WHERE status IN (` + string(placeholders) + `)`
	if len(exclude) > 0 {
		excluded := make([]byte, 0, len(exclude)*2)
		for i, id := range exclude {
			if i > 0 {
				excluded = append(excluded, ',')
			}
			excluded = append(excluded, '?')
			args = append(args, id)
		}
		query += ` AND id NOT IN (` + string(excluded) + `)`
	}
	row := s.db.QueryRowContext(ctx, query+` ORDER BY id LIMIT 1`, args...)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("next document by status: %w", err)
	}
	return doc, nil
}

// ListDocumentsByStatus returns documents in the given status, oldest first.
func (s *Store) ListDocumentsByStatus(ctx context.Context, status lifecycle.Status) ([]*Document, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+documentColumns+` FROM documents WHERE status = ? ORDER BY id`,
		status.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// TransitionDocumentTx applies a status transition inside the caller's
// transaction. The stored status must match expectedCurrent (optimistic
// concurrency) and the edge must be legal per the lifecycle table.
func (s *Store) TransitionDocumentTx(ctx context.Context, tx *sql.Tx, documentID int64, expectedCurrent, target lifecycle.Status) error {
	var statusStr string
	err := tx.QueryRowContext(ctx, `SELECT status FROM documents WHERE id = ?`, documentID).Scan(&statusStr)
	if errors.Is(err, sql.ErrNoRows) {
		return services.Wrap(services.ErrNotFound, "", "transition document", fmt.Sprintf("document %d not found", documentID), nil)
	}
	if err != nil {
		return fmt.Errorf("read document status: %w", err)
	}

	stored := lifecycle.Status(statusStr)
	if stored != expectedCurrent {
		return services.Wrap(services.ErrConflict, "", "transition document",
			fmt.Sprintf("document %d is %s, caller expected %s", documentID, stored, expectedCurrent), nil)
	}
	if err := lifecycle.EnforceTransition(stored, target); err != nil {
		return err
	}

	if _, err := tx.ExecContext(
		ctx,
		`UPDATE documents SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		target.String(), formatTime(time.Now()), documentID, stored.String(),
	); err != nil {
		return fmt.Errorf("update document status: %w", err)
	}
	return nil
}

// TransitionDocument applies a status transition in its own transaction.
func (s *Store) TransitionDocument(ctx context.Context, documentID int64, expectedCurrent, target lifecycle.Status) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		return s.TransitionDocumentTx(ctx, tx, documentID, expectedCurrent, target)
	})
}

// FindDocumentByFingerprint returns the lowest-ID document whose raw record
// carries the fingerprint, excluding the given document.
func (s *Store) FindDocumentByFingerprint(ctx context.Context, fingerprint string, excludeDocumentID int64) (*Document, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+prefixedDocumentColumns+`
         FROM documents d
         JOIN raw_documents r ON r.id = d.raw_document_id
         WHERE r.fingerprint = ? AND d.id != ?
         ORDER BY d.id LIMIT 1`,
		fingerprint, excludeDocumentID,
	)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find document by fingerprint: %w", err)
	}
	return doc, nil
}

const prefixedDocumentColumns = "d.id, d.raw_document_id, d.normalized_text, d.status, d.created_at, d.updated_at"

// RecordDuplicate appends a dedup edge. Repeats of the same ordered pair are
// ignored so re-running detection never doubles edges.
func (s *Store) RecordDuplicate(ctx context.Context, edge *DocumentDuplicate) error {
	if edge == nil {
		return errors.New("duplicate edge is nil")
	}
	if err := s.execWithoutResultRetry(
		ctx,
		`INSERT OR IGNORE INTO document_duplicates (document_id, duplicate_of, similarity, method, detected_at)
         VALUES (?, ?, ?, ?, ?)`,
		edge.DocumentID,
		edge.DuplicateOf,
		edge.Similarity,
		edge.Method,
		formatTime(time.Now()),
	); err != nil {
		return fmt.Errorf("record duplicate: %w", err)
	}
	return nil
}

// ListDuplicates returns dedup edges originating from a document.
func (s *Store) ListDuplicates(ctx context.Context, documentID int64) ([]*DocumentDuplicate, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT document_id, duplicate_of, similarity, method, detected_at
         FROM document_duplicates WHERE document_id = ? ORDER BY duplicate_of`,
		documentID,
	)
	if err != nil {
		return nil, fmt.Errorf("list duplicates: %w", err)
	}
	defer rows.Close()

	var edges []*DocumentDuplicate
	for rows.Next() {
		var (
			edge        DocumentDuplicate
			detectedRaw string
		)
		if err := rows.Scan(&edge.DocumentID, &edge.DuplicateOf, &edge.Similarity, &edge.Method, &detectedRaw); err != nil {
			return nil, fmt.Errorf("scan duplicate: %w", err)
		}
		if detected, err := parseTimeString(detectedRaw); err == nil {
			edge.DetectedAt = detected
		}
		edges = append(edges, &edge)
	}
	return edges, rows.Err()
}
