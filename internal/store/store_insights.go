package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	sq "github.com/Masterminds/squirrel"

	"newsdesk/internal/lifecycle"
	"newsdesk/internal/services"
)

// AnalysisWrite is the full replacement payload for a document's insight.
// Citations[i] belongs to Claims[i].
type AnalysisWrite struct {
	Insight   Insight
	Claims    []Claim
	Citations [][]Citation
	Protocols []Protocol
}

func validateProtocol(p Protocol) error {
	hasDigit := false
	for _, r := range p.Dose {
		if unicode.IsDigit(r) {
			hasDigit = true
			break
		}
	}
	if !hasDigit {
		return services.Wrap(services.ErrValidation, "analysis", "write insight",
			fmt.Sprintf("protocol %q dose %q has no numeric quantity", p.Name, p.Dose), nil)
	}
	if strings.TrimSpace(p.SafetyNotes) == "" {
		return services.Wrap(services.ErrValidation, "analysis", "write insight",
			fmt.Sprintf("protocol %q has empty safety notes", p.Name), nil)
	}
	return nil
}

// ReplaceAnalysisTx writes an analysis result for a document inside the
// caller's transaction: upsert the insight row, then delete and re-insert all
// claims, citations, and protocols. Any invalid protocol aborts the whole
// write before any row changes.
func (s *Store) ReplaceAnalysisTx(ctx context.Context, tx *sql.Tx, documentID int64, write *AnalysisWrite) (int64, error) {
	if write == nil {
		return 0, errors.New("analysis write is nil")
	}
	if len(write.Citations) > 0 && len(write.Citations) != len(write.Claims) {
		return 0, services.Wrap(services.ErrValidation, "analysis", "write insight",
			"citation lists must align with claims", nil)
	}
	for _, protocol := range write.Protocols {
		if err := validateProtocol(protocol); err != nil {
			return 0, err
		}
	}

	timestamp := formatTime(time.Now())
	if _, err := tx.ExecContext(
		ctx,
		`INSERT INTO insights (
            document_id, is_relevant, novelty_score, headline, confidence_label,
            summary_markdown, editor_status, needs_human_verification, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(document_id) DO UPDATE SET
            is_relevant = excluded.is_relevant,
            novelty_score = excluded.novelty_score,
            headline = excluded.headline,
            confidence_label = excluded.confidence_label,
            summary_markdown = excluded.summary_markdown,
            editor_status = 'pending',
            needs_human_verification = excluded.needs_human_verification,
            updated_at = excluded.updated_at`,
		documentID,
		boolToInt(write.Insight.IsRelevant),
		write.Insight.NoveltyScore,
		nullableString(write.Insight.Headline),
		nullableString(write.Insight.ConfidenceLabel),
		nullableString(write.Insight.SummaryMarkdown),
		string(EditorPending),
		boolToInt(write.Insight.NeedsHumanVerification),
		timestamp,
		timestamp,
	); err != nil {
		return 0, fmt.Errorf("upsert insight: %w", err)
	}

	var insightID int64
	if err := tx.QueryRowContext(ctx, `SELECT id FROM insights WHERE document_id = ?`, documentID).Scan(&insightID); err != nil {
		return 0, fmt.Errorf("read insight id: %w", err)
	}

	// Wholesale replace: prior claims, citations, and protocols go first.
	if _, err := tx.ExecContext(
		ctx,
		`DELETE FROM citations WHERE claim_id IN (SELECT id FROM claims WHERE insight_id = ?)`,
		insightID,
	); err != nil {
		return 0, fmt.Errorf("delete citations: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM claims WHERE insight_id = ?`, insightID); err != nil {
		return 0, fmt.Errorf("delete claims: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM protocols WHERE insight_id = ?`, insightID); err != nil {
		return 0, fmt.Errorf("delete protocols: %w", err)
	}

	for i, claim := range write.Claims {
		res, err := tx.ExecContext(
			ctx,
			`INSERT INTO claims (insight_id, text, claim_type, confidence, evidence_strength, risk_flags_json)
             VALUES (?, ?, ?, ?, ?, ?)`,
			insightID,
			claim.Text,
			nullableString(claim.ClaimType),
			claim.Confidence,
			claim.EvidenceStrength,
			nullableString(claim.RiskFlagsJSON),
		)
		if err != nil {
			return 0, fmt.Errorf("insert claim: %w", err)
		}
		claimID, err := res.LastInsertId()
		if err != nil {
			return 0, fmt.Errorf("claim insert id: %w", err)
		}
		if i < len(write.Citations) {
			for _, citation := range write.Citations[i] {
				if _, err := tx.ExecContext(
					ctx,
					`INSERT INTO citations (claim_id, title, url, source_name, published_at)
                     VALUES (?, ?, ?, ?, ?)`,
					claimID,
					nullableString(citation.Title),
					nullableString(citation.URL),
					nullableString(citation.SourceName),
					nullableString(citation.PublishedAt),
				); err != nil {
					return 0, fmt.Errorf("insert citation: %w", err)
				}
			}
		}
	}

	for _, protocol := range write.Protocols {
		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO protocols (insight_id, name, dose, frequency, duration, safety_notes)
             VALUES (?, ?, ?, ?, ?, ?)`,
			insightID,
			protocol.Name,
			protocol.Dose,
			nullableString(protocol.Frequency),
			nullableString(protocol.Duration),
			protocol.SafetyNotes,
		); err != nil {
			return 0, fmt.Errorf("insert protocol: %w", err)
		}
	}

	return insightID, nil
}

const insightColumns = "id, document_id, is_relevant, novelty_score, headline, confidence_label, summary_markdown, editor_status, needs_human_verification, created_at, updated_at"

func scanInsight(scanner interface{ Scan(dest ...any) error }) (*Insight, error) {
	var (
		id          int64
		documentID  int64
		isRelevant  int64
		novelty     sql.NullInt64
		headline    sql.NullString
		confidence  sql.NullString
		summary     sql.NullString
		editor      string
		needsVerify int64
		createdRaw  string
		updatedRaw  string
	)
	if err := scanner.Scan(
		&id, &documentID, &isRelevant, &novelty, &headline, &confidence,
		&summary, &editor, &needsVerify, &createdRaw, &updatedRaw,
	); err != nil {
		return nil, err
	}
	insight := &Insight{
		ID:                     id,
		DocumentID:             documentID,
		IsRelevant:             isRelevant != 0,
		NoveltyScore:           int(novelty.Int64),
		Headline:               headline.String,
		ConfidenceLabel:        confidence.String,
		SummaryMarkdown:        summary.String,
		EditorStatus:           EditorStatus(editor),
		NeedsHumanVerification: needsVerify != 0,
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		insight.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		insight.UpdatedAt = updated
	}
	return insight, nil
}

// GetInsightByDocument fetches the insight attached to a document.
func (s *Store) GetInsightByDocument(ctx context.Context, documentID int64) (*Insight, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+insightColumns+` FROM insights WHERE document_id = ?`, documentID)
	insight, err := scanInsight(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Wrap(services.ErrNotFound, "", "get insight",
			fmt.Sprintf("no insight for document %d", documentID), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("get insight: %w", err)
	}
	return insight, nil
}

// GetInsight fetches an insight by identifier.
func (s *Store) GetInsight(ctx context.Context, id int64) (*Insight, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+insightColumns+` FROM insights WHERE id = ?`, id)
	insight, err := scanInsight(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Wrap(services.ErrNotFound, "", "get insight", fmt.Sprintf("insight %d not found", id), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("get insight: %w", err)
	}
	return insight, nil
}

// SetEditorStatusTx records the human verdict on an insight inside the
// caller's transaction.
func (s *Store) SetEditorStatusTx(ctx context.Context, tx *sql.Tx, insightID int64, status EditorStatus) error {
	res, err := tx.ExecContext(
		ctx,
		`UPDATE insights SET editor_status = ?, updated_at = ? WHERE id = ?`,
		string(status), formatTime(time.Now()), insightID,
	)
	if err != nil {
		return fmt.Errorf("set editor status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return services.Wrap(services.ErrNotFound, "", "set editor status", fmt.Sprintf("insight %d not found", insightID), nil)
	}
	return nil
}

// ClearHumanVerificationTx marks an insight as human-verified inside the
// caller's transaction.
func (s *Store) ClearHumanVerificationTx(ctx context.Context, tx *sql.Tx, insightID int64) error {
	res, err := tx.ExecContext(
		ctx,
		`UPDATE insights SET needs_human_verification = 0, updated_at = ? WHERE id = ?`,
		formatTime(time.Now()), insightID,
	)
	if err != nil {
		return fmt.Errorf("clear human verification: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return services.Wrap(services.ErrNotFound, "", "clear human verification", fmt.Sprintf("insight %d not found", insightID), nil)
	}
	return nil
}

// InsightPatch holds the editable insight fields. Nil means leave unchanged.
type InsightPatch struct {
	Headline        *string
	SummaryMarkdown *string
	ConfidenceLabel *string
}

// PatchInsightTx updates editable fields on an insight inside the caller's
// transaction.
func (s *Store) PatchInsightTx(ctx context.Context, tx *sql.Tx, insightID int64, patch InsightPatch) error {
	sets := make([]string, 0, 4)
	args := make([]any, 0, 5)
	if patch.Headline != nil {
		sets = append(sets, "headline = ?")
		args = append(args, *patch.Headline)
	}
	if patch.SummaryMarkdown != nil {
		sets = append(sets, "summary_markdown = ?")
		args = append(args, *patch.SummaryMarkdown)
	}
	if patch.ConfidenceLabel != nil {
		sets = append(sets, "confidence_label = ?")
		args = append(args, *patch.ConfidenceLabel)
	}
	if len(sets) == 0 {
		return services.Wrap(services.ErrValidation, "", "patch insight", "no fields to update", nil)
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, formatTime(time.Now()), insightID)

	res, err := tx.ExecContext(
		ctx,
		`UPDATE insights SET `+strings.Join(sets, ", ")+` WHERE id = ?`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("patch insight: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return services.Wrap(services.ErrNotFound, "", "patch insight", fmt.Sprintf("insight %d not found", insightID), nil)
	}
	return nil
}

// PatchInsight updates editable fields in its own transaction.
func (s *Store) PatchInsight(ctx context.Context, insightID int64, patch InsightPatch) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		return s.PatchInsightTx(ctx, tx, insightID, patch)
	})
}

// ClaimsForInsight returns the claims attached to an insight, with citations.
func (s *Store) ClaimsForInsight(ctx context.Context, insightID int64) ([]*Claim, map[int64][]*Citation, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, insight_id, text, claim_type, confidence, evidence_strength, risk_flags_json
         FROM claims WHERE insight_id = ? ORDER BY id`,
		insightID,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("list claims: %w", err)
	}
	defer rows.Close()

	var claims []*Claim
	for rows.Next() {
		var (
			claim     Claim
			claimType sql.NullString
			riskFlags sql.NullString
		)
		if err := rows.Scan(&claim.ID, &claim.InsightID, &claim.Text, &claimType, &claim.Confidence, &claim.EvidenceStrength, &riskFlags); err != nil {
			return nil, nil, fmt.Errorf("scan claim: %w", err)
		}
		claim.ClaimType = claimType.String
		claim.RiskFlagsJSON = riskFlags.String
		claims = append(claims, &claim)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	citations := make(map[int64][]*Citation)
	for _, claim := range claims {
		crows, err := s.db.QueryContext(
			ctx,
			`SELECT id, claim_id, title, url, source_name, published_at
             FROM citations WHERE claim_id = ? ORDER BY id`,
			claim.ID,
		)
		if err != nil {
			return nil, nil, fmt.Errorf("list citations: %w", err)
		}
		for crows.Next() {
			var (
				citation    Citation
				title       sql.NullString
				url         sql.NullString
				sourceName  sql.NullString
				publishedAt sql.NullString
			)
			if err := crows.Scan(&citation.ID, &citation.ClaimID, &title, &url, &sourceName, &publishedAt); err != nil {
				crows.Close()
				return nil, nil, fmt.Errorf("scan citation: %w", err)
			}
			citation.Title = title.String
			citation.URL = url.String
			citation.SourceName = sourceName.String
			citation.PublishedAt = publishedAt.String
			citations[claim.ID] = append(citations[claim.ID], &citation)
		}
		if err := crows.Err(); err != nil {
			crows.Close()
			return nil, nil, err
		}
		crows.Close()
	}
	return claims, citations, nil
}

// ProtocolsForInsight returns the protocols attached to an insight.
func (s *Store) ProtocolsForInsight(ctx context.Context, insightID int64) ([]*Protocol, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, insight_id, name, dose, frequency, duration, safety_notes
         FROM protocols WHERE insight_id = ? ORDER BY id`,
		insightID,
	)
	if err != nil {
		return nil, fmt.Errorf("list protocols: %w", err)
	}
	defer rows.Close()

	var protocols []*Protocol
	for rows.Next() {
		var (
			protocol  Protocol
			frequency sql.NullString
			duration  sql.NullString
		)
		if err := rows.Scan(&protocol.ID, &protocol.InsightID, &protocol.Name, &protocol.Dose, &frequency, &duration, &protocol.SafetyNotes); err != nil {
			return nil, fmt.Errorf("scan protocol: %w", err)
		}
		protocol.Frequency = frequency.String
		protocol.Duration = duration.String
		protocols = append(protocols, &protocol)
	}
	return protocols, rows.Err()
}

// InboxFilter narrows and orders the review queue listing.
type InboxFilter struct {
	Status       lifecycle.Status
	EditorStatus EditorStatus
	MinNovelty   int
	SourceID     int64
	Limit        int
	SortByScore  bool
}

// Inbox returns the review queue: documents joined with their insights and
// source names, filtered and sorted per the filter.
func (s *Store) Inbox(ctx context.Context, filter InboxFilter) ([]*InboxEntry, error) {
	builder := sq.Select(
		"d.id", "i.id", "src.name", "i.headline", "i.novelty_score",
		"i.confidence_label", "i.editor_status", "i.needs_human_verification",
		"d.status", "d.updated_at",
	).
		From("documents d").
		Join("insights i ON i.document_id = d.id").
		Join("raw_documents r ON r.id = d.raw_document_id").
		Join("sources src ON src.id = r.source_id")

	status := filter.Status
	if status == "" {
		status = lifecycle.StatusReadyForReview
	}
	builder = builder.Where(sq.Eq{"d.status": status.String()})

	if filter.EditorStatus != "" {
		builder = builder.Where(sq.Eq{"i.editor_status": string(filter.EditorStatus)})
	}
	if filter.MinNovelty > 0 {
		builder = builder.Where(sq.GtOrEq{"i.novelty_score": filter.MinNovelty})
	}
	if filter.SourceID > 0 {
		builder = builder.Where(sq.Eq{"src.id": filter.SourceID})
	}
	if filter.SortByScore {
		builder = builder.OrderBy("i.novelty_score DESC", "d.id")
	} else {
		builder = builder.OrderBy("d.updated_at DESC", "d.id")
	}
	if filter.Limit > 0 {
		builder = builder.Limit(uint64(filter.Limit))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build inbox query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query inbox: %w", err)
	}
	defer rows.Close()

	var entries []*InboxEntry
	for rows.Next() {
		var (
			entry       InboxEntry
			headline    sql.NullString
			novelty     sql.NullInt64
			confidence  sql.NullString
			editor      string
			needsVerify int64
			statusStr   string
			updatedRaw  string
		)
		if err := rows.Scan(
			&entry.DocumentID, &entry.InsightID, &entry.SourceName, &headline,
			&novelty, &confidence, &editor, &needsVerify, &statusStr, &updatedRaw,
		); err != nil {
			return nil, fmt.Errorf("scan inbox entry: %w", err)
		}
		entry.Headline = headline.String
		entry.NoveltyScore = int(novelty.Int64)
		entry.ConfidenceLabel = confidence.String
		entry.EditorStatus = EditorStatus(editor)
		entry.NeedsHumanVerification = needsVerify != 0
		entry.Status = lifecycle.Status(statusStr)
		if updated, err := parseTimeString(updatedRaw); err == nil {
			entry.UpdatedAt = updated
		}
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}
