package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"newsdesk/internal/services"
)

const sourceColumns = "id, name, method, url, config_json, active, trust_tier, cooldown_seconds, last_polled_at, last_success_at, last_error, failure_count, created_at, updated_at"

func scanSource(scanner interface{ Scan(dest ...any) error }) (*Source, error) {
	var (
		id            int64
		name          string
		method        string
		url           sql.NullString
		configJSON    sql.NullString
		active        int64
		trustTier     int64
		cooldown      int64
		lastPolledRaw sql.NullString
		lastSuccess   sql.NullString
		lastError     sql.NullString
		failureCount  int64
		createdRaw    string
		updatedRaw    string
	)
	if err := scanner.Scan(
		&id, &name, &method, &url, &configJSON, &active, &trustTier, &cooldown,
		&lastPolledRaw, &lastSuccess, &lastError, &failureCount, &createdRaw, &updatedRaw,
	); err != nil {
		return nil, err
	}

	source := &Source{
		ID:              id,
		Name:            name,
		Method:          SourceMethod(method),
		URL:             url.String,
		ConfigJSON:      configJSON.String,
		Active:          active != 0,
		TrustTier:       int(trustTier),
		CooldownSeconds: int(cooldown),
		LastPolledAt:    parseTimePtr(lastPolledRaw),
		LastSuccessAt:   parseTimePtr(lastSuccess),
		LastError:       lastError.String,
		FailureCount:    int(failureCount),
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		source.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		source.UpdatedAt = updated
	}
	return source, nil
}

// CreateSource inserts a new source.
func (s *Store) CreateSource(ctx context.Context, source *Source) (*Source, error) {
	if source == nil {
		return nil, errors.New("source is nil")
	}
	name := strings.TrimSpace(source.Name)
	if name == "" {
		return nil, services.Wrap(services.ErrValidation, "", "create source", "source name is required", nil)
	}
	switch source.Method {
	case MethodRSS, MethodHTML, MethodManual:
	default:
		return nil, services.Wrap(services.ErrValidation, "", "create source", fmt.Sprintf("unknown source method %q", source.Method), nil)
	}

	timestamp := formatTime(time.Now())
	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO sources (
            name, method, url, config_json, active, trust_tier,
            cooldown_seconds, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		name,
		string(source.Method),
		nullableString(source.URL),
		nullableString(source.ConfigJSON),
		boolToInt(source.Active),
		source.TrustTier,
		source.CooldownSeconds,
		timestamp,
		timestamp,
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return nil, services.Wrap(services.ErrConflict, "", "create source", fmt.Sprintf("source %q already exists", name), err)
		}
		return nil, fmt.Errorf("insert source: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetSource(ctx, id)
}

// GetSource fetches a source by identifier.
func (s *Store) GetSource(ctx context.Context, id int64) (*Source, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sourceColumns+` FROM sources WHERE id = ?`, id)
	source, err := scanSource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Wrap(services.ErrNotFound, "", "get source", fmt.Sprintf("source %d not found", id), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("get source: %w", err)
	}
	return source, nil
}

// GetSourceByName fetches a source by its unique name.
func (s *Store) GetSourceByName(ctx context.Context, name string) (*Source, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sourceColumns+` FROM sources WHERE name = ?`, name)
	source, err := scanSource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Wrap(services.ErrNotFound, "", "get source", fmt.Sprintf("source %q not found", name), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("get source by name: %w", err)
	}
	return source, nil
}

// UpdateSourceTx persists mutable source fields inside the caller's
// transaction.
func (s *Store) UpdateSourceTx(ctx context.Context, tx *sql.Tx, source *Source) error {
	if source == nil {
		return errors.New("source is nil")
	}
	res, err := tx.ExecContext(
		ctx,
		`UPDATE sources SET
            name = ?, method = ?, url = ?, config_json = ?, active = ?,
            trust_tier = ?, cooldown_seconds = ?, updated_at = ?
         WHERE id = ?`,
		source.Name,
		string(source.Method),
		nullableString(source.URL),
		nullableString(source.ConfigJSON),
		boolToInt(source.Active),
		source.TrustTier,
		source.CooldownSeconds,
		formatTime(time.Now()),
		source.ID,
	)
	if err != nil {
		return fmt.Errorf("update source: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return services.Wrap(services.ErrNotFound, "", "update source", fmt.Sprintf("source %d not found", source.ID), nil)
	}
	return nil
}

// UpdateSource persists mutable source fields in its own transaction.
func (s *Store) UpdateSource(ctx context.Context, source *Source) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		return s.UpdateSourceTx(ctx, tx, source)
	})
}

// ListSources returns sources, optionally restricted to active ones, ordered by name.
func (s *Store) ListSources(ctx context.Context, activeOnly bool) ([]*Source, error) {
	query := `SELECT ` + sourceColumns + ` FROM sources`
	if activeOnly {
		query += ` WHERE active = 1`
	}
	query += ` ORDER BY name`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()

	var sources []*Source
	for rows.Next() {
		source, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		sources = append(sources, source)
	}
	return sources, rows.Err()
}

// RecordSourceSuccess marks a poll success, resetting the failure counter.
func (s *Store) RecordSourceSuccess(ctx context.Context, id int64, at time.Time) error {
	timestamp := formatTime(at)
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE sources SET last_polled_at = ?, last_success_at = ?, last_error = NULL,
            failure_count = 0, updated_at = ? WHERE id = ?`,
		timestamp, timestamp, timestamp, id,
	); err != nil {
		return fmt.Errorf("record source success: %w", err)
	}
	return nil
}

// RecordSourceFailure marks a poll failure and increments the failure counter.
func (s *Store) RecordSourceFailure(ctx context.Context, id int64, at time.Time, message string) error {
	timestamp := formatTime(at)
	if err := s.execWithoutResultRetry(
		ctx,
		`UPDATE sources SET last_polled_at = ?, last_error = ?,
            failure_count = failure_count + 1, updated_at = ? WHERE id = ?`,
		timestamp, message, timestamp, id,
	); err != nil {
		return fmt.Errorf("record source failure: %w", err)
	}
	return nil
}

// GetCursor returns the incremental-fetch cursor for a source, or nil when absent.
func (s *Store) GetCursor(ctx context.Context, sourceID int64) (*SourceCursor, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT source_id, etag, last_modified, cursor_json, updated_at
         FROM source_cursors WHERE source_id = ?`,
		sourceID,
	)
	var (
		id           int64
		etag         sql.NullString
		lastModified sql.NullString
		cursorJSON   sql.NullString
		updatedRaw   string
	)
	err := row.Scan(&id, &etag, &lastModified, &cursorJSON, &updatedRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cursor: %w", err)
	}
	cursor := &SourceCursor{
		SourceID:     id,
		ETag:         etag.String,
		LastModified: lastModified.String,
		CursorJSON:   cursorJSON.String,
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		cursor.UpdatedAt = updated
	}
	return cursor, nil
}

// SetCursor upserts the incremental-fetch cursor for a source.
func (s *Store) SetCursor(ctx context.Context, cursor *SourceCursor) error {
	if cursor == nil {
		return errors.New("cursor is nil")
	}
	if err := s.execWithoutResultRetry(
		ctx,
		`INSERT INTO source_cursors (source_id, etag, last_modified, cursor_json, updated_at)
         VALUES (?, ?, ?, ?, ?)
         ON CONFLICT(source_id) DO UPDATE SET
            etag = excluded.etag,
            last_modified = excluded.last_modified,
            cursor_json = excluded.cursor_json,
            updated_at = excluded.updated_at`,
		cursor.SourceID,
		nullableString(cursor.ETag),
		nullableString(cursor.LastModified),
		nullableString(cursor.CursorJSON),
		formatTime(time.Now()),
	); err != nil {
		return fmt.Errorf("set cursor: %w", err)
	}
	return nil
}
