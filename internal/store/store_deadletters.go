package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// InsertDeadLetter appends a terminally-failed task record. Pure append, no
// dedup: repeated failures of the same task produce repeated rows.
func (s *Store) InsertDeadLetter(ctx context.Context, letter *DeadLetter) (int64, error) {
	if letter == nil {
		return 0, errors.New("dead letter is nil")
	}
	res, err := s.execWithRetry(
		ctx,
		`INSERT INTO dead_letters (task_name, payload_json, error, retry_count, source_id, created_at)
         VALUES (?, ?, ?, ?, ?, ?)`,
		letter.TaskName,
		nullableString(letter.PayloadJSON),
		letter.Error,
		letter.RetryCount,
		nullableInt64(letter.SourceID),
		formatTime(time.Now()),
	)
	if err != nil {
		return 0, fmt.Errorf("insert dead letter: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("dead letter insert id: %w", err)
	}
	return id, nil
}

// ListDeadLetters returns recent dead letters, newest first.
func (s *Store) ListDeadLetters(ctx context.Context, limit int) ([]*DeadLetter, error) {
	query := `SELECT id, task_name, payload_json, error, retry_count, source_id, created_at
              FROM dead_letters ORDER BY id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}
	defer rows.Close()

	var letters []*DeadLetter
	for rows.Next() {
		var (
			letter     DeadLetter
			payload    sql.NullString
			sourceID   sql.NullInt64
			createdRaw string
		)
		if err := rows.Scan(&letter.ID, &letter.TaskName, &payload, &letter.Error, &letter.RetryCount, &sourceID, &createdRaw); err != nil {
			return nil, fmt.Errorf("scan dead letter: %w", err)
		}
		letter.PayloadJSON = payload.String
		if sourceID.Valid {
			value := sourceID.Int64
			letter.SourceID = &value
		}
		if created, err := parseTimeString(createdRaw); err == nil {
			letter.CreatedAt = created
		}
		letters = append(letters, &letter)
	}
	return letters, rows.Err()
}
