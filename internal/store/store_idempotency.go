package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// GetIdempotencyRecord returns the stored record for (token, endpoint), or
// nil when none exists.
func (s *Store) GetIdempotencyRecord(ctx context.Context, token, endpoint string) (*IdempotencyRecord, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT token, endpoint, body_hash, response_json, created_at
         FROM idempotency_keys WHERE token = ? AND endpoint = ?`,
		token, endpoint,
	)
	var (
		record     IdempotencyRecord
		createdRaw string
	)
	err := row.Scan(&record.Token, &record.Endpoint, &record.BodyHash, &record.ResponseJSON, &createdRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get idempotency record: %w", err)
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		record.CreatedAt = created
	}
	return &record, nil
}

// InsertIdempotencyRecordTx stores a completed operation's response inside
// the caller's transaction, so the ledger row commits with the mutation it
// guards.
func (s *Store) InsertIdempotencyRecordTx(ctx context.Context, tx *sql.Tx, record *IdempotencyRecord) error {
	if record == nil {
		return errors.New("idempotency record is nil")
	}
	if _, err := tx.ExecContext(
		ctx,
		`INSERT INTO idempotency_keys (token, endpoint, body_hash, response_json, created_at)
         VALUES (?, ?, ?, ?, ?)`,
		record.Token,
		record.Endpoint,
		record.BodyHash,
		record.ResponseJSON,
		formatTime(time.Now()),
	); err != nil {
		return fmt.Errorf("insert idempotency record: %w", err)
	}
	return nil
}

// PurgeIdempotencyRecords deletes records older than the cutoff. Best effort;
// returns the number removed.
func (s *Store) PurgeIdempotencyRecords(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.execWithRetry(
		ctx,
		`DELETE FROM idempotency_keys WHERE created_at < ?`,
		formatTime(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("purge idempotency records: %w", err)
	}
	return res.RowsAffected()
}
