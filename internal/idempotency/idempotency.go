package idempotency

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"newsdesk/internal/services"
	"newsdesk/internal/store"
)

// BodyHash computes a canonical hash of a JSON request body. The body is
// decoded and re-encoded so that object keys serialize in a deterministic
// order; semantically identical bodies hash identically regardless of field
// order in the original payload.
func BodyHash(body []byte) (string, error) {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		trimmed = "{}"
	}
	var decoded any
	if err := json.Unmarshal([]byte(trimmed), &decoded); err != nil {
		return "", services.Wrap(services.ErrValidation, "", "hash request body", "request body is not valid JSON", err)
	}
	canonical, err := json.Marshal(decoded)
	if err != nil {
		return "", fmt.Errorf("canonicalize body: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// Ledger deduplicates mutating operations by caller token and endpoint.
type Ledger struct {
	store *store.Store
}

// NewLedger builds a ledger over the content store.
func NewLedger(st *store.Store) *Ledger {
	return &Ledger{store: st}
}

// Resolve checks for a prior completed run of (token, endpoint). It returns
// the cached record when the body matches, an ErrConflict when the token was
// reused with a different body, and (nil, hash) when the caller should
// proceed with the mutation.
func (l *Ledger) Resolve(ctx context.Context, token, endpoint string, body []byte) (*store.IdempotencyRecord, string, error) {
	if strings.TrimSpace(token) == "" {
		return nil, "", services.Wrap(services.ErrMissingIdempotencyKey, "", endpoint, "idempotency token is required for mutating operations", nil)
	}
	hash, err := BodyHash(body)
	if err != nil {
		return nil, "", err
	}

	record, err := l.store.GetIdempotencyRecord(ctx, token, endpoint)
	if err != nil {
		return nil, "", err
	}
	if record == nil {
		return nil, hash, nil
	}
	if record.BodyHash != hash {
		return nil, "", services.Wrap(services.ErrConflict, "", endpoint,
			fmt.Sprintf("idempotency token %q reused with a different request body", token), nil)
	}
	return record, hash, nil
}

// StoreTx persists the response of a completed mutation inside the caller's
// transaction, so the ledger row and the mutation commit together.
func (l *Ledger) StoreTx(ctx context.Context, tx *sql.Tx, token, endpoint, bodyHash, responseJSON string) error {
	return l.store.InsertIdempotencyRecordTx(ctx, tx, &store.IdempotencyRecord{
		Token:        token,
		Endpoint:     endpoint,
		BodyHash:     bodyHash,
		ResponseJSON: responseJSON,
	})
}

// Purge removes records older than the retention window. Best effort.
func (l *Ledger) Purge(ctx context.Context, retention time.Duration) (int64, error) {
	return l.store.PurgeIdempotencyRecords(ctx, time.Now().Add(-retention))
}
