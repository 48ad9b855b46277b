package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"newsdesk/internal/idempotency"
	"newsdesk/internal/ingest"
	"newsdesk/internal/logging"
	"newsdesk/internal/pipeline"
	"newsdesk/internal/publish"
	"newsdesk/internal/store"
)

// Service is the operations facade exposed to external collaborators. Every
// mutating operation takes a caller-supplied idempotency token: a replay with
// the same token and body returns the original response, a replay with a
// different body is rejected.
type Service struct {
	store        *store.Store
	ledger       *idempotency.Ledger
	poller       *ingest.Poller
	orchestrator *pipeline.Orchestrator
	publisher    publish.Publisher
	logger       *slog.Logger
}

// New builds the facade.
func New(st *store.Store, poller *ingest.Poller, orchestrator *pipeline.Orchestrator, publisher publish.Publisher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Service{
		store:        st,
		ledger:       idempotency.NewLedger(st),
		poller:       poller,
		orchestrator: orchestrator,
		publisher:    publisher,
		logger:       logger.With(logging.String(logging.FieldComponent, "api")),
	}
}

// resolve runs the ledger check for a mutating call. A non-nil cached slice
// means the call is a replay and holds the original response.
func (s *Service) resolve(ctx context.Context, token, endpoint string, req any) (cached []byte, bodyHash string, err error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, "", fmt.Errorf("encode %s request: %w", endpoint, err)
	}
	record, hash, err := s.ledger.Resolve(ctx, token, endpoint, body)
	if err != nil {
		return nil, "", err
	}
	if record != nil {
		return []byte(record.ResponseJSON), hash, nil
	}
	return nil, hash, nil
}

// recordResponse persists the ledger row for the mutations that genuinely
// span multiple store calls or the network (create-source, poll triggers,
// manual ingest) and so cannot commit the row with the mutation itself.
// Mutations that commit through one store transaction write the ledger row
// inside that transaction instead.
func (s *Service) recordResponse(ctx context.Context, token, endpoint, bodyHash string, response any) error {
	encoded, err := json.Marshal(response)
	if err != nil {
		return fmt.Errorf("encode %s response: %w", endpoint, err)
	}
	return s.store.WithTx(ctx, func(tx *sql.Tx) error {
		return s.ledger.StoreTx(ctx, tx, token, endpoint, bodyHash, string(encoded))
	})
}

func decodeCached[T any](cached []byte) (*T, error) {
	var out T
	if err := json.Unmarshal(cached, &out); err != nil {
		return nil, fmt.Errorf("decode cached response: %w", err)
	}
	return &out, nil
}
