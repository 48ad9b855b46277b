package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// InsertStageRunTx appends a stage provenance row inside the caller's
// transaction. Stage runs are never updated or deleted.
func (s *Store) InsertStageRunTx(ctx context.Context, tx *sql.Tx, run *StageRun) (int64, error) {
	if run == nil {
		return 0, errors.New("stage run is nil")
	}
	res, err := tx.ExecContext(
		ctx,
		`INSERT INTO stage_runs (
            document_id, stage, provider, model, prompt_version, prompt_checksum,
            input_tokens, output_tokens, latency_ms, cost_usd, raw_output, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.DocumentID,
		run.Stage,
		run.Provider,
		run.Model,
		run.PromptVersion,
		run.PromptChecksum,
		run.InputTokens,
		run.OutputTokens,
		run.LatencyMS,
		run.CostUSD,
		nullableString(run.RawOutput),
		formatTime(time.Now()),
	)
	if err != nil {
		return 0, fmt.Errorf("insert stage run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("stage run insert id: %w", err)
	}
	return id, nil
}

// ListStageRuns returns the provenance history for a document, oldest first.
func (s *Store) ListStageRuns(ctx context.Context, documentID int64) ([]*StageRun, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, document_id, stage, provider, model, prompt_version, prompt_checksum,
                input_tokens, output_tokens, latency_ms, cost_usd, raw_output, created_at
         FROM stage_runs WHERE document_id = ? ORDER BY id`,
		documentID,
	)
	if err != nil {
		return nil, fmt.Errorf("list stage runs: %w", err)
	}
	defer rows.Close()

	var runs []*StageRun
	for rows.Next() {
		var (
			run          StageRun
			inputTokens  sql.NullInt64
			outputTokens sql.NullInt64
			latency      sql.NullInt64
			cost         sql.NullFloat64
			rawOutput    sql.NullString
			createdRaw   string
		)
		if err := rows.Scan(
			&run.ID, &run.DocumentID, &run.Stage, &run.Provider, &run.Model,
			&run.PromptVersion, &run.PromptChecksum, &inputTokens, &outputTokens,
			&latency, &cost, &rawOutput, &createdRaw,
		); err != nil {
			return nil, fmt.Errorf("scan stage run: %w", err)
		}
		run.InputTokens = inputTokens.Int64
		run.OutputTokens = outputTokens.Int64
		run.LatencyMS = latency.Int64
		run.CostUSD = cost.Float64
		run.RawOutput = rawOutput.String
		if created, err := parseTimeString(createdRaw); err == nil {
			run.CreatedAt = created
		}
		runs = append(runs, &run)
	}
	return runs, rows.Err()
}
