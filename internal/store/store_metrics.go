package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// MetricDate formats a time as the daily_metrics primary key.
func MetricDate(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

var metricFields = map[MetricField]struct{}{
	MetricIngested:  {},
	MetricTriaged:   {},
	MetricAnalyzed:  {},
	MetricVerified:  {},
	MetricRejected:  {},
	MetricPublished: {},
}

func bumpMetricSQL(field MetricField) (string, error) {
	// Field names are interpolated into the statement, so only known
	// columns are accepted.
	if _, ok := metricFields[field]; !ok {
		return "", fmt.Errorf("unknown metric field %q", field)
	}
	column := string(field)
	return `INSERT INTO daily_metrics (date, ` + column + `) VALUES (?, 1)
            ON CONFLICT(date) DO UPDATE SET ` + column + ` = ` + column + ` + 1`, nil
}

// BumpMetricTx atomically increments one daily counter inside the caller's
// transaction. The upsert-and-increment happens in a single statement so
// concurrent bumps for the same date never lose updates.
func (s *Store) BumpMetricTx(ctx context.Context, tx *sql.Tx, date string, field MetricField) error {
	query, err := bumpMetricSQL(field)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, query, date); err != nil {
		return fmt.Errorf("bump metric %s: %w", field, err)
	}
	return nil
}

// BumpMetric increments one daily counter in its own transaction.
func (s *Store) BumpMetric(ctx context.Context, date string, field MetricField) error {
	query, err := bumpMetricSQL(field)
	if err != nil {
		return err
	}
	if err := s.execWithoutResultRetry(ctx, query, date); err != nil {
		return fmt.Errorf("bump metric %s: %w", field, err)
	}
	return nil
}

// GetDailyMetric returns the counters for a date. A date with no activity
// returns a zero-valued row.
func (s *Store) GetDailyMetric(ctx context.Context, date string) (*DailyMetric, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT date, ingested_count, triaged_count, analyzed_count,
                verified_count, rejected_count, published_count
         FROM daily_metrics WHERE date = ?`,
		date,
	)
	metric := &DailyMetric{Date: date}
	err := row.Scan(
		&metric.Date, &metric.Ingested, &metric.Triaged, &metric.Analyzed,
		&metric.Verified, &metric.Rejected, &metric.Published,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return metric, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get daily metric: %w", err)
	}
	return metric, nil
}

// ListDailyMetrics returns counters for the most recent days, newest first.
func (s *Store) ListDailyMetrics(ctx context.Context, limit int) ([]*DailyMetric, error) {
	query := `SELECT date, ingested_count, triaged_count, analyzed_count,
                     verified_count, rejected_count, published_count
              FROM daily_metrics ORDER BY date DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list daily metrics: %w", err)
	}
	defer rows.Close()

	var metrics []*DailyMetric
	for rows.Next() {
		metric := &DailyMetric{}
		if err := rows.Scan(
			&metric.Date, &metric.Ingested, &metric.Triaged, &metric.Analyzed,
			&metric.Verified, &metric.Rejected, &metric.Published,
		); err != nil {
			return nil, fmt.Errorf("scan daily metric: %w", err)
		}
		metrics = append(metrics, metric)
	}
	return metrics, rows.Err()
}
