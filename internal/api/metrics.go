package api

import (
	"context"
	"time"

	"newsdesk/internal/store"
)

// PipelineMetrics returns today's counters.
func (s *Service) PipelineMetrics(ctx context.Context) (*store.DailyMetric, error) {
	return s.store.GetDailyMetric(ctx, store.MetricDate(time.Now()))
}

// MetricsHistory returns recent daily counters, newest first.
func (s *Service) MetricsHistory(ctx context.Context, days int) ([]*store.DailyMetric, error) {
	if days <= 0 {
		days = 14
	}
	return s.store.ListDailyMetrics(ctx, days)
}

// DeadLetters lists recent terminally failed tasks.
func (s *Service) DeadLetters(ctx context.Context, limit int) ([]*store.DeadLetter, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.store.ListDeadLetters(ctx, limit)
}
