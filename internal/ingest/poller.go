package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"newsdesk/internal/config"
	"newsdesk/internal/logging"
	"newsdesk/internal/store"
)

// Ingestor receives fetched items. The pipeline orchestrator implements this;
// created reports whether the item produced a new document.
type Ingestor interface {
	IngestItem(ctx context.Context, source *store.Source, item Item) (doc *store.Document, created bool, err error)
}

// PollStats summarizes one poll run.
type PollStats struct {
	SourcesPolled  int
	SourcesSkipped int
	SourcesFailed  int
	ItemsSeen      int
	ItemsIngested  int
}

// Poller runs scheduled fetches across active sources.
type Poller struct {
	store           *store.Store
	ingestor        Ingestor
	fetchers        map[store.SourceMethod]Fetcher
	defaultCooldown time.Duration
	logger          *slog.Logger
}

// NewPoller wires fetchers for every pollable source method.
func NewPoller(cfg *config.Config, st *store.Store, ingestor Ingestor, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = logging.NewNop()
	}
	limiter := rate.NewLimiter(rate.Limit(cfg.Ingest.RequestsPerSecond), 1)
	timeout := time.Duration(cfg.Ingest.HTTPTimeoutSeconds) * time.Second
	return &Poller{
		store:    st,
		ingestor: ingestor,
		fetchers: map[store.SourceMethod]Fetcher{
			store.MethodRSS:  NewRSSFetcher(timeout, limiter, cfg.Ingest.UserAgent),
			store.MethodHTML: NewHTMLFetcher(timeout, limiter, cfg.Ingest.UserAgent),
		},
		defaultCooldown: time.Duration(cfg.Ingest.DefaultCooldownSeconds) * time.Second,
		logger:          logger.With(logging.String(logging.FieldComponent, "ingest")),
	}
}

// SetFetcher overrides the fetcher for a method. Used by tests.
func (p *Poller) SetFetcher(method store.SourceMethod, fetcher Fetcher) {
	p.fetchers[method] = fetcher
}

// PollAll fetches every active source that is due. A failing source is
// recorded and dead-lettered but never aborts the rest of the run.
func (p *Poller) PollAll(ctx context.Context) (*PollStats, error) {
	sources, err := p.store.ListSources(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}

	stats := &PollStats{}
	now := time.Now()
	for _, source := range sources {
		if source.Method == store.MethodManual {
			stats.SourcesSkipped++
			continue
		}
		if p.inCooldown(source, now) {
			stats.SourcesSkipped++
			continue
		}
		if err := p.pollSource(ctx, source, stats); err != nil {
			stats.SourcesFailed++
			p.recordFailure(ctx, source, err)
			continue
		}
		stats.SourcesPolled++
	}
	return stats, nil
}

// PollSource fetches a single source immediately, ignoring cooldown.
func (p *Poller) PollSource(ctx context.Context, source *store.Source) (*PollStats, error) {
	stats := &PollStats{}
	if err := p.pollSource(ctx, source, stats); err != nil {
		p.recordFailure(ctx, source, err)
		return stats, err
	}
	stats.SourcesPolled = 1
	return stats, nil
}

func (p *Poller) inCooldown(source *store.Source, now time.Time) bool {
	if source.CooldownSeconds > 0 {
		return source.InCooldown(now)
	}
	if p.defaultCooldown <= 0 || source.LastSuccessAt == nil {
		return false
	}
	return now.Before(source.LastSuccessAt.Add(p.defaultCooldown))
}

func (p *Poller) pollSource(ctx context.Context, source *store.Source, stats *PollStats) error {
	fetcher, ok := p.fetchers[source.Method]
	if !ok {
		return fmt.Errorf("no fetcher for method %q", source.Method)
	}

	cursor, err := p.store.GetCursor(ctx, source.ID)
	if err != nil {
		return err
	}

	result, err := fetcher.Fetch(ctx, source, cursor)
	if err != nil {
		return err
	}

	if result.NotModified {
		p.logger.Debug("source unchanged",
			logging.Int64(logging.FieldSourceID, source.ID),
			logging.String("source", source.Name),
		)
		return p.store.RecordSourceSuccess(ctx, source.ID, time.Now())
	}

	for _, item := range result.Items {
		stats.ItemsSeen++
		_, created, err := p.ingestor.IngestItem(ctx, source, item)
		if err != nil {
			// One bad item should not sink the source's whole batch.
			p.logger.Warn("item ingestion failed",
				logging.Int64(logging.FieldSourceID, source.ID),
				logging.String("external_id", item.ExternalID),
				logging.Error(err),
			)
			continue
		}
		if created {
			stats.ItemsIngested++
		}
	}

	if result.Cursor != nil && (result.Cursor.ETag != "" || result.Cursor.LastModified != "" || result.Cursor.CursorJSON != "") {
		if err := p.store.SetCursor(ctx, &store.SourceCursor{
			SourceID:     source.ID,
			ETag:         result.Cursor.ETag,
			LastModified: result.Cursor.LastModified,
			CursorJSON:   result.Cursor.CursorJSON,
		}); err != nil {
			return err
		}
	}

	if err := p.store.RecordSourceSuccess(ctx, source.ID, time.Now()); err != nil {
		return err
	}
	p.logger.Info("source polled",
		logging.Int64(logging.FieldSourceID, source.ID),
		logging.String("source", source.Name),
		logging.Int("items", len(result.Items)),
	)
	return nil
}

func (p *Poller) recordFailure(ctx context.Context, source *store.Source, pollErr error) {
	now := time.Now()
	if err := p.store.RecordSourceFailure(ctx, source.ID, now, pollErr.Error()); err != nil {
		p.logger.Error("record source failure",
			logging.Int64(logging.FieldSourceID, source.ID),
			logging.Error(err),
		)
	}

	payload, _ := json.Marshal(map[string]any{
		"source_id":   source.ID,
		"source_name": source.Name,
		"method":      string(source.Method),
		"url":         source.URL,
	})
	sourceID := source.ID
	if _, err := p.store.InsertDeadLetter(ctx, &store.DeadLetter{
		TaskName:    "poll_source",
		PayloadJSON: string(payload),
		Error:       pollErr.Error(),
		RetryCount:  source.FailureCount,
		SourceID:    &sourceID,
	}); err != nil {
		p.logger.Error("dead-letter poll failure",
			logging.Int64(logging.FieldSourceID, source.ID),
			logging.Error(err),
		)
	}
	p.logger.Warn("source poll failed",
		logging.Int64(logging.FieldSourceID, source.ID),
		logging.String("source", source.Name),
		logging.Error(pollErr),
	)
}
