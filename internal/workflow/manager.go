package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"newsdesk/internal/config"
	"newsdesk/internal/idempotency"
	"newsdesk/internal/ingest"
	"newsdesk/internal/logging"
	"newsdesk/internal/pipeline"
	"newsdesk/internal/store"
)

// Manager runs the background loops of the daemon: the stage pipeline, the
// source poll schedule, and the idempotency retention sweep.
type Manager struct {
	cfg          *config.Config
	store        *store.Store
	orchestrator *pipeline.Orchestrator
	poller       *ingest.Poller
	ledger       *idempotency.Ledger
	logger       *slog.Logger

	pipelineInterval time.Duration
	sourceInterval   time.Duration
	errorRetry       time.Duration
	sweepInterval    time.Duration
	retention        time.Duration

	mu      sync.RWMutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	lastErr error
}

// NewManager wires the daemon loops.
func NewManager(cfg *config.Config, st *store.Store, orchestrator *pipeline.Orchestrator, poller *ingest.Poller, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Manager{
		cfg:              cfg,
		store:            st,
		orchestrator:     orchestrator,
		poller:           poller,
		ledger:           idempotency.NewLedger(st),
		logger:           logger.With(logging.String(logging.FieldComponent, "workflow")),
		pipelineInterval: secondsOrDefault(cfg.Workflow.PipelinePollInterval, 2*time.Second),
		sourceInterval:   secondsOrDefault(cfg.Workflow.SourcePollInterval, 15*time.Minute),
		errorRetry:       secondsOrDefault(cfg.Workflow.ErrorRetryInterval, 10*time.Second),
		sweepInterval:    hoursOrDefault(cfg.Idempotency.SweepIntervalHours, 6*time.Hour),
		retention:        hoursOrDefault(cfg.Idempotency.RetentionHours, 72*time.Hour),
	}
}

func secondsOrDefault(value int, fallback time.Duration) time.Duration {
	if value <= 0 {
		return fallback
	}
	return time.Duration(value) * time.Second
}

func hoursOrDefault(value int, fallback time.Duration) time.Duration {
	if value <= 0 {
		return fallback
	}
	return time.Duration(value) * time.Hour
}

// Start launches the background loops.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return errors.New("workflow already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true

	m.wg.Add(3)
	go m.runPipeline(runCtx)
	go m.runSourcePolls(runCtx)
	go m.runRetentionSweep(runCtx)
	return nil
}

// Stop terminates background processing and waits for the loops to exit.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

// Running reports whether the loops are active.
func (m *Manager) Running() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

// LastError returns the most recent loop error, if any.
func (m *Manager) LastError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastErr
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

// runPipeline drains pending documents one stage at a time. A stage failure
// is already dead-lettered by the orchestrator; the failing document is held
// back for the error-retry interval so the rest of the queue keeps moving,
// and no document is rescheduled outside that pacing.
func (m *Manager) runPipeline(ctx context.Context) {
	defer m.wg.Done()
	holdoff := make(map[int64]time.Time)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		task, err := m.orchestrator.ProcessNextSkipping(ctx, heldDocuments(holdoff, time.Now()))
		switch {
		case err != nil:
			if errors.Is(err, context.Canceled) {
				return
			}
			m.setLastError(err)
			if task != nil {
				holdoff[task.DocumentID] = time.Now().Add(m.errorRetry)
			} else {
				m.sleep(ctx, m.errorRetry)
			}
		case task == nil:
			m.sleep(ctx, m.pipelineInterval)
		default:
			delete(holdoff, task.DocumentID)
		}
	}
}

// heldDocuments prunes expired hold-back entries and returns the ids whose
// retry window is still open.
func heldDocuments(holdoff map[int64]time.Time, now time.Time) []int64 {
	if len(holdoff) == 0 {
		return nil
	}
	held := make([]int64, 0, len(holdoff))
	for id, until := range holdoff {
		if now.After(until) {
			delete(holdoff, id)
			continue
		}
		held = append(held, id)
	}
	return held
}

func (m *Manager) runSourcePolls(ctx context.Context) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.sourceInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats, err := m.poller.PollAll(ctx)
			if err != nil {
				m.setLastError(err)
				m.logger.Error("source poll run failed", logging.Error(err))
				continue
			}
			m.logger.Info("source poll run completed",
				logging.Int("polled", stats.SourcesPolled),
				logging.Int("skipped", stats.SourcesSkipped),
				logging.Int("failed", stats.SourcesFailed),
				logging.Int("ingested", stats.ItemsIngested),
			)
		}
	}
}

func (m *Manager) runRetentionSweep(ctx context.Context) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			purged, err := m.ledger.Purge(ctx, m.retention)
			if err != nil {
				m.setLastError(err)
				m.logger.Error("idempotency sweep failed", logging.Error(err))
				continue
			}
			if purged > 0 {
				m.logger.Info("idempotency records purged", logging.Int64("purged", purged))
			}
		}
	}
}

func (m *Manager) sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
