package pipeline

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"newsdesk/internal/dedup"
	"newsdesk/internal/ingest"
	"newsdesk/internal/lifecycle"
	"newsdesk/internal/llm"
	"newsdesk/internal/logging"
	"newsdesk/internal/services"
	"newsdesk/internal/store"
)

// stageForStatus maps a document's current status to the stage that advances
// it. Statuses absent here have no scheduled work.
var stageForStatus = map[lifecycle.Status]llm.Stage{
	lifecycle.StatusIngested: llm.StageTriage,
	lifecycle.StatusTriaged:  llm.StageAnalysis,
	lifecycle.StatusAnalyzed: llm.StageVerification,
}

// PendingStatuses lists the statuses with schedulable pipeline work, in
// pipeline order.
func PendingStatuses() []lifecycle.Status {
	return []lifecycle.Status{
		lifecycle.StatusIngested,
		lifecycle.StatusTriaged,
		lifecycle.StatusAnalyzed,
	}
}

// Task describes one completed unit of pipeline work.
type Task struct {
	DocumentID int64
	Stage      llm.Stage
}

// Orchestrator drives documents from ingested to ready_for_review.
type Orchestrator struct {
	store    *store.Store
	executor *llm.Executor
	detector *dedup.Detector
	logger   *slog.Logger
}

// New builds an orchestrator.
func New(st *store.Store, executor *llm.Executor, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Orchestrator{
		store:    st,
		executor: executor,
		detector: dedup.NewDetector(st, logger),
		logger:   logger.With(logging.String(logging.FieldComponent, "pipeline")),
	}
}

// IngestItem implements ingest.Ingestor. The upsert is keyed by
// (source, external id): an item already fetched is skipped entirely, with no
// new document and no pipeline trigger. First insert creates a document at
// ingested, runs dedup, and leaves triage to the scheduler.
func (o *Orchestrator) IngestItem(ctx context.Context, source *store.Source, item ingest.Item) (*store.Document, bool, error) {
	externalID := strings.TrimSpace(item.ExternalID)
	if externalID == "" {
		return nil, false, services.Wrap(services.ErrValidation, "", "ingest item", "item has no external id", nil)
	}
	text := item.RawText
	if strings.TrimSpace(text) == "" {
		text = item.Title
	}
	normalized := ingest.Normalize(text)
	if normalized == "" {
		return nil, false, services.Wrap(services.ErrValidation, "", "ingest item",
			fmt.Sprintf("item %q has no text content", externalID), nil)
	}

	existing, err := o.store.FindRawDocument(ctx, source.ID, externalID)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return nil, false, nil
	}

	var metaJSON string
	if len(item.HTTPMeta) > 0 {
		if encoded, err := json.Marshal(item.HTTPMeta); err == nil {
			metaJSON = string(encoded)
		}
	}
	raw, err := o.store.InsertRawDocument(ctx, &store.RawDocument{
		SourceID:     source.ID,
		ExternalID:   externalID,
		URL:          item.URL,
		Title:        item.Title,
		PublishedAt:  item.PublishedAt,
		RawText:      item.RawText,
		RawHTML:      item.RawHTML,
		HTTPMetaJSON: metaJSON,
	})
	if err != nil {
		// A concurrent ingest of the same item won the insert; treat as skipped.
		if errors.Is(err, services.ErrConflict) {
			return nil, false, nil
		}
		return nil, false, err
	}

	doc, err := o.store.CreateDocument(ctx, raw.ID, normalized)
	if err != nil {
		return nil, false, err
	}
	if err := o.store.BumpMetric(ctx, store.MetricDate(time.Now()), store.MetricIngested); err != nil {
		return nil, false, err
	}

	if _, err := o.detector.Run(ctx, doc); err != nil {
		// Dedup is advisory; a failure here must not lose the document.
		o.logger.Warn("dedup failed",
			logging.Int64(logging.FieldDocumentID, doc.ID),
			logging.Error(err),
		)
	}

	o.logger.Info("document ingested",
		logging.Int64(logging.FieldDocumentID, doc.ID),
		logging.Int64(logging.FieldSourceID, source.ID),
		logging.String("external_id", externalID),
	)
	return doc, true, nil
}

// ManualIngest injects an operator-supplied document through the normal
// ingestion path.
func (o *Orchestrator) ManualIngest(ctx context.Context, sourceID int64, externalID, title, text string) (*store.Document, error) {
	source, err := o.store.GetSource(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	doc, created, err := o.IngestItem(ctx, source, ingest.Item{
		ExternalID: externalID,
		Title:      title,
		RawText:    text,
	})
	if err != nil {
		return nil, err
	}
	if !created {
		return nil, services.Wrap(services.ErrConflict, "", "manual ingest",
			fmt.Sprintf("item %q already ingested for source %d", externalID, sourceID), nil)
	}
	return doc, nil
}

// ProcessNext claims the oldest document with schedulable work and runs its
// next stage to completion. Returns the completed task, or nil when the
// pipeline is idle. A stage failure dead-letters and surfaces the error; the
// document keeps its pre-stage status and is not rescheduled automatically.
func (o *Orchestrator) ProcessNext(ctx context.Context) (*Task, error) {
	return o.ProcessNextSkipping(ctx, nil)
}

// ProcessNextSkipping is ProcessNext with a hold-back list. The scheduler
// passes documents whose last stage failed recently so they do not block the
// rest of the queue while their retry window runs.
func (o *Orchestrator) ProcessNextSkipping(ctx context.Context, skip []int64) (*Task, error) {
	doc, err := o.store.NextDocumentByStatusExcluding(ctx, skip, PendingStatuses()...)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, nil
	}
	stage := stageForStatus[doc.Status]
	task := &Task{DocumentID: doc.ID, Stage: stage}
	if err := o.runStage(ctx, doc, stage); err != nil {
		return task, err
	}
	return task, nil
}

// ProcessDocument runs the next stage for one specific document.
func (o *Orchestrator) ProcessDocument(ctx context.Context, documentID int64) (*Task, error) {
	doc, err := o.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	stage, ok := stageForStatus[doc.Status]
	if !ok {
		return nil, services.Wrap(services.ErrValidation, "", "process document",
			fmt.Sprintf("document %d at %s has no pending stage", doc.ID, doc.Status), nil)
	}
	task := &Task{DocumentID: doc.ID, Stage: stage}
	if err := o.runStage(ctx, doc, stage); err != nil {
		return task, err
	}
	return task, nil
}

// runStage executes the provider call outside any transaction, then commits
// StageRun + transition + metric in one transaction. Verification success
// performs the verified -> ready_for_review double transition atomically.
func (o *Orchestrator) runStage(ctx context.Context, doc *store.Document, stage llm.Stage) error {
	ctx = services.WithDocumentID(ctx, doc.ID)
	ctx = services.WithStage(ctx, string(stage))
	logger := logging.WithContext(ctx, o.logger)

	result, execErr := o.executor.Run(ctx, stage, doc.NormalizedText)
	if execErr != nil {
		o.deadLetter(ctx, doc, stage, execErr)
		logger.Error("stage failed", logging.Error(execErr))
		return execErr
	}

	commitErr := o.store.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := o.store.InsertStageRunTx(ctx, tx, &store.StageRun{
			DocumentID:     doc.ID,
			Stage:          string(stage),
			Provider:       result.Provenance.Provider,
			Model:          result.Provenance.Model,
			PromptVersion:  result.Provenance.PromptVersion,
			PromptChecksum: result.Provenance.PromptChecksum,
			InputTokens:    result.Provenance.InputTokens,
			OutputTokens:   result.Provenance.OutputTokens,
			LatencyMS:      result.Provenance.LatencyMS,
			CostUSD:        result.Provenance.CostUSD,
			RawOutput:      result.Raw,
		}); err != nil {
			return err
		}
		return o.applyStageResult(ctx, tx, doc, result)
	})
	if commitErr != nil {
		o.deadLetter(ctx, doc, stage, commitErr)
		logger.Error("stage commit failed", logging.Error(commitErr))
		return commitErr
	}

	logger.Info("stage completed",
		logging.String(logging.FieldProvider, result.Provenance.Provider),
		logging.String(logging.FieldModel, result.Provenance.Model),
		logging.Int64("latency_ms", result.Provenance.LatencyMS),
	)
	return nil
}

func (o *Orchestrator) applyStageResult(ctx context.Context, tx *sql.Tx, doc *store.Document, result *llm.Result) error {
	date := store.MetricDate(time.Now())
	switch result.Stage {
	case llm.StageTriage:
		if !result.Triage.IsRelevant {
			if err := o.store.TransitionDocumentTx(ctx, tx, doc.ID, lifecycle.StatusIngested, lifecycle.StatusRejected); err != nil {
				return err
			}
			return o.store.BumpMetricTx(ctx, tx, date, store.MetricRejected)
		}
		if err := o.store.TransitionDocumentTx(ctx, tx, doc.ID, lifecycle.StatusIngested, lifecycle.StatusTriaged); err != nil {
			return err
		}
		return o.store.BumpMetricTx(ctx, tx, date, store.MetricTriaged)

	case llm.StageAnalysis:
		write := analysisWriteFromOutput(result.Analysis)
		if _, err := o.store.ReplaceAnalysisTx(ctx, tx, doc.ID, write); err != nil {
			return err
		}
		if err := o.store.TransitionDocumentTx(ctx, tx, doc.ID, lifecycle.StatusTriaged, lifecycle.StatusAnalyzed); err != nil {
			return err
		}
		return o.store.BumpMetricTx(ctx, tx, date, store.MetricAnalyzed)

	case llm.StageVerification:
		if !result.Verification.Passed {
			if err := o.store.TransitionDocumentTx(ctx, tx, doc.ID, lifecycle.StatusAnalyzed, lifecycle.StatusRejected); err != nil {
				return err
			}
			return o.store.BumpMetricTx(ctx, tx, date, store.MetricRejected)
		}
		// The only double transition in the pipeline: verified and
		// ready_for_review land in the same commit.
		if err := o.store.TransitionDocumentTx(ctx, tx, doc.ID, lifecycle.StatusAnalyzed, lifecycle.StatusVerified); err != nil {
			return err
		}
		if err := o.store.TransitionDocumentTx(ctx, tx, doc.ID, lifecycle.StatusVerified, lifecycle.StatusReadyForReview); err != nil {
			return err
		}
		return o.store.BumpMetricTx(ctx, tx, date, store.MetricVerified)
	}
	return fmt.Errorf("unknown stage %q", result.Stage)
}

func analysisWriteFromOutput(output *llm.AnalysisOutput) *store.AnalysisWrite {
	write := &store.AnalysisWrite{
		Insight: store.Insight{
			IsRelevant:             true,
			NoveltyScore:           output.NoveltyScore,
			Headline:               output.Headline,
			ConfidenceLabel:        output.ConfidenceLabel,
			SummaryMarkdown:        output.SummaryMarkdown,
			NeedsHumanVerification: output.NeedsHumanVerification,
		},
	}
	for _, claim := range output.Claims {
		var riskFlags string
		if len(claim.RiskFlags) > 0 {
			if encoded, err := json.Marshal(claim.RiskFlags); err == nil {
				riskFlags = string(encoded)
			}
		}
		write.Claims = append(write.Claims, store.Claim{
			Text:             claim.Text,
			ClaimType:        claim.Type,
			Confidence:       claim.Confidence,
			EvidenceStrength: claim.EvidenceStrength,
			RiskFlagsJSON:    riskFlags,
		})
		var citations []store.Citation
		for _, citation := range claim.Citations {
			citations = append(citations, store.Citation{
				Title:       citation.Title,
				URL:         citation.URL,
				SourceName:  citation.SourceName,
				PublishedAt: citation.PublishedAt,
			})
		}
		write.Citations = append(write.Citations, citations)
	}
	for _, protocol := range output.Protocols {
		write.Protocols = append(write.Protocols, store.Protocol{
			Name:        protocol.Name,
			Dose:        protocol.Dose,
			Frequency:   protocol.Frequency,
			Duration:    protocol.Duration,
			SafetyNotes: protocol.SafetyNotes,
		})
	}
	return write
}

func (o *Orchestrator) deadLetter(ctx context.Context, doc *store.Document, stage llm.Stage, cause error) {
	payload, _ := json.Marshal(map[string]any{
		"document_id": doc.ID,
		"stage":       string(stage),
		"status":      doc.Status.String(),
	})
	if _, err := o.store.InsertDeadLetter(ctx, &store.DeadLetter{
		TaskName:    "stage_" + string(stage),
		PayloadJSON: string(payload),
		Error:       cause.Error(),
	}); err != nil {
		o.logger.Error("dead-letter write failed",
			logging.Int64(logging.FieldDocumentID, doc.ID),
			logging.Error(err),
		)
	}
}
