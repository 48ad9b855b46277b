package store

import (
	"time"

	"newsdesk/internal/lifecycle"
)

// SourceMethod identifies how a source's items are fetched.
type SourceMethod string

const (
	MethodRSS    SourceMethod = "rss"
	MethodHTML   SourceMethod = "html"
	MethodManual SourceMethod = "manual"
)

// Source is a configured origin of raw documents.
type Source struct {
	ID              int64
	Name            string
	Method          SourceMethod
	URL             string
	ConfigJSON      string
	Active          bool
	TrustTier       int
	CooldownSeconds int
	LastPolledAt    *time.Time
	LastSuccessAt   *time.Time
	LastError       string
	FailureCount    int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// InCooldown reports whether the source should be skipped at the given time.
func (src *Source) InCooldown(now time.Time) bool {
	if src.CooldownSeconds <= 0 || src.LastSuccessAt == nil {
		return false
	}
	return now.Before(src.LastSuccessAt.Add(time.Duration(src.CooldownSeconds) * time.Second))
}

// SourceCursor holds incremental-fetch state for a source.
type SourceCursor struct {
	SourceID     int64
	ETag         string
	LastModified string
	CursorJSON   string
	UpdatedAt    time.Time
}

// RawDocument is one external fetch result, unique per (source, external id).
type RawDocument struct {
	ID           int64
	SourceID     int64
	ExternalID   string
	URL          string
	Title        string
	PublishedAt  *time.Time
	RawText      string
	RawHTML      string
	HTTPMetaJSON string
	Fingerprint  string
	FetchedAt    time.Time
}

// Document is a pipeline work item with a lifecycle status.
type Document struct {
	ID             int64
	RawDocumentID  int64
	NormalizedText string
	Status         lifecycle.Status
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// DocumentDuplicate is a directed dedup edge, append-only.
type DocumentDuplicate struct {
	DocumentID  int64
	DuplicateOf int64
	Similarity  float64
	Method      string
	DetectedAt  time.Time
}

// EditorStatus is the human review verdict on an insight.
type EditorStatus string

const (
	EditorPending  EditorStatus = "pending"
	EditorApproved EditorStatus = "approved"
	EditorRejected EditorStatus = "rejected"
)

// Insight is the analysis result for a document, at most one per document.
// Claims, citations, and protocols are replaced wholesale on re-analysis.
type Insight struct {
	ID                     int64
	DocumentID             int64
	IsRelevant             bool
	NoveltyScore           int
	Headline               string
	ConfidenceLabel        string
	SummaryMarkdown        string
	EditorStatus           EditorStatus
	NeedsHumanVerification bool
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// Claim is one extracted assertion owned by an insight.
type Claim struct {
	ID               int64
	InsightID        int64
	Text             string
	ClaimType        string
	Confidence       float64
	EvidenceStrength string
	RiskFlagsJSON    string
}

// Citation supports a claim.
type Citation struct {
	ID          int64
	ClaimID     int64
	Title       string
	URL         string
	SourceName  string
	PublishedAt string
}

// Protocol is an actionable regimen extracted by analysis. Dose must carry a
// numeric quantity and safety notes must be non-empty or the whole analysis
// write is rejected.
type Protocol struct {
	ID          int64
	InsightID   int64
	Name        string
	Dose        string
	Frequency   string
	Duration    string
	SafetyNotes string
}

// StageRun is an append-only provenance row for one stage execution attempt.
type StageRun struct {
	ID             int64
	DocumentID     int64
	Stage          string
	Provider       string
	Model          string
	PromptVersion  string
	PromptChecksum string
	InputTokens    int64
	OutputTokens   int64
	LatencyMS      int64
	CostUSD        float64
	RawOutput      string
	CreatedAt      time.Time
}

// IdempotencyRecord caches the response of a completed mutating operation.
type IdempotencyRecord struct {
	Token        string
	Endpoint     string
	BodyHash     string
	ResponseJSON string
	CreatedAt    time.Time
}

// DeadLetter records a terminally failed task for inspection or replay.
type DeadLetter struct {
	ID          int64
	TaskName    string
	PayloadJSON string
	Error       string
	RetryCount  int
	SourceID    *int64
	CreatedAt   time.Time
}

// MetricField names one daily counter column.
type MetricField string

const (
	MetricIngested  MetricField = "ingested_count"
	MetricTriaged   MetricField = "triaged_count"
	MetricAnalyzed  MetricField = "analyzed_count"
	MetricVerified  MetricField = "verified_count"
	MetricRejected  MetricField = "rejected_count"
	MetricPublished MetricField = "published_count"
)

// DailyMetric is one row of per-day pipeline counters.
type DailyMetric struct {
	Date      string
	Ingested  int64
	Triaged   int64
	Analyzed  int64
	Verified  int64
	Rejected  int64
	Published int64
}

// BundleStatus tracks whether a bundle has been delivered.
type BundleStatus string

const (
	BundleDraft     BundleStatus = "draft"
	BundlePublished BundleStatus = "published"
)

// Bundle collects approved insights for one publication window.
type Bundle struct {
	ID             int64
	PeriodStart    time.Time
	PeriodEnd      time.Time
	NewsletterHTML string
	SocialText     string
	Status         BundleStatus
	ExternalPostID string
	ExternalURL    string
	PublishError   string
	InsightIDs     []int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// InboxEntry is one row of the review queue listing.
type InboxEntry struct {
	DocumentID             int64
	InsightID              int64
	SourceName             string
	Headline               string
	NoveltyScore           int
	ConfidenceLabel        string
	EditorStatus           EditorStatus
	NeedsHumanVerification bool
	Status                 lifecycle.Status
	UpdatedAt              time.Time
}
