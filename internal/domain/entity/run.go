package entity

import "time"

// RunStatus is the final outcome of one pipeline execution.
type RunStatus string

const (
	RunStatusSuccess        RunStatus = "success"
	RunStatusPartialSuccess RunStatus = "partial_success"
	RunStatusFailed         RunStatus = "failed"
)

// Stage identifies a pipeline stage for error attribution.
type Stage string

const (
	StageCollecting    Stage = "collecting"
	StageDeduplicating Stage = "deduplicating"
	StageSummarizing   Stage = "summarizing"
	StagePrioritizing  Stage = "prioritizing"
	StageReporting     Stage = "reporting"
)

// StageError records a contained failure encountered during a run.
type StageError struct {
	Stage   Stage
	Service string
	Message string
}

// RunCounts holds the per-stage item counters for a run.
type RunCounts struct {
	Collected    int
	New          int
	Duplicates   int
	Summarized   int
	FallbackUsed int
	Delivered    int
}

// RunRecord captures the outcome and metrics of one pipeline execution.
// It is append-only: once the run finishes and the record is stored it is
// never mutated.
type RunRecord struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Status     RunStatus
	Counts     RunCounts
	Errors     []StageError
}

// AddError appends a stage-level error to the record.
func (r *RunRecord) AddError(stage Stage, service string, err error) {
	if err == nil {
		return
	}
	r.Errors = append(r.Errors, StageError{Stage: stage, Service: service, Message: err.Error()})
}

// Report is the persisted record of one generated report artifact.
// The HTML body is written to disk before delivery is attempted so a
// delivery failure never loses the generated intelligence.
type Report struct {
	ID           int64
	RunID        string
	PeriodStart  time.Time
	PeriodEnd    time.Time
	ArticleCount int
	ArtifactPath string
	Status       ReportStatus
	ErrorMessage string
	CreatedAt    time.Time
	SentAt       *time.Time
}

// ReportStatus tracks delivery state of a report.
type ReportStatus string

const (
	ReportStatusPending ReportStatus = "pending"
	ReportStatusSent    ReportStatus = "sent"
	ReportStatusFailed  ReportStatus = "failed"
)
