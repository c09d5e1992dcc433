// Package domain provides domain models and business logic for the Paper Digest Service.
package domain

// PaperStatus represents the lifecycle states of a paper in the analysis pipeline.
// These values must match the database enum paper_status.
type PaperStatus string

const (
	PaperStatusDiscovered PaperStatus = "discovered"
	PaperStatusAnalyzing  PaperStatus = "analyzing"
	PaperStatusCompleted  PaperStatus = "completed"
	PaperStatusFailed     PaperStatus = "failed"
)

// IsTerminal returns true if the status represents a final state that will not
// change without an explicit regenerate request.
func (s PaperStatus) IsTerminal() bool {
	switch s {
	case PaperStatusCompleted, PaperStatusFailed:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether the pipeline state machine permits a
// transition from s to next. The only legal edges are
// discovered→analyzing, analyzing→completed, analyzing→failed, and
// failed→analyzing (retry re-entry).
func (s PaperStatus) CanTransitionTo(next PaperStatus) bool {
	switch s {
	case PaperStatusDiscovered:
		return next == PaperStatusAnalyzing
	case PaperStatusAnalyzing:
		return next == PaperStatusCompleted || next == PaperStatusFailed
	case PaperStatusFailed:
		return next == PaperStatusAnalyzing
	default:
		return false
	}
}

// ReportStatus represents the terminal state of a report generation.
// These values must match the database enum report_status.
type ReportStatus string

const (
	ReportStatusSuccess ReportStatus = "success"
	ReportStatusFailed  ReportStatus = "failed"
)

// TaskKind identifies the kind of work a task run or work item performs.
// These values must match the database enum task_kind.
type TaskKind string

const (
	TaskKindCrawl   TaskKind = "crawl"
	TaskKindAnalyze TaskKind = "analyze"
)

// TriggerType records how a task run was initiated.
// These values must match the database enum trigger_type.
type TriggerType string

const (
	TriggerScheduled TriggerType = "scheduled"
	TriggerManual    TriggerType = "manual"
)

// TaskRunStatus represents the state of an orchestrator invocation.
// These values must match the database enum task_run_status.
type TaskRunStatus string

const (
	TaskRunStatusRunning TaskRunStatus = "running"
	TaskRunStatusSuccess TaskRunStatus = "success"
	TaskRunStatusPartial TaskRunStatus = "partial"
	TaskRunStatusFailed  TaskRunStatus = "failed"
	TaskRunStatusAborted TaskRunStatus = "aborted"
)

// IsTerminal returns true if the status represents a final state.
func (s TaskRunStatus) IsTerminal() bool {
	return s != TaskRunStatusRunning
}

// SourceType represents the external listing that provided paper data.
// These values must match the database enum source_type.
type SourceType string

const (
	SourceTypeHuggingFace SourceType = "huggingface"
	SourceTypeArXiv       SourceType = "arxiv"
)

// WorkItemState represents the state of a persisted work item.
// These values must match the database enum work_item_state.
type WorkItemState string

const (
	WorkItemStatePending   WorkItemState = "pending"
	WorkItemStateRunning   WorkItemState = "running"
	WorkItemStateSucceeded WorkItemState = "succeeded"
	WorkItemStateFailed    WorkItemState = "failed"
	WorkItemStateSkipped   WorkItemState = "skipped"
)
