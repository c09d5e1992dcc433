package domain

import (
	"time"

	"github.com/google/uuid"
)

// DefaultTaskRunRetention is how long task run audit rows are kept before
// the scheduled purge removes them.
const DefaultTaskRunRetention = 90 * 24 * time.Hour

// ItemOutcome records the terminal result of one work item within a run.
type ItemOutcome struct {
	Identity string `json:"identity"`
	Outcome  string `json:"outcome"`
	Attempts int    `json:"attempts,omitempty"`
	Error    string `json:"error,omitempty"`
}

// RunSummary aggregates per-item outcomes of one orchestrator invocation.
type RunSummary struct {
	Found     int           `json:"found"`
	New       int           `json:"new"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Skipped   int           `json:"skipped"`
	Errored   int           `json:"errored"`
	Errors    []ItemOutcome `json:"errors,omitempty"`
}

// TaskRun is the audit record of one orchestrator invocation. Rows are
// append-only and retained for a bounded window (DefaultTaskRunRetention).
type TaskRun struct {
	ID          uuid.UUID
	Kind        TaskKind
	Trigger     TriggerType
	Params      map[string]interface{}
	Status      TaskRunStatus
	Summary     *RunSummary
	ErrorDetail string
	StartedAt   time.Time
	FinishedAt  *time.Time
	CreatedAt   time.Time
}

// Duration returns the elapsed run time, or zero if the run has not finished.
func (t *TaskRun) Duration() time.Duration {
	if t.FinishedAt == nil {
		return 0
	}
	return t.FinishedAt.Sub(t.StartedAt)
}
