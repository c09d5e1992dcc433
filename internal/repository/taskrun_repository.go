package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/helixir/paper-digest-service/internal/domain"
)

// TaskRunRepository manages orchestrator run audit rows. Rows are append-only
// while a run is live and are purged after the retention window.
type TaskRunRepository interface {
	// Create inserts a new running task run row.
	Create(ctx context.Context, run *domain.TaskRun) (*domain.TaskRun, error)

	// Finish records the terminal status, summary, and finish time of a run.
	// Returns domain.ErrNotFound if the run does not exist.
	Finish(ctx context.Context, id uuid.UUID, status domain.TaskRunStatus, summary *domain.RunSummary, errorDetail string, finishedAt time.Time) error

	// GetByID retrieves a task run by its UUID.
	// Returns domain.ErrNotFound if no matching run exists.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.TaskRun, error)

	// List retrieves task runs matching the filter, newest first.
	// Returns the matching runs and total count for pagination.
	List(ctx context.Context, filter TaskRunFilter) ([]*domain.TaskRun, int64, error)

	// PurgeOlderThan deletes terminal runs that started before the cutoff.
	// Returns the number of rows deleted.
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// TaskRunFilter specifies criteria for listing task runs.
type TaskRunFilter struct {
	// Kind filters to runs of a specific task kind (optional).
	Kind *domain.TaskKind

	// Status filters to runs with a specific status (optional).
	Status *domain.TaskRunStatus

	// Trigger filters to runs started by a specific trigger (optional).
	Trigger *domain.TriggerType

	// Limit specifies maximum number of results (default: 100, max: 1000).
	Limit int

	// Offset specifies the starting position for pagination.
	Offset int
}

// Validate checks if the filter has valid values and sets defaults.
func (f *TaskRunFilter) Validate() error {
	applyPaginationDefaults(&f.Limit, &f.Offset)
	return nil
}
