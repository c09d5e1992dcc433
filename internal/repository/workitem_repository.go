package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/helixir/paper-digest-service/internal/domain"
)

// WorkItemRepository manages the per-run work item rows that make an
// interrupted run diagnosable after a restart.
type WorkItemRepository interface {
	// CreateBatch inserts all work items for a run in one roundtrip.
	CreateBatch(ctx context.Context, items []*domain.WorkItem) error

	// UpdateState records an item's state change together with its attempt
	// counter and last error.
	// Returns domain.ErrNotFound if the item does not exist.
	UpdateState(ctx context.Context, id uuid.UUID, state domain.WorkItemState, attemptCount int, lastError string) error

	// ListByRun retrieves all work items belonging to a run, oldest first.
	ListByRun(ctx context.Context, runID uuid.UUID) ([]*domain.WorkItem, error)
}
