package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/helixir/paper-digest-service/internal/domain"
)

// ReportRepository manages the append-only report history. A regeneration
// inserts a new row; existing rows are never mutated.
type ReportRepository interface {
	// Create inserts a new report row. The history is append-only, so a
	// second successful report for the same paper and model is a regular
	// insert; a key conflict returns domain.ErrAlreadyExists, which
	// callers treat as an idempotent success.
	Create(ctx context.Context, report *domain.Report) (*domain.Report, error)

	// GetByID retrieves a report by its UUID.
	// Returns domain.ErrNotFound if no matching report exists.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Report, error)

	// GetLatestSuccessful retrieves the most recent successful report for a
	// paper and model. Used as the regeneration dedupe check.
	// Returns domain.ErrNotFound if none exists.
	GetLatestSuccessful(ctx context.Context, paperID uuid.UUID, model string) (*domain.Report, error)

	// ListByPaper retrieves all reports for a paper, newest first.
	ListByPaper(ctx context.Context, paperID uuid.UUID) ([]*domain.Report, error)
}
