package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/helixir/paper-digest-service/internal/domain"
)

// PaperRepository handles discovered paper persistence and pipeline status.
// Papers are deduplicated by identity: the crawl inserts new papers only and
// reports existing identities as skipped.
type PaperRepository interface {
	// Create inserts a new paper.
	// Returns domain.ErrAlreadyExists if a paper with the same identity
	// is already persisted; the caller counts it as skipped.
	// Returns domain.ErrInvalidInput if the paper has no identity.
	Create(ctx context.Context, paper *domain.Paper) (*domain.Paper, error)

	// GetByID retrieves a paper by its internal UUID.
	// Returns domain.ErrNotFound if no matching paper exists.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Paper, error)

	// GetByIdentity retrieves a paper by its dedupe identity.
	// Returns domain.ErrNotFound if no matching paper exists.
	GetByIdentity(ctx context.Context, identity string) (*domain.Paper, error)

	// List retrieves papers matching the filter criteria.
	// Returns the matching papers and total count for pagination.
	// The total count reflects all matching records regardless of limit/offset.
	List(ctx context.Context, filter PaperFilter) ([]*domain.Paper, int64, error)

	// UpdateStatus performs a compare-and-set status transition.
	// The update applies only when the stored status equals from; the check
	// prevents stale workers from clobbering concurrent progress.
	// Returns domain.ErrInvalidTransition if the stored status differs from
	// the expected one, and domain.ErrNotFound if the paper does not exist.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to domain.PaperStatus) error

	// RecordOutcome sets the paper's terminal status for this attempt along
	// with the attempt counter and last error detail.
	// Returns domain.ErrNotFound if the paper does not exist.
	RecordOutcome(ctx context.Context, id uuid.UUID, status domain.PaperStatus, attemptCount int, lastError string) error
}

// PaperFilter specifies criteria for listing papers.
type PaperFilter struct {
	// Statuses filters to papers in any of the given statuses (optional).
	Statuses []domain.PaperStatus

	// Source filters to papers from a specific source (optional).
	Source *domain.SourceType

	// Identity filters to a single paper identity (optional).
	Identity *string

	// Limit specifies maximum number of results (default: 100, max: 1000).
	Limit int

	// Offset specifies the starting position for pagination.
	Offset int
}

// Validate checks if the filter has valid values and sets defaults.
func (f *PaperFilter) Validate() error {
	applyPaginationDefaults(&f.Limit, &f.Offset)
	return nil
}
