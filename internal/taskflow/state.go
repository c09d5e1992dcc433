package taskflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/helixir/paper-digest-service/internal/database"
	"github.com/helixir/paper-digest-service/internal/domain"
	"github.com/helixir/paper-digest-service/internal/repository"
)

// TxRunner executes a function inside one database transaction.
// *database.DB satisfies it.
type TxRunner interface {
	WithTransaction(ctx context.Context, fn func(tx pgx.Tx) error) error
}

// TxRepos bundles the repositories needed inside one transaction scope.
type TxRepos struct {
	Papers  repository.PaperRepository
	Reports repository.ReportRepository
}

// newPgTxRepos binds the PostgreSQL repositories to a transaction.
func newPgTxRepos(tx database.DBTX) TxRepos {
	return TxRepos{
		Papers:  repository.NewPgPaperRepository(tx),
		Reports: repository.NewPgReportRepository(tx),
	}
}

// StateMachine drives papers through the pipeline lifecycle. Transitions
// are compare-and-set so a stale worker can never clobber progress made by
// a lease thief, and the completing transition persists the report row and
// the status change atomically: no observable state has a completed paper
// without its report or vice versa.
type StateMachine struct {
	db      TxRunner
	papers  repository.PaperRepository
	txRepos func(tx database.DBTX) TxRepos
}

// NewStateMachine creates a state machine over the given transaction
// runner and pool-scoped paper repository.
func NewStateMachine(db TxRunner, papers repository.PaperRepository) *StateMachine {
	return &StateMachine{
		db:      db,
		papers:  papers,
		txRepos: newPgTxRepos,
	}
}

// Begin moves a paper into the analyzing state. Legal entry points are
// discovered (first analysis) and failed (retry re-entry).
func (s *StateMachine) Begin(ctx context.Context, paper *domain.Paper) error {
	switch paper.Status {
	case domain.PaperStatusDiscovered, domain.PaperStatusFailed:
	default:
		return &domain.InvalidTransitionError{
			Identity: paper.Identity,
			From:     paper.Status,
			To:       domain.PaperStatusAnalyzing,
		}
	}

	if err := s.papers.UpdateStatus(ctx, paper.ID, paper.Status, domain.PaperStatusAnalyzing); err != nil {
		return err
	}

	paper.Status = domain.PaperStatusAnalyzing
	return nil
}

// Complete persists the successful report and moves the paper to
// completed in one transaction. Reports are append-only: completing an
// already completed paper (forced regeneration) appends a fresh report
// row and refreshes the outcome without a status transition.
//
// Returns domain.ErrAlreadyExists untouched when the report insert
// conflicts; the caller treats that as an idempotent success and calls
// MarkCompleted.
func (s *StateMachine) Complete(ctx context.Context, paper *domain.Paper, report *domain.Report, attempts int) error {
	err := s.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		repos := s.txRepos(tx)

		if _, err := repos.Reports.Create(ctx, report); err != nil {
			return err
		}

		if paper.Status != domain.PaperStatusCompleted {
			if err := repos.Papers.UpdateStatus(ctx, paper.ID, domain.PaperStatusAnalyzing, domain.PaperStatusCompleted); err != nil {
				return err
			}
		}

		return repos.Papers.RecordOutcome(ctx, paper.ID, domain.PaperStatusCompleted, attempts, "")
	})
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyExists) {
			return err
		}
		return fmt.Errorf("failed to complete paper %s: %w", paper.Identity, err)
	}

	paper.Status = domain.PaperStatusCompleted
	return nil
}

// MarkCompleted moves the paper to completed without writing a report.
// Used when the report row already exists: after a persistence conflict,
// and during reconciliation repair of a stale paper.
func (s *StateMachine) MarkCompleted(ctx context.Context, paper *domain.Paper, attempts int) error {
	if paper.Status == domain.PaperStatusCompleted {
		return nil
	}

	if err := s.papers.RecordOutcome(ctx, paper.ID, domain.PaperStatusCompleted, attempts, ""); err != nil {
		return fmt.Errorf("failed to mark paper %s completed: %w", paper.Identity, err)
	}

	paper.Status = domain.PaperStatusCompleted
	return nil
}

// Fail records a failed report row and moves the paper to failed in one
// transaction. The failed report keeps the error in the append-only
// history; the paper-level attempt count and last error make the item
// eligible for a later retry run.
func (s *StateMachine) Fail(ctx context.Context, paper *domain.Paper, report *domain.Report, attempts int, cause error) error {
	detail := errString(cause)

	err := s.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		repos := s.txRepos(tx)

		if report != nil {
			if _, err := repos.Reports.Create(ctx, report); err != nil {
				return err
			}
		}

		if err := repos.Papers.UpdateStatus(ctx, paper.ID, domain.PaperStatusAnalyzing, domain.PaperStatusFailed); err != nil {
			return err
		}

		return repos.Papers.RecordOutcome(ctx, paper.ID, domain.PaperStatusFailed, attempts, detail)
	})
	if err != nil {
		return fmt.Errorf("failed to record failure for paper %s: %w", paper.Identity, err)
	}

	paper.Status = domain.PaperStatusFailed
	paper.AttemptCount = attempts
	paper.LastError = detail
	return nil
}
