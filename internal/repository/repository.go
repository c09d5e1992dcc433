// Package repository provides data access interfaces and implementations
// for the Paper Digest Service.
//
// # Overview
//
// This package defines repository interfaces and their PostgreSQL implementations
// following the repository pattern to abstract data persistence from business logic.
//
// # Repository Interfaces
//
//   - PaperRepository: Manages discovered paper persistence and pipeline status
//   - ReportRepository: Manages the append-only report history
//   - TaskRunRepository: Manages orchestrator run audit rows
//   - LockRepository: Manages the lease-based task lock table
//   - WorkItemRepository: Manages per-run work item rows
//
// # Thread Safety
//
// All repository implementations are safe for concurrent use by multiple goroutines.
// The underlying pgxpool handles connection pooling and synchronization.
//
// # Error Handling
//
// All methods return domain-specific errors from the domain package.
// Wrap database errors with context using fmt.Errorf with %w verb.
// Common errors include:
//
//   - domain.ErrNotFound: Resource does not exist
//   - domain.ErrAlreadyExists: Unique constraint violation
//   - domain.ErrInvalidInput: Invalid parameters provided
//   - domain.ErrInvalidTransition: Pipeline status change the state machine forbids
//
// # Transactions
//
// Use the DBTX interface to support both pool and transaction contexts.
// Pass a transaction from database.DB.WithTransaction for atomic operations,
// e.g. committing a report row together with the paper's status change.
package repository

import (
	"github.com/helixir/paper-digest-service/internal/database"
)

// DBTX is the database interface supporting both pool and transaction contexts.
// This allows repositories to work with both direct pool connections and transactions.
//
// Repository implementations follow a constructor pattern that accepts DBTX:
//
//	type PgPaperRepository struct {
//	    db DBTX
//	}
//
//	func NewPgPaperRepository(db DBTX) *PgPaperRepository {
//	    return &PgPaperRepository{db: db}
//	}
//
// This design enables:
//   - Direct usage with a connection pool for standard operations
//   - Transaction support by passing a transaction (pgx.Tx) instead
//   - Easy testing with mock implementations of DBTX
//
// Transaction usage example:
//
//	err := db.WithTransaction(ctx, func(tx pgx.Tx) error {
//	    txReports := repository.NewPgReportRepository(tx)
//	    txPapers := repository.NewPgPaperRepository(tx)
//	    if _, err := txReports.Create(ctx, report); err != nil {
//	        return err
//	    }
//	    return txPapers.UpdateStatus(ctx, paper.ID, domain.PaperStatusAnalyzing, domain.PaperStatusCompleted)
//	})
type DBTX = database.DBTX

// Filter pagination defaults and limits.
const (
	defaultFilterLimit = 100
	maxFilterLimit     = 1000
)

// applyPaginationDefaults normalizes limit and offset values for filter queries.
// It clamps limit to [1, maxFilterLimit] and ensures offset >= 0.
func applyPaginationDefaults(limit, offset *int) {
	if *limit <= 0 {
		*limit = defaultFilterLimit
	}
	if *limit > maxFilterLimit {
		*limit = maxFilterLimit
	}
	if *offset < 0 {
		*offset = 0
	}
}
