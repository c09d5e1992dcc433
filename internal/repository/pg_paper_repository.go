package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/helixir/paper-digest-service/internal/domain"
)

// Compile-time interface verification.
var _ PaperRepository = (*PgPaperRepository)(nil)

// psql is the squirrel statement builder configured for PostgreSQL placeholders.
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

const paperColumns = `id, identity, external_id, title, authors, abstract,
	publication_date, source, pdf_url, categories, raw_payload,
	status, attempt_count, last_error, created_at, updated_at`

// PgPaperRepository is a PostgreSQL implementation of PaperRepository.
type PgPaperRepository struct {
	db DBTX
}

// NewPgPaperRepository creates a new PostgreSQL paper repository.
func NewPgPaperRepository(db DBTX) *PgPaperRepository {
	return &PgPaperRepository{db: db}
}

// Create inserts a new paper. Identity conflicts return domain.ErrAlreadyExists.
func (r *PgPaperRepository) Create(ctx context.Context, paper *domain.Paper) (*domain.Paper, error) {
	if paper == nil {
		return nil, domain.NewValidationError("paper", "paper cannot be nil")
	}
	if paper.Identity == "" {
		return nil, domain.NewValidationError("identity", "identity is required")
	}

	var payloadJSON []byte
	var err error
	if paper.RawPayload != nil {
		payloadJSON, err = json.Marshal(paper.RawPayload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal raw payload: %w", err)
		}
	}

	now := time.Now().UTC()
	if paper.ID == uuid.Nil {
		paper.ID = uuid.New()
	}
	if paper.Status == "" {
		paper.Status = domain.PaperStatusDiscovered
	}

	query := `
		INSERT INTO papers (
			id, identity, external_id, title, authors, abstract,
			publication_date, source, pdf_url, categories, raw_payload,
			status, attempt_count, last_error, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16
		)
		RETURNING id, created_at, updated_at`

	err = r.db.QueryRow(ctx, query,
		paper.ID,
		paper.Identity,
		paper.ExternalID,
		paper.Title,
		paper.Authors,
		paper.Abstract,
		paper.PublicationDate,
		paper.Source,
		paper.PDFURL,
		paper.Categories,
		payloadJSON,
		paper.Status,
		paper.AttemptCount,
		paper.LastError,
		now,
		now,
	).Scan(&paper.ID, &paper.CreatedAt, &paper.UpdatedAt)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, domain.NewAlreadyExistsError("paper", paper.Identity)
		}
		return nil, fmt.Errorf("failed to insert paper: %w", err)
	}

	return paper, nil
}

// GetByID retrieves a paper by its UUID.
func (r *PgPaperRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Paper, error) {
	query := fmt.Sprintf("SELECT %s FROM papers WHERE id = $1", paperColumns)

	row := r.db.QueryRow(ctx, query, id)
	paper, err := scanPaper(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("paper", id.String())
		}
		return nil, fmt.Errorf("failed to get paper by ID: %w", err)
	}

	return paper, nil
}

// GetByIdentity retrieves a paper by its dedupe identity.
func (r *PgPaperRepository) GetByIdentity(ctx context.Context, identity string) (*domain.Paper, error) {
	if identity == "" {
		return nil, domain.NewValidationError("identity", "identity is required")
	}

	query := fmt.Sprintf("SELECT %s FROM papers WHERE identity = $1", paperColumns)

	row := r.db.QueryRow(ctx, query, identity)
	paper, err := scanPaper(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("paper", identity)
		}
		return nil, fmt.Errorf("failed to get paper by identity: %w", err)
	}

	return paper, nil
}

// List retrieves papers matching the filter criteria.
func (r *PgPaperRepository) List(ctx context.Context, filter PaperFilter) ([]*domain.Paper, int64, error) {
	if err := filter.Validate(); err != nil {
		return nil, 0, err
	}

	conditions := sq.And{}
	if len(filter.Statuses) > 0 {
		conditions = append(conditions, sq.Eq{"status": filter.Statuses})
	}
	if filter.Source != nil {
		conditions = append(conditions, sq.Eq{"source": *filter.Source})
	}
	if filter.Identity != nil {
		conditions = append(conditions, sq.Eq{"identity": *filter.Identity})
	}

	countBuilder := psql.Select("COUNT(*)").From("papers")
	if len(conditions) > 0 {
		countBuilder = countBuilder.Where(conditions)
	}

	countQuery, countArgs, err := countBuilder.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build count query: %w", err)
	}

	var totalCount int64
	if err := r.db.QueryRow(ctx, countQuery, countArgs...).Scan(&totalCount); err != nil {
		return nil, 0, fmt.Errorf("failed to count papers: %w", err)
	}

	selectBuilder := psql.Select(paperColumns).
		From("papers").
		OrderBy("created_at DESC").
		Limit(uint64(filter.Limit)).
		Offset(uint64(filter.Offset))
	if len(conditions) > 0 {
		selectBuilder = selectBuilder.Where(conditions)
	}

	selectQuery, selectArgs, err := selectBuilder.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build select query: %w", err)
	}

	rows, err := r.db.Query(ctx, selectQuery, selectArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list papers: %w", err)
	}
	defer rows.Close()

	papers := make([]*domain.Paper, 0, filter.Limit)
	for rows.Next() {
		paper, err := scanPaperFromRows(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan paper: %w", err)
		}
		papers = append(papers, paper)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating papers: %w", err)
	}

	return papers, totalCount, nil
}

// UpdateStatus performs a compare-and-set status transition.
func (r *PgPaperRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to domain.PaperStatus) error {
	if !from.CanTransitionTo(to) {
		return &domain.InvalidTransitionError{Identity: id.String(), From: from, To: to}
	}

	query := `
		UPDATE papers
		SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4`

	result, err := r.db.Exec(ctx, query, to, time.Now().UTC(), id, from)
	if err != nil {
		return fmt.Errorf("failed to update paper status: %w", err)
	}

	if result.RowsAffected() == 0 {
		// Distinguish a missing paper from a lost CAS race.
		var current domain.PaperStatus
		err := r.db.QueryRow(ctx, "SELECT status FROM papers WHERE id = $1", id).Scan(&current)
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.NewNotFoundError("paper", id.String())
		}
		if err != nil {
			return fmt.Errorf("failed to read paper status: %w", err)
		}
		return &domain.InvalidTransitionError{Identity: id.String(), From: current, To: to}
	}

	return nil
}

// RecordOutcome sets the paper's status, attempt counter, and last error.
func (r *PgPaperRepository) RecordOutcome(ctx context.Context, id uuid.UUID, status domain.PaperStatus, attemptCount int, lastError string) error {
	query := `
		UPDATE papers
		SET status = $1, attempt_count = $2, last_error = $3, updated_at = $4
		WHERE id = $5`

	result, err := r.db.Exec(ctx, query, status, attemptCount, lastError, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to record paper outcome: %w", err)
	}

	if result.RowsAffected() == 0 {
		return domain.NewNotFoundError("paper", id.String())
	}

	return nil
}

// paperScanDest holds the destination pointers for scanning a Paper row.
// Authors and categories are text[] columns; pgx maps them to []string
// directly, only the raw payload needs JSON handling.
type paperScanDest struct {
	paper       domain.Paper
	payloadJSON []byte
}

// destinations returns the slice of pointers for Scan operations.
func (d *paperScanDest) destinations() []interface{} {
	return []interface{}{
		&d.paper.ID, &d.paper.Identity, &d.paper.ExternalID, &d.paper.Title, &d.paper.Authors, &d.paper.Abstract,
		&d.paper.PublicationDate, &d.paper.Source, &d.paper.PDFURL, &d.paper.Categories, &d.payloadJSON,
		&d.paper.Status, &d.paper.AttemptCount, &d.paper.LastError, &d.paper.CreatedAt, &d.paper.UpdatedAt,
	}
}

// finalize performs post-scan processing: unmarshals the raw payload.
func (d *paperScanDest) finalize() (*domain.Paper, error) {
	if len(d.payloadJSON) > 0 {
		if err := json.Unmarshal(d.payloadJSON, &d.paper.RawPayload); err != nil {
			return nil, fmt.Errorf("failed to unmarshal raw payload: %w", err)
		}
	}

	return &d.paper, nil
}

// scanPaper scans a single row into a Paper.
func scanPaper(row pgx.Row) (*domain.Paper, error) {
	var dest paperScanDest
	if err := row.Scan(dest.destinations()...); err != nil {
		return nil, err
	}
	return dest.finalize()
}

// scanPaperFromRows scans the current row from pgx.Rows into a Paper.
func scanPaperFromRows(rows pgx.Rows) (*domain.Paper, error) {
	var dest paperScanDest
	if err := rows.Scan(dest.destinations()...); err != nil {
		return nil, err
	}
	return dest.finalize()
}
