package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/helixir/paper-digest-service/internal/domain"
)

// Compile-time interface verification.
var _ ReportRepository = (*PgReportRepository)(nil)

const reportColumns = `id, paper_id, paper_identity, provider, model, content,
	markdown_path, duration_ms, token_usage, status, error_detail, created_at`

// PgReportRepository is a PostgreSQL implementation of ReportRepository.
type PgReportRepository struct {
	db DBTX
}

// NewPgReportRepository creates a new PostgreSQL report repository.
func NewPgReportRepository(db DBTX) *PgReportRepository {
	return &PgReportRepository{db: db}
}

// Create inserts a new report row.
func (r *PgReportRepository) Create(ctx context.Context, report *domain.Report) (*domain.Report, error) {
	if report == nil {
		return nil, domain.NewValidationError("report", "report cannot be nil")
	}
	if report.PaperID == uuid.Nil {
		return nil, domain.NewValidationError("paper_id", "paper ID is required")
	}
	if report.Model == "" {
		return nil, domain.NewValidationError("model", "model is required")
	}

	var contentJSON []byte
	var err error
	if report.Content != nil {
		contentJSON, err = json.Marshal(report.Content)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal content: %w", err)
		}
	}

	var usageJSON []byte
	if report.TokenUsage != nil {
		usageJSON, err = json.Marshal(report.TokenUsage)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal token usage: %w", err)
		}
	}

	if report.ID == uuid.Nil {
		report.ID = uuid.New()
	}

	query := `
		INSERT INTO reports (
			id, paper_id, paper_identity, provider, model, content,
			markdown_path, duration_ms, token_usage, status, error_detail, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12
		)
		RETURNING id, created_at`

	err = r.db.QueryRow(ctx, query,
		report.ID,
		report.PaperID,
		report.PaperIdentity,
		report.Provider,
		report.Model,
		contentJSON,
		report.MarkdownPath,
		report.Duration.Milliseconds(),
		usageJSON,
		report.Status,
		report.ErrorDetail,
		time.Now().UTC(),
	).Scan(&report.ID, &report.CreatedAt)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, domain.NewAlreadyExistsError("report", fmt.Sprintf("%s:%s", report.PaperIdentity, report.Model))
		}
		return nil, fmt.Errorf("failed to insert report: %w", err)
	}

	return report, nil
}

// GetByID retrieves a report by its UUID.
func (r *PgReportRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Report, error) {
	query := fmt.Sprintf("SELECT %s FROM reports WHERE id = $1", reportColumns)

	row := r.db.QueryRow(ctx, query, id)
	report, err := scanReport(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("report", id.String())
		}
		return nil, fmt.Errorf("failed to get report by ID: %w", err)
	}

	return report, nil
}

// GetLatestSuccessful retrieves the most recent successful report for a
// paper and model.
func (r *PgReportRepository) GetLatestSuccessful(ctx context.Context, paperID uuid.UUID, model string) (*domain.Report, error) {
	if model == "" {
		return nil, domain.NewValidationError("model", "model is required")
	}

	query := fmt.Sprintf(`
		SELECT %s FROM reports
		WHERE paper_id = $1 AND model = $2 AND status = $3
		ORDER BY created_at DESC
		LIMIT 1`, reportColumns)

	row := r.db.QueryRow(ctx, query, paperID, model, domain.ReportStatusSuccess)
	report, err := scanReport(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("report", fmt.Sprintf("%s:%s", paperID, model))
		}
		return nil, fmt.Errorf("failed to get latest successful report: %w", err)
	}

	return report, nil
}

// ListByPaper retrieves all reports for a paper, newest first.
func (r *PgReportRepository) ListByPaper(ctx context.Context, paperID uuid.UUID) ([]*domain.Report, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM reports
		WHERE paper_id = $1
		ORDER BY created_at DESC`, reportColumns)

	rows, err := r.db.Query(ctx, query, paperID)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	defer rows.Close()

	var reports []*domain.Report
	for rows.Next() {
		report, err := scanReportFromRows(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		reports = append(reports, report)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reports: %w", err)
	}

	return reports, nil
}

// reportScanDest holds the destination pointers for scanning a Report row.
type reportScanDest struct {
	report      domain.Report
	contentJSON []byte
	usageJSON   []byte
	durationMS  int64
}

// destinations returns the slice of pointers for Scan operations.
func (d *reportScanDest) destinations() []interface{} {
	return []interface{}{
		&d.report.ID, &d.report.PaperID, &d.report.PaperIdentity, &d.report.Provider, &d.report.Model, &d.contentJSON,
		&d.report.MarkdownPath, &d.durationMS, &d.usageJSON, &d.report.Status, &d.report.ErrorDetail, &d.report.CreatedAt,
	}
}

// finalize performs post-scan processing: unmarshals JSON fields.
func (d *reportScanDest) finalize() (*domain.Report, error) {
	d.report.Duration = time.Duration(d.durationMS) * time.Millisecond

	if len(d.contentJSON) > 0 {
		if err := json.Unmarshal(d.contentJSON, &d.report.Content); err != nil {
			return nil, fmt.Errorf("failed to unmarshal content: %w", err)
		}
	}

	if len(d.usageJSON) > 0 {
		var usage domain.TokenUsage
		if err := json.Unmarshal(d.usageJSON, &usage); err != nil {
			return nil, fmt.Errorf("failed to unmarshal token usage: %w", err)
		}
		d.report.TokenUsage = &usage
	}

	return &d.report, nil
}

// scanReport scans a single row into a Report.
func scanReport(row pgx.Row) (*domain.Report, error) {
	var dest reportScanDest
	if err := row.Scan(dest.destinations()...); err != nil {
		return nil, err
	}
	return dest.finalize()
}

// scanReportFromRows scans the current row from pgx.Rows into a Report.
func scanReportFromRows(rows pgx.Rows) (*domain.Report, error) {
	var dest reportScanDest
	if err := rows.Scan(dest.destinations()...); err != nil {
		return nil, err
	}
	return dest.finalize()
}
