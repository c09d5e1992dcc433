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

	"github.com/helixir/paper-digest-service/internal/domain"
)

// Compile-time interface verification.
var _ TaskRunRepository = (*PgTaskRunRepository)(nil)

const taskRunColumns = `id, kind, trigger_type, params, status, summary,
	error_detail, started_at, finished_at, created_at`

// PgTaskRunRepository is a PostgreSQL implementation of TaskRunRepository.
type PgTaskRunRepository struct {
	db DBTX
}

// NewPgTaskRunRepository creates a new PostgreSQL task run repository.
func NewPgTaskRunRepository(db DBTX) *PgTaskRunRepository {
	return &PgTaskRunRepository{db: db}
}

// Create inserts a new running task run row.
func (r *PgTaskRunRepository) Create(ctx context.Context, run *domain.TaskRun) (*domain.TaskRun, error) {
	if run == nil {
		return nil, domain.NewValidationError("run", "run cannot be nil")
	}

	var paramsJSON []byte
	var err error
	if run.Params != nil {
		paramsJSON, err = json.Marshal(run.Params)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal params: %w", err)
		}
	}

	now := time.Now().UTC()
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	if run.Status == "" {
		run.Status = domain.TaskRunStatusRunning
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = now
	}

	query := `
		INSERT INTO task_runs (
			id, kind, trigger_type, params, status, summary,
			error_detail, started_at, finished_at, created_at
		) VALUES (
			$1, $2, $3, $4, $5, NULL, $6, $7, NULL, $8
		)
		RETURNING id, created_at`

	err = r.db.QueryRow(ctx, query,
		run.ID,
		run.Kind,
		run.Trigger,
		paramsJSON,
		run.Status,
		run.ErrorDetail,
		run.StartedAt,
		now,
	).Scan(&run.ID, &run.CreatedAt)

	if err != nil {
		return nil, fmt.Errorf("failed to insert task run: %w", err)
	}

	return run, nil
}

// Finish records the terminal status, summary, and finish time of a run.
func (r *PgTaskRunRepository) Finish(ctx context.Context, id uuid.UUID, status domain.TaskRunStatus, summary *domain.RunSummary, errorDetail string, finishedAt time.Time) error {
	if !status.IsTerminal() {
		return domain.NewValidationError("status", "finish requires a terminal status")
	}

	var summaryJSON []byte
	var err error
	if summary != nil {
		summaryJSON, err = json.Marshal(summary)
		if err != nil {
			return fmt.Errorf("failed to marshal summary: %w", err)
		}
	}

	query := `
		UPDATE task_runs
		SET status = $1, summary = $2, error_detail = $3, finished_at = $4
		WHERE id = $5`

	result, err := r.db.Exec(ctx, query, status, summaryJSON, errorDetail, finishedAt.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to finish task run: %w", err)
	}

	if result.RowsAffected() == 0 {
		return domain.NewNotFoundError("task run", id.String())
	}

	return nil
}

// GetByID retrieves a task run by its UUID.
func (r *PgTaskRunRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.TaskRun, error) {
	query := fmt.Sprintf("SELECT %s FROM task_runs WHERE id = $1", taskRunColumns)

	row := r.db.QueryRow(ctx, query, id)
	run, err := scanTaskRun(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFoundError("task run", id.String())
		}
		return nil, fmt.Errorf("failed to get task run by ID: %w", err)
	}

	return run, nil
}

// List retrieves task runs matching the filter, newest first.
func (r *PgTaskRunRepository) List(ctx context.Context, filter TaskRunFilter) ([]*domain.TaskRun, int64, error) {
	if err := filter.Validate(); err != nil {
		return nil, 0, err
	}

	conditions := sq.And{}
	if filter.Kind != nil {
		conditions = append(conditions, sq.Eq{"kind": *filter.Kind})
	}
	if filter.Status != nil {
		conditions = append(conditions, sq.Eq{"status": *filter.Status})
	}
	if filter.Trigger != nil {
		conditions = append(conditions, sq.Eq{"trigger_type": *filter.Trigger})
	}

	countBuilder := psql.Select("COUNT(*)").From("task_runs")
	if len(conditions) > 0 {
		countBuilder = countBuilder.Where(conditions)
	}

	countQuery, countArgs, err := countBuilder.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build count query: %w", err)
	}

	var totalCount int64
	if err := r.db.QueryRow(ctx, countQuery, countArgs...).Scan(&totalCount); err != nil {
		return nil, 0, fmt.Errorf("failed to count task runs: %w", err)
	}

	selectBuilder := psql.Select(taskRunColumns).
		From("task_runs").
		OrderBy("started_at DESC").
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
		return nil, 0, fmt.Errorf("failed to list task runs: %w", err)
	}
	defer rows.Close()

	runs := make([]*domain.TaskRun, 0, filter.Limit)
	for rows.Next() {
		run, err := scanTaskRunFromRows(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan task run: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("error iterating task runs: %w", err)
	}

	return runs, totalCount, nil
}

// PurgeOlderThan deletes terminal runs that started before the cutoff.
func (r *PgTaskRunRepository) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		DELETE FROM task_runs
		WHERE started_at < $1 AND status != $2`

	result, err := r.db.Exec(ctx, query, cutoff.UTC(), domain.TaskRunStatusRunning)
	if err != nil {
		return 0, fmt.Errorf("failed to purge task runs: %w", err)
	}

	return result.RowsAffected(), nil
}

// taskRunScanDest holds the destination pointers for scanning a TaskRun row.
type taskRunScanDest struct {
	run         domain.TaskRun
	paramsJSON  []byte
	summaryJSON []byte
}

// destinations returns the slice of pointers for Scan operations.
func (d *taskRunScanDest) destinations() []interface{} {
	return []interface{}{
		&d.run.ID, &d.run.Kind, &d.run.Trigger, &d.paramsJSON, &d.run.Status, &d.summaryJSON,
		&d.run.ErrorDetail, &d.run.StartedAt, &d.run.FinishedAt, &d.run.CreatedAt,
	}
}

// finalize performs post-scan processing: unmarshals JSON fields.
func (d *taskRunScanDest) finalize() (*domain.TaskRun, error) {
	if len(d.paramsJSON) > 0 {
		if err := json.Unmarshal(d.paramsJSON, &d.run.Params); err != nil {
			return nil, fmt.Errorf("failed to unmarshal params: %w", err)
		}
	}

	if len(d.summaryJSON) > 0 {
		var summary domain.RunSummary
		if err := json.Unmarshal(d.summaryJSON, &summary); err != nil {
			return nil, fmt.Errorf("failed to unmarshal summary: %w", err)
		}
		d.run.Summary = &summary
	}

	return &d.run, nil
}

// scanTaskRun scans a single row into a TaskRun.
func scanTaskRun(row pgx.Row) (*domain.TaskRun, error) {
	var dest taskRunScanDest
	if err := row.Scan(dest.destinations()...); err != nil {
		return nil, err
	}
	return dest.finalize()
}

// scanTaskRunFromRows scans the current row from pgx.Rows into a TaskRun.
func scanTaskRunFromRows(rows pgx.Rows) (*domain.TaskRun, error) {
	var dest taskRunScanDest
	if err := rows.Scan(dest.destinations()...); err != nil {
		return nil, err
	}
	return dest.finalize()
}
