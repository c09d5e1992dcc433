package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/helixir/paper-digest-service/internal/domain"
)

// Compile-time interface verification.
var _ WorkItemRepository = (*PgWorkItemRepository)(nil)

// PgWorkItemRepository is a PostgreSQL implementation of WorkItemRepository.
type PgWorkItemRepository struct {
	db DBTX
}

// NewPgWorkItemRepository creates a new PostgreSQL work item repository.
func NewPgWorkItemRepository(db DBTX) *PgWorkItemRepository {
	return &PgWorkItemRepository{db: db}
}

// CreateBatch inserts all work items for a run in one roundtrip.
// Uses pgx.Batch to avoid a network roundtrip per item.
func (r *PgWorkItemRepository) CreateBatch(ctx context.Context, items []*domain.WorkItem) error {
	if len(items) == 0 {
		return nil
	}

	query := `
		INSERT INTO work_items (
			id, run_id, identity, kind, payload, state,
			attempt_count, last_error, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)`

	now := time.Now().UTC()
	batch := &pgx.Batch{}

	for i, item := range items {
		if item == nil {
			return domain.NewValidationError("item", fmt.Sprintf("work item at index %d is nil", i))
		}
		if item.Identity == "" {
			return domain.NewValidationError("identity", fmt.Sprintf("work item at index %d has no identity", i))
		}

		var payloadJSON []byte
		var err error
		if item.Payload != nil {
			payloadJSON, err = json.Marshal(item.Payload)
			if err != nil {
				return fmt.Errorf("failed to marshal payload: %w", err)
			}
		}

		if item.ID == uuid.Nil {
			item.ID = uuid.New()
		}
		if item.State == "" {
			item.State = domain.WorkItemStatePending
		}
		item.CreatedAt = now
		item.UpdatedAt = now

		batch.Queue(query,
			item.ID,
			item.RunID,
			item.Identity,
			item.Kind,
			payloadJSON,
			item.State,
			item.AttemptCount,
			item.LastError,
			now,
		)
	}

	br := r.db.SendBatch(ctx, batch)
	defer br.Close()

	for i := range items {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to insert work item at index %d: %w", i, err)
		}
	}

	return nil
}

// UpdateState records an item's state change.
func (r *PgWorkItemRepository) UpdateState(ctx context.Context, id uuid.UUID, state domain.WorkItemState, attemptCount int, lastError string) error {
	query := `
		UPDATE work_items
		SET state = $1, attempt_count = $2, last_error = $3, updated_at = $4
		WHERE id = $5`

	result, err := r.db.Exec(ctx, query, state, attemptCount, lastError, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update work item state: %w", err)
	}

	if result.RowsAffected() == 0 {
		return domain.NewNotFoundError("work item", id.String())
	}

	return nil
}

// ListByRun retrieves all work items belonging to a run, oldest first.
func (r *PgWorkItemRepository) ListByRun(ctx context.Context, runID uuid.UUID) ([]*domain.WorkItem, error) {
	query := `
		SELECT id, run_id, identity, kind, payload, state,
			attempt_count, last_error, created_at, updated_at
		FROM work_items
		WHERE run_id = $1
		ORDER BY created_at ASC`

	rows, err := r.db.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list work items: %w", err)
	}
	defer rows.Close()

	var items []*domain.WorkItem
	for rows.Next() {
		var item domain.WorkItem
		var payloadJSON []byte

		err := rows.Scan(
			&item.ID, &item.RunID, &item.Identity, &item.Kind, &payloadJSON, &item.State,
			&item.AttemptCount, &item.LastError, &item.CreatedAt, &item.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan work item: %w", err)
		}

		if len(payloadJSON) > 0 {
			if err := json.Unmarshal(payloadJSON, &item.Payload); err != nil {
				return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
			}
		}

		items = append(items, &item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating work items: %w", err)
	}

	return items, nil
}
