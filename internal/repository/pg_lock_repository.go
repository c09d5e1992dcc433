package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/helixir/paper-digest-service/internal/domain"
)

// Compile-time interface verification.
var _ LockRepository = (*PgLockRepository)(nil)

// PgLockRepository is a PostgreSQL implementation of LockRepository backed
// by the task_locks table. The upsert races through the unique key on the
// lock key: exactly one contender wins, the rest observe zero affected rows.
type PgLockRepository struct {
	db DBTX
}

// NewPgLockRepository creates a new PostgreSQL lock repository.
func NewPgLockRepository(db DBTX) *PgLockRepository {
	return &PgLockRepository{db: db}
}

// TryAcquire attempts to take the lease for key without blocking.
func (r *PgLockRepository) TryAcquire(ctx context.Context, key string, kind domain.TaskKind, owner string, ttl time.Duration) (AcquireResult, error) {
	if key == "" {
		return AcquireResult{}, domain.NewValidationError("key", "lock key is required")
	}
	if owner == "" {
		return AcquireResult{}, domain.NewValidationError("owner", "lock owner is required")
	}
	if ttl <= 0 {
		return AcquireResult{}, domain.NewValidationError("ttl", "lock ttl must be positive")
	}

	now := time.Now().UTC()
	expiresAt := now.Add(ttl)

	// The WHERE clause on the conflict update makes a held, unexpired lease
	// win the race: the update is suppressed and no row is returned.
	// xmax = 0 identifies a fresh insert as opposed to an expired-lease takeover.
	query := `
		INSERT INTO task_locks (key, kind, owner, acquired_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (key) DO UPDATE SET
			kind = EXCLUDED.kind,
			owner = EXCLUDED.owner,
			acquired_at = EXCLUDED.acquired_at,
			expires_at = EXCLUDED.expires_at
		WHERE task_locks.expires_at <= EXCLUDED.acquired_at
		RETURNING (xmax = 0) AS inserted`

	var inserted bool
	err := r.db.QueryRow(ctx, query, key, kind, owner, now, expiresAt).Scan(&inserted)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return AcquireResult{Acquired: false}, nil
		}
		return AcquireResult{}, fmt.Errorf("failed to acquire lock: %w", err)
	}

	return AcquireResult{Acquired: true, Stolen: !inserted}, nil
}

// Renew extends the caller's lease by ttl from now.
func (r *PgLockRepository) Renew(ctx context.Context, key, owner string, ttl time.Duration) error {
	if ttl <= 0 {
		return domain.NewValidationError("ttl", "lock ttl must be positive")
	}

	now := time.Now().UTC()
	query := `
		UPDATE task_locks
		SET expires_at = $1
		WHERE key = $2 AND owner = $3 AND expires_at > $4`

	result, err := r.db.Exec(ctx, query, now.Add(ttl), key, owner, now)
	if err != nil {
		return fmt.Errorf("failed to renew lock: %w", err)
	}

	if result.RowsAffected() == 0 {
		return domain.NewNotFoundError("lock", key)
	}

	return nil
}

// Release drops the lease if the caller still owns it.
func (r *PgLockRepository) Release(ctx context.Context, key, owner string) error {
	query := `DELETE FROM task_locks WHERE key = $1 AND owner = $2`

	if _, err := r.db.Exec(ctx, query, key, owner); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}

	return nil
}
