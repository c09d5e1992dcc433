package repository

import (
	"context"
	"time"

	"github.com/helixir/paper-digest-service/internal/domain"
)

// AcquireResult describes the outcome of a lock acquisition attempt.
type AcquireResult struct {
	// Acquired reports whether the caller now holds the lease.
	Acquired bool

	// Stolen reports whether the acquisition replaced an expired lease
	// left behind by a crashed or hung worker.
	Stolen bool
}

// LockRepository manages the lease-based task lock table. Acquisition is
// non-blocking: a caller that loses the race skips the item instead of
// waiting. Leases carry a TTL so locks abandoned by crashed workers become
// acquirable again without manual cleanup.
type LockRepository interface {
	// TryAcquire attempts to take the lease for key without blocking.
	// A lease whose expiry has passed is treated as free and replaced.
	TryAcquire(ctx context.Context, key string, kind domain.TaskKind, owner string, ttl time.Duration) (AcquireResult, error)

	// Renew extends the caller's lease by ttl from now.
	// Returns domain.ErrNotFound if the caller no longer holds the lease.
	Renew(ctx context.Context, key, owner string, ttl time.Duration) error

	// Release drops the lease if the caller still owns it. Releasing a
	// lease that was already stolen or expired is not an error.
	Release(ctx context.Context, key, owner string) error
}
