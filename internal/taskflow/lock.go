package taskflow

import (
	"context"
	"sync"
	"time"

	"github.com/helixir/paper-digest-service/internal/domain"
	"github.com/helixir/paper-digest-service/internal/repository"
)

// memoryLease is one held lease in the in-memory lock table.
type memoryLease struct {
	owner     string
	kind      domain.TaskKind
	expiresAt time.Time
}

// MemoryLockTable is an in-process implementation of the lock repository.
// It mirrors the PostgreSQL lease semantics exactly: non-blocking acquire,
// TTL expiry, and expired-lease stealing. Used in single-node deployments
// without a shared database lock table and throughout the test suite,
// where the injectable clock makes lease expiry deterministic.
type MemoryLockTable struct {
	mu     sync.Mutex
	leases map[string]memoryLease
	now    func() time.Time
}

// Compile-time interface verification.
var _ repository.LockRepository = (*MemoryLockTable)(nil)

// NewMemoryLockTable creates an empty in-memory lock table.
func NewMemoryLockTable() *MemoryLockTable {
	return &MemoryLockTable{
		leases: make(map[string]memoryLease),
		now:    time.Now,
	}
}

// SetClock overrides the time source. Test hook.
func (m *MemoryLockTable) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// TryAcquire attempts to take the lease for key without blocking.
func (m *MemoryLockTable) TryAcquire(_ context.Context, key string, kind domain.TaskKind, owner string, ttl time.Duration) (repository.AcquireResult, error) {
	if key == "" {
		return repository.AcquireResult{}, domain.NewValidationError("key", "lock key is required")
	}
	if owner == "" {
		return repository.AcquireResult{}, domain.NewValidationError("owner", "lock owner is required")
	}
	if ttl <= 0 {
		return repository.AcquireResult{}, domain.NewValidationError("ttl", "lock ttl must be positive")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	lease, held := m.leases[key]
	if held && lease.expiresAt.After(now) {
		return repository.AcquireResult{}, nil
	}

	m.leases[key] = memoryLease{
		owner:     owner,
		kind:      kind,
		expiresAt: now.Add(ttl),
	}

	return repository.AcquireResult{
		Acquired: true,
		Stolen:   held,
	}, nil
}

// Renew extends the caller's lease by ttl from now.
func (m *MemoryLockTable) Renew(_ context.Context, key, owner string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	lease, held := m.leases[key]
	if !held || lease.owner != owner || !lease.expiresAt.After(now) {
		return domain.NewNotFoundError("lock", key)
	}

	lease.expiresAt = now.Add(ttl)
	m.leases[key] = lease
	return nil
}

// Release drops the lease if the caller still owns it.
func (m *MemoryLockTable) Release(_ context.Context, key, owner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if lease, held := m.leases[key]; held && lease.owner == owner {
		delete(m.leases, key)
	}
	return nil
}
