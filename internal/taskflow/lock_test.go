package taskflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/paper-digest-service/internal/domain"
)

func TestMemoryLockTable_TryAcquire(t *testing.T) {
	ctx := context.Background()

	t.Run("acquires a free lock", func(t *testing.T) {
		table := NewMemoryLockTable()

		result, err := table.TryAcquire(ctx, "crawl", domain.TaskKindCrawl, "worker-a", time.Minute)
		require.NoError(t, err)
		assert.True(t, result.Acquired)
		assert.False(t, result.Stolen)
	})

	t.Run("refuses a held lock", func(t *testing.T) {
		table := NewMemoryLockTable()

		_, err := table.TryAcquire(ctx, "crawl", domain.TaskKindCrawl, "worker-a", time.Minute)
		require.NoError(t, err)

		result, err := table.TryAcquire(ctx, "crawl", domain.TaskKindCrawl, "worker-b", time.Minute)
		require.NoError(t, err)
		assert.False(t, result.Acquired)
	})

	t.Run("same owner cannot re-enter a live lease", func(t *testing.T) {
		table := NewMemoryLockTable()

		_, err := table.TryAcquire(ctx, "crawl", domain.TaskKindCrawl, "worker-a", time.Minute)
		require.NoError(t, err)

		result, err := table.TryAcquire(ctx, "crawl", domain.TaskKindCrawl, "worker-a", time.Minute)
		require.NoError(t, err)
		assert.False(t, result.Acquired)
	})

	t.Run("steals an expired lease", func(t *testing.T) {
		table := NewMemoryLockTable()
		now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
		table.SetClock(func() time.Time { return now })

		_, err := table.TryAcquire(ctx, "analyze:arxiv:2501.1", domain.TaskKindAnalyze, "worker-a", 10*time.Minute)
		require.NoError(t, err)

		// Still live one second before expiry.
		now = now.Add(10*time.Minute - time.Second)
		result, err := table.TryAcquire(ctx, "analyze:arxiv:2501.1", domain.TaskKindAnalyze, "worker-b", 10*time.Minute)
		require.NoError(t, err)
		assert.False(t, result.Acquired)

		// Expired: the new owner takes over and the steal is flagged.
		now = now.Add(2 * time.Second)
		result, err = table.TryAcquire(ctx, "analyze:arxiv:2501.1", domain.TaskKindAnalyze, "worker-b", 10*time.Minute)
		require.NoError(t, err)
		assert.True(t, result.Acquired)
		assert.True(t, result.Stolen)
	})

	t.Run("validates inputs", func(t *testing.T) {
		table := NewMemoryLockTable()

		var validationErr *domain.ValidationError

		_, err := table.TryAcquire(ctx, "", domain.TaskKindCrawl, "worker-a", time.Minute)
		assert.True(t, errors.As(err, &validationErr))

		_, err = table.TryAcquire(ctx, "crawl", domain.TaskKindCrawl, "", time.Minute)
		assert.True(t, errors.As(err, &validationErr))

		_, err = table.TryAcquire(ctx, "crawl", domain.TaskKindCrawl, "worker-a", 0)
		assert.True(t, errors.As(err, &validationErr))
	})
}

func TestMemoryLockTable_Renew(t *testing.T) {
	ctx := context.Background()

	t.Run("extends a live lease", func(t *testing.T) {
		table := NewMemoryLockTable()
		now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
		table.SetClock(func() time.Time { return now })

		_, err := table.TryAcquire(ctx, "crawl", domain.TaskKindCrawl, "worker-a", time.Minute)
		require.NoError(t, err)

		now = now.Add(50 * time.Second)
		require.NoError(t, table.Renew(ctx, "crawl", "worker-a", time.Minute))

		// Original lease would have expired by now; the renewal keeps it.
		now = now.Add(30 * time.Second)
		result, err := table.TryAcquire(ctx, "crawl", domain.TaskKindCrawl, "worker-b", time.Minute)
		require.NoError(t, err)
		assert.False(t, result.Acquired)
	})

	t.Run("rejects renewal by a non-owner", func(t *testing.T) {
		table := NewMemoryLockTable()

		_, err := table.TryAcquire(ctx, "crawl", domain.TaskKindCrawl, "worker-a", time.Minute)
		require.NoError(t, err)

		err = table.Renew(ctx, "crawl", "worker-b", time.Minute)
		assert.True(t, errors.Is(err, domain.ErrNotFound))
	})

	t.Run("rejects renewal of an expired lease", func(t *testing.T) {
		table := NewMemoryLockTable()
		now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
		table.SetClock(func() time.Time { return now })

		_, err := table.TryAcquire(ctx, "crawl", domain.TaskKindCrawl, "worker-a", time.Minute)
		require.NoError(t, err)

		now = now.Add(2 * time.Minute)
		err = table.Renew(ctx, "crawl", "worker-a", time.Minute)
		assert.True(t, errors.Is(err, domain.ErrNotFound))
	})
}

func TestMemoryLockTable_Release(t *testing.T) {
	ctx := context.Background()

	t.Run("frees the lock for the next caller", func(t *testing.T) {
		table := NewMemoryLockTable()

		_, err := table.TryAcquire(ctx, "crawl", domain.TaskKindCrawl, "worker-a", time.Minute)
		require.NoError(t, err)
		require.NoError(t, table.Release(ctx, "crawl", "worker-a"))

		result, err := table.TryAcquire(ctx, "crawl", domain.TaskKindCrawl, "worker-b", time.Minute)
		require.NoError(t, err)
		assert.True(t, result.Acquired)
		assert.False(t, result.Stolen)
	})

	t.Run("non-owner release is a no-op", func(t *testing.T) {
		table := NewMemoryLockTable()

		_, err := table.TryAcquire(ctx, "crawl", domain.TaskKindCrawl, "worker-a", time.Minute)
		require.NoError(t, err)
		require.NoError(t, table.Release(ctx, "crawl", "worker-b"))

		result, err := table.TryAcquire(ctx, "crawl", domain.TaskKindCrawl, "worker-b", time.Minute)
		require.NoError(t, err)
		assert.False(t, result.Acquired)
	})

	t.Run("releasing an absent lock is a no-op", func(t *testing.T) {
		table := NewMemoryLockTable()
		assert.NoError(t, table.Release(ctx, "missing", "worker-a"))
	})
}

func TestLockKeys(t *testing.T) {
	assert.Equal(t, "crawl", CrawlLockKey())
	assert.Equal(t, "analyze:arxiv:2501.12345", AnalyzeLockKey("arxiv:2501.12345"))
}
