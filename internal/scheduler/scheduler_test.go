package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/paper-digest-service/internal/config"
	"github.com/helixir/paper-digest-service/internal/domain"
	"github.com/helixir/paper-digest-service/internal/taskflow"
)

type fakeRunner struct {
	mu           sync.Mutex
	crawls       []taskflow.CrawlParams
	analyzes     []taskflow.AnalyzeParams
	reconciles   []int
	purges       []time.Duration
	crawlErr     error
	lastTrigger  domain.TriggerType
	purgeDeleted int64
}

func (f *fakeRunner) RunCrawl(_ context.Context, trigger domain.TriggerType, params taskflow.CrawlParams) (*domain.TaskRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.crawls = append(f.crawls, params)
	f.lastTrigger = trigger
	if f.crawlErr != nil {
		return nil, f.crawlErr
	}
	return &domain.TaskRun{ID: uuid.New(), Kind: domain.TaskKindCrawl, Status: domain.TaskRunStatusSuccess}, nil
}

func (f *fakeRunner) RunAnalyze(_ context.Context, trigger domain.TriggerType, params taskflow.AnalyzeParams) (*domain.TaskRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.analyzes = append(f.analyzes, params)
	f.lastTrigger = trigger
	return &domain.TaskRun{ID: uuid.New(), Kind: domain.TaskKindAnalyze, Status: domain.TaskRunStatusSuccess}, nil
}

func (f *fakeRunner) Reconcile(_ context.Context, limit int) (*taskflow.ReconcileStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reconciles = append(f.reconciles, limit)
	return &taskflow.ReconcileStats{Checked: limit}, nil
}

func (f *fakeRunner) PurgeOldRuns(_ context.Context, retention time.Duration) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.purges = append(f.purges, retention)
	return f.purgeDeleted, nil
}

func TestNew(t *testing.T) {
	t.Run("registers configured jobs", func(t *testing.T) {
		cfg := config.SchedulerConfig{
			Enabled: true,
			Jobs: map[string]config.JobConfig{
				"morning-crawl":  {Schedule: "0 9 * * *", Task: "crawl", Source: "huggingface", Limit: 50},
				"hourly-analyze": {Schedule: "30 * * * *", Task: "analyze", Limit: 20},
				"weekly-cleanup": {Schedule: "0 3 * * 0", Task: "purge"},
			},
		}

		s, err := New(cfg, 90*24*time.Hour, &fakeRunner{}, zerolog.Nop())
		require.NoError(t, err)
		assert.Len(t, s.cron.Entries(), 3)
	})

	t.Run("rejects an invalid schedule", func(t *testing.T) {
		cfg := config.SchedulerConfig{
			Jobs: map[string]config.JobConfig{
				"broken": {Schedule: "not a cron expression", Task: "crawl"},
			},
		}

		_, err := New(cfg, time.Hour, &fakeRunner{}, zerolog.Nop())
		assert.Error(t, err)
	})

	t.Run("rejects an unknown task", func(t *testing.T) {
		cfg := config.SchedulerConfig{
			Jobs: map[string]config.JobConfig{
				"mystery": {Schedule: "* * * * *", Task: "resynthesize"},
			},
		}

		_, err := New(cfg, time.Hour, &fakeRunner{}, zerolog.Nop())
		assert.Error(t, err)
	})
}

func TestScheduler_Dispatch(t *testing.T) {
	t.Run("crawl job passes source and limit with scheduled trigger", func(t *testing.T) {
		runner := &fakeRunner{}
		s, err := New(config.SchedulerConfig{}, time.Hour, runner, zerolog.Nop())
		require.NoError(t, err)

		fn, err := s.buildJob("crawl-hf", config.JobConfig{
			Schedule: "0 9 * * *",
			Task:     "crawl",
			Source:   "huggingface",
			Limit:    25,
		})
		require.NoError(t, err)
		fn()

		require.Len(t, runner.crawls, 1)
		require.NotNil(t, runner.crawls[0].Source)
		assert.Equal(t, domain.SourceTypeHuggingFace, *runner.crawls[0].Source)
		assert.Equal(t, 25, runner.crawls[0].MaxResults)
		assert.Equal(t, domain.TriggerScheduled, runner.lastTrigger)
	})

	t.Run("crawl job without source crawls everything", func(t *testing.T) {
		runner := &fakeRunner{}
		s, err := New(config.SchedulerConfig{}, time.Hour, runner, zerolog.Nop())
		require.NoError(t, err)

		fn, err := s.buildJob("crawl-all", config.JobConfig{Schedule: "0 9 * * *", Task: "crawl"})
		require.NoError(t, err)
		fn()

		require.Len(t, runner.crawls, 1)
		assert.Nil(t, runner.crawls[0].Source)
	})

	t.Run("locked crawl is not an error", func(t *testing.T) {
		runner := &fakeRunner{crawlErr: domain.ErrLocked}
		s, err := New(config.SchedulerConfig{}, time.Hour, runner, zerolog.Nop())
		require.NoError(t, err)

		fn, err := s.buildJob("crawl", config.JobConfig{Schedule: "* * * * *", Task: "crawl"})
		require.NoError(t, err)
		assert.NotPanics(t, fn)
	})

	t.Run("analyze job passes its limit", func(t *testing.T) {
		runner := &fakeRunner{}
		s, err := New(config.SchedulerConfig{}, time.Hour, runner, zerolog.Nop())
		require.NoError(t, err)

		fn, err := s.buildJob("analyze", config.JobConfig{Schedule: "30 * * * *", Task: "analyze", Limit: 10})
		require.NoError(t, err)
		fn()

		require.Len(t, runner.analyzes, 1)
		assert.Equal(t, 10, runner.analyzes[0].MaxPapers)
		assert.False(t, runner.analyzes[0].ForceRegenerate)
	})

	t.Run("reconcile job passes its limit", func(t *testing.T) {
		runner := &fakeRunner{}
		s, err := New(config.SchedulerConfig{}, time.Hour, runner, zerolog.Nop())
		require.NoError(t, err)

		fn, err := s.buildJob("nightly-reconcile", config.JobConfig{Schedule: "15 4 * * *", Task: "reconcile", Limit: 500})
		require.NoError(t, err)
		fn()

		require.Len(t, runner.reconciles, 1)
		assert.Equal(t, 500, runner.reconciles[0])
	})

	t.Run("purge job uses the configured retention", func(t *testing.T) {
		runner := &fakeRunner{purgeDeleted: 7}
		retention := 90 * 24 * time.Hour
		s, err := New(config.SchedulerConfig{}, retention, runner, zerolog.Nop())
		require.NoError(t, err)

		fn, err := s.buildJob("cleanup", config.JobConfig{Schedule: "0 3 * * 0", Task: "purge"})
		require.NoError(t, err)
		fn()

		require.Len(t, runner.purges, 1)
		assert.Equal(t, retention, runner.purges[0])
	})
}

func TestScheduler_StartStop(t *testing.T) {
	s, err := New(config.SchedulerConfig{
		Jobs: map[string]config.JobConfig{
			"noop": {Schedule: "0 0 1 1 *", Task: "purge"},
		},
	}, time.Hour, &fakeRunner{}, zerolog.Nop())
	require.NoError(t, err)

	s.Start()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, s.Stop(ctx))
}
