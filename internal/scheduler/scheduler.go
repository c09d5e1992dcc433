// Package scheduler runs the configured cron jobs against the orchestrator.
//
// Jobs are pure configuration data: a name mapped to a cron schedule and a
// target task. Nothing is scheduled implicitly; an empty job map means the
// scheduler does nothing even when enabled.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/helixir/paper-digest-service/internal/config"
	"github.com/helixir/paper-digest-service/internal/domain"
	"github.com/helixir/paper-digest-service/internal/taskflow"
)

// TaskRunner is the orchestrator surface the scheduler dispatches to.
// *taskflow.Orchestrator satisfies it.
type TaskRunner interface {
	RunCrawl(ctx context.Context, trigger domain.TriggerType, params taskflow.CrawlParams) (*domain.TaskRun, error)
	RunAnalyze(ctx context.Context, trigger domain.TriggerType, params taskflow.AnalyzeParams) (*domain.TaskRun, error)
	Reconcile(ctx context.Context, limit int) (*taskflow.ReconcileStats, error)
	PurgeOldRuns(ctx context.Context, retention time.Duration) (int64, error)
}

// Compile-time interface verification.
var _ TaskRunner = (*taskflow.Orchestrator)(nil)

// Scheduler owns the cron runner and the registered jobs.
type Scheduler struct {
	cron      *cron.Cron
	runner    TaskRunner
	retention time.Duration
	logger    zerolog.Logger
}

// New builds a scheduler from the configured job definitions. retention is
// the task run retention window used by purge jobs.
func New(cfg config.SchedulerConfig, retention time.Duration, runner TaskRunner, logger zerolog.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cron:      cron.New(),
		runner:    runner,
		retention: retention,
		logger:    logger.With().Str("component", "scheduler").Logger(),
	}

	for name, job := range cfg.Jobs {
		fn, err := s.buildJob(name, job)
		if err != nil {
			return nil, err
		}
		if _, err := s.cron.AddFunc(job.Schedule, fn); err != nil {
			return nil, fmt.Errorf("scheduler job %q: invalid schedule %q: %w", name, job.Schedule, err)
		}
		s.logger.Info().
			Str("job", name).
			Str("schedule", job.Schedule).
			Str("task", job.Task).
			Msg("registered scheduled job")
	}

	return s, nil
}

// buildJob maps one job definition to its dispatch closure.
func (s *Scheduler) buildJob(name string, job config.JobConfig) (func(), error) {
	switch job.Task {
	case "crawl":
		var source *domain.SourceType
		if job.Source != "" {
			st := domain.SourceType(job.Source)
			source = &st
		}
		params := taskflow.CrawlParams{Source: source, MaxResults: job.Limit}
		return func() {
			run, err := s.runner.RunCrawl(context.Background(), domain.TriggerScheduled, params)
			s.logOutcome(name, run, err)
		}, nil

	case "analyze":
		params := taskflow.AnalyzeParams{MaxPapers: job.Limit}
		return func() {
			run, err := s.runner.RunAnalyze(context.Background(), domain.TriggerScheduled, params)
			s.logOutcome(name, run, err)
		}, nil

	case "reconcile":
		return func() {
			stats, err := s.runner.Reconcile(context.Background(), job.Limit)
			if err != nil {
				s.logger.Error().Err(err).Str("job", name).Msg("scheduled reconcile failed")
				return
			}
			s.logger.Info().
				Str("job", name).
				Int("checked", stats.Checked).
				Int("repaired_status", stats.RepairedStatus).
				Int("rewritten_files", stats.RewrittenFiles).
				Int("released_stale", stats.ReleasedStale).
				Msg("scheduled reconcile finished")
		}, nil

	case "purge":
		return func() {
			deleted, err := s.runner.PurgeOldRuns(context.Background(), s.retention)
			if err != nil {
				s.logger.Error().Err(err).Str("job", name).Msg("scheduled purge failed")
				return
			}
			s.logger.Info().Str("job", name).Int64("deleted", deleted).Msg("scheduled purge finished")
		}, nil

	default:
		return nil, fmt.Errorf("scheduler job %q: unknown task %q", name, job.Task)
	}
}

func (s *Scheduler) logOutcome(name string, run *domain.TaskRun, err error) {
	if err != nil {
		// A crawl refused by the lock is routine overlap, not a failure.
		if errors.Is(err, domain.ErrLocked) {
			s.logger.Info().Str("job", name).Msg("scheduled run skipped, lock held")
			return
		}
		s.logger.Error().Err(err).Str("job", name).Msg("scheduled run failed")
		return
	}
	s.logger.Info().
		Str("job", name).
		Stringer("run_id", run.ID).
		Str("status", string(run.Status)).
		Msg("scheduled run finished")
}

// Start launches the cron runner in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info().Int("jobs", len(s.cron.Entries())).Msg("scheduler started")
}

// Stop stops scheduling new runs and waits for in-flight jobs to finish.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info().Msg("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
