package taskflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/helixir/paper-digest-service/internal/domain"
	"github.com/helixir/paper-digest-service/internal/events"
	"github.com/helixir/paper-digest-service/internal/llm"
	"github.com/helixir/paper-digest-service/internal/observability"
	"github.com/helixir/paper-digest-service/internal/papersources"
	"github.com/helixir/paper-digest-service/internal/render"
	"github.com/helixir/paper-digest-service/internal/repository"
)

// ReportWriter renders report files to disk. *render.Renderer satisfies it.
type ReportWriter interface {
	WriteReport(paper *domain.Paper, content domain.ReportContent, model string) (string, error)
	WriteReportAt(relPath string, paper *domain.Paper, content domain.ReportContent, model string, generatedAt time.Time) error
	Exists(relPath string) bool
}

// Compile-time interface verification.
var _ ReportWriter = (*render.Renderer)(nil)

// StateDriver advances papers through the pipeline lifecycle.
// *StateMachine satisfies it.
type StateDriver interface {
	Begin(ctx context.Context, paper *domain.Paper) error
	Complete(ctx context.Context, paper *domain.Paper, report *domain.Report, attempts int) error
	MarkCompleted(ctx context.Context, paper *domain.Paper, attempts int) error
	Fail(ctx context.Context, paper *domain.Paper, report *domain.Report, attempts int, cause error) error
}

// Compile-time interface verification.
var _ StateDriver = (*StateMachine)(nil)

// OrchestratorConfig holds the orchestrator's tunables.
type OrchestratorConfig struct {
	// Owner identifies this worker instance in the lock table.
	Owner string

	// Concurrency bounds how many papers are analyzed in parallel.
	Concurrency int

	// LockTTL is the lease duration for task locks.
	LockTTL time.Duration
}

// Deps bundles the orchestrator's collaborators.
type Deps struct {
	Sources   *papersources.Registry
	Analyzer  llm.Analyzer
	Renderer  ReportWriter
	Publisher events.Publisher
	State     StateDriver
	Papers    repository.PaperRepository
	Reports   repository.ReportRepository
	Runs      repository.TaskRunRepository
	Locks     repository.LockRepository
	Items     repository.WorkItemRepository
	Policy    *Policy
	Logger    zerolog.Logger
	Metrics   *observability.Metrics
}

// Orchestrator drives crawl and analyze runs end to end: run bookkeeping,
// locking, retries, state transitions, rendering, and event publication.
type Orchestrator struct {
	cfg       OrchestratorConfig
	sources   *papersources.Registry
	analyzer  llm.Analyzer
	renderer  ReportWriter
	publisher events.Publisher
	state     StateDriver
	papers    repository.PaperRepository
	reports   repository.ReportRepository
	runs      repository.TaskRunRepository
	locks     repository.LockRepository
	items     repository.WorkItemRepository
	policy    *Policy
	logger    zerolog.Logger
	metrics   *observability.Metrics

	// sleep waits between retry attempts; injectable for tests.
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(cfg OrchestratorConfig, deps Deps) *Orchestrator {
	if cfg.Owner == "" {
		cfg.Owner = "worker-" + uuid.New().String()[:8]
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 10 * time.Minute
	}

	policy := deps.Policy
	if policy == nil {
		policy = NewPolicy(2*time.Second, 60*time.Second)
	}

	publisher := deps.Publisher
	if publisher == nil {
		publisher = events.NewNopPublisher()
	}

	return &Orchestrator{
		cfg:       cfg,
		sources:   deps.Sources,
		analyzer:  deps.Analyzer,
		renderer:  deps.Renderer,
		publisher: publisher,
		state:     deps.State,
		papers:    deps.Papers,
		reports:   deps.Reports,
		runs:      deps.Runs,
		locks:     deps.Locks,
		items:     deps.Items,
		policy:    policy,
		logger:    deps.Logger.With().Str("component", "orchestrator").Logger(),
		metrics:   deps.Metrics,
		sleep:     sleepCtx,
		now:       time.Now,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// CrawlParams controls one crawl run.
type CrawlParams struct {
	// Source restricts the crawl to one source. Nil crawls every enabled
	// source.
	Source *domain.SourceType

	// MaxResults caps the papers fetched per source.
	MaxResults int
}

// RunCrawl fetches the latest listings and persists newly discovered
// papers. Returns domain.ErrLocked without creating a run when another
// crawl currently holds the crawl lock.
func (o *Orchestrator) RunCrawl(ctx context.Context, trigger domain.TriggerType, params CrawlParams) (*domain.TaskRun, error) {
	acquire, err := o.locks.TryAcquire(ctx, CrawlLockKey(), domain.TaskKindCrawl, o.cfg.Owner, o.cfg.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire crawl lock: %w", err)
	}
	if !acquire.Acquired {
		o.recordLockContended(domain.TaskKindCrawl)
		return nil, domain.ErrLocked
	}
	o.recordLockAcquired(domain.TaskKindCrawl, acquire.Stolen)
	defer o.releaseLock(CrawlLockKey())

	runParams := map[string]interface{}{"max_results": params.MaxResults}
	if params.Source != nil {
		runParams["source"] = string(*params.Source)
	}

	run, err := o.startRun(ctx, domain.TaskKindCrawl, trigger, runParams)
	if err != nil {
		return nil, err
	}

	logger := o.logger.With().Stringer("run_id", run.ID).Str("kind", string(run.Kind)).Logger()
	logger.Info().Msg("crawl run started")

	agg := NewAggregator()
	var fatal error

	for _, result := range o.fetchListings(ctx, params) {
		if result.Err != nil {
			agg.RecordErrored(string(result.Source), result.Err)
			if o.metrics != nil {
				o.metrics.RecordSourceRequestFailed(string(result.Source), string(Classify(result.Err)))
			}
			logger.Error().Err(result.Err).Str("source", string(result.Source)).Msg("source fetch failed")
			continue
		}

		if o.metrics != nil {
			o.metrics.RecordSourceRequest(string(result.Source), result.Result.Duration.Seconds())
		}

		papers := result.Result.Papers
		agg.AddFound(len(papers))

		items, err := o.persistWorkItems(ctx, run.ID, domain.TaskKindCrawl, papers)
		if err != nil {
			fatal = err
			break
		}

		for i, paper := range papers {
			if err := o.discoverPaper(ctx, run, paper, items[i], agg); err != nil {
				fatal = err
				break
			}
		}
		if fatal != nil {
			break
		}
	}

	return o.finishRun(ctx, run, agg, fatal)
}

// fetchListings fetches from one named source or fans out to all enabled
// sources.
func (o *Orchestrator) fetchListings(ctx context.Context, params CrawlParams) []papersources.SourceResult {
	fetchParams := papersources.FetchParams{MaxResults: params.MaxResults}

	if params.Source == nil {
		return o.sources.FetchAll(ctx, fetchParams)
	}

	source, err := o.sources.Get(*params.Source)
	if err != nil {
		return []papersources.SourceResult{{Source: *params.Source, Err: err}}
	}

	result, err := source.FetchLatest(ctx, fetchParams)
	return []papersources.SourceResult{{Source: *params.Source, Result: result, Err: err}}
}

// discoverPaper persists one fetched paper, counting duplicates as
// skipped. Returns an error only for fatal infrastructure failures.
func (o *Orchestrator) discoverPaper(ctx context.Context, run *domain.TaskRun, paper *domain.Paper, item *domain.WorkItem, agg *Aggregator) error {
	created, err := o.papers.Create(ctx, paper)
	switch {
	case err == nil:
		agg.RecordNew()
		o.updateItem(ctx, item, domain.WorkItemStateSucceeded, 1, "")
		if o.metrics != nil {
			o.metrics.RecordPapersDiscovered(string(paper.Source), 1)
		}
		o.publish(ctx, paper.Identity, events.NewEnvelope(events.EventTypePaperDiscovered, events.PaperDiscoveredPayload{
			PaperID:  created.ID,
			Identity: created.Identity,
			Title:    created.Title,
			Source:   created.Source,
			RunID:    run.ID,
		}))
		return nil

	case errors.Is(err, domain.ErrAlreadyExists):
		agg.RecordSkipped()
		o.updateItem(ctx, item, domain.WorkItemStateSkipped, 1, "")
		if o.metrics != nil {
			o.metrics.RecordPapersSkipped(1)
		}
		return nil

	case domain.IsFatalInfrastructure(err):
		o.updateItem(ctx, item, domain.WorkItemStateFailed, 1, err.Error())
		return err

	default:
		agg.RecordErrored(paper.Identity, err)
		o.updateItem(ctx, item, domain.WorkItemStateFailed, 1, err.Error())
		return nil
	}
}

// AnalyzeParams controls one analyze run.
type AnalyzeParams struct {
	// Identity restricts the run to a single paper.
	Identity string

	// MaxPapers caps how many papers the run picks up.
	MaxPapers int

	// ForceRegenerate re-analyzes papers that already have a successful
	// report. The report history stays append-only; the rendered file is
	// refreshed.
	ForceRegenerate bool
}

// RunAnalyze analyzes eligible papers concurrently. Each paper is guarded
// by its identity lock, retried per the policy, and completed or failed
// through the state machine. A fatal infrastructure error aborts the
// whole run.
func (o *Orchestrator) RunAnalyze(ctx context.Context, trigger domain.TriggerType, params AnalyzeParams) (*domain.TaskRun, error) {
	runParams := map[string]interface{}{
		"max_papers":       params.MaxPapers,
		"force_regenerate": params.ForceRegenerate,
	}
	if params.Identity != "" {
		runParams["identity"] = params.Identity
	}

	run, err := o.startRun(ctx, domain.TaskKindAnalyze, trigger, runParams)
	if err != nil {
		return nil, err
	}

	logger := o.logger.With().Stringer("run_id", run.ID).Str("kind", string(run.Kind)).Logger()
	logger.Info().Msg("analyze run started")

	agg := NewAggregator()

	papers, err := o.selectPapers(ctx, params)
	if err != nil {
		return o.finishRun(ctx, run, agg, err)
	}
	agg.AddFound(len(papers))

	items, err := o.persistWorkItems(ctx, run.ID, domain.TaskKindAnalyze, papers)
	if err != nil {
		return o.finishRun(ctx, run, agg, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Concurrency)

	for i, paper := range papers {
		g.Go(func() error {
			return o.analyzeOne(gctx, run, paper, items[i], params.ForceRegenerate, agg)
		})
	}

	return o.finishRun(ctx, run, agg, g.Wait())
}

// selectPapers picks the papers an analyze run will process.
func (o *Orchestrator) selectPapers(ctx context.Context, params AnalyzeParams) ([]*domain.Paper, error) {
	if params.Identity != "" {
		paper, err := o.papers.GetByIdentity(ctx, params.Identity)
		if err != nil {
			return nil, err
		}
		return []*domain.Paper{paper}, nil
	}

	statuses := []domain.PaperStatus{domain.PaperStatusDiscovered, domain.PaperStatusFailed}
	if params.ForceRegenerate {
		statuses = append(statuses, domain.PaperStatusCompleted)
	}

	papers, _, err := o.papers.List(ctx, repository.PaperFilter{
		Statuses: statuses,
		Limit:    params.MaxPapers,
	})
	if err != nil {
		return nil, err
	}
	return papers, nil
}

// analyzeOne processes a single paper under its identity lock. Returns a
// non-nil error only when the whole run must abort.
func (o *Orchestrator) analyzeOne(ctx context.Context, run *domain.TaskRun, paper *domain.Paper, item *domain.WorkItem, force bool, agg *Aggregator) error {
	logger := o.logger.With().
		Stringer("run_id", run.ID).
		Str("paper", paper.Identity).
		Logger()

	lockKey := AnalyzeLockKey(paper.Identity)
	acquire, err := o.locks.TryAcquire(ctx, lockKey, domain.TaskKindAnalyze, o.cfg.Owner, o.cfg.LockTTL)
	if err != nil {
		if domain.IsFatalInfrastructure(err) {
			return err
		}
		agg.RecordErrored(paper.Identity, err)
		o.updateItem(ctx, item, domain.WorkItemStateFailed, 0, err.Error())
		return nil
	}
	if !acquire.Acquired {
		o.recordLockContended(domain.TaskKindAnalyze)
		agg.RecordSkipped()
		o.updateItem(ctx, item, domain.WorkItemStateSkipped, 0, "lock held by another execution")
		logger.Debug().Msg("paper locked by another execution, skipping")
		return nil
	}
	o.recordLockAcquired(domain.TaskKindAnalyze, acquire.Stolen)
	defer o.releaseLock(lockKey)

	if skip, err := o.skipSatisfied(ctx, paper, force, agg); err != nil {
		o.updateItem(ctx, item, domain.WorkItemStateFailed, 0, err.Error())
		agg.RecordErrored(paper.Identity, err)
		return nil
	} else if skip {
		o.updateItem(ctx, item, domain.WorkItemStateSkipped, 0, "report already exists")
		return nil
	}

	if paper.Status != domain.PaperStatusCompleted {
		if err := o.state.Begin(ctx, paper); err != nil {
			if domain.IsFatalInfrastructure(err) {
				return err
			}
			if errors.Is(err, domain.ErrInvalidTransition) {
				agg.RecordSkipped()
				o.updateItem(ctx, item, domain.WorkItemStateSkipped, 0, "status advanced concurrently")
				return nil
			}
			agg.RecordErrored(paper.Identity, err)
			o.updateItem(ctx, item, domain.WorkItemStateFailed, 0, err.Error())
			return nil
		}
	}

	o.updateItem(ctx, item, domain.WorkItemStateRunning, 0, "")

	result, attempts, err := o.analyzeWithRetries(ctx, paper, item, agg, logger)
	if err != nil || result == nil {
		return err
	}

	return o.completePaper(ctx, run, paper, item, result, attempts, agg, logger)
}

// skipSatisfied reports whether the paper already has a successful report
// for the active model. A paper found satisfied but not marked completed
// is repaired on the spot.
func (o *Orchestrator) skipSatisfied(ctx context.Context, paper *domain.Paper, force bool, agg *Aggregator) (bool, error) {
	if force {
		return false, nil
	}

	_, err := o.reports.GetLatestSuccessful(ctx, paper.ID, o.analyzer.Model())
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if paper.Status != domain.PaperStatusCompleted {
		if err := o.state.MarkCompleted(ctx, paper, paper.AttemptCount); err != nil {
			return false, err
		}
	}
	agg.RecordSkipped()
	return true, nil
}

// analyzeWithRetries runs the attempt loop for one paper. On final
// failure the paper is moved to failed and (nil, attempts, nil) is
// returned; a non-nil error aborts the whole run.
func (o *Orchestrator) analyzeWithRetries(ctx context.Context, paper *domain.Paper, item *domain.WorkItem, agg *Aggregator, logger zerolog.Logger) (*llm.AnalysisResult, int, error) {
	reformulate := false
	attempts := 0

	for {
		attempts++

		if o.metrics != nil {
			o.metrics.RecordAnalysisStarted()
		}

		start := o.now()
		result, err := o.analyzer.AnalyzePaper(ctx, llm.AnalysisRequest{Paper: paper, Reformulate: reformulate})
		elapsed := o.now().Sub(start)

		if err == nil {
			if o.metrics != nil {
				o.metrics.RecordLLMRequest(o.analyzer.Provider(), result.Model, elapsed.Seconds(),
					result.Usage.PromptTokens, result.Usage.CompletionTokens)
			}
			return result, attempts, nil
		}

		decision := o.policy.Decide(err, attempts)
		if o.metrics != nil {
			o.metrics.RecordLLMRequestFailed(o.analyzer.Provider(), o.analyzer.Model(), string(decision.Class))
		}
		logger.Warn().Err(err).
			Int("attempt", attempts).
			Str("error_class", string(decision.Class)).
			Bool("retry", decision.Retry).
			Msg("analysis attempt failed")

		if decision.Abort {
			o.updateItem(ctx, item, domain.WorkItemStateFailed, attempts, err.Error())
			return nil, attempts, err
		}

		if decision.Success {
			// A persistence conflict means another execution already
			// stored an equivalent result.
			logger.Info().Msg("equivalent result already persisted, absorbing as idempotent success")
			if mcErr := o.state.MarkCompleted(ctx, paper, attempts); mcErr != nil {
				if domain.IsFatalInfrastructure(mcErr) {
					return nil, attempts, mcErr
				}
				agg.RecordErrored(paper.Identity, mcErr)
				o.updateItem(ctx, item, domain.WorkItemStateFailed, attempts, mcErr.Error())
				return nil, attempts, nil
			}
			agg.RecordSucceeded()
			o.updateItem(ctx, item, domain.WorkItemStateSucceeded, attempts, "")
			return nil, attempts, nil
		}

		if !decision.Retry {
			if o.metrics != nil {
				o.metrics.RecordRetriesExhausted(string(decision.Class))
				o.metrics.RecordAnalysisFailed(elapsed.Seconds())
			}

			failedReport := o.buildReport(paper, nil, o.analyzer.Model(), elapsed, nil, domain.ReportStatusFailed, err.Error())
			if failErr := o.state.Fail(ctx, paper, failedReport, attempts, err); failErr != nil {
				if domain.IsFatalInfrastructure(failErr) {
					return nil, attempts, failErr
				}
				logger.Error().Err(failErr).Msg("failed to record analysis failure")
			}

			agg.RecordFailed(paper.Identity, attempts, err)
			o.updateItem(ctx, item, domain.WorkItemStateFailed, attempts, err.Error())
			return nil, attempts, nil
		}

		if o.metrics != nil {
			o.metrics.RecordRetryScheduled(string(decision.Class))
		}
		if decision.Class == ClassResourceExhausted && o.metrics != nil {
			o.metrics.RecordSourceRateLimited(o.analyzer.Provider())
		}

		if err := o.sleep(ctx, decision.Delay); err != nil {
			o.updateItem(ctx, item, domain.WorkItemStateFailed, attempts, err.Error())
			return nil, attempts, err
		}
		reformulate = decision.Reformulate
	}
}

// completePaper renders the report file and commits the report row plus
// the status transition. A persistence conflict means another execution
// already persisted an equivalent success, so it is absorbed as success.
func (o *Orchestrator) completePaper(ctx context.Context, run *domain.TaskRun, paper *domain.Paper, item *domain.WorkItem, result *llm.AnalysisResult, attempts int, agg *Aggregator, logger zerolog.Logger) error {
	start := o.now()

	relPath, err := o.renderer.WriteReport(paper, result.Content, result.Model)
	if err != nil {
		return domain.NewFatalInfrastructureError("write report file", err)
	}
	if o.metrics != nil {
		o.metrics.RecordReportRendered()
	}

	usage := result.Usage
	report := o.buildReport(paper, result.Content, result.Model, o.now().Sub(start), &usage, domain.ReportStatusSuccess, "")
	report.MarkdownPath = relPath

	err = o.state.Complete(ctx, paper, report, attempts)
	if errors.Is(err, domain.ErrAlreadyExists) {
		logger.Info().Msg("successful report already persisted, absorbing as idempotent success")
		if mcErr := o.state.MarkCompleted(ctx, paper, attempts); mcErr != nil {
			if domain.IsFatalInfrastructure(mcErr) {
				return mcErr
			}
			agg.RecordErrored(paper.Identity, mcErr)
			o.updateItem(ctx, item, domain.WorkItemStateFailed, attempts, mcErr.Error())
			return nil
		}
		err = nil
	}
	if err != nil {
		if domain.IsFatalInfrastructure(err) {
			return err
		}
		if errors.Is(err, domain.ErrInvalidTransition) {
			agg.RecordSkipped()
			o.updateItem(ctx, item, domain.WorkItemStateSkipped, attempts, "status advanced concurrently")
			return nil
		}
		agg.RecordErrored(paper.Identity, err)
		o.updateItem(ctx, item, domain.WorkItemStateFailed, attempts, err.Error())
		return nil
	}

	if o.metrics != nil {
		o.metrics.RecordAnalysisCompleted(report.Duration.Seconds())
	}
	agg.RecordSucceeded()
	o.updateItem(ctx, item, domain.WorkItemStateSucceeded, attempts, "")

	o.publish(ctx, paper.Identity, events.NewEnvelope(events.EventTypeReportGenerated, events.ReportGeneratedPayload{
		ReportID:      report.ID,
		PaperID:       paper.ID,
		PaperIdentity: paper.Identity,
		Provider:      report.Provider,
		Model:         report.Model,
		MarkdownPath:  report.MarkdownPath,
		RunID:         run.ID,
	}))

	logger.Info().Int("attempts", attempts).Str("path", relPath).Msg("paper analyzed")
	return nil
}

// ReconcileStats summarizes one reconciliation sweep.
type ReconcileStats struct {
	Checked        int
	RepairedStatus int
	RewrittenFiles int
	ReleasedStale  int
}

// Reconcile repairs drift between the database and the report directory:
// completed papers whose report file vanished get the file re-rendered
// from the stored content, papers left stale by an interrupted run
// (successful report exists but status never advanced) are marked
// completed, and papers stranded in analyzing whose lease has expired are
// released back to failed so the next run picks them up.
func (o *Orchestrator) Reconcile(ctx context.Context, limit int) (*ReconcileStats, error) {
	stats := &ReconcileStats{}

	completed, _, err := o.papers.List(ctx, repository.PaperFilter{
		Statuses: []domain.PaperStatus{domain.PaperStatusCompleted},
		Limit:    limit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list completed papers: %w", err)
	}

	for _, paper := range completed {
		stats.Checked++

		report, err := o.reports.GetLatestSuccessful(ctx, paper.ID, o.analyzer.Model())
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return stats, err
		}

		if report.MarkdownPath != "" && !o.renderer.Exists(report.MarkdownPath) {
			// Restore at the recorded path so the report row keeps
			// pointing at a file that exists.
			if err := o.renderer.WriteReportAt(report.MarkdownPath, paper, report.Content, report.Model, report.CreatedAt); err != nil {
				return stats, fmt.Errorf("failed to rewrite report for %s: %w", paper.Identity, err)
			}
			stats.RewrittenFiles++
			if o.metrics != nil {
				o.metrics.RecordReportReconciled()
			}
			o.logger.Info().Str("paper", paper.Identity).Msg("rewrote missing report file")
		}
	}

	stale, _, err := o.papers.List(ctx, repository.PaperFilter{
		Statuses: []domain.PaperStatus{domain.PaperStatusAnalyzing, domain.PaperStatusFailed},
		Limit:    limit,
	})
	if err != nil {
		return stats, fmt.Errorf("failed to list stale papers: %w", err)
	}

	for _, paper := range stale {
		stats.Checked++

		_, err := o.reports.GetLatestSuccessful(ctx, paper.ID, o.analyzer.Model())
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return stats, err
		}
		if err == nil {
			if err := o.state.MarkCompleted(ctx, paper, paper.AttemptCount); err != nil {
				return stats, err
			}
			stats.RepairedStatus++
			o.logger.Info().Str("paper", paper.Identity).Msg("repaired stale paper status")
			continue
		}

		if paper.Status != domain.PaperStatusAnalyzing {
			continue
		}

		// No report and stuck in analyzing: the worker died mid-flight.
		// Taking the lock proves its lease has expired; a live worker
		// still holds it and the paper is left alone.
		lockKey := AnalyzeLockKey(paper.Identity)
		acquire, err := o.locks.TryAcquire(ctx, lockKey, domain.TaskKindAnalyze, o.cfg.Owner, o.cfg.LockTTL)
		if err != nil {
			return stats, fmt.Errorf("failed to probe lock for %s: %w", paper.Identity, err)
		}
		if !acquire.Acquired {
			continue
		}

		err = o.papers.UpdateStatus(ctx, paper.ID, domain.PaperStatusAnalyzing, domain.PaperStatusFailed)
		o.releaseLock(lockKey)
		if errors.Is(err, domain.ErrInvalidTransition) {
			continue
		}
		if err != nil {
			return stats, err
		}
		stats.ReleasedStale++
		o.logger.Info().Str("paper", paper.Identity).Msg("released paper stranded in analyzing")
	}

	return stats, nil
}

// PurgeOldRuns deletes terminal task runs older than the retention
// window and returns how many were removed.
func (o *Orchestrator) PurgeOldRuns(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		retention = domain.DefaultTaskRunRetention
	}

	cutoff := o.now().Add(-retention)
	deleted, err := o.runs.PurgeOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge old task runs: %w", err)
	}

	if deleted > 0 {
		o.logger.Info().Int64("deleted", deleted).Time("cutoff", cutoff).Msg("purged old task runs")
	}
	return deleted, nil
}

// startRun persists the running audit row for a new run.
func (o *Orchestrator) startRun(ctx context.Context, kind domain.TaskKind, trigger domain.TriggerType, params map[string]interface{}) (*domain.TaskRun, error) {
	run := &domain.TaskRun{
		ID:        uuid.New(),
		Kind:      kind,
		Trigger:   trigger,
		Params:    params,
		Status:    domain.TaskRunStatusRunning,
		StartedAt: o.now().UTC(),
	}

	created, err := o.runs.Create(ctx, run)
	if err != nil {
		return nil, fmt.Errorf("failed to create task run: %w", err)
	}

	if o.metrics != nil {
		o.metrics.RecordRunStarted(string(kind), string(trigger))
	}
	return created, nil
}

// finishRun records the terminal status and summary of a run and emits
// the run.completed event. A fatal error forces aborted status.
func (o *Orchestrator) finishRun(ctx context.Context, run *domain.TaskRun, agg *Aggregator, fatal error) (*domain.TaskRun, error) {
	if fatal != nil {
		agg.MarkAborted()
	}

	status := agg.RunStatus()
	summary := agg.Summary()
	finishedAt := o.now().UTC()
	detail := errString(fatal)

	if err := o.runs.Finish(ctx, run.ID, status, summary, detail, finishedAt); err != nil {
		o.logger.Error().Err(err).Stringer("run_id", run.ID).Msg("failed to finish task run")
	}

	run.Status = status
	run.Summary = summary
	run.ErrorDetail = detail
	run.FinishedAt = &finishedAt

	if o.metrics != nil {
		o.metrics.RecordRunCompleted(string(run.Kind), string(status), run.Duration().Seconds())
	}

	o.publish(ctx, run.ID.String(), events.NewEnvelope(events.EventTypeRunCompleted, events.RunCompletedPayload{
		RunID:   run.ID,
		Kind:    run.Kind,
		Trigger: run.Trigger,
		Status:  status,
		Summary: summary,
	}))

	o.logger.Info().
		Stringer("run_id", run.ID).
		Str("status", string(status)).
		Int("found", summary.Found).
		Int("new", summary.New).
		Int("succeeded", summary.Succeeded).
		Int("failed", summary.Failed).
		Int("skipped", summary.Skipped).
		Int("errored", summary.Errored).
		Msg("run finished")

	return run, fatal
}

// persistWorkItems writes the per-paper work item rows for a run.
func (o *Orchestrator) persistWorkItems(ctx context.Context, runID uuid.UUID, kind domain.TaskKind, papers []*domain.Paper) ([]*domain.WorkItem, error) {
	identities := make([]string, len(papers))
	for i, paper := range papers {
		identities[i] = paper.Identity
	}

	items := NewWorkItems(runID, kind, identities)
	if err := o.items.CreateBatch(ctx, items); err != nil {
		return nil, domain.NewFatalInfrastructureError("persist work items", err)
	}
	return items, nil
}

// updateItem advances a work item, logging rather than failing on error:
// work items are diagnostics, not the source of truth.
func (o *Orchestrator) updateItem(ctx context.Context, item *domain.WorkItem, state domain.WorkItemState, attempts int, lastError string) {
	if item == nil {
		return
	}
	if err := o.items.UpdateState(ctx, item.ID, state, attempts, lastError); err != nil {
		o.logger.Warn().Err(err).Str("identity", item.Identity).Msg("failed to update work item")
	}
}

func (o *Orchestrator) publish(ctx context.Context, key string, envelope events.Envelope) {
	if err := o.publisher.Publish(ctx, key, envelope); err != nil {
		o.logger.Warn().Err(err).Str("event_type", envelope.EventType).Msg("event publication failed")
	}
}

func (o *Orchestrator) recordLockAcquired(kind domain.TaskKind, stolen bool) {
	if o.metrics == nil {
		return
	}
	o.metrics.RecordLockAcquired(string(kind))
	if stolen {
		o.metrics.RecordLockExpiredSteal(string(kind))
	}
}

func (o *Orchestrator) recordLockContended(kind domain.TaskKind) {
	if o.metrics != nil {
		o.metrics.RecordLockContended(string(kind))
	}
}

// releaseLock releases with a fresh context so cleanup still happens when
// the run context is already cancelled.
func (o *Orchestrator) releaseLock(key string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(context.Background()), 5*time.Second)
	defer cancel()

	if err := o.locks.Release(ctx, key, o.cfg.Owner); err != nil {
		o.logger.Warn().Err(err).Str("key", key).Msg("failed to release lock")
	}
}

// buildReport assembles a report row for persistence.
func (o *Orchestrator) buildReport(paper *domain.Paper, content domain.ReportContent, model string, duration time.Duration, usage *domain.TokenUsage, status domain.ReportStatus, errorDetail string) *domain.Report {
	return &domain.Report{
		ID:            uuid.New(),
		PaperID:       paper.ID,
		PaperIdentity: paper.Identity,
		Provider:      o.analyzer.Provider(),
		Model:         model,
		Content:       content,
		Duration:      duration,
		TokenUsage:    usage,
		Status:        status,
		ErrorDetail:   errorDetail,
	}
}
