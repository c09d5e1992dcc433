package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the paper digest service.
// Metrics are organized by subsystem: runs, papers, sources, locks, retries,
// LLM operations, and reports. All counters and histograms are registered via
// promauto for automatic registration with the default Prometheus registry.
type Metrics struct {
	// RunsStarted counts orchestrator runs started, labeled by task kind and trigger.
	RunsStarted *prometheus.CounterVec

	// RunsCompleted counts orchestrator runs that reached a terminal status,
	// labeled by task kind and status (success, partial, failed, aborted).
	RunsCompleted *prometheus.CounterVec

	// RunDuration observes end-to-end run duration in seconds, labeled by task kind.
	RunDuration *prometheus.HistogramVec

	// PapersDiscovered counts the total number of new papers persisted during crawls.
	PapersDiscovered prometheus.Counter

	// PapersSkipped counts papers skipped during crawls (already known).
	PapersSkipped prometheus.Counter

	// PapersBySource counts papers discovered, labeled by paper source.
	PapersBySource *prometheus.CounterVec

	// AnalysesStarted counts analysis attempts started.
	AnalysesStarted prometheus.Counter

	// AnalysesCompleted counts analyses that produced a persisted report.
	AnalysesCompleted prometheus.Counter

	// AnalysesFailed counts analyses that exhausted retries or hit a fatal error.
	AnalysesFailed prometheus.Counter

	// AnalysisDuration observes single-paper analysis duration in seconds.
	AnalysisDuration prometheus.Histogram

	// SourceRequestsTotal counts HTTP requests to paper sources, labeled by source.
	SourceRequestsTotal *prometheus.CounterVec

	// SourceRequestsFailed counts failed requests to paper sources, labeled by source and error type.
	SourceRequestsFailed *prometheus.CounterVec

	// SourceRequestDuration observes HTTP request duration to paper sources in seconds.
	SourceRequestDuration *prometheus.HistogramVec

	// SourceRateLimited counts rate-limited responses from paper sources, labeled by source.
	SourceRateLimited *prometheus.CounterVec

	// LockAcquired counts successful task lock acquisitions, labeled by task kind.
	LockAcquired *prometheus.CounterVec

	// LockContended counts lock acquisitions refused because a live lease was held.
	LockContended *prometheus.CounterVec

	// LockExpiredSteals counts acquisitions that replaced an expired lease.
	LockExpiredSteals *prometheus.CounterVec

	// RetriesScheduled counts retries scheduled by the policy engine, labeled by error class.
	RetriesScheduled *prometheus.CounterVec

	// RetriesExhausted counts items that ran out of retry budget, labeled by error class.
	RetriesExhausted *prometheus.CounterVec

	// LLMRequestsTotal counts LLM API requests, labeled by provider and model.
	LLMRequestsTotal *prometheus.CounterVec

	// LLMRequestsFailed counts failed LLM API requests, labeled by provider, model, and error type.
	LLMRequestsFailed *prometheus.CounterVec

	// LLMRequestDuration observes LLM API request duration in seconds, labeled by provider and model.
	LLMRequestDuration *prometheus.HistogramVec

	// LLMTokensUsed counts tokens consumed by LLM calls, labeled by provider, model, and token type.
	LLMTokensUsed *prometheus.CounterVec

	// ReportsRendered counts Markdown reports written to disk.
	ReportsRendered prometheus.Counter

	// ReportsReconciled counts filesystem repairs made by the reconciler.
	ReportsReconciled prometheus.Counter

	// EventsPublished counts lifecycle events published, labeled by event type.
	EventsPublished *prometheus.CounterVec

	// EventsFailed counts lifecycle events that failed to publish, labeled by event type.
	EventsFailed *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
// The namespace is used as a prefix for all metric names.
func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		// Runs
		RunsStarted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_started_total",
			Help:      "Total number of orchestrator runs started",
		}, []string{"kind", "trigger"}),
		RunsCompleted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_completed_total",
			Help:      "Total number of orchestrator runs by terminal status",
		}, []string{"kind", "status"}),
		RunDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of orchestrator runs in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1200, 1800},
		}, []string{"kind"}),

		// Papers
		PapersDiscovered: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "papers_discovered_total",
			Help:      "Total number of new papers persisted",
		}),
		PapersSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "papers_skipped_total",
			Help:      "Total number of papers skipped as already known",
		}),
		PapersBySource: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "papers_by_source_total",
			Help:      "Total number of papers discovered by source",
		}, []string{"source"}),

		// Analyses
		AnalysesStarted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyses_started_total",
			Help:      "Total number of paper analyses started",
		}),
		AnalysesCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyses_completed_total",
			Help:      "Total number of paper analyses completed",
		}),
		AnalysesFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyses_failed_total",
			Help:      "Total number of paper analyses that failed",
		}),
		AnalysisDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_duration_seconds",
			Help:      "Duration of single-paper analyses in seconds",
			Buckets:   []float64{1, 2, 5, 10, 30, 60, 120, 300},
		}),

		// Sources
		SourceRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_requests_total",
			Help:      "Total number of requests to paper sources",
		}, []string{"source"}),
		SourceRequestsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_requests_failed_total",
			Help:      "Total number of failed requests to paper sources",
		}, []string{"source", "error_type"}),
		SourceRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_request_duration_seconds",
			Help:      "Duration of requests to paper sources in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"source"}),
		SourceRateLimited: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_rate_limited_total",
			Help:      "Total number of rate limit responses from paper sources",
		}, []string{"source"}),

		// Locks
		LockAcquired: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lock_acquired_total",
			Help:      "Total number of task lock acquisitions",
		}, []string{"kind"}),
		LockContended: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lock_contended_total",
			Help:      "Total number of lock acquisitions refused due to a live lease",
		}, []string{"kind"}),
		LockExpiredSteals: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lock_expired_steals_total",
			Help:      "Total number of lock acquisitions that replaced an expired lease",
		}, []string{"kind"}),

		// Retries
		RetriesScheduled: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_scheduled_total",
			Help:      "Total number of retries scheduled by error class",
		}, []string{"error_class"}),
		RetriesExhausted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retries_exhausted_total",
			Help:      "Total number of items that exhausted their retry budget",
		}, []string{"error_class"}),

		// LLM
		LLMRequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Total number of LLM requests by provider",
		}, []string{"provider", "model"}),
		LLMRequestsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_failed_total",
			Help:      "Total number of failed LLM requests by provider",
		}, []string{"provider", "model", "error_type"}),
		LLMRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "Duration of LLM requests in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}, []string{"provider", "model"}),
		LLMTokensUsed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_used_total",
			Help:      "Total number of tokens used by LLM calls",
		}, []string{"provider", "model", "token_type"}),

		// Reports
		ReportsRendered: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_rendered_total",
			Help:      "Total number of Markdown reports written",
		}),
		ReportsReconciled: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reports_reconciled_total",
			Help:      "Total number of filesystem repairs made by the reconciler",
		}),

		// Events
		EventsPublished: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Total number of lifecycle events published",
		}, []string{"event_type"}),
		EventsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_failed_total",
			Help:      "Total number of lifecycle events that failed to publish",
		}, []string{"event_type"}),
	}
}

// RecordRunStarted records that an orchestrator run has started.
func (m *Metrics) RecordRunStarted(kind, trigger string) {
	m.RunsStarted.WithLabelValues(kind, trigger).Inc()
}

// RecordRunCompleted records a finished run and its duration.
func (m *Metrics) RecordRunCompleted(kind, status string, durationSeconds float64) {
	m.RunsCompleted.WithLabelValues(kind, status).Inc()
	m.RunDuration.WithLabelValues(kind).Observe(durationSeconds)
}

// RecordPapersDiscovered records new papers persisted from a source.
func (m *Metrics) RecordPapersDiscovered(source string, count int) {
	m.PapersDiscovered.Add(float64(count))
	m.PapersBySource.WithLabelValues(source).Add(float64(count))
}

// RecordPapersSkipped records papers skipped as already known.
func (m *Metrics) RecordPapersSkipped(count int) {
	m.PapersSkipped.Add(float64(count))
}

// RecordAnalysisStarted records that a paper analysis has started.
func (m *Metrics) RecordAnalysisStarted() {
	m.AnalysesStarted.Inc()
}

// RecordAnalysisCompleted records a successful analysis and its duration.
func (m *Metrics) RecordAnalysisCompleted(durationSeconds float64) {
	m.AnalysesCompleted.Inc()
	m.AnalysisDuration.Observe(durationSeconds)
}

// RecordAnalysisFailed records a failed analysis and its duration.
func (m *Metrics) RecordAnalysisFailed(durationSeconds float64) {
	m.AnalysesFailed.Inc()
	m.AnalysisDuration.Observe(durationSeconds)
}

// RecordSourceRequest records a request to a paper source.
func (m *Metrics) RecordSourceRequest(source string, durationSeconds float64) {
	m.SourceRequestsTotal.WithLabelValues(source).Inc()
	m.SourceRequestDuration.WithLabelValues(source).Observe(durationSeconds)
}

// RecordSourceRequestFailed records a failed request to a paper source.
func (m *Metrics) RecordSourceRequestFailed(source, errorType string) {
	m.SourceRequestsFailed.WithLabelValues(source, errorType).Inc()
}

// RecordSourceRateLimited records a rate limit response from a source.
func (m *Metrics) RecordSourceRateLimited(source string) {
	m.SourceRateLimited.WithLabelValues(source).Inc()
}

// RecordLockAcquired records a successful lock acquisition.
func (m *Metrics) RecordLockAcquired(kind string) {
	m.LockAcquired.WithLabelValues(kind).Inc()
}

// RecordLockContended records a lock refused due to a live lease.
func (m *Metrics) RecordLockContended(kind string) {
	m.LockContended.WithLabelValues(kind).Inc()
}

// RecordLockExpiredSteal records an acquisition that replaced an expired lease.
func (m *Metrics) RecordLockExpiredSteal(kind string) {
	m.LockExpiredSteals.WithLabelValues(kind).Inc()
}

// RecordRetryScheduled records a retry scheduled by the policy engine.
func (m *Metrics) RecordRetryScheduled(errorClass string) {
	m.RetriesScheduled.WithLabelValues(errorClass).Inc()
}

// RecordRetriesExhausted records an item that ran out of retry budget.
func (m *Metrics) RecordRetriesExhausted(errorClass string) {
	m.RetriesExhausted.WithLabelValues(errorClass).Inc()
}

// RecordLLMRequest records an LLM request.
func (m *Metrics) RecordLLMRequest(provider, model string, durationSeconds float64, promptTokens, completionTokens int) {
	m.LLMRequestsTotal.WithLabelValues(provider, model).Inc()
	m.LLMRequestDuration.WithLabelValues(provider, model).Observe(durationSeconds)
	m.LLMTokensUsed.WithLabelValues(provider, model, "prompt").Add(float64(promptTokens))
	m.LLMTokensUsed.WithLabelValues(provider, model, "completion").Add(float64(completionTokens))
}

// RecordLLMRequestFailed records a failed LLM request.
func (m *Metrics) RecordLLMRequestFailed(provider, model, errorType string) {
	m.LLMRequestsFailed.WithLabelValues(provider, model, errorType).Inc()
}

// RecordReportRendered records a Markdown report written to disk.
func (m *Metrics) RecordReportRendered() {
	m.ReportsRendered.Inc()
}

// RecordReportReconciled records a filesystem repair made by the reconciler.
func (m *Metrics) RecordReportReconciled() {
	m.ReportsReconciled.Inc()
}

// RecordEventPublished records a lifecycle event published.
func (m *Metrics) RecordEventPublished(eventType string) {
	m.EventsPublished.WithLabelValues(eventType).Inc()
}

// RecordEventFailed records a lifecycle event that failed to publish.
func (m *Metrics) RecordEventFailed(eventType string) {
	m.EventsFailed.WithLabelValues(eventType).Inc()
}
