package taskflow

import (
	"sync"

	"github.com/helixir/paper-digest-service/internal/domain"
)

// Aggregator collects per-item outcomes of one run into a summary. Safe
// for concurrent use by the orchestrator's workers.
type Aggregator struct {
	mu      sync.Mutex
	summary domain.RunSummary
	aborted bool
}

// NewAggregator creates an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// AddFound counts items discovered by a fetch before deduplication.
func (a *Aggregator) AddFound(n int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.summary.Found += n
}

// RecordNew counts a newly persisted paper.
func (a *Aggregator) RecordNew() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.summary.New++
}

// RecordSucceeded counts a completed work item.
func (a *Aggregator) RecordSucceeded() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.summary.Succeeded++
}

// RecordSkipped counts an item skipped as a duplicate, a lock loss, or an
// already satisfied result.
func (a *Aggregator) RecordSkipped() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.summary.Skipped++
}

// RecordFailed counts an item that exhausted its retry budget.
func (a *Aggregator) RecordFailed(identity string, attempts int, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.summary.Failed++
	a.summary.Errors = append(a.summary.Errors, domain.ItemOutcome{
		Identity: identity,
		Outcome:  "failed",
		Attempts: attempts,
		Error:    errString(err),
	})
}

// RecordErrored counts an item that errored outside its own processing,
// e.g. a source listing that could not be fetched.
func (a *Aggregator) RecordErrored(identity string, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.summary.Errored++
	a.summary.Errors = append(a.summary.Errors, domain.ItemOutcome{
		Identity: identity,
		Outcome:  "errored",
		Error:    errString(err),
	})
}

// MarkAborted flags the run as aborted by a fatal infrastructure error.
func (a *Aggregator) MarkAborted() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.aborted = true
}

// Summary returns a copy of the aggregated counts.
func (a *Aggregator) Summary() *domain.RunSummary {
	a.mu.Lock()
	defer a.mu.Unlock()

	summary := a.summary
	summary.Errors = append([]domain.ItemOutcome(nil), a.summary.Errors...)
	return &summary
}

// RunStatus derives the terminal run status from the aggregated outcomes:
// aborted wins, a clean run is success, a mixed run is partial, and a run
// where nothing succeeded is failed.
func (a *Aggregator) RunStatus() domain.TaskRunStatus {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.aborted {
		return domain.TaskRunStatusAborted
	}

	problems := a.summary.Failed + a.summary.Errored
	if problems == 0 {
		return domain.TaskRunStatusSuccess
	}
	if a.summary.Succeeded+a.summary.New+a.summary.Skipped > 0 {
		return domain.TaskRunStatusPartial
	}
	return domain.TaskRunStatusFailed
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
