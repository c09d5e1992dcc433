// Package taskflow contains the orchestration core of the service: lock
// keys, the retry policy engine, the pipeline state machine, the per-run
// result aggregator, and the orchestrator that drives crawl and analyze
// runs end to end.
package taskflow

import (
	"github.com/google/uuid"

	"github.com/helixir/paper-digest-service/internal/domain"
)

// CrawlLockKey returns the lock key serializing crawl runs. Crawls are
// cheap but racing crawls would double-count discoveries in run summaries,
// so only one runs at a time.
func CrawlLockKey() string {
	return "crawl"
}

// AnalyzeLockKey returns the lock key serializing analysis of one paper.
// The paper identity doubles as the lock key: two workers can analyze
// different papers concurrently but never the same one.
func AnalyzeLockKey(paperIdentity string) string {
	return "analyze:" + paperIdentity
}

// NewWorkItems builds the persisted work items for a set of papers in one
// run. Items start pending; the orchestrator advances them as it goes.
func NewWorkItems(runID uuid.UUID, kind domain.TaskKind, identities []string) []*domain.WorkItem {
	items := make([]*domain.WorkItem, 0, len(identities))
	for _, identity := range identities {
		items = append(items, &domain.WorkItem{
			RunID:    runID,
			Identity: identity,
			Kind:     kind,
			State:    domain.WorkItemStatePending,
		})
	}
	return items
}
