package domain

import (
	"time"

	"github.com/google/uuid"
)

// WorkItem is one schedulable unit of crawl or analyze work. Items are
// persisted for durability so an interrupted run can be diagnosed and
// resumed after a restart.
type WorkItem struct {
	ID           uuid.UUID
	RunID        uuid.UUID
	Identity     string
	Kind         TaskKind
	Payload      map[string]interface{}
	State        WorkItemState
	AttemptCount int
	LastError    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
