// Package events publishes pipeline lifecycle events to Kafka.
//
// Events are fire-and-forget notifications for downstream consumers
// (digest feeds, alerting). Publishing failures are surfaced to callers
// but never fail the pipeline operation that triggered them.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/helixir/paper-digest-service/internal/domain"
)

// Event types emitted by the service.
const (
	EventTypePaperDiscovered = "paper.discovered"
	EventTypeReportGenerated = "report.generated"
	EventTypeRunCompleted    = "run.completed"
)

// serviceName identifies this service as the event source.
const serviceName = "paper-digest-service"

// Envelope is the wire format for every published event.
type Envelope struct {
	EventID    string      `json:"event_id"`
	EventType  string      `json:"event_type"`
	Source     string      `json:"source"`
	OccurredAt time.Time   `json:"occurred_at"`
	Payload    interface{} `json:"payload"`
}

// NewEnvelope wraps a payload in a fully populated envelope.
func NewEnvelope(eventType string, payload interface{}) Envelope {
	return Envelope{
		EventID:    uuid.New().String(),
		EventType:  eventType,
		Source:     serviceName,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	}
}

// PaperDiscoveredPayload announces a newly discovered paper.
type PaperDiscoveredPayload struct {
	PaperID  uuid.UUID         `json:"paper_id"`
	Identity string            `json:"identity"`
	Title    string            `json:"title"`
	Source   domain.SourceType `json:"source"`
	RunID    uuid.UUID         `json:"run_id"`
}

// ReportGeneratedPayload announces a successfully generated report.
type ReportGeneratedPayload struct {
	ReportID      uuid.UUID `json:"report_id"`
	PaperID       uuid.UUID `json:"paper_id"`
	PaperIdentity string    `json:"paper_identity"`
	Provider      string    `json:"provider"`
	Model         string    `json:"model"`
	MarkdownPath  string    `json:"markdown_path"`
	RunID         uuid.UUID `json:"run_id"`
}

// RunCompletedPayload announces a finished task run with its summary.
type RunCompletedPayload struct {
	RunID   uuid.UUID            `json:"run_id"`
	Kind    domain.TaskKind      `json:"kind"`
	Trigger domain.TriggerType   `json:"trigger"`
	Status  domain.TaskRunStatus `json:"status"`
	Summary *domain.RunSummary   `json:"summary,omitempty"`
}
