package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// PaperIdentity returns the stable dedupe key for a paper discovered at a
// source. Equal logical papers always yield equal identities; the identity
// doubles as the lock key serializing analysis of the paper.
func PaperIdentity(source SourceType, externalID string) string {
	return fmt.Sprintf("%s:%s", source, strings.TrimSpace(externalID))
}

// Paper represents a discovered academic paper. Papers are never deleted;
// their status advances through the pipeline state machine as analysis
// proceeds.
type Paper struct {
	ID              uuid.UUID
	Identity        string
	ExternalID      string
	Title           string
	Authors         []string
	Abstract        string
	PublicationDate *time.Time
	Source          SourceType
	PDFURL          string
	Categories      []string
	RawPayload      map[string]interface{}
	Status          PaperStatus
	AttemptCount    int
	LastError       string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// AuthorLine formats the author list for prompts and rendered reports.
// Long author lists are truncated to the first five names.
func (p *Paper) AuthorLine() string {
	const maxAuthors = 5
	if len(p.Authors) <= maxAuthors {
		return strings.Join(p.Authors, ", ")
	}
	return strings.Join(p.Authors[:maxAuthors], ", ") + " et al."
}
