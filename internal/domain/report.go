package domain

import (
	"time"

	"github.com/google/uuid"
)

// Report section names, fixed by the analysis prompt contract.
const (
	SectionSummary     = "summary"
	SectionBackground  = "background"
	SectionInnovation  = "innovation"
	SectionExperiments = "experiments"
	SectionApplication = "application"
	SectionLimitations = "limitations"
	SectionAudience    = "audience"
)

// ReportSections lists the required section names in render order.
var ReportSections = []string{
	SectionSummary,
	SectionBackground,
	SectionInnovation,
	SectionExperiments,
	SectionApplication,
	SectionLimitations,
	SectionAudience,
}

// ReportContent maps section name to generated text. All sections in
// ReportSections must be present and non-empty for the content to be valid.
type ReportContent map[string]string

// Validate checks that every required section is present and non-empty.
func (c ReportContent) Validate() error {
	for _, section := range ReportSections {
		text, ok := c[section]
		if !ok {
			return NewValidationError(section, "missing report section")
		}
		if len(text) == 0 {
			return NewValidationError(section, "empty report section")
		}
	}
	return nil
}

// TokenUsage records token accounting for one analysis call.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Report is the output of one analysis of a paper. Reports are append-only
// history: a regeneration creates a new row rather than mutating an old one,
// and a report is immutable once its status is terminal.
type Report struct {
	ID            uuid.UUID
	PaperID       uuid.UUID
	PaperIdentity string
	Provider      string
	Model         string
	Content       ReportContent
	MarkdownPath  string
	Duration      time.Duration
	TokenUsage    *TokenUsage
	Status        ReportStatus
	ErrorDetail   string
	CreatedAt     time.Time
}
