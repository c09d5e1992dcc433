package httpserver

import (
	"time"

	"github.com/helixir/paper-digest-service/internal/domain"
)

// Response types for JSON serialization.

type taskRunResponse struct {
	RunID       string             `json:"run_id"`
	Kind        string             `json:"kind"`
	Trigger     string             `json:"trigger"`
	Status      string             `json:"status"`
	Summary     *domain.RunSummary `json:"summary,omitempty"`
	ErrorDetail string             `json:"error_detail,omitempty"`
	StartedAt   time.Time          `json:"started_at"`
	FinishedAt  *time.Time         `json:"finished_at,omitempty"`
	Duration    string             `json:"duration,omitempty"`
}

type listTaskRunsResponse struct {
	Runs       []taskRunResponse `json:"runs"`
	TotalCount int64             `json:"total_count"`
}

type paperResponse struct {
	ID              string     `json:"id"`
	Identity        string     `json:"identity"`
	ExternalID      string     `json:"external_id"`
	Title           string     `json:"title"`
	Authors         []string   `json:"authors,omitempty"`
	Abstract        string     `json:"abstract,omitempty"`
	PublicationDate *time.Time `json:"publication_date,omitempty"`
	Source          string     `json:"source"`
	PdfURL          string     `json:"pdf_url,omitempty"`
	Categories      []string   `json:"categories,omitempty"`
	Status          string     `json:"status"`
	AttemptCount    int        `json:"attempt_count"`
	LastError       string     `json:"last_error,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

type listPapersResponse struct {
	Papers     []paperResponse `json:"papers"`
	TotalCount int64           `json:"total_count"`
}

type reportResponse struct {
	ID            string               `json:"id"`
	PaperID       string               `json:"paper_id"`
	PaperIdentity string               `json:"paper_identity"`
	Provider      string               `json:"provider"`
	Model         string               `json:"model"`
	Content       domain.ReportContent `json:"content,omitempty"`
	MarkdownPath  string               `json:"markdown_path,omitempty"`
	Duration      string               `json:"duration,omitempty"`
	TokenUsage    *domain.TokenUsage   `json:"token_usage,omitempty"`
	Status        string               `json:"status"`
	ErrorDetail   string               `json:"error_detail,omitempty"`
	CreatedAt     time.Time            `json:"created_at"`
}

type listReportsResponse struct {
	Reports []reportResponse `json:"reports"`
}

// Converter functions

func domainRunToResponse(run *domain.TaskRun) taskRunResponse {
	resp := taskRunResponse{
		RunID:       run.ID.String(),
		Kind:        string(run.Kind),
		Trigger:     string(run.Trigger),
		Status:      string(run.Status),
		Summary:     run.Summary,
		ErrorDetail: run.ErrorDetail,
		StartedAt:   run.StartedAt,
		FinishedAt:  run.FinishedAt,
	}
	if d := run.Duration(); d > 0 {
		resp.Duration = d.String()
	}
	return resp
}

func domainPaperToResponse(p *domain.Paper) paperResponse {
	return paperResponse{
		ID:              p.ID.String(),
		Identity:        p.Identity,
		ExternalID:      p.ExternalID,
		Title:           p.Title,
		Authors:         p.Authors,
		Abstract:        p.Abstract,
		PublicationDate: p.PublicationDate,
		Source:          string(p.Source),
		PdfURL:          p.PDFURL,
		Categories:      p.Categories,
		Status:          string(p.Status),
		AttemptCount:    p.AttemptCount,
		LastError:       p.LastError,
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
}

func domainReportToResponse(r *domain.Report) reportResponse {
	resp := reportResponse{
		ID:            r.ID.String(),
		PaperID:       r.PaperID.String(),
		PaperIdentity: r.PaperIdentity,
		Provider:      r.Provider,
		Model:         r.Model,
		Content:       r.Content,
		MarkdownPath:  r.MarkdownPath,
		TokenUsage:    r.TokenUsage,
		Status:        string(r.Status),
		ErrorDetail:   r.ErrorDetail,
		CreatedAt:     r.CreatedAt,
	}
	if r.Duration > 0 {
		resp.Duration = r.Duration.String()
	}
	return resp
}
