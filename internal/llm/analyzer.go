// Package llm provides LLM-backed structured analysis of academic papers.
//
// The package defines the Analyzer abstraction plus the prompt contract that
// forces providers to return all report sections as a single JSON object.
// Providers make exactly one API attempt per call; retry scheduling belongs
// to the pipeline, which needs to observe every failure to classify it and
// account for the attempt.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/helixir/paper-digest-service/internal/domain"
)

// AnalysisRequest carries one paper into an analysis call.
type AnalysisRequest struct {
	// Paper is the paper under analysis. Title and abstract feed the prompt.
	Paper *domain.Paper

	// Reformulate hardens the prompt after a malformed provider response.
	// Retries of a malformed attempt must not replay the identical request.
	Reformulate bool
}

// AnalysisResult is the structured outcome of one successful analysis.
type AnalysisResult struct {
	// Content holds every report section keyed by section name.
	Content domain.ReportContent

	// Model is the concrete model that produced the analysis.
	Model string

	// Usage records token accounting reported by the provider.
	Usage domain.TokenUsage
}

// Analyzer is implemented by each LLM provider.
//
// Implementations must respect context cancellation, return *APIError for
// provider-level failures and *MalformedResponseError when the response
// cannot be parsed into valid report content.
type Analyzer interface {
	// AnalyzePaper runs one analysis attempt for the given paper.
	AnalyzePaper(ctx context.Context, req AnalysisRequest) (*AnalysisResult, error)

	// Provider returns the provider name (e.g., "openai", "anthropic").
	Provider() string

	// Model returns the model identifier being used.
	Model() string
}

// analysisResponse is the JSON object providers are instructed to return.
type analysisResponse struct {
	Summary     string `json:"summary"`
	Background  string `json:"background"`
	Innovation  string `json:"innovation"`
	Experiments string `json:"experiments"`
	Application string `json:"application"`
	Limitations string `json:"limitations"`
	Audience    string `json:"audience"`
}

func (r analysisResponse) toContent() domain.ReportContent {
	return domain.ReportContent{
		domain.SectionSummary:     strings.TrimSpace(r.Summary),
		domain.SectionBackground:  strings.TrimSpace(r.Background),
		domain.SectionInnovation:  strings.TrimSpace(r.Innovation),
		domain.SectionExperiments: strings.TrimSpace(r.Experiments),
		domain.SectionApplication: strings.TrimSpace(r.Application),
		domain.SectionLimitations: strings.TrimSpace(r.Limitations),
		domain.SectionAudience:    strings.TrimSpace(r.Audience),
	}
}

// BuildAnalysisPrompt builds the system and user prompts for paper analysis.
// The system prompt pins the JSON response contract; the user prompt carries
// the paper metadata and abstract.
func BuildAnalysisPrompt(req AnalysisRequest) (systemPrompt, userPrompt string) {
	return buildSystemPrompt(req), buildUserPrompt(req)
}

func buildSystemPrompt(req AnalysisRequest) string {
	var sb strings.Builder

	sb.WriteString("You are a research analyst who writes accessible digests of ")
	sb.WriteString("academic papers for a technical audience. You analyze a paper's ")
	sb.WriteString("title and abstract and produce a structured assessment.\n\n")

	sb.WriteString("You MUST respond with a single valid JSON object in exactly this format:\n")
	sb.WriteString(`{"summary": "...", "background": "...", "innovation": "...", `)
	sb.WriteString(`"experiments": "...", "application": "...", "limitations": "...", "audience": "..."}`)
	sb.WriteString("\n\n")

	sb.WriteString("Section guidelines:\n")
	sb.WriteString("1. summary: two or three sentences stating what the paper does and its headline result.\n")
	sb.WriteString("2. background: the problem context and why it matters.\n")
	sb.WriteString("3. innovation: what is genuinely new compared to prior work.\n")
	sb.WriteString("4. experiments: the evaluation setup and key quantitative findings.\n")
	sb.WriteString("5. application: where the results could be applied in practice.\n")
	sb.WriteString("6. limitations: weaknesses, open problems, or unsupported claims.\n")
	sb.WriteString("7. audience: who should read this paper and what they will get from it.\n")

	if req.Reformulate {
		sb.WriteString("\nIMPORTANT: A previous response could not be parsed. ")
		sb.WriteString("Return ONLY the raw JSON object. No markdown fences, no prose before ")
		sb.WriteString("or after the JSON, and every one of the seven keys must be present ")
		sb.WriteString("with a non-empty string value.\n")
	}

	return sb.String()
}

func buildUserPrompt(req AnalysisRequest) string {
	paper := req.Paper

	var sb strings.Builder
	sb.WriteString("Analyze the following paper.\n\n")
	sb.WriteString(fmt.Sprintf("Title: %s\n", paper.Title))

	if len(paper.Authors) > 0 {
		sb.WriteString(fmt.Sprintf("Authors: %s\n", paper.AuthorLine()))
	}
	if len(paper.Categories) > 0 {
		sb.WriteString(fmt.Sprintf("Subject areas: %s\n", strings.Join(paper.Categories, ", ")))
	}

	sb.WriteString("\nAbstract:\n---\n")
	if paper.Abstract != "" {
		sb.WriteString(paper.Abstract)
	} else {
		sb.WriteString("(abstract unavailable; analyze from the title alone and say so in the limitations section)")
	}
	sb.WriteString("\n---")

	return sb.String()
}

// parseAnalysisContent parses a provider's text output into report content.
// Providers occasionally wrap the JSON in markdown fences despite the
// contract, so fences are stripped before decoding.
func parseAnalysisContent(provider, text string) (domain.ReportContent, error) {
	cleaned := stripJSONFences(text)

	var resp analysisResponse
	if err := json.Unmarshal([]byte(cleaned), &resp); err != nil {
		return nil, &MalformedResponseError{
			Provider: provider,
			Detail:   "response is not valid JSON",
			Cause:    err,
		}
	}

	content := resp.toContent()
	if err := content.Validate(); err != nil {
		return nil, &MalformedResponseError{
			Provider: provider,
			Detail:   "response is missing required sections",
			Cause:    err,
		}
	}

	return content, nil
}

// domainTokenUsage normalizes provider token accounting. Anthropic does not
// report a total, so it is derived when absent.
func domainTokenUsage(prompt, completion, total int) domain.TokenUsage {
	if total == 0 {
		total = prompt + completion
	}
	return domain.TokenUsage{
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      total,
	}
}

func stripJSONFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}
