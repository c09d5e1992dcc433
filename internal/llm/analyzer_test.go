package llm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/paper-digest-service/internal/domain"
)

func testPaper() *domain.Paper {
	return &domain.Paper{
		Identity:   "arxiv:2501.10001",
		ExternalID: "2501.10001",
		Title:      "Gradient Surgery for Multi-Task Learning",
		Authors:    []string{"Jane Doe", "Alex Smith"},
		Abstract:   "We propose a method for resolving gradient conflicts.",
		Categories: []string{"cs.LG"},
		Source:     domain.SourceTypeArXiv,
	}
}

func validAnalysisJSON() string {
	return `{
		"summary": "A method for resolving gradient conflicts.",
		"background": "Multi-task learning suffers from conflicting gradients.",
		"innovation": "Projects conflicting gradients onto normal planes.",
		"experiments": "Evaluated on multi-task RL and vision benchmarks.",
		"application": "Any multi-task training pipeline.",
		"limitations": "Overhead grows with task count.",
		"audience": "Practitioners training multi-task models."
	}`
}

func TestBuildAnalysisPrompt(t *testing.T) {
	t.Run("includes paper metadata", func(t *testing.T) {
		systemPrompt, userPrompt := BuildAnalysisPrompt(AnalysisRequest{Paper: testPaper()})

		assert.Contains(t, systemPrompt, `"summary"`)
		assert.Contains(t, systemPrompt, `"audience"`)
		assert.Contains(t, userPrompt, "Gradient Surgery for Multi-Task Learning")
		assert.Contains(t, userPrompt, "Jane Doe, Alex Smith")
		assert.Contains(t, userPrompt, "cs.LG")
		assert.Contains(t, userPrompt, "resolving gradient conflicts")
	})

	t.Run("reformulation hardens the contract", func(t *testing.T) {
		plain, _ := BuildAnalysisPrompt(AnalysisRequest{Paper: testPaper()})
		hardened, _ := BuildAnalysisPrompt(AnalysisRequest{Paper: testPaper(), Reformulate: true})

		assert.NotEqual(t, plain, hardened)
		assert.Contains(t, hardened, "could not be parsed")
	})

	t.Run("missing abstract is called out", func(t *testing.T) {
		paper := testPaper()
		paper.Abstract = ""

		_, userPrompt := BuildAnalysisPrompt(AnalysisRequest{Paper: paper})
		assert.Contains(t, userPrompt, "abstract unavailable")
	})
}

func TestParseAnalysisContent(t *testing.T) {
	t.Run("parses valid response", func(t *testing.T) {
		content, err := parseAnalysisContent("openai", validAnalysisJSON())
		require.NoError(t, err)
		require.NoError(t, content.Validate())
		assert.Equal(t, "A method for resolving gradient conflicts.", content[domain.SectionSummary])
	})

	t.Run("strips markdown fences", func(t *testing.T) {
		fenced := "```json\n" + validAnalysisJSON() + "\n```"
		content, err := parseAnalysisContent("anthropic", fenced)
		require.NoError(t, err)
		assert.NoError(t, content.Validate())
	})

	t.Run("invalid json reports malformed response", func(t *testing.T) {
		_, err := parseAnalysisContent("openai", "here is your analysis:")
		var malformed *MalformedResponseError
		require.ErrorAs(t, err, &malformed)
		assert.Equal(t, "openai", malformed.Provider)
	})

	t.Run("missing section reports malformed response", func(t *testing.T) {
		partial := strings.Replace(validAnalysisJSON(), `"audience"`, `"ignored"`, 1)
		_, err := parseAnalysisContent("openai", partial)

		var malformed *MalformedResponseError
		require.ErrorAs(t, err, &malformed)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}

func TestDomainTokenUsage(t *testing.T) {
	t.Run("derives total when absent", func(t *testing.T) {
		usage := domainTokenUsage(900, 600, 0)
		assert.Equal(t, 1500, usage.TotalTokens)
	})

	t.Run("keeps reported total", func(t *testing.T) {
		usage := domainTokenUsage(900, 600, 1600)
		assert.Equal(t, 1600, usage.TotalTokens)
	})
}
