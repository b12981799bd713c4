package review

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bkyoung/review-engine/internal/domain"
)

const validReviewJSON = `{
	"summary": {
		"overallScore": 85,
		"grade": "B",
		"totalIssues": 2,
		"countsBySeverity": {"high": 1, "low": 1}
	},
	"issues": [
		{
			"severity": "high",
			"category": "security",
			"title": "SQL built by concatenation",
			"description": "User input is concatenated into the query string.",
			"lineNumber": 42,
			"suggestion": "Use a parameterized query.",
			"impact": "SQL injection."
		},
		{
			"severity": "low",
			"category": "style",
			"title": "Unexported type lacks doc comment",
			"description": "The helper type has no comment.",
			"lineNumber": 7,
			"suggestion": "",
			"impact": "Harder onboarding."
		}
	],
	"metrics": {
		"complexity": 4,
		"maintainability": 80,
		"readability": 85,
		"testability": 75,
		"security": 60
	},
	"strengths": ["Clear naming"],
	"recommendations": ["Add integration tests"]
}`

func TestParse_ValidJSON(t *testing.T) {
	outcome := NewParser().Parse(validReviewJSON, "gemini", "gemini-2.0-flash", 300)

	require.NotNil(t, outcome.Structured)
	assert.Equal(t, 85.0, outcome.Structured.Summary.OverallScore)
	assert.Equal(t, "B", outcome.Structured.Summary.Grade)
	assert.Len(t, outcome.Structured.Issues, 2)
	assert.Equal(t, "gemini", outcome.ProviderName)
	assert.Equal(t, 300, outcome.TokensConsumed)
	assert.Contains(t, outcome.Markdown, "85.0/100")
	assert.Contains(t, outcome.Markdown, "SQL built by concatenation")
}

func TestParse_FencedJSON(t *testing.T) {
	fenced := "Here is the review:\n```json\n" + validReviewJSON + "\n```"

	outcome := NewParser().Parse(fenced, "gemini", "gemini-2.0-flash", 0)

	require.NotNil(t, outcome.Structured)
	assert.Equal(t, 2, outcome.Structured.Summary.TotalIssues)
}

func TestParse_AssignsDeterministicIssueIDs(t *testing.T) {
	first := NewParser().Parse(validReviewJSON, "gemini", "gemini-2.0-flash", 0)
	second := NewParser().Parse(validReviewJSON, "gemini", "gemini-2.0-flash", 0)

	require.NotNil(t, first.Structured)
	require.NotNil(t, second.Structured)
	assert.NotEmpty(t, first.Structured.Issues[0].ID)
	assert.Equal(t, first.Structured.Issues[0].ID, second.Structured.Issues[0].ID)
}

func TestParse_NonJSONFallsBackToRaw(t *testing.T) {
	raw := "The code looks fine overall, though error handling could be tighter."

	outcome := NewParser().Parse(raw, "ollama", "codellama", 0)

	assert.Nil(t, outcome.Structured)
	assert.Contains(t, outcome.Markdown, raw)
	assert.Contains(t, outcome.Markdown, "did not conform")
}

func TestParse_CountMismatchIsRejectedNotRepaired(t *testing.T) {
	// totalIssues disagrees with the issue list; the parser must not fix it.
	broken := strings.Replace(validReviewJSON, `"totalIssues": 2`, `"totalIssues": 5`, 1)

	outcome := NewParser().Parse(broken, "gemini", "gemini-2.0-flash", 0)

	assert.Nil(t, outcome.Structured)
	assert.Contains(t, outcome.Markdown, "did not conform")
}

func TestParse_UnknownSeverityRejected(t *testing.T) {
	broken := strings.Replace(validReviewJSON, `"severity": "high"`, `"severity": "catastrophic"`, 1)

	outcome := NewParser().Parse(broken, "gemini", "gemini-2.0-flash", 0)

	assert.Nil(t, outcome.Structured)
}

func TestExtractJSONFromMarkdown(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{name: "plain json", input: `{"a": 1}`, want: `{"a": 1}`},
		{name: "json fence", input: "```json\n{\"a\": 1}\n```", want: `{"a": 1}`},
		{name: "bare fence", input: "```\n{\"a\": 1}\n```", want: `{"a": 1}`},
		{
			name:  "nested fence survives greedy match",
			input: "```json\n{\"suggestion\": \"use\\n```go\\ncode\\n```\"}\n```",
			want:  "{\"suggestion\": \"use\\n```go\\ncode\\n```\"}",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ExtractJSONFromMarkdown(tc.input))
		})
	}
}

func TestRenderMarkdown_GroupsBySeverityOrder(t *testing.T) {
	structured := &domain.StructuredReview{
		Summary: domain.ReviewSummary{
			OverallScore:     70,
			Grade:            "C",
			TotalIssues:      3,
			CountsBySeverity: map[string]int{"critical": 1, "low": 2},
		},
		Issues: []domain.Issue{
			{Severity: domain.SeverityLow, Category: domain.CategoryStyle, Title: "low one", Description: "d"},
			{Severity: domain.SeverityCritical, Category: domain.CategoryBug, Title: "the critical", Description: "d"},
			{Severity: domain.SeverityLow, Category: domain.CategoryStyle, Title: "low two", Description: "d"},
		},
		Metrics: domain.ReviewMetrics{Complexity: 5, Maintainability: 70, Readability: 70, Testability: 70, Security: 70},
	}

	markdown := RenderMarkdown(structured)

	criticalIdx := strings.Index(markdown, "### Critical")
	lowIdx := strings.Index(markdown, "### Low")
	require.True(t, criticalIdx >= 0)
	require.True(t, lowIdx >= 0)
	assert.Less(t, criticalIdx, lowIdx)

	// Byte-identical across renders.
	assert.Equal(t, markdown, RenderMarkdown(structured))
}

func TestRenderMarkdown_NoIssues(t *testing.T) {
	structured := &domain.StructuredReview{
		Summary: domain.ReviewSummary{OverallScore: 98, Grade: "A+", CountsBySeverity: map[string]int{}},
		Metrics: domain.ReviewMetrics{Complexity: 2, Maintainability: 95, Readability: 95, Testability: 95, Security: 95},
	}

	markdown := RenderMarkdown(structured)
	assert.Contains(t, markdown, "No issues found.")
}

func TestParse_MarkdownCarriesProviderAttribution(t *testing.T) {
	outcome := NewParser().Parse("not json at all", "openai", "gpt-4o-mini", 0)
	assert.Contains(t, outcome.Markdown, fmt.Sprintf("%s (%s)", "openai", "gpt-4o-mini"))
}
