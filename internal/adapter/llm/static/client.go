package static

import (
	"context"

	"github.com/bkyoung/review-engine/internal/adapter/llm"
	"github.com/bkyoung/review-engine/internal/domain"
)

const providerName = "static"

// Client implements the llm.Client contract with a canned response.
type Client struct{}

// NewClient constructs a static Client.
func NewClient() *Client {
	return &Client{}
}

// Family returns the provider family name.
func (c *Client) Family() string {
	return domain.FamilyStatic
}

// Invoke returns a fixed, schema-conformant review payload.
func (c *Client) Invoke(ctx context.Context, prompt, modelID string, opts llm.InvokeOptions) (*llm.InvokeResult, error) {
	return &llm.InvokeResult{
		RawText:   cannedReview,
		TokensIn:  len(prompt) / 4,
		TokensOut: len(cannedReview) / 4,
		Model:     modelID,
	}, nil
}

const cannedReview = `{
  "summary": {
    "overallScore": 88,
    "grade": "B",
    "totalIssues": 1,
    "countsBySeverity": {"low": 1}
  },
  "issues": [
    {
      "id": "static-1",
      "severity": "low",
      "category": "style",
      "title": "Static placeholder issue",
      "description": "This issue was produced by the static provider.",
      "suggestion": "Run against a real provider for actual findings.",
      "impact": "None."
    }
  ],
  "metrics": {
    "complexity": 2,
    "maintainability": 90,
    "readability": 90,
    "testability": 85,
    "security": 95
  },
  "strengths": ["Compiles cleanly"],
  "recommendations": ["Enable a hosted provider for real reviews"]
}`
