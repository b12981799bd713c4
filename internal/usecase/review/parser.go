package review

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/bkyoung/review-engine/internal/domain"
)

// jsonBlockRegex matches from the first opening fence to the LAST closing
// fence (greedy) so reviews whose suggestions embed example code blocks
// are extracted whole rather than cut at the first inner fence.
var jsonBlockRegex = regexp.MustCompile("(?s)```(?:json)?\\s*([\\s\\S]*)```")

// ExtractJSONFromMarkdown strips a markdown code fence from provider
// output. Returns the fenced content, or the trimmed original text when
// no fence is present (the response may already be raw JSON).
func ExtractJSONFromMarkdown(text string) string {
	matches := jsonBlockRegex.FindStringSubmatch(text)
	if len(matches) > 1 {
		return strings.TrimSpace(matches[1])
	}
	return strings.TrimSpace(text)
}

// Parser turns raw provider text into a ReviewOutcome.
type Parser struct{}

// NewParser creates a response parser.
func NewParser() *Parser {
	return &Parser{}
}

// Parse validates provider output against the review schema. A response
// that unmarshals and passes validation yields a structured outcome with
// canonically rendered markdown. Anything else degrades to a raw-text
// outcome: the caller still gets a readable review, just not a structured
// one. Validation failures are never repaired.
func (p *Parser) Parse(raw, providerName, modelID string, tokensConsumed int) domain.ReviewOutcome {
	structured, err := p.parseStructured(raw)
	if err != nil {
		return domain.ReviewOutcome{
			Markdown:       renderRawFallback(raw, providerName, modelID),
			ProviderName:   providerName,
			ModelID:        modelID,
			TokensConsumed: tokensConsumed,
		}
	}

	return domain.ReviewOutcome{
		Structured:     structured,
		Markdown:       RenderMarkdown(structured),
		ProviderName:   providerName,
		ModelID:        modelID,
		TokensConsumed: tokensConsumed,
	}
}

// parseStructured unmarshals and validates a schema-conformant review.
// Issue IDs are assigned here so identical findings hash identically
// regardless of what the provider put in any id field.
func (p *Parser) parseStructured(raw string) (*domain.StructuredReview, error) {
	jsonText := ExtractJSONFromMarkdown(raw)

	var structured domain.StructuredReview
	if err := json.Unmarshal([]byte(jsonText), &structured); err != nil {
		return nil, fmt.Errorf("failed to parse JSON review: %w", err)
	}

	for i, issue := range structured.Issues {
		structured.Issues[i] = domain.NewIssue(domain.IssueInput{
			Severity:    issue.Severity,
			Category:    issue.Category,
			Title:       issue.Title,
			Description: issue.Description,
			LineNumber:  issue.LineNumber,
			CodeSnippet: issue.CodeSnippet,
			Suggestion:  issue.Suggestion,
			Impact:      issue.Impact,
		})
	}

	if err := structured.Validate(); err != nil {
		return nil, fmt.Errorf("review failed validation: %w", err)
	}

	return &structured, nil
}

// renderRawFallback wraps unparseable provider output so the caller still
// receives a markdown review document.
func renderRawFallback(raw, providerName, modelID string) string {
	var b strings.Builder
	b.WriteString("# Code Review\n\n")
	fmt.Fprintf(&b, "*Reviewed by %s (%s)*\n\n", providerName, modelID)
	b.WriteString("> The model response did not conform to the structured review schema; the raw review is shown below.\n\n")
	b.WriteString(strings.TrimSpace(raw))
	b.WriteString("\n")
	return b.String()
}
