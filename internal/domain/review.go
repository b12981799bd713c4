package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Issue represents a single problem detected by an LLM.
type Issue struct {
	ID          string `json:"id"`
	Severity    string `json:"severity"`
	Category    string `json:"category"`
	Title       string `json:"title"`
	Description string `json:"description"`
	LineNumber  int    `json:"lineNumber,omitempty"`
	CodeSnippet string `json:"codeSnippet,omitempty"`
	Suggestion  string `json:"suggestion"`
	Impact      string `json:"impact"`
}

// IssueInput captures the information required to create an Issue.
type IssueInput struct {
	Severity    string
	Category    string
	Title       string
	Description string
	LineNumber  int
	CodeSnippet string
	Suggestion  string
	Impact      string
}

// NewIssue constructs an Issue with a deterministic ID.
func NewIssue(input IssueInput) Issue {
	return Issue{
		ID:          hashIssue(input),
		Severity:    input.Severity,
		Category:    input.Category,
		Title:       input.Title,
		Description: input.Description,
		LineNumber:  input.LineNumber,
		CodeSnippet: input.CodeSnippet,
		Suggestion:  input.Suggestion,
		Impact:      input.Impact,
	}
}

func hashIssue(input IssueInput) string {
	payload := fmt.Sprintf("%s|%s|%s|%d|%s",
		input.Severity,
		input.Category,
		input.Title,
		input.LineNumber,
		input.Description,
	)
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

// ReviewSummary is the headline section of a structured review.
type ReviewSummary struct {
	OverallScore     float64        `json:"overallScore"`
	Grade            string         `json:"grade"`
	TotalIssues      int            `json:"totalIssues"`
	CountsBySeverity map[string]int `json:"countsBySeverity"`
}

// ReviewMetrics holds the quality metrics section of a structured review.
type ReviewMetrics struct {
	Complexity      float64 `json:"complexity"`
	Maintainability float64 `json:"maintainability"`
	Readability     float64 `json:"readability"`
	Testability     float64 `json:"testability"`
	Security        float64 `json:"security"`
}

// StructuredReview is the validated, schema-conformant review object.
type StructuredReview struct {
	Summary         ReviewSummary `json:"summary"`
	Issues          []Issue       `json:"issues"`
	Metrics         ReviewMetrics `json:"metrics"`
	Strengths       []string      `json:"strengths"`
	Recommendations []string      `json:"recommendations"`
}

// Validate checks the structural invariants of a review. Violations are
// rejected rather than repaired: a review whose counts disagree with its
// issue list cannot be trusted to have been produced against the schema.
func (r *StructuredReview) Validate() error {
	if r.Summary.OverallScore < 0 || r.Summary.OverallScore > 100 {
		return fmt.Errorf("overallScore %.1f out of range [0,100]", r.Summary.OverallScore)
	}
	if !ValidGrade(r.Summary.Grade) {
		return fmt.Errorf("unknown grade %q", r.Summary.Grade)
	}
	if r.Summary.TotalIssues != len(r.Issues) {
		return fmt.Errorf("totalIssues %d does not match issue count %d",
			r.Summary.TotalIssues, len(r.Issues))
	}
	countSum := 0
	for severity, n := range r.Summary.CountsBySeverity {
		if !ValidSeverity(severity) {
			return fmt.Errorf("unknown severity %q in countsBySeverity", severity)
		}
		if n < 0 {
			return fmt.Errorf("negative count for severity %q", severity)
		}
		countSum += n
	}
	if countSum != r.Summary.TotalIssues {
		return fmt.Errorf("countsBySeverity sum %d does not match totalIssues %d",
			countSum, r.Summary.TotalIssues)
	}
	for i, issue := range r.Issues {
		if !ValidSeverity(issue.Severity) {
			return fmt.Errorf("issue %d: unknown severity %q", i, issue.Severity)
		}
		if !ValidCategory(issue.Category) {
			return fmt.Errorf("issue %d: unknown category %q", i, issue.Category)
		}
		if issue.LineNumber < 0 {
			return fmt.Errorf("issue %d: negative line number %d", i, issue.LineNumber)
		}
	}
	if r.Metrics.Complexity < 1 || r.Metrics.Complexity > 10 {
		return fmt.Errorf("complexity %.1f out of range [1,10]", r.Metrics.Complexity)
	}
	for name, v := range map[string]float64{
		"maintainability": r.Metrics.Maintainability,
		"readability":     r.Metrics.Readability,
		"testability":     r.Metrics.Testability,
		"security":        r.Metrics.Security,
	} {
		if v < 0 || v > 100 {
			return fmt.Errorf("metric %s %.1f out of range [0,100]", name, v)
		}
	}
	return nil
}

// CountBySeverity tallies the issues by severity.
func CountBySeverity(issues []Issue) map[string]int {
	counts := make(map[string]int)
	for _, issue := range issues {
		counts[issue.Severity]++
	}
	return counts
}

// ReviewOutcome is the result of one provider invocation. Markdown is
// always populated; Structured is nil when the provider output could not
// be validated against the schema.
type ReviewOutcome struct {
	Structured     *StructuredReview `json:"structured,omitempty"`
	Markdown       string            `json:"markdown"`
	ProviderName   string            `json:"providerName"`
	ModelID        string            `json:"modelId"`
	TokensConsumed int               `json:"tokensConsumed,omitempty"`
}

// FileReviewResult is the per-file slice of a pull-request review.
// Scored is false when the provider returned an unstructured review, a
// review failed entirely, or the file was skipped; unscored files carry
// no weight in the PR-level mean.
type FileReviewResult struct {
	Filename string  `json:"filename"`
	Status   string  `json:"status"`
	Issues   []Issue `json:"issues"`
	Score    float64 `json:"score"`
	Scored   bool    `json:"scored"`
	Error    string  `json:"error,omitempty"`
	Skipped  string  `json:"skipped,omitempty"`
}

// PRReviewResult aggregates per-file reviews into an overall verdict.
type PRReviewResult struct {
	Repo             string             `json:"repo"`
	PRNumber         int                `json:"prNumber"`
	HeadCommit       string             `json:"headCommit"`
	OverallScore     float64            `json:"overallScore"`
	Grade            string             `json:"grade"`
	RiskLevel        string             `json:"riskLevel"`
	Summary          string             `json:"summary"`
	FileReviews      []FileReviewResult `json:"fileReviews"`
	CountsBySeverity map[string]int     `json:"countsBySeverity"`
	ReviewedAt       time.Time          `json:"reviewedAt"`
	ProviderName     string             `json:"providerName"`
	Cached           bool               `json:"cached"`
}

// RiskForCounts derives the risk level from severity counts: critical if
// any critical issue exists, high above two high-severity issues, medium
// above five medium-severity issues, low otherwise.
func RiskForCounts(counts map[string]int) string {
	switch {
	case counts[SeverityCritical] > 0:
		return RiskCritical
	case counts[SeverityHigh] > 2:
		return RiskHigh
	case counts[SeverityMedium] > 5:
		return RiskMedium
	default:
		return RiskLow
	}
}
