package review

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/bkyoung/review-engine/internal/domain"
)

// RenderMarkdown renders a validated structured review as a canonical
// markdown document. Issues are grouped by severity, most severe first,
// so two renders of the same review are byte-identical.
func RenderMarkdown(r *domain.StructuredReview) string {
	var builder strings.Builder
	caser := cases.Title(language.English)

	builder.WriteString("# Code Review\n\n")
	builder.WriteString(fmt.Sprintf("**Score:** %.1f/100 (Grade: %s)\n\n", r.Summary.OverallScore, r.Summary.Grade))

	builder.WriteString("## Metrics\n\n")
	builder.WriteString(fmt.Sprintf("- Complexity: %.1f/10\n", r.Metrics.Complexity))
	builder.WriteString(fmt.Sprintf("- Maintainability: %.1f/100\n", r.Metrics.Maintainability))
	builder.WriteString(fmt.Sprintf("- Readability: %.1f/100\n", r.Metrics.Readability))
	builder.WriteString(fmt.Sprintf("- Testability: %.1f/100\n", r.Metrics.Testability))
	builder.WriteString(fmt.Sprintf("- Security: %.1f/100\n\n", r.Metrics.Security))

	if r.Summary.TotalIssues == 0 {
		builder.WriteString("## Issues\n\nNo issues found.\n\n")
	} else {
		builder.WriteString(fmt.Sprintf("## Issues (%d)\n\n", r.Summary.TotalIssues))
		for _, severity := range domain.SeverityOrder {
			issues := issuesWithSeverity(r.Issues, severity)
			if len(issues) == 0 {
				continue
			}
			builder.WriteString(fmt.Sprintf("### %s (%d)\n\n", caser.String(severity), len(issues)))
			for _, issue := range issues {
				builder.WriteString(fmt.Sprintf("#### %s\n\n", issue.Title))
				builder.WriteString(fmt.Sprintf("- Category: %s\n", issue.Category))
				if issue.LineNumber > 0 {
					builder.WriteString(fmt.Sprintf("- Line: %d\n", issue.LineNumber))
				}
				builder.WriteString(fmt.Sprintf("- Description: %s\n", issue.Description))
				if issue.Impact != "" {
					builder.WriteString(fmt.Sprintf("- Impact: %s\n", issue.Impact))
				}
				if issue.Suggestion != "" {
					builder.WriteString(fmt.Sprintf("- Suggestion: %s\n", issue.Suggestion))
				}
				if issue.CodeSnippet != "" {
					builder.WriteString("\n```\n")
					builder.WriteString(strings.TrimRight(issue.CodeSnippet, "\n"))
					builder.WriteString("\n```\n")
				}
				builder.WriteString("\n")
			}
		}
	}

	if len(r.Strengths) > 0 {
		builder.WriteString("## Strengths\n\n")
		for _, s := range r.Strengths {
			builder.WriteString(fmt.Sprintf("- %s\n", s))
		}
		builder.WriteString("\n")
	}

	if len(r.Recommendations) > 0 {
		builder.WriteString("## Recommendations\n\n")
		for _, rec := range r.Recommendations {
			builder.WriteString(fmt.Sprintf("- %s\n", rec))
		}
		builder.WriteString("\n")
	}

	return builder.String()
}

func issuesWithSeverity(issues []domain.Issue, severity string) []domain.Issue {
	var out []domain.Issue
	for _, issue := range issues {
		if issue.Severity == severity {
			out = append(out, issue)
		}
	}
	return out
}
