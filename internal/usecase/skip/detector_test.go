package skip_test

import (
	"testing"

	"github.com/bkyoung/review-engine/internal/usecase/skip"
	"github.com/stretchr/testify/assert"
)

func TestContainsSkipTrigger(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		expected bool
	}{
		{"bracketed with space", "fix typo [skip review]", true},
		{"bracketed with hyphen", "[skip-review] chore: bump deps", true},
		{"case insensitive", "docs update [SKIP REVIEW]", true},
		{"no trigger", "fix: handle nil pointer", false},
		{"unbracketed", "please skip review of this", false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, skip.ContainsSkipTrigger(tt.text))
		})
	}
}

func TestCheck_Order(t *testing.T) {
	result := skip.Check(skip.CheckRequest{
		CommitMessages: []string{"regular commit", "wip [skip review]"},
		PRTitle:        "[skip review] title too",
	})

	assert.True(t, result.ShouldSkip)
	assert.Equal(t, "commit message", result.Reason)
}

func TestCheck_NoTrigger(t *testing.T) {
	result := skip.Check(skip.CheckRequest{
		CommitMessages: []string{"feat: add parser"},
		PRTitle:        "Add parser",
		PRDescription:  "Implements the response parser.",
	})

	assert.False(t, result.ShouldSkip)
	assert.Empty(t, result.Reason)
}
