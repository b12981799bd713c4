package review

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bkyoung/review-engine/internal/domain"
)

func geminiDescriptor() domain.ModelDescriptor {
	return domain.ModelDescriptor{ID: "gemini-2.0-flash", ProviderFamily: domain.FamilyGemini}
}

func TestPromptBuild_IncludesSourceAndSchema(t *testing.T) {
	builder := NewPromptBuilder()

	prompt, err := builder.Build(domain.ReviewRequest{
		SourceText: "package main\n\nfunc main() {}\n",
		Filename:   "main.go",
	}, geminiDescriptor())

	require.NoError(t, err)
	assert.Contains(t, prompt.Text, "func main() {}")
	assert.Contains(t, prompt.Text, "main.go")
	assert.Contains(t, prompt.Text, `"countsBySeverity"`)
	assert.Contains(t, prompt.Text, "Go")
	assert.NotEmpty(t, prompt.System)
	assert.False(t, prompt.Truncated)
	assert.Positive(t, prompt.EstimatedTokens)
}

func TestPromptBuild_IncludesReviewerContext(t *testing.T) {
	builder := NewPromptBuilder()

	prompt, err := builder.Build(domain.ReviewRequest{
		SourceText: "x = 1\n",
		Filename:   "script.py",
		Context:    "This runs in a hot loop.",
	}, geminiDescriptor())

	require.NoError(t, err)
	assert.Contains(t, prompt.Text, "This runs in a hot loop.")
}

func TestPromptBuild_TruncatesToLeadingPortion(t *testing.T) {
	var b strings.Builder
	b.WriteString("opening marker line\n")
	for i := 0; i < 20_000; i++ {
		b.WriteString("line of filler content to size up the file\n")
	}
	source := b.String() + "trailing marker line\n"

	builder := NewPromptBuilder()
	descriptor := domain.ModelDescriptor{ID: "codellama", ProviderFamily: domain.FamilyOllama}

	prompt, err := builder.Build(domain.ReviewRequest{
		SourceText: source,
		Filename:   "big.go",
	}, descriptor)

	require.NoError(t, err)
	assert.True(t, prompt.Truncated)
	assert.Contains(t, prompt.Text, "opening marker line")
	assert.NotContains(t, prompt.Text, "trailing marker line")
	assert.Contains(t, prompt.Text, "too large to include in full")
	assert.Less(t, len(prompt.Text), len(source))
}

func TestPromptBuild_Deterministic(t *testing.T) {
	builder := NewPromptBuilder()
	req := domain.ReviewRequest{
		SourceText: strings.Repeat("some code line\n", 5000),
		Filename:   "pkg.go",
	}
	descriptor := domain.ModelDescriptor{ID: "codellama", ProviderFamily: domain.FamilyOllama}

	first, err := builder.Build(req, descriptor)
	require.NoError(t, err)
	second, err := builder.Build(req, descriptor)
	require.NoError(t, err)

	assert.Equal(t, first.Text, second.Text)
}

func TestPromptBuild_FamilyTemplateOverride(t *testing.T) {
	builder := NewPromptBuilder()
	builder.SetFamilyTemplate(domain.FamilyGemini, "CUSTOM {{.Filename}}\n{{.Schema}}")

	prompt, err := builder.Build(domain.ReviewRequest{
		SourceText: "code",
		Filename:   "a.go",
	}, geminiDescriptor())

	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(prompt.Text, "CUSTOM a.go"))
}

func TestTruncateSource_CutsOnLineBoundary(t *testing.T) {
	text := "first\nsecond\nthird\nfourth\n"

	kept, truncated := truncateSource(text, 14)

	assert.True(t, truncated)
	assert.Equal(t, "first\nsecond\n", kept)

	full, truncated := truncateSource(text, len(text))
	assert.False(t, truncated)
	assert.Equal(t, text, full)
}

func TestLanguageForFilename(t *testing.T) {
	assert.Equal(t, "Go", languageForFilename("internal/app/main.go"))
	assert.Equal(t, "TypeScript", languageForFilename("web/App.tsx"))
	assert.Equal(t, "", languageForFilename("Makefile"))
}
